package engine

import (
	"net/url"

	"github.com/relaywire/subengine/request"
	"github.com/relaywire/subengine/status"
	"github.com/relaywire/subengine/subset"
	"github.com/relaywire/subengine/transport"
)

// Unsubscribe removes channels and groups from the Subscription Set,
// clears their custom client state, and — unless leave events are
// suppressed — issues a leave request before optionally continuing the
// loop with the narrower set.
func (e *Engine) Unsubscribe(channels, groups []string, callerQuery url.Values, informListener, subscribeOnRest bool, cb func()) {
	e.mu.Lock()

	if e.clientState != nil {
		objects := append(append([]string{}, channels...), groups...)
		if err := e.clientState.Remove(e.ctx, objects...); err != nil {
			e.log.Warn("client state remove failed", "error", err)
		}
	}

	leaveTargets := make([]string, 0, len(channels))
	for _, ch := range channels {
		if !subset.IsPresenceName(ch) {
			leaveTargets = append(leaveTargets, ch)
		}
	}

	e.set.RemoveChannels(channels...)
	e.set.RemoveGroups(groups...)
	beforeAll := e.set.All()

	if e.set.IsEmpty() {
		e.cursor.Reset()
	}

	hasLeaveTargets := len(leaveTargets) > 0 || len(groups) > 0
	suppressed := e.cfg.SuppressLeaveEvents

	if !hasLeaveTargets || suppressed {
		stillNonEmpty := !e.set.IsEmpty()
		e.mu.Unlock()

		if cb != nil {
			cb()
		}
		if stillNonEmpty {
			e.Subscribe(true, nil, nil, callerQuery, nil)
		}
		return
	}

	leaveSet := subset.New()
	leaveSet.AddChannels(leaveTargets...)
	leaveSet.AddGroups(groups...)

	params := request.Build(request.Input{
		Set:         leaveSet,
		Cursor:      e.cursor.Snapshot(),
		CallerQuery: callerQuery,
	})
	e.mu.Unlock()

	e.transport.Process(e.ctx, transport.Unsubscribe, params, func(outcome transport.Outcome) {
		e.handleLeaveOutcome(outcome, beforeAll, informListener, subscribeOnRest, callerQuery, cb)
	})
}

func (e *Engine) handleLeaveOutcome(outcome transport.Outcome, beforeAll []string, informListener, subscribeOnRest bool, callerQuery url.Values, cb func()) {
	var result status.Result
	switch {
	case outcome.Category == status.AccessDenied:
		result = e.machine.Transition(status.TargetAccessDenied)
	case informListener:
		result = e.machine.Transition(status.TargetDisconnected)
	default:
		result = status.Result{Observable: false}
	}
	e.notifyTransition(result, "Unsubscribe", nil, nil)

	if cb != nil {
		cb()
	}

	setUnchanged := sameElements(beforeAll, e.set.All())
	if subscribeOnRest && !e.set.IsEmpty() && setUnchanged {
		e.Subscribe(false, nil, nil, callerQuery, nil)
	}
}

// UnsubscribeFromAll leaves every currently subscribed channel and
// group, tearing the loop down entirely.
func (e *Engine) UnsubscribeFromAll(cb func()) {
	e.mu.Lock()
	channels := e.set.Channels()
	presence := e.set.Presence()
	groups := e.set.Groups()
	e.mu.Unlock()

	all := append(append([]string{}, channels...), presence...)
	e.Unsubscribe(all, groups, nil, true, false, cb)
}

func sameElements(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, v := range a {
		seen[v]++
	}
	for _, v := range b {
		seen[v]--
	}
	for _, n := range seen {
		if n != 0 {
			return false
		}
	}
	return true
}
