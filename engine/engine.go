// Package engine wires the Cursor, Subscription Set, De-dup Cache, State
// Machine, Event Fan-out and Request Builder collaborators into the Loop
// Scheduler: the component that actually drives the never-ending sequence
// of long-poll subscribe requests.
package engine

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/relaywire/subengine/clientstate"
	"github.com/relaywire/subengine/config"
	"github.com/relaywire/subengine/cursor"
	"github.com/relaywire/subengine/dedup"
	"github.com/relaywire/subengine/fanout"
	"github.com/relaywire/subengine/heartbeat"
	"github.com/relaywire/subengine/listener"
	"github.com/relaywire/subengine/pkg/logger"
	"github.com/relaywire/subengine/request"
	"github.com/relaywire/subengine/retrytimer"
	"github.com/relaywire/subengine/status"
	"github.com/relaywire/subengine/subset"
	"github.com/relaywire/subengine/transport"
)

// Engine is the Loop Scheduler: it owns every collaborator and is the
// single entry point external callers drive (add/remove channels,
// subscribe, unsubscribe, listen).
//
// All mutable state is guarded by one mutex, matching the single
// reader-writer region a subscribe engine instance is specified to use.
// Listener notifications are never invoked while the guard is held.
type Engine struct {
	mu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	cfg        config.Config
	filterExpr string

	cursor  *cursor.Cursor
	set     *subset.Set
	cache   *dedup.Cache
	timer   *retrytimer.Timer
	machine *status.Machine
	sinks   *listener.Registry

	clientState *clientstate.Store
	heartbeat   *heartbeat.Manager
	transport   transport.Transport

	restoringAfterIssues bool

	log *logger.SlogLogger
}

// New constructs an Engine. cs may be nil, in which case self-targeted
// presence state-change events are still delivered to listeners but
// their state is not stored, and merged state is always empty. heartbeatPing may be nil for deployments that never
// enable presence heartbeats.
func New(cfg config.Config, tr transport.Transport, cs *clientstate.Store, heartbeatPing func(), log *logger.SlogLogger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Discard()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		ctx:         ctx,
		cancel:      cancel,
		cfg:         cfg,
		cursor:      cursor.New(),
		set:         subset.New(),
		cache:       dedup.New(cfg.MaximumMessagesCacheSize),
		timer:       retrytimer.New(),
		machine:     status.New(),
		sinks:       listener.NewRegistry(),
		clientState: cs,
		transport:   tr,
		log:         log.Named("engine"),
	}
	e.heartbeat = heartbeat.New(time.Duration(cfg.PresenceHeartbeatValue)*time.Second, heartbeatPing)
	return e, nil
}

// Close tears down the engine: cancels any in-flight request, stops the
// retry timer and heartbeat, and releases the internal context. Further
// calls become no-ops.
func (e *Engine) Close() {
	e.mu.Lock()
	e.timer.Stop()
	e.cancel()
	e.mu.Unlock()

	e.heartbeat.StopIfPossible()
	e.transport.Cancel()
}

// AddChannels, AddGroups and AddPresence mutate the Subscription Set.
// Callers must invoke Subscribe(initial=true, ...) afterward to re-issue
// with the new set — mutation alone does not restart the loop.
func (e *Engine) AddChannels(names ...string)  { e.set.AddChannels(names...) }
func (e *Engine) AddGroups(names ...string)    { e.set.AddGroups(names...) }
func (e *Engine) AddPresence(names ...string)  { e.set.AddPresence(names...) }

// RemoveChannels, RemoveGroups and RemovePresence mutate the
// Subscription Set without touching client-state or issuing a leave
// request; use Unsubscribe for that.
func (e *Engine) RemoveChannels(names ...string) { e.set.RemoveChannels(names...) }
func (e *Engine) RemoveGroups(names ...string)   { e.set.RemoveGroups(names...) }
func (e *Engine) RemovePresence(names ...string) { e.set.RemovePresence(names...) }

// SetFilterExpression sets the pre-escaped filter expression sent on
// every subsequent subscribe request.
func (e *Engine) SetFilterExpression(expr string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.filterExpr = expr
}

// AddListener registers sink and returns an id suitable for RemoveListener.
func (e *Engine) AddListener(sink listener.Sink) int64 { return e.sinks.Add(sink) }

// RemoveListener unregisters the sink added under id.
func (e *Engine) RemoveListener(id int64) { e.sinks.Remove(id) }

// Snapshot reports the engine's current diagnostic state: internal
// state, cursor position, and subscription set contents. Read-only.
type Snapshot struct {
	State    status.State
	Cursor   cursor.Snapshot
	Channels []string
	Groups   []string
	Presence []string
}

// Snapshot returns a point-in-time diagnostic read.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		State:    e.machine.State(),
		Cursor:   e.cursor.Snapshot(),
		Channels: e.set.Channels(),
		Groups:   e.set.Groups(),
		Presence: e.set.Presence(),
	}
}

// SubscribeUsingTimeToken arms the cursor override and performs an
// initial subscribe carrying it.
func (e *Engine) SubscribeUsingTimeToken(token uint64) {
	e.Subscribe(true, &token, nil, nil, nil)
}

// Subscribe is the single entry point for both initial registration and
// continuation, matching the Loop Scheduler's request lifecycle:
// cancel any pending retry, short-circuit on an empty set, prepare the
// cursor for an initial round, optionally fire onBegin as a synthetic
// "has begun" signal, then issue the request and feed its outcome to
// the State Machine.
func (e *Engine) Subscribe(initial bool, token *uint64, state json.RawMessage, callerQuery url.Values, onBegin func()) {
	e.mu.Lock()

	e.timer.Stop()

	if e.set.IsEmpty() {
		e.cursor.Reset()
		e.restoringAfterIssues = false
		e.mu.Unlock()

		e.transport.Cancel()
		e.heartbeat.StopIfPossible()
		result := e.machine.Transition(status.TargetDisconnected)
		e.notifyTransition(result, "Subscribe", e.set.Channels(), e.set.Groups())
		return
	}

	if initial && !e.restoringAfterIssues {
		var override uint64
		if token != nil {
			override = *token
		}
		e.cursor.SetOverride(override)
		e.cursor.BeginInitial(override)
	}

	if !initial && onBegin != nil {
		onBegin()
	}

	params := e.buildParams(initial, state, callerQuery)
	e.mu.Unlock()

	e.transport.Process(e.ctx, transport.Subscribe, params, e.handleOutcome)
}

func (e *Engine) buildParams(initial bool, state json.RawMessage, callerQuery url.Values) request.Params {
	mergedState := e.mergedState(state)

	in := request.Input{
		Set:    e.set,
		Cursor: e.cursor.Snapshot(),
		CursorPolicy: cursor.AcceptOpts{
			IsInitial:            initial,
			KeepOnListChange:     e.cfg.KeepTimeTokenOnListChange,
			CatchUpOnRestore:     e.cfg.CatchUpOnSubscriptionRestore,
			RestoringAfterIssues: e.restoringAfterIssues,
		},
		FilterExpr:                 e.filterExpr,
		HeartbeatSeconds:           e.cfg.PresenceHeartbeatValue,
		MergedState:                mergedState,
		ManagePresenceListManually: e.cfg.ManagePresenceListManually,
		CallerQuery:                callerQuery,
	}
	return request.Build(in)
}

func (e *Engine) mergedState(state json.RawMessage) map[string]json.RawMessage {
	if e.clientState == nil {
		return nil
	}
	objects := e.set.All()
	if len(objects) == 0 {
		return nil
	}
	if len(state) > 0 {
		merged, err := e.clientState.Merge(e.ctx, state, objects...)
		if err != nil {
			e.log.Warn("client state merge failed", "error", err)
			return nil
		}
		return merged
	}
	merged, err := e.clientState.StateMergedWith(e.ctx, nil, objects...)
	if err != nil {
		e.log.Warn("client state read failed", "error", err)
		return nil
	}
	return merged
}

func (e *Engine) handleOutcome(outcome transport.Outcome) {
	if outcome.Category == status.Cancelled {
		e.heartbeat.StopIfPossible()
		return
	}

	if outcome.IsError {
		e.handleFailure(outcome)
		return
	}

	e.handleSuccess(outcome)
}

func (e *Engine) handleSuccess(outcome transport.Outcome) {
	e.mu.Lock()

	snapBefore := e.cursor.Snapshot()
	isInitial := outcome.IsInitial

	if isInitial || !e.cursor.IsStale(isInitial) {
		e.cursor.Accept(outcome.Response.Timetoken, outcome.Response.Region, cursor.AcceptOpts{
			IsInitial:            isInitial,
			KeepOnListChange:     e.cfg.KeepTimeTokenOnListChange,
			CatchUpOnRestore:     e.cfg.CatchUpOnSubscriptionRestore,
			RestoringAfterIssues: e.restoringAfterIssues,
		})
	}

	if isInitial {
		e.restoringAfterIssues = false
	}

	fanoutCfg := fanout.Config{
		MessageCountThreshold: e.cfg.RequestMessageCountThreshold,
		SuppressLeaveEvents:   e.cfg.SuppressLeaveEvents,
		SelfUUID:              e.cfg.UUID,
	}
	manualPresence := e.cfg.ManagePresenceListManually
	e.mu.Unlock()

	var stateClient fanout.StateStore
	if e.clientState != nil {
		stateClient = e.clientState
	}

	fanout.Process(e.ctx, outcome.Response, snapBefore.Override, snapBefore.HasOverride, e.cache, e.sinks, stateClient, fanoutCfg, func() {
		e.Subscribe(false, nil, nil, nil, nil)
	})

	if !manualPresence {
		e.heartbeat.StartIfRequired()
	}

	if isInitial {
		result := e.machine.HandleSuccess(true)
		e.notifyTransition(result, "Subscribe", e.set.Channels(), e.set.Groups())
	}
}

func (e *Engine) handleFailure(outcome transport.Outcome) {
	kind, ok := failureKindFor(outcome.Category)
	if !ok {
		return
	}

	e.mu.Lock()
	if kind == status.FailureGenericDisconnect {
		if e.cfg.CatchUpOnSubscriptionRestore {
			e.cursor.BeginInitial(0)
		} else {
			e.cursor.Reset()
		}
		e.restoringAfterIssues = true
	}
	e.mu.Unlock()

	e.heartbeat.StopIfPossible()

	result, armTimer := e.machine.HandleFailure(kind)
	if armTimer {
		e.timer.Start(e.restore)
	}
	e.notifyTransition(result, "Subscribe", e.set.Channels(), e.set.Groups())
}

func failureKindFor(cat status.Category) (status.FailureKind, bool) {
	switch cat {
	case status.AccessDenied:
		return status.FailureAccessDenied, true
	case status.Timeout:
		return status.FailureTimeout, true
	case status.MalformedResponse:
		return status.FailureMalformedResponse, true
	case status.TLSConnectionFailed:
		return status.FailureTLSConnectionFailed, true
	case status.MalformedFilter:
		return status.FailureMalformedFilter, true
	case status.RequestTooLong:
		return status.FailureRequestTooLong, true
	case status.UnexpectedDisconnect:
		return status.FailureGenericDisconnect, true
	default:
		return 0, false
	}
}

// restore is the retry timer's handler and the entry point for an
// external reachability signal: it re-enters Subscribe(initial=true)
// iff the State Machine says a restore is warranted.
func (e *Engine) restore() {
	if !e.machine.ShouldRestore(!e.set.IsEmpty()) {
		return
	}
	e.Subscribe(true, nil, nil, nil, nil)
}

// CancelAllSubscribes aborts whatever subscribe request is currently in
// flight. The transport reports this as a Cancelled outcome.
func (e *Engine) CancelAllSubscribes() {
	e.transport.Cancel()
}

func (e *Engine) notifyTransition(result status.Result, operation string, channels, groups []string) {
	if !result.Observable {
		return
	}
	for _, sink := range e.sinks.Snapshot() {
		sink.NotifyStatus(listener.Status{
			Operation:        operation,
			Category:         string(result.Category),
			IsError:          isErrorCategory(result.Category),
			AffectedChannels: channels,
			AffectedGroups:   groups,
		})
	}
}

func isErrorCategory(cat status.Category) bool {
	switch cat {
	case status.Connected, status.Reconnected, status.Acknowledgment:
		return false
	default:
		return true
	}
}
