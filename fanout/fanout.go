// Package fanout implements the Event Fan-out component: it purges an
// override's shadowed cache entries, de-duplicates a response's events,
// counts against the configured threshold, classifies each remaining
// event, and dispatches it to the Listener Sink — while preserving the
// broker's delivery order.
package fanout

import (
	"context"
	"encoding/json"

	"github.com/relaywire/subengine/dedup"
	"github.com/relaywire/subengine/event"
	"github.com/relaywire/subengine/listener"
	"github.com/relaywire/subengine/status"
)

// StateStore is the subset of the client-state store Fan-out needs: a
// write path for self-targeted presence state-change events.
type StateStore interface {
	Set(ctx context.Context, object string, state json.RawMessage) error
}

// Config carries the fan-out-relevant engine configuration.
type Config struct {
	MessageCountThreshold int // M; 0 disables the RequestMessageCountExceeded status.
	SuppressLeaveEvents   bool
	SelfUUID              string
}

// Process runs the full fan-out sequence against a single subscribe
// response. scheduleNext is invoked immediately after de-duplication, so
// that listener latency never serializes against the loop cadence.
func Process(
	ctx context.Context,
	resp event.Response,
	override uint64,
	hasOverride bool,
	cache *dedup.Cache,
	sinks *listener.Registry,
	clientState StateStore,
	cfg Config,
	scheduleNext func(),
) {
	if hasOverride && override != 0 {
		cache.PurgeNewerThan(override)
	}

	kept := make([]event.Envelope, 0, len(resp.Events))
	for _, env := range resp.Events {
		if event.Classify(env) == event.KindMessage && !env.DecryptError {
			if !cache.TryInsert(env.Timetoken, env.Channel, env.Body()) {
				continue
			}
		}
		kept = append(kept, env)
	}

	if scheduleNext != nil {
		scheduleNext()
	}

	if cfg.MessageCountThreshold > 0 && len(resp.Events) >= cfg.MessageCountThreshold {
		broadcastStatus(sinks, listener.Status{
			Operation: "Subscribe",
			Category:  string(status.RequestMessageCountExceeded),
		})
	}

	for _, env := range kept {
		dispatchOne(ctx, env, sinks, clientState, cfg)
	}
}

func dispatchOne(ctx context.Context, env event.Envelope, sinks *listener.Registry, clientState StateStore, cfg Config) {
	kind := event.Classify(env)

	if (kind == event.KindMessage || kind == event.KindFile) && env.DecryptError {
		broadcastStatus(sinks, listener.Status{
			Operation:        "Subscribe",
			Category:         string(status.DecryptionError),
			IsError:          true,
			AffectedChannels: []string{env.Channel},
		})
		return
	}

	if kind == event.KindPresence && env.PresenceEvent == "leave" && cfg.SuppressLeaveEvents {
		return
	}

	e := event.FromEnvelope(env)

	if kind == event.KindPresence && env.PresenceEvent == "state-change" && env.UUID == cfg.SelfUUID && clientState != nil {
		_ = clientState.Set(ctx, env.Channel, env.Body())
	}

	for _, sink := range sinks.Snapshot() {
		switch kind {
		case event.KindMessage:
			sink.NotifyMessage(e)
		case event.KindSignal:
			sink.NotifySignal(e)
		case event.KindMessageAction:
			sink.NotifyMessageAction(e)
		case event.KindObject:
			sink.NotifyObject(e)
		case event.KindFile:
			sink.NotifyFile(e)
		case event.KindPresence:
			sink.NotifyPresence(e)
		}
	}
}

func broadcastStatus(sinks *listener.Registry, st listener.Status) {
	for _, sink := range sinks.Snapshot() {
		sink.NotifyStatus(st)
	}
}
