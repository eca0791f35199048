// Package listener defines the Listener Sink contract the engine fans
// events out to, plus a copy-on-write multi-listener registry.
package listener

import "github.com/relaywire/subengine/event"

// Status is the record delivered to NotifyStatus. A DecryptionError
// status has its Envelope/DecryptError-bearing event stripped — it
// carries only what a caller needs to react.
type Status struct {
	Operation        string
	Category         string
	IsError          bool
	ClientRequestURL string
	AffectedChannels []string
	AffectedGroups   []string
}

// Sink is the set of callbacks the engine dispatches to. Implementations
// must return promptly: notifications are sequential and never invoked
// while the engine's guard is held.
type Sink interface {
	NotifyStatus(Status)
	NotifyMessage(event.Event)
	NotifySignal(event.Event)
	NotifyMessageAction(event.Event)
	NotifyObject(event.Event)
	NotifyFile(event.Event)
	NotifyPresence(event.Event)
}
