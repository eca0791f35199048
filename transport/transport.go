// Package transport defines the Transport contract the Loop Scheduler
// drives: Process(operation, params, callback). An HTTP-based
// implementation lives in the httptransport subpackage.
package transport

import (
	"context"

	"github.com/relaywire/subengine/event"
	"github.com/relaywire/subengine/request"
	"github.com/relaywire/subengine/status"
)

// Operation names which subscribe-engine call is being issued.
type Operation int

const (
	Subscribe Operation = iota
	Unsubscribe
)

func (o Operation) String() string {
	if o == Unsubscribe {
		return "Unsubscribe"
	}
	return "Subscribe"
}

// Outcome is the status record a Transport hands back to its callback:
// at minimum the operation, category, error flag, request URL, and any
// delivered response payload.
type Outcome struct {
	Operation        Operation
	Category         status.Category
	IsError          bool
	ClientRequestURL string
	IsInitial        bool
	Response         event.Response
}

// Transport is the collaborator the Loop Scheduler issues requests
// through. Process must not block; the outcome is delivered to callback
// on a transport-owned goroutine.
type Transport interface {
	Process(ctx context.Context, op Operation, params request.Params, callback func(Outcome))

	// Cancel aborts whatever request is currently in flight, if any,
	// which must surface as an Outcome with Category status.Cancelled.
	Cancel()
}
