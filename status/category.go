// Package status implements the subscriber state machine: the finite
// set of states, the user-visible category produced by each
// transition, and whether that transition is observable (i.e. worth a
// listener notification).
package status

// Category is a user-visible status reported to the Listener Sink.
// Only a subset of these values ever flow out of the state machine
// itself (Connected, Reconnected, Disconnected, UnexpectedDisconnect,
// AccessDenied, MalformedFilter, RequestTooLong); the rest are produced
// by the transport as outcome categories or by the event fan-out.
type Category string

const (
	Connected                   Category = "Connected"
	Reconnected                 Category = "Reconnected"
	Disconnected                Category = "Disconnected"
	UnexpectedDisconnect        Category = "UnexpectedDisconnect"
	AccessDenied                Category = "AccessDenied"
	MalformedFilter             Category = "MalformedFilter"
	RequestTooLong              Category = "RequestTooLong"
	Cancelled                   Category = "Cancelled"
	Timeout                     Category = "Timeout"
	MalformedResponse           Category = "MalformedResponse"
	TLSConnectionFailed         Category = "TLSConnectionFailed"
	DecryptionError             Category = "DecryptionError"
	RequestMessageCountExceeded Category = "RequestMessageCountExceeded"
	Acknowledgment              Category = "Acknowledgment"
)

// FailureKind classifies a transport failure outcome for HandleFailure.
type FailureKind int

const (
	FailureAccessDenied FailureKind = iota
	FailureTimeout
	FailureMalformedResponse
	FailureTLSConnectionFailed
	FailureMalformedFilter
	FailureRequestTooLong
	// FailureGenericDisconnect is the catch-all bucket: a network-layer
	// error whose retry is the transport's own reachability logic, not
	// the engine's fixed-interval retry timer.
	FailureGenericDisconnect
)
