package status

import "sync"

// Result is the outcome of a single Transition call: the state the
// machine is now in, the category a listener should be told about, and
// whether the transition is observable at all. Cells the internal
// transition table marks ignore produce Observable=false and leave
// State unchanged.
type Result struct {
	State      State
	Category   Category
	Observable bool
}

// Machine is the finite subscriber state machine. The zero
// value is not usable; construct with New.
type Machine struct {
	mu                 sync.Mutex
	state              State
	mayRequireRestore  bool
	automaticallyRetry bool
}

// New returns a Machine in StateInitialized.
func New() *Machine {
	return &Machine{state: StateInitialized}
}

// State reports the current internal state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// MayRequireRestore reports whether the last observable transition left
// the engine in a state where a subscription restore might be needed.
func (m *Machine) MayRequireRestore() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mayRequireRestore
}

// AutomaticallyRetry reports whether the most recent failure classified
// itself as one the engine should keep retrying (as opposed to the two
// permanent policy failures, MalformedFilter and RequestTooLong).
func (m *Machine) AutomaticallyRetry() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.automaticallyRetry
}

// Transition applies the transition table cell for (current state,
// target) and reports the result. Side effects (mayRequireRestore) are
// only applied when the cell is observable.
func (m *Machine) Transition(target Target) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	newState, category, observable := cell(m.state, target)
	if !observable {
		return Result{State: m.state, Category: category, Observable: false}
	}

	m.state = newState
	switch category {
	case Connected, Reconnected:
		m.mayRequireRestore = true
	case Disconnected, UnexpectedDisconnect:
		m.mayRequireRestore = true
	case AccessDenied, MalformedFilter, RequestTooLong:
		m.mayRequireRestore = false
	}

	return Result{State: newState, Category: category, Observable: true}
}

// cell implements the internal transition table. MalformedFilter and
// RequestTooLong states route through the same row as
// StateUnexpectedlyDisconnected, since they are the same internal state.
func cell(current State, target Target) (State, Category, bool) {
	switch current {
	case StateInitialized:
		return initialCell(target)
	case StateDisconnected:
		return disconnectedCell(target)
	case StateConnected:
		return connectedCell(target)
	case StateUnexpectedlyDisconnected:
		return unexpectedlyDisconnectedCell(target)
	case StateAccessDenied:
		return accessDeniedCell(target)
	default:
		return current, "", false
	}
}

func initialCell(target Target) (State, Category, bool) {
	switch target {
	case TargetConnected:
		return StateConnected, Connected, true
	case TargetDisconnected:
		return StateDisconnected, Disconnected, true
	case TargetUnexpectedDisconnect:
		return StateUnexpectedlyDisconnected, UnexpectedDisconnect, true
	case TargetAccessDenied:
		return StateAccessDenied, AccessDenied, true
	case TargetMalformedFilter:
		return StateUnexpectedlyDisconnected, MalformedFilter, true
	case TargetRequestTooLong:
		return StateUnexpectedlyDisconnected, RequestTooLong, true
	default:
		return StateInitialized, "", false
	}
}

func disconnectedCell(target Target) (State, Category, bool) {
	switch target {
	case TargetConnected:
		return StateConnected, Connected, true
	case TargetDisconnected:
		// Re-entry into the same disconnected state is not observable.
		return StateDisconnected, Disconnected, false
	case TargetUnexpectedDisconnect:
		return StateDisconnected, "", false
	case TargetAccessDenied:
		return StateAccessDenied, AccessDenied, true
	case TargetMalformedFilter:
		return StateUnexpectedlyDisconnected, MalformedFilter, true
	case TargetRequestTooLong:
		return StateUnexpectedlyDisconnected, RequestTooLong, true
	default:
		return StateDisconnected, "", false
	}
}

func connectedCell(target Target) (State, Category, bool) {
	switch target {
	case TargetConnected:
		// Same-state re-entry is observable for Connected.
		return StateConnected, Connected, true
	case TargetDisconnected:
		return StateDisconnected, Disconnected, true
	case TargetUnexpectedDisconnect:
		return StateUnexpectedlyDisconnected, UnexpectedDisconnect, true
	case TargetAccessDenied:
		return StateAccessDenied, AccessDenied, true
	case TargetMalformedFilter:
		return StateUnexpectedlyDisconnected, MalformedFilter, true
	case TargetRequestTooLong:
		return StateUnexpectedlyDisconnected, RequestTooLong, true
	default:
		return StateConnected, "", false
	}
}

// unexpectedlyDisconnectedCell also serves the MalformedFilter and
// RequestTooLong states, which are the same internal state.
func unexpectedlyDisconnectedCell(target Target) (State, Category, bool) {
	switch target {
	case TargetConnected:
		// Recovering from an unexpected disconnect reports Reconnected,
		// not Connected.
		return StateConnected, Reconnected, true
	case TargetDisconnected:
		return StateDisconnected, Disconnected, true
	case TargetUnexpectedDisconnect:
		// Re-entry is observable here (unlike the Disconnected row):
		// each fresh disconnect outcome while already unexpectedly
		// disconnected is still worth reporting.
		return StateUnexpectedlyDisconnected, UnexpectedDisconnect, true
	case TargetAccessDenied:
		return StateAccessDenied, AccessDenied, true
	case TargetMalformedFilter:
		return StateUnexpectedlyDisconnected, MalformedFilter, true
	case TargetRequestTooLong:
		return StateUnexpectedlyDisconnected, RequestTooLong, true
	default:
		return StateUnexpectedlyDisconnected, "", false
	}
}

func accessDeniedCell(target Target) (State, Category, bool) {
	switch target {
	case TargetConnected:
		// Recovering from AccessDenied reports Connected, not Reconnected.
		return StateConnected, Connected, true
	case TargetMalformedFilter:
		return StateUnexpectedlyDisconnected, MalformedFilter, true
	case TargetRequestTooLong:
		return StateUnexpectedlyDisconnected, RequestTooLong, true
	default:
		// Disconnected, UnexpectedDisconnect and AccessDenied-again are
		// suppressed while the gate is up: the engine stops emitting
		// connect/disconnect categories other than AccessDenied until the
		// gate clears.
		return StateAccessDenied, "", false
	}
}

// HandleSuccess applies a successful transport outcome. A continuation
// response (isInitial false) is not itself a transition — only an
// initial response moves the machine to Connected/Reconnected.
func (m *Machine) HandleSuccess(isInitial bool) Result {
	if !isInitial {
		return Result{State: m.State(), Observable: false}
	}
	return m.Transition(TargetConnected)
}

// HandleFailure applies a recognized failure outcome, updating the
// automaticallyRetry flag and returning both the transition Result and
// whether the engine's own 1 Hz retry timer should be armed.
//
// FailureGenericDisconnect marks automaticallyRetry but never arms the
// timer: network-layer errors are handled by the transport's own
// reachability logic, not the engine's retry clock.
func (m *Machine) HandleFailure(kind FailureKind) (Result, bool) {
	var target Target
	permanent := false
	viaTimer := true

	switch kind {
	case FailureAccessDenied:
		target = TargetAccessDenied
	case FailureTimeout, FailureMalformedResponse, FailureTLSConnectionFailed:
		target = TargetUnexpectedDisconnect
	case FailureMalformedFilter:
		target = TargetMalformedFilter
		permanent = true
	case FailureRequestTooLong:
		target = TargetRequestTooLong
		permanent = true
	case FailureGenericDisconnect:
		target = TargetUnexpectedDisconnect
		viaTimer = false
	}

	m.mu.Lock()
	m.automaticallyRetry = !permanent
	m.mu.Unlock()

	result := m.Transition(target)
	return result, viaTimer && !permanent
}

// ShouldRestore implements the restore predicate: restoration
// (subscribe with isInitial=true) is performed iff the subscription
// set is non-empty and the state is either AccessDenied, or
// UnexpectedlyDisconnected with mayRequireRestore set.
func (m *Machine) ShouldRestore(subscriptionSetNonEmpty bool) bool {
	if !subscriptionSetNonEmpty {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateAccessDenied:
		return true
	case StateUnexpectedlyDisconnected:
		return m.mayRequireRestore
	default:
		return false
	}
}
