// Package cursor holds the subscribe loop's continuation state: the
// timetoken/region pair the broker expects on the next long-poll, and the
// previous pair kept around for catch-up after a network interruption.
package cursor

import "sync"

// Region sentinel meaning "unset". A broker region is only ever a small
// non-negative integer once assigned.
const NoRegion int32 = -1

// Cursor tracks the (timetoken, region) continuation pair. The zero
// value is not ready for use; construct with New.
type Cursor struct {
	mu sync.RWMutex

	current       uint64
	currentRegion int32
	last          uint64
	lastRegion    int32

	// override is a caller-supplied timetoken that must be used verbatim
	// for the next initial registration, consumed (and cleared) the
	// first time it is applied.
	override    uint64
	hasOverride bool
}

// New returns a Cursor at its sentinel values: current = 0 (initial
// registration), no region, no pending override.
func New() *Cursor {
	return &Cursor{
		currentRegion: NoRegion,
		lastRegion:    NoRegion,
	}
}

// Snapshot is an immutable read of all four cursor fields plus whatever
// override is currently pending.
type Snapshot struct {
	Current       uint64
	CurrentRegion int32
	Last          uint64
	LastRegion    int32
	Override      uint64
	HasOverride   bool
}

// Snapshot returns the current state under the read lock.
func (c *Cursor) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Current:       c.current,
		CurrentRegion: c.currentRegion,
		Last:          c.last,
		LastRegion:    c.lastRegion,
		Override:      c.override,
		HasOverride:   c.hasOverride,
	}
}

// IsInitial reports whether current is still the sentinel, i.e. the next
// subscribe is an initial registration. That request carries tt=0 unless
// an override or a reuse-last policy applies (see EffectiveRequestToken).
func (c *Cursor) IsInitial() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current == 0
}

// SetOverride remembers tok as the timetoken to use for the next initial
// registration, in place of whatever current/last resolution would
// otherwise apply. A zero token clears any pending override instead of
// setting one — 0 means "no override requested".
func (c *Cursor) SetOverride(tok uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if tok == 0 {
		c.hasOverride = false
		c.override = 0
		return
	}
	c.override = tok
	c.hasOverride = true
}

// BeginInitial starts an initial registration: if current is non-zero it is
// preserved into last (never discarded), current resets to the sentinel,
// and currentRegion resets to NoRegion. If override is non-zero it is
// remembered as the token for this initial response (SetOverride is the
// usual way to arm it, but callers that already hold a token may pass it
// here directly).
func (c *Cursor) BeginInitial(override uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != 0 {
		c.last = c.current
		c.lastRegion = c.currentRegion
	}
	c.current = 0
	c.currentRegion = NoRegion

	if override != 0 {
		c.override = override
		c.hasOverride = true
	}
}

// AcceptOpts controls which of the list-change / restore policies apply
// to an accepted response.
type AcceptOpts struct {
	IsInitial            bool
	KeepOnListChange     bool
	CatchUpOnRestore     bool
	RestoringAfterIssues bool
}

// Accept advances the cursor given a freshly delivered (timetoken, region)
// pair, following these rules:
//
//   - Non-initial responses while current == 0 are stale replays of a reset
//     cursor; they are ignored for cursor purposes (the caller still fans
//     the events out, but must not call Accept for them — callers check
//     IsInitial()/IsStale first).
//   - Initial responses honor keep-on-list-change, or catch-up-on-restore
//     while restoring, by reusing last in place of the delivered token —
//     unless an override was pending for this round, which always forces
//     the delivered token to be accepted instead (a caller-supplied
//     override governs what is requested, via EffectiveRequestToken and
//     the de-dup cache's purge_newer_than; the response's own token is
//     still what becomes current once it arrives).
//   - Otherwise the delivered token becomes current, and whatever current
//     held moves to last.
func (c *Cursor) Accept(timetoken uint64, region int32, opts AcceptOpts) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !opts.IsInitial && c.current == 0 {
		return
	}

	if opts.IsInitial {
		overrideActive := c.hasOverride && c.override != 0
		reuseLast := !overrideActive &&
			(opts.KeepOnListChange || (opts.CatchUpOnRestore && opts.RestoringAfterIssues)) &&
			c.last != 0

		if reuseLast {
			c.current = c.last
			c.currentRegion = c.lastRegion
			c.last = 0
			c.lastRegion = NoRegion
		} else {
			c.last = c.current
			c.lastRegion = c.currentRegion
			c.current = timetoken
			c.currentRegion = region
		}

		c.hasOverride = false
		c.override = 0
		return
	}

	c.last = c.current
	c.lastRegion = c.currentRegion
	c.current = timetoken
	c.currentRegion = region
	c.hasOverride = false
	c.override = 0
}

// EffectiveRequestToken computes the (timetoken, region) pair that should
// actually be sent as the next request's tt/tr, given a snapshot and the
// same policy flags Accept uses to advance the cursor on the matching
// response — without mutating anything.
//
// This mirrors Accept's decision tree so the Request Builder can
// anticipate a catch-up-on-restore "reuse last" decision before the
// response that would otherwise finalize it has arrived: after a
// disconnect that zeroed current but preserved last, the restore
// subscribe must still go out carrying last, not the zeroed current.
func EffectiveRequestToken(snap Snapshot, opts AcceptOpts) (uint64, int32) {
	if !opts.IsInitial {
		return snap.Current, snap.CurrentRegion
	}
	if snap.HasOverride && snap.Override != 0 {
		return snap.Override, NoRegion
	}
	if (opts.KeepOnListChange || (opts.CatchUpOnRestore && opts.RestoringAfterIssues)) && snap.Last != 0 {
		return snap.Last, snap.LastRegion
	}
	return snap.Current, snap.CurrentRegion
}

// IsStale reports whether a non-initial response with the given isInitial
// flag should be treated as a delayed reply after a reset: true iff
// the response is not initial and the cursor has already been reset to 0.
func (c *Cursor) IsStale(isInitial bool) bool {
	if isInitial {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current == 0
}

// Reset sets all four fields back to sentinel values and clears any
// pending override.
func (c *Cursor) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = 0
	c.currentRegion = NoRegion
	c.last = 0
	c.lastRegion = NoRegion
	c.override = 0
	c.hasOverride = false
}
