// Package subset owns the three disjoint-by-role containers of channel,
// group, and presence-channel names that together describe what a
// subscribe engine is listening to.
package subset

import (
	"sort"
	"strings"
	"sync"
)

// PresenceSuffix marks a channel name as a presence feed rather than a
// data channel rather than a regular one.
const PresenceSuffix = "-pnpres"

// Set is a single-writer-discipline container: all mutation happens
// under one lock, and every operation is idempotent.
type Set struct {
	mu       sync.RWMutex
	data     map[string]struct{}
	groups   map[string]struct{}
	presence map[string]struct{}
}

// New returns an empty Set.
func New() *Set {
	return &Set{
		data:     make(map[string]struct{}),
		groups:   make(map[string]struct{}),
		presence: make(map[string]struct{}),
	}
}

// IsPresenceName reports whether name carries the presence suffix.
func IsPresenceName(name string) bool {
	return strings.HasSuffix(name, PresenceSuffix)
}

// AddChannels adds data channels, routing any presence-suffixed entry to
// the presence set instead.
func (s *Set) AddChannels(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		if n == "" {
			continue
		}
		if IsPresenceName(n) {
			s.presence[n] = struct{}{}
			continue
		}
		s.data[n] = struct{}{}
	}
}

// RemoveChannels removes name from both the data and presence sets — the
// set difference removes anything filed under either role.
func (s *Set) RemoveChannels(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		delete(s.data, n)
		delete(s.presence, n)
	}
}

// AddGroups adds channel groups.
func (s *Set) AddGroups(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		if n == "" {
			continue
		}
		s.groups[n] = struct{}{}
	}
}

// RemoveGroups removes channel groups.
func (s *Set) RemoveGroups(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		delete(s.groups, n)
	}
}

// AddPresence adds entries to the presence set directly (bypassing the
// suffix-routing AddChannels applies).
func (s *Set) AddPresence(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		if n == "" {
			continue
		}
		s.presence[n] = struct{}{}
	}
}

// RemovePresence removes entries from the presence set only.
func (s *Set) RemovePresence(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range names {
		delete(s.presence, n)
	}
}

// Channels returns the data channel names, order not significant.
func (s *Set) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return keys(s.data)
}

// Groups returns the channel group names.
func (s *Set) Groups() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return keys(s.groups)
}

// Presence returns the presence channel names.
func (s *Set) Presence() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return keys(s.presence)
}

// All returns the ordered-irrelevant concatenation of data, presence, and
// group names used for the empty-check and for request building. The
// same underlying name may legitimately appear twice (once as a data
// channel, once as its presence sibling).
func (s *Set) All() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data)+len(s.presence)+len(s.groups))
	for k := range s.data {
		out = append(out, k)
	}
	for k := range s.presence {
		out = append(out, k)
	}
	for k := range s.groups {
		out = append(out, k)
	}
	return out
}

// IsEmpty reports whether the sum of all three sets is zero.
func (s *Set) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data) == 0 && len(s.groups) == 0 && len(s.presence) == 0
}

// Clear empties all three sets.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]struct{})
	s.groups = make(map[string]struct{})
	s.presence = make(map[string]struct{})
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
