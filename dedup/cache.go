// Package dedup implements the bounded de-duplication cache: it
// recognizes a (timetoken, channel, payload) triple the engine has
// already delivered and suppresses the repeat, while bounding how much
// history it remembers.
//
// The wire/debug identifier for an entry is "<timetoken>_<channel>", but
// since channel names may themselves contain underscores, the cache
// keys itself internally on the (timetoken, channel) pair rather than
// parsing that string, and only formats it when asked.
package dedup

import (
	"bytes"
	"fmt"
	"sort"
)

// id is the internal, collision-free key: a (timetoken, channel) pair.
type id struct {
	timetoken uint64
	channel   string
}

// String renders the wire-compatible "<timetoken>_<channel>" form.
func (k id) String() string {
	return fmt.Sprintf("%d_%s", k.timetoken, k.channel)
}

// Cache is the bounded, insertion-ordered de-dup store. The zero value
// is not usable; construct with New.
type Cache struct {
	capacity int

	entries map[id][][]byte // payloads seen under this id, oldest first
	order   []id            // one entry per novel insertion, oldest first
}

// New returns a Cache bounded to capacity identifiers-worth of insertions.
// A capacity of 0 means the cache is bypassed entirely: every
// insertion reports novel and nothing is retained.
func New(capacity int) *Cache {
	return &Cache{
		capacity: capacity,
		entries:  make(map[id][][]byte),
	}
}

// Bypassed reports whether this cache was configured with capacity 0.
func (c *Cache) Bypassed() bool {
	return c.capacity == 0
}

// TryInsert composes the identifier for (timetoken, channel), and reports
// whether payload is novel under that identifier. A duplicate payload
// (byte-for-byte equal to one already recorded for the same identifier)
// leaves the cache untouched and returns false. A novel payload is
// recorded and the cache is trimmed back to capacity; TryInsert then
// returns true.
func (c *Cache) TryInsert(timetoken uint64, channel string, payload []byte) bool {
	if c.Bypassed() {
		return true
	}

	k := id{timetoken: timetoken, channel: channel}
	existing := c.entries[k]
	for _, p := range existing {
		if bytes.Equal(p, payload) {
			return false
		}
	}

	c.entries[k] = append(existing, payload)
	c.order = append(c.order, k)
	c.evictTo(c.capacity)
	return true
}

// EvictTo trims the cache until the insertion sequence holds at most K
// entries, popping the oldest identifier first, dropping only its oldest
// payload, and removing the mapping entirely once its payload list is
// empty.
func (c *Cache) EvictTo(k int) {
	c.evictTo(k)
}

func (c *Cache) evictTo(k int) {
	for len(c.order) > k {
		oldest := c.order[0]
		c.order = c.order[1:]

		payloads := c.entries[oldest]
		if len(payloads) > 0 {
			payloads = payloads[1:]
		}
		if len(payloads) == 0 {
			delete(c.entries, oldest)
		} else {
			c.entries[oldest] = payloads
		}
	}
}

// PurgeNewerThan removes every identifier whose timetoken is >= T from
// both the mapping and the insertion sequence — used to drop entries
// a catch-up override would otherwise shadow.
// Idempotent: a second call with the same T is a no-op.
func (c *Cache) PurgeNewerThan(t uint64) {
	if len(c.order) == 0 {
		return
	}

	remove := make(map[id]struct{})
	for k := range c.entries {
		if k.timetoken >= t {
			remove[k] = struct{}{}
		}
	}
	if len(remove) == 0 {
		return
	}

	for k := range remove {
		delete(c.entries, k)
	}

	kept := c.order[:0:0]
	for _, k := range c.order {
		if _, gone := remove[k]; !gone {
			kept = append(kept, k)
		}
	}
	c.order = kept
}

// Len reports the number of tracked insertions. This must never exceed
// the configured capacity.
func (c *Cache) Len() int {
	return len(c.order)
}

// sortedIDs is exposed only for tests that want to assert eviction order
// deterministically.
func (c *Cache) sortedIDs() []id {
	out := make([]id, len(c.order))
	copy(out, c.order)
	sort.Slice(out, func(i, j int) bool {
		if out[i].timetoken != out[j].timetoken {
			return out[i].timetoken < out[j].timetoken
		}
		return out[i].channel < out[j].channel
	})
	return out
}
