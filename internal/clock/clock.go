// Package clock generates the 17-character lexicographically sortable
// timestamps used as event-time and as the <ts> filename component (§3.1).
// Stepping past the last value handed out guarantees ordering even when
// two events are produced within the same wall-clock millisecond.
package clock

import (
	"fmt"
	"sync"
	"time"
)

// Clock produces monotone, sortable timestamps of the form
// YYYYMMDDhhmmssXXX, where XXX is the millisecond within the second. When
// the wall clock has not moved past the last value handed out, the
// millisecond is stepped forward by one so every value stays unique.
type Clock struct {
	mu     sync.Mutex
	lastMS int64
	now    func() time.Time
}

// New returns a Clock backed by the real wall clock.
func New() *Clock {
	return &Clock{now: time.Now}
}

// NewWithSource returns a Clock backed by a caller-supplied time source,
// for deterministic tests.
func NewWithSource(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// Next returns the next timestamp, guaranteed to sort strictly after any
// previous value returned by this Clock.
func (c *Clock) Next() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now()
	ms := t.UnixMilli()
	if ms <= c.lastMS {
		// Wall clock didn't advance (or went backwards): step one
		// millisecond past the last value so ordering is preserved.
		ms = c.lastMS + 1
	}
	c.lastMS = ms

	return fmt.Sprintf("%s%03d", time.UnixMilli(ms).UTC().Format("20060102150405"), ms%1000)
}
