package dedup

import "time"

// DefaultRetention is how long an error message stays suppressed.
const DefaultRetention = 24 * time.Hour

// Cache remembers error messages that were already reported.
//
// It is owned by a single goroutine and is not safe for concurrent use.
// The whole cache is dropped once its epoch is older than the retention
// window, independent of individual entries.
type Cache struct {
	retention time.Duration
	epoch     time.Time
	seen      map[string]time.Time
}

func New(retention time.Duration, now time.Time) *Cache {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Cache{retention: retention, epoch: now, seen: map[string]time.Time{}}
}

// Sweep clears the cache if the current epoch has expired.
// It reports whether a reset happened.
func (c *Cache) Sweep(now time.Time) bool {
	if now.Sub(c.epoch) <= c.retention {
		return false
	}
	clear(c.seen)
	c.epoch = now
	return true
}

// Allow records msg and reports whether it should be forwarded.
// A message seen less than one retention window ago is suppressed.
func (c *Cache) Allow(msg string, now time.Time) bool {
	if at, ok := c.seen[msg]; ok && now.Sub(at) < c.retention {
		return false
	}
	c.seen[msg] = now
	return true
}

// Len returns the number of cached messages.
func (c *Cache) Len() int { return len(c.seen) }
