package domain

import (
	"sync"
	"time"
)

// DailyCapacity throttles repeatable actions to once per key per calendar
// day. It backs the event-notification pipeline so a noisy source cannot
// page the same ticker alert dozens of times in one session. State lives in
// memory only; a restart resets the window, which is acceptable for a
// notification throttle.
type DailyCapacity struct {
	mu   sync.Mutex
	day  string
	seen map[string]struct{}
	loc  *time.Location
}

// NewDailyCapacity builds a throttle whose day boundary follows loc.
func NewDailyCapacity(loc *time.Location) *DailyCapacity {
	if loc == nil {
		loc = time.UTC
	}
	return &DailyCapacity{
		seen: make(map[string]struct{}),
		loc:  loc,
	}
}

// CheckAndMark reports whether the key is still available today and, if so,
// consumes it. The first call per key per day returns true; subsequent calls
// return false until the local date rolls over.
func (c *DailyCapacity) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	today := time.Now().In(c.loc).Format("2006-01-02")
	if c.day != today {
		c.day = today
		c.seen = make(map[string]struct{})
	}
	if _, used := c.seen[key]; used {
		return false
	}
	c.seen[key] = struct{}{}
	return true
}

// Used returns how many distinct keys were consumed today.
func (c *DailyCapacity) Used() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	today := time.Now().In(c.loc).Format("2006-01-02")
	if c.day != today {
		return 0
	}
	return len(c.seen)
}
