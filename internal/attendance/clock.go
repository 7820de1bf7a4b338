package attendance

import (
	"sync"
	"time"
)

// Clock supplies the current local date and time of day.
type Clock interface {
	Today() Date
	Now() TimeOfDay
}

// Stamp returns the date and time of day read from a single instant when c
// can provide one, so a scan at midnight never mixes two days.
func Stamp(c Clock) (Date, TimeOfDay) {
	if s, ok := c.(interface{ Stamp() (Date, TimeOfDay) }); ok {
		return s.Stamp()
	}
	return c.Today(), c.Now()
}

// SystemClock reads the wall clock in a fixed location.
type SystemClock struct {
	loc *time.Location
}

// NewSystemClock returns a clock for loc (UTC when nil).
func NewSystemClock(loc *time.Location) SystemClock {
	if loc == nil {
		loc = time.UTC
	}
	return SystemClock{loc: loc}
}

func (c SystemClock) Today() Date    { return DateOf(time.Now().In(c.loc)) }
func (c SystemClock) Now() TimeOfDay { return ClockOf(time.Now().In(c.loc)) }

func (c SystemClock) Stamp() (Date, TimeOfDay) {
	now := time.Now().In(c.loc)
	return DateOf(now), ClockOf(now)
}

// FixedClock is a settable clock for tests and replays.
type FixedClock struct {
	mu   sync.Mutex
	date Date
	at   TimeOfDay
}

func NewFixedClock(date Date, at TimeOfDay) *FixedClock {
	return &FixedClock{date: date, at: at}
}

func (c *FixedClock) Set(date Date, at TimeOfDay) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.date, c.at = date, at
}

func (c *FixedClock) Today() Date {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.date
}

func (c *FixedClock) Now() TimeOfDay {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *FixedClock) Stamp() (Date, TimeOfDay) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.date, c.at
}
