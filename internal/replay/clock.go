package replay

import (
	"sort"
	"sync"
	"time"

	"github.com/lexiqai/voice-command-gateway/internal/voice"
)

// Clock is a manual clock whose timers fire only when it is advanced
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*clockTimer
}

type clockTimer struct {
	clock   *Clock
	at      time.Time
	seq     int
	fn      func()
	stopped bool
}

// NewClock creates a clock reading start
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the simulated time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules fn to run once the clock passes d from now
func (c *Clock) AfterFunc(d time.Duration, fn func()) voice.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &clockTimer{clock: c, at: c.now.Add(d), seq: c.seq, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *clockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

// Advance moves the clock forward by d. Timers due in that span fire in
// deadline order with the clock set to their deadline, and settle runs after
// each one so their effects are observed before the next fires.
func (c *Clock) Advance(d time.Duration, settle func()) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		t := c.popDue(target)
		if t == nil {
			break
		}
		t.fn()
		if settle != nil {
			settle()
		}
	}

	c.mu.Lock()
	c.now = target
	c.mu.Unlock()
}

// popDue removes the earliest live timer due by target and moves the clock to it
func (c *Clock) popDue(target time.Time) *clockTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := c.timers[:0]
	for _, t := range c.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	c.timers = live
	if len(live) == 0 {
		return nil
	}

	sort.Slice(live, func(i, j int) bool {
		if live[i].at.Equal(live[j].at) {
			return live[i].seq < live[j].seq
		}
		return live[i].at.Before(live[j].at)
	})
	next := live[0]
	if next.at.After(target) {
		return nil
	}
	next.stopped = true
	c.timers = live[1:]
	if next.at.After(c.now) {
		c.now = next.at
	}
	return next
}

// Pending returns how many timers are scheduled and not stopped
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}
