// Package clock implements the global tick counter driven by the timer
// interrupt.
package clock

import (
	"xv6trap/kernel"
	"xv6trap/kernel/sync"
)

var errSleepKilled = &kernel.Error{Module: "clock", Message: "sleeping process was killed"}

// Waiter is implemented by tasks that can block in Sleep. Kill-style
// notifications reach a sleeping waiter through the function registered with
// SetWakeup.
type Waiter interface {
	Killed() bool
	SetWakeup(fn func())
}

// Clock counts timer ticks. All accesses to the counter and the waiters are
// serialized by a spinlock. The counter wraps around on overflow.
type Clock struct {
	lock    sync.Spinlock
	ticks   uint32
	waiters *sync.WaitQueue
}

// New returns a clock whose counter starts at zero.
func New() *Clock {
	c := new(Clock)
	c.waiters = sync.NewWaitQueue(&c.lock)
	return c
}

// Tick advances the clock by one tick and wakes up every sleeper. It must
// only be called by the designated timekeeping core.
func (c *Clock) Tick() {
	c.lock.Acquire()
	c.ticks++
	c.waiters.Wakeup()
	c.lock.Release()
}

// Read returns the number of ticks since boot.
func (c *Clock) Read() uint32 {
	c.lock.Acquire()
	defer c.lock.Release()
	return c.ticks
}

// Kick wakes up every sleeper without advancing the clock. Sleepers recheck
// their exit conditions and go back to sleep if they still hold.
func (c *Clock) Kick() {
	c.lock.Acquire()
	c.waiters.Wakeup()
	c.lock.Release()
}

// Sleep blocks until at least n ticks have elapsed since the call or until w
// is killed, whichever happens first. An error is returned if w was killed
// before the full duration elapsed.
func (c *Clock) Sleep(n uint32, w Waiter) *kernel.Error {
	w.SetWakeup(c.Kick)
	defer w.SetWakeup(nil)

	c.lock.Acquire()
	defer c.lock.Release()

	ticks0 := c.ticks
	for c.ticks-ticks0 < n {
		if w.Killed() {
			return errSleepKilled
		}
		c.waiters.Sleep()
	}

	return nil
}
