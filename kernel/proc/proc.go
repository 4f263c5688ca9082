// Package proc contains the process records that the trap layer acts upon.
// It provides just enough of a process table and scheduler for traps to mark
// processes killed, make them yield and terminate them.
package proc

import (
	"sync/atomic"

	"xv6trap/kernel"
	"xv6trap/kernel/file"
	"xv6trap/kernel/mm/vmm"
	"xv6trap/kernel/sync"
)

const (
	// MaxProcs is the maximum number of processes in a Table.
	MaxProcs = 64

	// MaxFiles is the number of open file slots of each process.
	MaxFiles = 16
)

var (
	errGrowTooLarge  = &kernel.Error{Module: "proc", Message: "process size exceeds the user address space"}
	errShrinkTooMuch = &kernel.Error{Module: "proc", Message: "process size cannot become negative"}
)

// State describes the scheduling state of a process.
type State uint32

// The list of supported process states.
const (
	Unused State = iota
	Embryo
	Sleeping
	Runnable
	Running
	Zombie
)

// String implements fmt.Stringer for State.
func (s State) String() string {
	switch s {
	case Unused:
		return "unused"
	case Embryo:
		return "embryo"
	case Sleeping:
		return "sleep "
	case Runnable:
		return "runble"
	case Running:
		return "run   "
	case Zombie:
		return "zombie"
	default:
		return "???"
	}
}

// Alarm holds the periodic alarm registration of a process. An alarm with
// a zero Interval is disabled.
type Alarm struct {
	// Interval is the number of user-mode timer ticks between deliveries.
	Interval int

	// Remaining counts down the ticks left until the next delivery.
	Remaining int

	// Handler is the user address execution is redirected to when the
	// alarm fires. The kernel never calls it.
	Handler uintptr
}

// Armed returns true if the alarm is enabled.
func (a *Alarm) Armed() bool {
	return a.Interval > 0
}

// Process is a user process as seen by the trap layer. Apart from the killed
// flag and the wakeup hook, a Process is only accessed by the core that is
// currently running it.
type Process struct {
	PID  int
	Name string

	// Size is the number of bytes of user memory the process has
	// declared. Pages below Size are backed on first access.
	Size uintptr

	AddressSpace *vmm.AddressSpace

	// Files is the open file table indexed by descriptor.
	Files [MaxFiles]*file.File

	Alarm Alarm

	state  uint32
	killed uint32

	// wakeLock guards wakeFn which is invoked by Kill to interrupt a
	// sleep the process may be blocked in.
	wakeLock sync.Spinlock
	wakeFn   func()
}

// State returns the scheduling state of the process.
func (p *Process) State() State {
	return State(atomic.LoadUint32(&p.state))
}

// SetState updates the scheduling state of the process.
func (p *Process) SetState(s State) {
	atomic.StoreUint32(&p.state, uint32(s))
}

// Killed returns true if the process has been marked for termination.
func (p *Process) Killed() bool {
	return atomic.LoadUint32(&p.killed) == 1
}

// Kill marks the process for termination. The process notices the flag at
// its next trap boundary; if it is currently sleeping it is woken up so that
// it can observe the flag.
func (p *Process) Kill() {
	atomic.StoreUint32(&p.killed, 1)

	p.wakeLock.Acquire()
	wakeFn := p.wakeFn
	p.wakeLock.Release()

	if wakeFn != nil {
		wakeFn()
	}
}

// SetWakeup registers the function Kill uses to interrupt a sleep. Sleepers
// must register it before checking Killed and clear it after waking up.
func (p *Process) SetWakeup(fn func()) {
	p.wakeLock.Acquire()
	p.wakeFn = fn
	p.wakeLock.Release()
}

// Grow adjusts the process size by delta bytes and returns the previous
// size. Growing only records the new size; the pages are backed lazily by
// the page fault handler. Shrinking releases every backed page above the new
// size.
func (p *Process) Grow(delta int) (uintptr, *kernel.Error) {
	oldSize := p.Size

	switch {
	case delta > 0:
		if uintptr(delta) > vmm.MaxUserAddress-oldSize {
			return oldSize, errGrowTooLarge
		}
		p.Size = oldSize + uintptr(delta)
	case delta < 0:
		shrink := uintptr(-delta)
		if shrink > oldSize {
			return oldSize, errShrinkTooMuch
		}

		newSize := oldSize - shrink
		if p.AddressSpace != nil {
			if err := p.AddressSpace.Dealloc(oldSize, newSize); err != nil {
				return oldSize, err
			}
		}
		p.Size = newSize
	}

	return oldSize, nil
}
