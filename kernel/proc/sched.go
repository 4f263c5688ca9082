package proc

import (
	"runtime"
	"sync/atomic"

	"xv6trap/kernel/kfmt"
)

var (
	// yieldFn is mocked by tests.
	yieldFn = runtime.Gosched
)

// Scheduler is a cooperative scheduler. Every process runs on the goroutine
// that drives its core; yielding hands the host thread to another goroutine.
type Scheduler struct {
	table  *Table
	yields uint64
}

// NewScheduler returns a scheduler for the processes in table.
func NewScheduler(table *Table) *Scheduler {
	return &Scheduler{table: table}
}

// Yield gives up the CPU for one scheduling round.
func (s *Scheduler) Yield(p *Process) {
	p.SetState(Runnable)
	atomic.AddUint64(&s.yields, 1)
	yieldFn()
	p.SetState(Running)
}

// Yields returns the number of calls to Yield.
func (s *Scheduler) Yields() uint64 {
	return atomic.LoadUint64(&s.yields)
}

// Exit terminates p: its open files are closed, its memory is released and
// it is removed from the process table. The record stays in the Zombie state.
func (s *Scheduler) Exit(p *Process) {
	for fd, f := range p.Files {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil {
			kfmt.Printf("[proc] pid %d: close fd %d: %s\n", p.PID, fd, err.Message)
		}
		p.Files[fd] = nil
	}

	if p.AddressSpace != nil {
		if err := p.AddressSpace.Destroy(); err != nil {
			kfmt.Printf("[proc] pid %d: release memory: %s\n", p.PID, err.Message)
		}
		p.AddressSpace = nil
	}

	p.Alarm = Alarm{}
	p.SetState(Zombie)
	s.table.Free(p)
}
