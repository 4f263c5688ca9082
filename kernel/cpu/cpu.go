// Package cpu models the per-core processor state that the trap layer reads
// and writes: the interrupt flag, the loaded interrupt descriptor table and
// the page-fault address register.
package cpu

import (
	"runtime"
	"sync/atomic"
)

var (
	// haltFn is mocked by tests.
	haltFn = runtime.Goexit
)

// Core describes a single processor. A Core is only ever driven by one
// goroutine at a time; the fields accessed by other cores are atomic.
type Core struct {
	// ID is the core index. Core 0 is the boot processor.
	ID int

	interruptsEnabled uint32
	halted            uint32

	idtBase  uintptr
	idtLimit uint16

	// cr2 holds the linear address that caused the last page fault.
	cr2 uint64

	// eoiCount counts the end-of-interrupt signals sent to the local
	// interrupt controller.
	eoiCount uint64
}

// New returns a core with interrupts disabled and no IDT loaded.
func New(id int) *Core {
	return &Core{ID: id}
}

// EnableInterrupts enables interrupt handling.
func (c *Core) EnableInterrupts() { atomic.StoreUint32(&c.interruptsEnabled, 1) }

// DisableInterrupts disables interrupt handling.
func (c *Core) DisableInterrupts() { atomic.StoreUint32(&c.interruptsEnabled, 0) }

// InterruptsEnabled returns true if the core accepts maskable interrupts.
func (c *Core) InterruptsEnabled() bool { return atomic.LoadUint32(&c.interruptsEnabled) == 1 }

// LoadIDT points the core's interrupt mechanism to the descriptor table at
// base with the given limit (table size in bytes minus one).
func (c *Core) LoadIDT(base uintptr, limit uint16) {
	c.idtBase, c.idtLimit = base, limit
}

// IDT returns the base and limit last passed to LoadIDT.
func (c *Core) IDT() (uintptr, uint16) {
	return c.idtBase, c.idtLimit
}

// SetCR2 records the faulting address for a page fault. It is invoked by the
// code that raises the fault before the trap is dispatched.
func (c *Core) SetCR2(addr uint64) { atomic.StoreUint64(&c.cr2, addr) }

// ReadCR2 returns the value stored in the CR2 register.
func (c *Core) ReadCR2() uint64 { return atomic.LoadUint64(&c.cr2) }

// EOI signals the end of the current hardware interrupt to the core's local
// interrupt controller.
func (c *Core) EOI() { atomic.AddUint64(&c.eoiCount, 1) }

// EOICount returns the number of calls to EOI.
func (c *Core) EOICount() uint64 { return atomic.LoadUint64(&c.eoiCount) }

// Halted returns true once the core has been halted or stopped.
func (c *Core) Halted() bool { return atomic.LoadUint32(&c.halted) == 1 }

// Stop disables interrupts and marks the core as halted. Unlike Halt it
// returns to the caller; it is used to bring down the other cores of a
// machine after a fatal error.
func (c *Core) Stop() {
	c.DisableInterrupts()
	atomic.StoreUint32(&c.halted, 1)
}

// Halt disables interrupts and stops instruction execution on the core. The
// calling goroutine never returns from Halt.
func (c *Core) Halt() {
	c.Stop()
	haltFn()
}

// Halt stops the calling core. It is used by code paths that do not know
// which core they run on, such as the kernel panic handler.
func Halt() {
	haltFn()
}
