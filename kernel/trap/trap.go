// Package trap contains the dispatcher that every interrupt, exception and
// system call enters the kernel through.
package trap

import (
	"xv6trap/kernel"
	"xv6trap/kernel/clock"
	"xv6trap/kernel/cpu"
	"xv6trap/kernel/gate"
	"xv6trap/kernel/kfmt"
	"xv6trap/kernel/proc"
)

var (
	// eoiFn acknowledges a hardware interrupt at the local interrupt
	// controller. It is mocked by tests.
	eoiFn = (*cpu.Core).EOI

	errUnexpectedTrap = &kernel.Error{Module: "trap", Message: "unexpected trap in kernel mode"}
	errNoProcess      = &kernel.Error{Module: "trap", Message: "system call without a current process"}
)

// Scheduler decides what runs next on a core.
type Scheduler interface {
	// Yield gives up the core for one scheduling round.
	Yield(p *proc.Process)

	// Exit terminates p.
	Exit(p *proc.Process)
}

// SyscallGateway runs system calls.
type SyscallGateway interface {
	Dispatch(p *proc.Process, regs *gate.Registers)
}

// IRQRouter forwards hardware interrupt lines to device drivers.
type IRQRouter interface {
	HandleIRQ(line uint8) bool
}

// Frame describes the trap being handled: the core it was raised on, the
// process that was running and the saved registers. Privilege is derived
// once from the saved CS.
type Frame struct {
	Core *cpu.Core
	Proc *proc.Process
	Regs *gate.Registers
	Priv gate.PrivilegeLevel
}

// step handles one concern of trap processing. It returns true if it
// recognized the trap.
type step func(d *Dispatcher, f *Frame) bool

// defaultSteps lists the trap handling steps in the order they run.
var defaultSteps = []step{
	tickStep,
	alarmStep,
	pageFaultStep,
	deviceStep,
	spuriousStep,
}

// Dispatcher routes traps to the subsystems that handle them.
type Dispatcher struct {
	clock    *clock.Clock
	syscalls SyscallGateway
	sched    Scheduler
	irqs     IRQRouter

	// tickCore is the ID of the only core allowed to advance the clock.
	tickCore int

	steps []step
}

// NewDispatcher returns a dispatcher. Only timer interrupts raised on the
// core with ID tickCore advance the clock.
func NewDispatcher(c *clock.Clock, syscalls SyscallGateway, sched Scheduler, irqs IRQRouter, tickCore int) *Dispatcher {
	return &Dispatcher{
		clock:    c,
		syscalls: syscalls,
		sched:    sched,
		irqs:     irqs,
		tickCore: tickCore,
		steps:    defaultSteps,
	}
}

// Trap handles a trap raised on core while p was running. p is nil if the
// core was idle. Traps the kernel cannot recover from cause a panic with a
// *kernel.Error; the caller is expected to halt the machine.
func (d *Dispatcher) Trap(core *cpu.Core, p *proc.Process, regs *gate.Registers) {
	f := &Frame{Core: core, Proc: p, Regs: regs, Priv: regs.Privilege()}

	if regs.TrapNo == gate.Syscall {
		d.syscall(f)
		return
	}

	var handled bool
	for _, s := range d.steps {
		if s(d, f) {
			handled = true
		}
	}

	if !handled {
		d.unexpected(f)
	}

	d.postTrap(f)
}

// syscall runs a system call. System calls are not subject to the timer
// preemption policy but a killed process never enters or leaves one.
func (d *Dispatcher) syscall(f *Frame) {
	if f.Proc == nil {
		panic(errNoProcess)
	}

	if f.Proc.Killed() {
		d.exit(f.Proc)
		return
	}

	d.syscalls.Dispatch(f.Proc, f.Regs)

	if f.Proc.Killed() {
		d.exit(f.Proc)
	}
}

// unexpected handles a trap no step recognized. In kernel mode it is a
// kernel bug; in user mode the process misbehaved and is killed.
func (d *Dispatcher) unexpected(f *Frame) {
	r := f.Regs
	if f.Proc == nil || f.Priv == gate.KernelLevel {
		kfmt.Printf("unexpected trap %d from cpu %d rip %x (cr2=0x%x)\n",
			uint8(r.TrapNo), f.Core.ID, r.RIP, f.Core.ReadCR2(),
		)
		r.DumpTo(nil)
		panic(errUnexpectedTrap)
	}

	kfmt.Printf("pid %d %s: trap %d err %d on cpu %d rip 0x%x addr 0x%x--kill proc\n",
		f.Proc.PID, f.Proc.Name, uint8(r.TrapNo), r.ErrCode, f.Core.ID, r.RIP, f.Core.ReadCR2(),
	)
	f.Proc.Kill()
}

// postTrap terminates killed user processes and preempts the running
// process on timer interrupts.
func (d *Dispatcher) postTrap(f *Frame) {
	p := f.Proc
	if p == nil {
		return
	}

	if p.Killed() && f.Priv == gate.UserLevel {
		d.exit(p)
		return
	}

	if p.State() == proc.Running && f.Regs.TrapNo == gate.TimerVector {
		d.sched.Yield(p)
	}

	// The process may have been killed while it was not running.
	if p.Killed() && f.Priv == gate.UserLevel {
		d.exit(p)
	}
}

func (d *Dispatcher) exit(p *proc.Process) {
	if p.State() == proc.Zombie {
		return
	}
	d.sched.Exit(p)
}
