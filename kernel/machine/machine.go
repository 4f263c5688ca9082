// Package machine assembles the trap layer into a bootable machine model:
// cores with a shared interrupt descriptor table, physical memory, the tick
// clock, the process table, the device drivers and the trap dispatcher.
package machine

import (
	"sync/atomic"

	"xv6trap/device"
	"xv6trap/kernel"
	"xv6trap/kernel/clock"
	"xv6trap/kernel/cpu"
	"xv6trap/kernel/file"
	"xv6trap/kernel/gate"
	"xv6trap/kernel/kfmt"
	"xv6trap/kernel/mm"
	"xv6trap/kernel/mm/pmm"
	"xv6trap/kernel/proc"
	"xv6trap/kernel/syscall"
	"xv6trap/kernel/trap"

	// Device drivers register themselves with the device package.
	_ "xv6trap/device/ide"
	_ "xv6trap/device/kbd"
	_ "xv6trap/device/uart"
)

// MaxCPUs is the maximum number of cores a machine can have.
const MaxCPUs = 8

var (
	errNoCPUs        = &kernel.Error{Module: "machine", Message: "at least one cpu is required"}
	errTooManyCPUs   = &kernel.Error{Module: "machine", Message: "too many cpus"}
	errBadTickCore   = &kernel.Error{Module: "machine", Message: "tick cpu does not exist"}
	errNotEnoughRAM  = &kernel.Error{Module: "machine", Message: "not enough physical memory"}
	errNoSuchCore    = &kernel.Error{Module: "machine", Message: "no such cpu"}
	errMachineHalted = &kernel.Error{Module: "machine", Message: "machine is halted"}
)

// Config describes the hardware of a machine.
type Config struct {
	// CPUs is the number of cores.
	CPUs int

	// RAMFrames is the size of physical memory in frames.
	RAMFrames uint32

	// ReservedFrames is the number of frames at the bottom of physical
	// memory occupied by the kernel image. They are never allocated.
	ReservedFrames uint32

	// TickCore is the ID of the core whose timer advances the clock.
	TickCore int
}

// DefaultConfig returns the configuration of a two core machine with 4M of
// RAM.
func DefaultConfig() Config {
	return Config{
		CPUs:           2,
		RAMFrames:      1024,
		ReservedFrames: 64,
		TickCore:       0,
	}
}

// Validate checks that cfg describes a machine that can boot.
func (cfg Config) Validate() *kernel.Error {
	switch {
	case cfg.CPUs < 1:
		return errNoCPUs
	case cfg.CPUs > MaxCPUs:
		return errTooManyCPUs
	case cfg.TickCore < 0 || cfg.TickCore >= cfg.CPUs:
		return errBadTickCore
	case cfg.RAMFrames <= cfg.ReservedFrames:
		return errNotEnoughRAM
	}
	return nil
}

// Machine is a booted machine. Only one machine should be active at a time
// since the physical frame allocator is registered globally.
type Machine struct {
	Cores    []*cpu.Core
	IDT      *gate.Table
	Frames   *pmm.BitmapAllocator
	Clock    *clock.Clock
	Procs    *proc.Table
	Sched    *proc.Scheduler
	Syscalls *syscall.Gateway
	IRQs     *device.IRQTable
	Drivers  []device.Driver
	Trap     *trap.Dispatcher

	halted uint32
}

// New boots a machine described by cfg.
func New(cfg Config) (*Machine, *kernel.Error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Machine{
		IDT:    new(gate.Table),
		Frames: pmm.NewBitmapAllocator(cfg.RAMFrames, cfg.ReservedFrames),
		Clock:  clock.New(),
		Procs:  proc.NewTable(),
		IRQs:   new(device.IRQTable),
	}
	mm.SetFrameAllocator(m.Frames)

	m.IDT.InstallAll(gate.StubAddresses())
	for id := 0; id < cfg.CPUs; id++ {
		core := cpu.New(id)
		m.IDT.Activate(core)
		m.Cores = append(m.Cores, core)
	}

	m.Sched = proc.NewScheduler(m.Procs)
	m.Syscalls = syscall.NewGateway(m.Clock, m.Procs, m.Sched)
	m.Drivers = device.ProbeAll(m.IRQs, nil)
	m.Trap = trap.NewDispatcher(m.Clock, m.Syscalls, m.Sched, m.IRQs, cfg.TickCore)

	kfmt.Printf("[machine] %d cpus, clock driven by cpu%d\n", cfg.CPUs, cfg.TickCore)
	m.Frames.PrintStats()

	for _, core := range m.Cores {
		core.EnableInterrupts()
	}
	return m, nil
}

// Spawn creates a running process of the given size whose first three
// descriptors refer to the console.
func (m *Machine) Spawn(name string, size uintptr) (*proc.Process, *kernel.Error) {
	p, err := m.Procs.Alloc(name, size)
	if err != nil {
		return nil, err
	}

	console := file.New("console")
	p.Files[0] = console
	p.Files[1] = console.Dup()
	p.Files[2] = console.Dup()

	p.SetState(proc.Running)
	return p, nil
}

// Raise delivers a trap to a core while p is running on it and waits until
// the trap has been handled. Raise may be called concurrently for different
// cores. If the trap is fatal the panic is reported, every core is stopped
// and errMachineHalted is returned.
func (m *Machine) Raise(coreID int, p *proc.Process, regs *gate.Registers) *kernel.Error {
	if m.Halted() {
		return errMachineHalted
	}
	if coreID < 0 || coreID >= len(m.Cores) {
		return errNoSuchCore
	}
	core := m.Cores[coreID]

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				m.halt()
				kfmt.Panic(r)
			}
		}()

		m.Trap.Trap(core, p, regs)
	}()
	<-done

	if m.Halted() {
		return errMachineHalted
	}
	return nil
}

// PageFault records addr as the faulting address of core and raises a page
// fault for it.
func (m *Machine) PageFault(coreID int, p *proc.Process, regs *gate.Registers, addr uintptr) *kernel.Error {
	if coreID < 0 || coreID >= len(m.Cores) {
		return errNoSuchCore
	}

	m.Cores[coreID].SetCR2(uint64(addr))
	regs.TrapNo = gate.PageFaultException
	return m.Raise(coreID, p, regs)
}

// Halted returns true if a fatal trap stopped the machine.
func (m *Machine) Halted() bool {
	return atomic.LoadUint32(&m.halted) == 1
}

func (m *Machine) halt() {
	atomic.StoreUint32(&m.halted, 1)
	for _, core := range m.Cores {
		core.Stop()
	}
}

// Shutdown unregisters the physical frame allocator of the machine.
func (m *Machine) Shutdown() {
	mm.SetFrameAllocator(nil)
}
