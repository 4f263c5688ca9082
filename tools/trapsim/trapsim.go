package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"

	"xv6trap/kernel"
	"xv6trap/kernel/gate"
	"xv6trap/kernel/kfmt"
	"xv6trap/kernel/machine"
	"xv6trap/kernel/proc"
	"xv6trap/kernel/syscall"
)

const (
	procSize    = 0x8000
	userStack   = 0x7f00
	userEntry   = 0x0100
	userHandler = 0x2000
)

type scenario func(m *machine.Machine, ticks, interval int) *kernel.Error

var scenarios = map[string]scenario{
	"alarm": runAlarm,
	"lazy":  runLazy,
	"sleep": runSleep,
	"panic": runPanic,
}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[trapsim] error: %s\n", err.Error())
	os.Exit(1)
}

// spawn starts a user process on core 0 and faults in its stack page.
func spawn(m *machine.Machine, name string) (*proc.Process, *gate.Registers, *kernel.Error) {
	p, err := m.Spawn(name, procSize)
	if err != nil {
		return nil, nil, err
	}

	regs := machine.UserRegisters(userEntry, userStack)
	if err = m.PageFault(0, p, regs, userStack); err != nil {
		return nil, nil, err
	}
	return p, regs, nil
}

func runAlarm(m *machine.Machine, ticks, interval int) *kernel.Error {
	p, regs, err := spawn(m, "alarmtest")
	if err != nil {
		return err
	}

	if _, err = m.Syscall(0, p, regs, syscall.SysAlarm, interval, userHandler); err != nil {
		return err
	}

	for tick := 1; tick <= ticks; tick++ {
		regs.RIP, regs.RSP = userEntry, userStack
		if err = m.Tick(0, p, regs); err != nil {
			return err
		}
		if regs.RIP == userHandler {
			kfmt.Printf("tick %d: alarm fired, return address pushed at 0x%x\n", tick, regs.RSP)
		}
	}
	return nil
}

func runLazy(m *machine.Machine, _, _ int) *kernel.Error {
	p, regs, err := spawn(m, "lazytest")
	if err != nil {
		return err
	}

	free := m.Frames.FreeCount()
	old, err := m.Syscall(0, p, regs, syscall.SysSbrk, 0x4000)
	if err != nil {
		return err
	}
	kfmt.Printf("sbrk(0x4000) = 0x%x, %d frames used\n", old, free-m.Frames.FreeCount())

	for addr := uintptr(old); addr < uintptr(old)+0x4000; addr += 0x1000 {
		if err = m.PageFault(0, p, regs, addr); err != nil {
			return err
		}
	}
	kfmt.Printf("after touching the new pages, %d frames used\n", free-m.Frames.FreeCount())

	m.Procs.Dump(nil)
	regs.ErrCode = 6
	if err = m.PageFault(0, p, regs, uintptr(old)+0x4000); err != nil {
		return err
	}
	kfmt.Printf("%d processes left\n", m.Procs.Count())
	return nil
}

func runSleep(m *machine.Machine, ticks, _ int) *kernel.Error {
	p, regs, err := spawn(m, "sleeper")
	if err != nil {
		return err
	}

	done := make(chan *kernel.Error)
	go func() {
		ret, err := m.Syscall(1, p, regs, syscall.SysSleep, ticks)
		kfmt.Printf("sleep(%d) = %d at tick %d\n", ticks, ret, m.Clock.Read())
		done <- err
	}()

	for {
		select {
		case err := <-done:
			return err
		default:
			if err := m.Tick(0, nil, machine.UserRegisters(0, 0)); err != nil {
				return err
			}
			runtime.Gosched()
		}
	}
}

func runPanic(m *machine.Machine, _, _ int) *kernel.Error {
	regs := &gate.Registers{
		TrapNo: gate.GPFException,
		RIP:    0xffffffff80100000,
		CS:     uint64(gate.KernelCodeSelector),
	}
	if err := m.Raise(0, nil, regs); err != nil {
		kfmt.Printf("\nmachine halted: %t\n", m.Halted())
	}
	return nil
}

func runTool() error {
	cfg := machine.DefaultConfig()
	cpus := flag.Int("cpus", cfg.CPUs, "the number of cores")
	frames := flag.Uint("frames", uint(cfg.RAMFrames), "the size of physical memory in frames")
	reserved := flag.Uint("reserved", uint(cfg.ReservedFrames), "the number of frames occupied by the kernel image")
	tickCPU := flag.Int("tick-cpu", cfg.TickCore, "the core whose timer drives the clock")
	ticks := flag.Int("ticks", 10, "the number of timer ticks to simulate")
	interval := flag.Int("interval", 3, "the alarm interval used by the alarm scenario")
	prefix := flag.String("prefix", "", "a prefix for every line of kernel output")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "Usage: trapsim [options] alarm|lazy|sleep|panic\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		return errors.New("missing scenario")
	}

	run, ok := scenarios[flag.Arg(0)]
	if !ok {
		return fmt.Errorf("unknown scenario %q", flag.Arg(0))
	}

	if *prefix != "" {
		kfmt.SetOutputSink(&kfmt.PrefixWriter{Sink: os.Stdout, Prefix: []byte(*prefix)})
	} else {
		kfmt.SetOutputSink(os.Stdout)
	}

	cfg.CPUs, cfg.TickCore = *cpus, *tickCPU
	cfg.RAMFrames, cfg.ReservedFrames = uint32(*frames), uint32(*reserved)
	m, err := machine.New(cfg)
	if err != nil {
		return err
	}
	defer m.Shutdown()

	if err = run(m, *ticks, *interval); err != nil {
		return err
	}
	return nil
}

func main() {
	if err := runTool(); err != nil {
		exit(err)
	}
}
