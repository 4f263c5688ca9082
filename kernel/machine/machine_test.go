package machine

import (
	"bytes"
	"fmt"
	"runtime"
	"strings"
	"testing"

	"xv6trap/device/ide"
	"xv6trap/device/kbd"
	"xv6trap/device/uart"
	"xv6trap/kernel"
	"xv6trap/kernel/gate"
	"xv6trap/kernel/kfmt"
	"xv6trap/kernel/proc"
	"xv6trap/kernel/syscall"
)

const (
	testProcSize = 0x8000
	testSP       = 0x7f00
	testRIP      = 0x0100
	testHandler  = 0x2000
)

// boot starts a default machine and captures the kernel log. The returned
// function shuts the machine down.
func boot(t *testing.T) (*Machine, *bytes.Buffer, func()) {
	var buf bytes.Buffer
	kfmt.SetOutputSink(&buf)

	m, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	return m, &buf, func() {
		m.Shutdown()
		kfmt.SetOutputSink(nil)
	}
}

// spawn creates a process whose stack page has been faulted in.
func spawn(t *testing.T, m *Machine) (*proc.Process, *gate.Registers) {
	p, err := m.Spawn("user", testProcSize)
	if err != nil {
		t.Fatal(err)
	}

	regs := UserRegisters(testRIP, testSP)
	if err = m.PageFault(1, p, regs, testSP); err != nil {
		t.Fatal(err)
	}
	if p.Killed() {
		t.Fatal("expected stack fault to be resolved")
	}
	return p, regs
}

func TestConfigValidate(t *testing.T) {
	specs := []struct {
		mutate func(*Config)
		expErr *kernel.Error
	}{
		{func(*Config) {}, nil},
		{func(c *Config) { c.CPUs = 0 }, errNoCPUs},
		{func(c *Config) { c.CPUs = MaxCPUs + 1 }, errTooManyCPUs},
		{func(c *Config) { c.TickCore = 2 }, errBadTickCore},
		{func(c *Config) { c.TickCore = -1 }, errBadTickCore},
		{func(c *Config) { c.ReservedFrames = c.RAMFrames }, errNotEnoughRAM},
	}

	for specIndex, spec := range specs {
		t.Run(fmt.Sprint(specIndex), func(t *testing.T) {
			cfg := DefaultConfig()
			spec.mutate(&cfg)
			if err := cfg.Validate(); err != spec.expErr {
				t.Fatalf("expected error %v; got %v", spec.expErr, err)
			}

			if spec.expErr != nil {
				if _, err := New(cfg); err != spec.expErr {
					t.Fatalf("expected New to fail with %v; got %v", spec.expErr, err)
				}
			}
		})
	}
}

func TestBoot(t *testing.T) {
	m, buf, shutdown := boot(t)
	defer shutdown()

	if len(m.Cores) != 2 {
		t.Fatalf("expected 2 cores; got %d", len(m.Cores))
	}
	for _, core := range m.Cores {
		if !core.InterruptsEnabled() {
			t.Errorf("expected interrupts to be enabled on cpu%d", core.ID)
		}
		if _, limit := core.IDT(); limit != gate.NumVectors*16-1 {
			t.Errorf("expected cpu%d to have the IDT loaded; limit is %d", core.ID, limit)
		}
	}

	if entry := m.IDT.Entry(gate.Syscall); entry.Privilege != gate.UserLevel || !entry.Trap {
		t.Fatalf("expected the syscall gate to be a user trap gate; got %+v", entry)
	}
	if entry := m.IDT.Entry(gate.TimerVector); entry.Privilege != gate.KernelLevel {
		t.Fatalf("expected the timer gate to be kernel only; got %+v", entry)
	}

	if _, ok := m.IRQs.Driver(gate.IRQSerial).(*uart.Device); !ok {
		t.Error("expected the uart to service the serial line")
	}
	if _, ok := m.IRQs.Driver(gate.IRQKeyboard).(*kbd.Device); !ok {
		t.Error("expected the keyboard driver to service the keyboard line")
	}
	if _, ok := m.IRQs.Driver(gate.IRQDisk).(*ide.Device); !ok {
		t.Error("expected the disk driver to service the disk line")
	}

	out := buf.String()
	for _, exp := range []string{
		"[device] uart16550(0.0.1): COM1 at 0x3f8, initialized\n",
		"[machine] 2 cpus, clock driven by cpu0\n",
		"[pmm] frames: 960 total, 0 reserved, 960 free (3840Kb)\n",
	} {
		if !strings.Contains(out, exp) {
			t.Errorf("expected boot log to contain %q; got:\n%s", exp, out)
		}
	}
}

func TestSpawnAndSyscalls(t *testing.T) {
	m, _, shutdown := boot(t)
	defer shutdown()

	p, regs := spawn(t, m)
	if p.Files[0] == nil || p.Files[0] != p.Files[2] || p.Files[0].Refs() != 3 {
		t.Fatal("expected the standard descriptors to share the console")
	}

	for i := 0; i < 4; i++ {
		if err := m.Tick(0, nil, UserRegisters(0, 0)); err != nil {
			t.Fatal(err)
		}
	}

	specs := []struct {
		num  int
		args []int
		exp  int
	}{
		{syscall.SysGetpid, nil, p.PID},
		{syscall.SysUptime, nil, 4},
		{syscall.SysDup2, []int{1, 7}, 7},
		{syscall.SysDup2, []int{9, 7}, -1},
		{syscall.SysSbrk, []int{0x1000}, testProcSize},
		{syscall.SysAlarm, []int{2, testHandler}, 0},
		{syscall.SysFork, nil, -1},
	}

	for specIndex, spec := range specs {
		got, err := m.Syscall(1, p, regs, spec.num, spec.args...)
		if err != nil {
			t.Fatal(err)
		}
		if got != spec.exp {
			t.Errorf("[spec %d] expected syscall %d to return %d; got %d", specIndex, spec.num, spec.exp, got)
		}
	}

	if _, err := m.Syscall(1, p, regs, syscall.SysExit); err != nil {
		t.Fatal(err)
	}
	if p.State() != proc.Zombie || m.Procs.Count() != 0 {
		t.Fatal("expected exit to terminate the process")
	}
	if _, err := m.Syscall(1, p, regs, syscall.SysGetpid); err != errProcessExited {
		t.Fatalf("expected errProcessExited; got %v", err)
	}
}

func TestAlarmEndToEnd(t *testing.T) {
	m, _, shutdown := boot(t)
	defer shutdown()

	p, regs := spawn(t, m)
	if ret, err := m.Syscall(0, p, regs, syscall.SysAlarm, 3, testHandler); err != nil || ret != 0 {
		t.Fatalf("expected alarm registration to succeed; got %d, %v", ret, err)
	}

	var (
		fired     []int
		remaining []int
	)
	for tick := 1; tick <= 9; tick++ {
		remaining = append(remaining, p.Alarm.Remaining)

		regs.RIP, regs.RSP = testRIP, testSP
		if err := m.Tick(0, p, regs); err != nil {
			t.Fatal(err)
		}
		if regs.RIP == testHandler {
			fired = append(fired, tick)
			if regs.RSP != testSP-8 {
				t.Fatalf("expected the return address to be pushed; RSP = 0x%x", regs.RSP)
			}
		}
	}

	if exp := "[3 6 9]"; fmt.Sprint(fired) != exp {
		t.Fatalf("expected the alarm to fire on ticks %s; fired on %v", exp, fired)
	}
	if exp := "[3 2 1 3 2 1 3 2 1]"; fmt.Sprint(remaining) != exp {
		t.Fatalf("expected remaining sequence %s; got %v", exp, remaining)
	}
	if got := m.Clock.Read(); got != 9 {
		t.Fatalf("expected 9 ticks; got %d", got)
	}
	if got := m.Sched.Yields(); got != 9 {
		t.Fatalf("expected the process to yield on every tick; got %d", got)
	}
}

func TestLazyAllocation(t *testing.T) {
	m, buf, shutdown := boot(t)
	defer shutdown()

	freeAtBoot := m.Frames.FreeCount()
	p, regs := spawn(t, m)
	freeBefore := m.Frames.FreeCount()

	if _, err := m.Syscall(1, p, regs, syscall.SysSbrk, 0x2000); err != nil {
		t.Fatal(err)
	}
	if got := m.Frames.FreeCount(); got != freeBefore {
		t.Fatalf("expected sbrk not to allocate memory; free frames went from %d to %d", freeBefore, got)
	}

	if err := m.PageFault(0, p, regs, testProcSize+0x1800); err != nil {
		t.Fatal(err)
	}
	if p.Killed() || m.Frames.FreeCount() != freeBefore-1 {
		t.Fatal("expected the fault in the grown region to be backed by one frame")
	}

	buf.Reset()
	if err := m.PageFault(0, p, regs, testProcSize+0x2000); err != nil {
		t.Fatal(err)
	}
	if !p.Killed() || p.State() != proc.Zombie {
		t.Fatal("expected a fault above the process size to kill the process")
	}
	if !strings.Contains(buf.String(), "--kill proc") {
		t.Fatalf("expected a kill diagnostic; got %q", buf.String())
	}
	if got, exp := m.Frames.FreeCount(), freeAtBoot; got != exp {
		t.Fatalf("expected exit to release every frame (%d free); got %d", exp, got)
	}
}

func TestSleepAcrossCores(t *testing.T) {
	m, _, shutdown := boot(t)
	defer shutdown()

	p, regs := spawn(t, m)

	type result struct {
		ret int
		err *kernel.Error
	}
	done := make(chan result)
	go func() {
		ret, err := m.Syscall(1, p, regs, syscall.SysSleep, 5)
		done <- result{ret, err}
	}()

	start := m.Clock.Read()
	for {
		select {
		case res := <-done:
			if res.err != nil || res.ret != 0 {
				t.Fatalf("expected sleep to return 0; got %d, %v", res.ret, res.err)
			}
			if elapsed := m.Clock.Read() - start; elapsed < 5 {
				t.Fatalf("expected sleep to last at least 5 ticks; lasted %d", elapsed)
			}
			return
		default:
			if err := m.Tick(0, nil, UserRegisters(0, 0)); err != nil {
				t.Fatal(err)
			}
			runtime.Gosched()
		}
	}
}

func TestDeviceInterrupts(t *testing.T) {
	m, _, shutdown := boot(t)
	defer shutdown()

	serial := m.IRQs.Driver(gate.IRQSerial).(*uart.Device)
	serial.Receive([]byte("ok\r"))

	regs := UserRegisters(testRIP, testSP)
	regs.TrapNo = gate.SerialVector
	if err := m.Raise(1, nil, regs); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 8)
	if n := serial.Read(buf); string(buf[:n]) != "ok\n" {
		t.Fatalf("expected serial input %q; got %q", "ok\n", buf[:n])
	}
	if got := m.Cores[1].EOICount(); got != 1 {
		t.Fatalf("expected the interrupt to be acknowledged once; got %d", got)
	}
}

func TestFatalTrapHaltsMachine(t *testing.T) {
	m, buf, shutdown := boot(t)
	defer shutdown()

	buf.Reset()
	regs := &gate.Registers{TrapNo: gate.GPFException, RIP: 0xffffffff80100000, CS: uint64(gate.KernelCodeSelector)}
	if err := m.Raise(0, nil, regs); err != errMachineHalted {
		t.Fatalf("expected errMachineHalted; got %v", err)
	}

	if !m.Halted() {
		t.Fatal("expected the machine to be halted")
	}
	for _, core := range m.Cores {
		if !core.Halted() {
			t.Errorf("expected cpu%d to be halted", core.ID)
		}
	}

	out := buf.String()
	for _, exp := range []string{
		"unexpected trap 13 from cpu 0",
		"[trap] unrecoverable error: unexpected trap in kernel mode\n",
		"*** kernel panic: system halted ***",
	} {
		if !strings.Contains(out, exp) {
			t.Errorf("expected panic output to contain %q; got:\n%s", exp, out)
		}
	}

	if err := m.Tick(1, nil, UserRegisters(0, 0)); err != errMachineHalted {
		t.Fatalf("expected traps on a halted machine to be refused; got %v", err)
	}
	if err := m.Raise(5, nil, regs); err != errMachineHalted {
		t.Fatalf("expected errMachineHalted; got %v", err)
	}
}
