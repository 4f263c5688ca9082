package proc

import (
	"bytes"
	"runtime"
	"testing"

	"xv6trap/kernel"
	"xv6trap/kernel/file"
	"xv6trap/kernel/gate"
	"xv6trap/kernel/mm"
	"xv6trap/kernel/mm/pmm"
	"xv6trap/kernel/mm/vmm"
)

func TestTableAllocLookupKill(t *testing.T) {
	mm.SetFrameAllocator(pmm.NewBitmapAllocator(16, 1))
	defer mm.SetFrameAllocator(nil)

	table := NewTable()
	p1, err := table.Alloc("init", 0x2000)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := table.Alloc("sh", 0x1000)
	if err != nil {
		t.Fatal(err)
	}

	if p1.PID != 1 || p2.PID != 2 {
		t.Fatalf("expected pids 1 and 2; got %d and %d", p1.PID, p2.PID)
	}
	if p1.State() != Runnable || p1.AddressSpace == nil || p1.Size != 0x2000 {
		t.Fatalf("unexpected process state after Alloc: %+v", p1)
	}

	if got := table.Lookup(2); got != p2 {
		t.Fatal("expected Lookup(2) to return the second process")
	}
	if got := table.Lookup(7); got != nil {
		t.Fatal("expected Lookup of an unknown pid to return nil")
	}

	if err = table.Kill(2); err != nil {
		t.Fatal(err)
	}
	if !p2.Killed() || p1.Killed() {
		t.Fatal("expected only the second process to be killed")
	}
	if err = table.Kill(7); err != errNoSuchProcess {
		t.Fatalf("expected errNoSuchProcess; got %v", err)
	}

	var buf bytes.Buffer
	table.Dump(&buf)
	if exp := "1 runble init\n2 runble sh (killed)\n"; buf.String() != exp {
		t.Fatalf("expected dump:\n%q\ngot:\n%q", exp, buf.String())
	}

	table.Free(p1)
	if table.Count() != 1 || table.Lookup(1) != nil {
		t.Fatal("expected Free to remove the process from the table")
	}
}

func TestTableAllocErrors(t *testing.T) {
	defer func() { newAddressSpaceFn = vmm.NewAddressSpace }()

	t.Run("address space allocation fails", func(t *testing.T) {
		expErr := &kernel.Error{Module: "test", Message: "out of memory"}
		newAddressSpaceFn = func() (*vmm.AddressSpace, *kernel.Error) {
			return nil, expErr
		}

		table := NewTable()
		if _, err := table.Alloc("init", 0); err != expErr {
			t.Fatalf("expected error %v; got %v", expErr, err)
		}
		if got := table.Count(); got != 0 {
			t.Fatalf("expected the slot to be released; table has %d entries", got)
		}
	})

	t.Run("table full", func(t *testing.T) {
		newAddressSpaceFn = func() (*vmm.AddressSpace, *kernel.Error) {
			return &vmm.AddressSpace{}, nil
		}

		table := NewTable()
		for i := 0; i < MaxProcs; i++ {
			if _, err := table.Alloc("p", 0); err != nil {
				t.Fatal(err)
			}
		}

		if _, err := table.Alloc("p", 0); err != errTableFull {
			t.Fatalf("expected errTableFull; got %v", err)
		}
	})
}

func TestSchedulerYieldAndExit(t *testing.T) {
	defer func() {
		yieldFn = runtime.Gosched
		mm.SetFrameAllocator(nil)
	}()

	alloc := pmm.NewBitmapAllocator(16, 1)
	mm.SetFrameAllocator(alloc)
	freeBefore := alloc.FreeCount()

	table := NewTable()
	sched := NewScheduler(table)
	p, err := table.Alloc("init", 0x1000)
	if err != nil {
		t.Fatal(err)
	}
	p.SetState(Running)

	var stateDuringYield State
	yieldFn = func() { stateDuringYield = p.State() }

	sched.Yield(p)
	if stateDuringYield != Runnable || p.State() != Running {
		t.Fatalf("expected process to be runnable while yielding and running afterwards; got %s/%s", stateDuringYield, p.State())
	}
	if got := sched.Yields(); got != 1 {
		t.Fatalf("expected 1 yield; got %d", got)
	}

	if _, err = vmm.HandleUserFault(p.AddressSpace, p.Size, 0x10, gate.UserLevel); err != nil {
		t.Fatal(err)
	}

	console := file.New("console")
	p.Files[0] = console
	p.Files[1] = console.Dup()
	p.Alarm = Alarm{Interval: 2, Remaining: 1, Handler: 0x40}

	sched.Exit(p)

	if p.State() != Zombie {
		t.Fatalf("expected exited process to be a zombie; got %s", p.State())
	}
	if console.Open() {
		t.Fatal("expected every descriptor of the exited process to be closed")
	}
	if p.AddressSpace != nil || p.Alarm.Armed() {
		t.Fatal("expected exit to release the address space and disarm the alarm")
	}
	if table.Lookup(p.PID) != nil {
		t.Fatal("expected exited process to be removed from the table")
	}
	if got := alloc.FreeCount(); got != freeBefore {
		t.Fatalf("expected every frame to be released; free count is %d, was %d", got, freeBefore)
	}
}
