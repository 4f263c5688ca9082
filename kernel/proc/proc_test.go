package proc

import (
	"testing"

	"xv6trap/kernel/gate"
	"xv6trap/kernel/mm"
	"xv6trap/kernel/mm/pmm"
	"xv6trap/kernel/mm/vmm"
)

func TestStateString(t *testing.T) {
	specs := []struct {
		state State
		exp   string
	}{
		{Unused, "unused"},
		{Embryo, "embryo"},
		{Sleeping, "sleep "},
		{Runnable, "runble"},
		{Running, "run   "},
		{Zombie, "zombie"},
		{State(42), "???"},
	}

	for specIndex, spec := range specs {
		if got := spec.state.String(); got != spec.exp {
			t.Errorf("[spec %d] expected %q; got %q", specIndex, spec.exp, got)
		}
	}
}

func TestKillInvokesWakeup(t *testing.T) {
	var (
		p     Process
		woken int
	)

	p.Kill()
	if !p.Killed() {
		t.Fatal("expected process to be marked killed")
	}

	p.SetWakeup(func() { woken++ })
	p.Kill()
	if woken != 1 {
		t.Fatalf("expected Kill to invoke the wakeup hook once; got %d", woken)
	}

	p.SetWakeup(nil)
	p.Kill()
	if woken != 1 {
		t.Fatal("expected a cleared wakeup hook not to be invoked")
	}
}

func TestGrow(t *testing.T) {
	alloc := pmm.NewBitmapAllocator(32, 1)
	mm.SetFrameAllocator(alloc)
	defer mm.SetFrameAllocator(nil)

	as, err := vmm.NewAddressSpace()
	if err != nil {
		t.Fatal(err)
	}
	p := &Process{AddressSpace: as, Size: 0x1000}

	oldSize, err := p.Grow(0x3000)
	if err != nil {
		t.Fatal(err)
	}
	if oldSize != 0x1000 || p.Size != 0x4000 {
		t.Fatalf("expected size to grow from 0x1000 to 0x4000; got 0x%x -> 0x%x", oldSize, p.Size)
	}

	// Back the top page the way the fault handler would.
	if _, err = vmm.HandleUserFault(as, p.Size, 0x3000, gate.KernelLevel); err == nil {
		t.Fatal("expected a fault at kernel privilege to be rejected")
	}
	res, err := vmm.HandleUserFault(as, p.Size, 0x3000, gate.UserLevel)
	if err != nil {
		t.Fatal(err)
	}
	freeAfterFault := alloc.FreeCount()

	if oldSize, err = p.Grow(-0x2000); err != nil {
		t.Fatal(err)
	}
	if oldSize != 0x4000 || p.Size != 0x2000 {
		t.Fatalf("expected size to shrink from 0x4000 to 0x2000; got 0x%x -> 0x%x", oldSize, p.Size)
	}
	if _, err = as.Translate(res.Page.Address()); err != vmm.ErrInvalidMapping {
		t.Fatalf("expected page above the new size to be unmapped; got %v", err)
	}
	if got := alloc.FreeCount(); got != freeAfterFault+1 {
		t.Fatalf("expected shrinking to release one frame; free count went from %d to %d", freeAfterFault, got)
	}

	if _, err = p.Grow(-0x3000); err != errShrinkTooMuch {
		t.Fatalf("expected errShrinkTooMuch; got %v", err)
	}
	if _, err = p.Grow(int(vmm.MaxUserAddress)); err != errGrowTooLarge {
		t.Fatalf("expected errGrowTooLarge; got %v", err)
	}
	if p.Size != 0x2000 {
		t.Fatalf("expected failed Grow calls to leave the size untouched; got 0x%x", p.Size)
	}

	if oldSize, err = p.Grow(0); err != nil || oldSize != 0x2000 {
		t.Fatalf("expected Grow(0) to return the current size; got 0x%x, %v", oldSize, err)
	}
}
