package ide

import (
	"bytes"
	"testing"
)

func TestReadWrite(t *testing.T) {
	d := probeForDisk().(*Device)
	if err := d.DriverInit(&bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}

	write := NewRequest(7, true)
	copy(write.Data[:], "gopher")
	read := NewRequest(7, false)

	for _, req := range []*Request{write, read} {
		if err := d.Submit(req); err != nil {
			t.Fatal(err)
		}
	}

	// Nothing is transferred until the controller raises its interrupt.
	select {
	case <-write.Done():
		t.Fatal("expected write to be pending")
	default:
	}

	d.HandleIRQ()
	<-write.Done()
	if got := d.Pending(); got != 1 {
		t.Fatalf("expected 1 pending request; got %d", got)
	}

	d.HandleIRQ()
	<-read.Done()
	if !bytes.HasPrefix(read.Data[:], []byte("gopher")) {
		t.Fatalf("expected read to return the written data; got %q", read.Data[:8])
	}

	// A spurious interrupt with an empty queue is ignored.
	d.HandleIRQ()
}

func TestSubmitOutOfRange(t *testing.T) {
	var d Device
	if err := d.Submit(NewRequest(NumBlocks, false)); err != errBlockOutOfRange {
		t.Fatalf("expected errBlockOutOfRange; got %v", err)
	}
}

func TestSubmitBeforeInit(t *testing.T) {
	d := probeForDisk().(*Device)
	if err := d.Submit(NewRequest(0, false)); err != errNotInitialized {
		t.Fatalf("expected errNotInitialized; got %v", err)
	}
	if got := d.Pending(); got != 0 {
		t.Fatalf("expected no queued requests; got %d", got)
	}

	// An interrupt from a controller with nothing queued is harmless.
	d.HandleIRQ()
}
