package proc

import (
	"io"

	"xv6trap/kernel"
	"xv6trap/kernel/kfmt"
	"xv6trap/kernel/mm/vmm"
	"xv6trap/kernel/sync"
)

var (
	// newAddressSpaceFn is mocked by tests.
	newAddressSpaceFn = vmm.NewAddressSpace

	errTableFull     = &kernel.Error{Module: "proc", Message: "process table is full"}
	errNoSuchProcess = &kernel.Error{Module: "proc", Message: "no process with that pid"}
)

// Table tracks the live processes. It is safe for concurrent use.
type Table struct {
	lock    sync.Spinlock
	procs   [MaxProcs]*Process
	nextPID int
}

// NewTable returns an empty process table. PIDs are handed out starting
// from 1.
func NewTable() *Table {
	return &Table{nextPID: 1}
}

// Alloc creates a runnable process with an empty address space and the
// supplied declared size.
func (t *Table) Alloc(name string, size uintptr) (*Process, *kernel.Error) {
	t.lock.Acquire()
	slot := -1
	for i, p := range t.procs {
		if p == nil {
			slot = i
			break
		}
	}
	if slot == -1 {
		t.lock.Release()
		return nil, errTableFull
	}

	p := &Process{PID: t.nextPID, Name: name, state: uint32(Embryo)}
	t.nextPID++
	t.procs[slot] = p
	t.lock.Release()

	as, err := newAddressSpaceFn()
	if err != nil {
		t.Free(p)
		return nil, err
	}

	p.AddressSpace = as
	p.Size = size
	p.SetState(Runnable)
	return p, nil
}

// Lookup returns the process with the given pid or nil if no such process
// exists.
func (t *Table) Lookup(pid int) *Process {
	t.lock.Acquire()
	defer t.lock.Release()

	for _, p := range t.procs {
		if p != nil && p.PID == pid {
			return p
		}
	}
	return nil
}

// Kill marks the process with the given pid for termination.
func (t *Table) Kill(pid int) *kernel.Error {
	p := t.Lookup(pid)
	if p == nil {
		return errNoSuchProcess
	}

	p.Kill()
	return nil
}

// Free removes p from the table.
func (t *Table) Free(p *Process) {
	t.lock.Acquire()
	defer t.lock.Release()

	for i, entry := range t.procs {
		if entry == p {
			t.procs[i] = nil
			return
		}
	}
}

// Count returns the number of processes in the table.
func (t *Table) Count() int {
	t.lock.Acquire()
	defer t.lock.Release()

	var count int
	for _, p := range t.procs {
		if p != nil {
			count++
		}
	}
	return count
}

// Dump prints a listing of the processes in the table to w.
func (t *Table) Dump(w io.Writer) {
	t.lock.Acquire()
	procs := t.procs
	t.lock.Release()

	for _, p := range procs {
		if p == nil {
			continue
		}

		kfmt.Fprintf(w, "%d %s %s", p.PID, p.State().String(), p.Name)
		if p.Killed() {
			kfmt.Fprintf(w, " (killed)")
		}
		kfmt.Fprintf(w, "\n")
	}
}
