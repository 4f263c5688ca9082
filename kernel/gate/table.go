package gate

import (
	"unsafe"

	"xv6trap/kernel/cpu"
)

// PrivilegeLevel describes the CPU ring code was executing at.
type PrivilegeLevel uint8

const (
	// KernelLevel (ring 0) is the privilege level of kernel code.
	KernelLevel PrivilegeLevel = 0

	// UserLevel (ring 3) is the privilege level of user processes.
	UserLevel PrivilegeLevel = 3
)

// String implements fmt.Stringer.
func (l PrivilegeLevel) String() string {
	if l == UserLevel {
		return "user"
	}
	return "kernel"
}

// Segment selectors of the flat GDT set up at boot. User selectors carry the
// requested privilege level in their low two bits.
const (
	KernelCodeSelector = uint16(1 << 3)
	KernelDataSelector = uint16(2 << 3)
	UserCodeSelector   = uint16(3<<3) | uint16(UserLevel)
	UserDataSelector   = uint16(4<<3) | uint16(UserLevel)
)

const (
	gateTypeInterrupt = 0xe
	gateTypeTrap      = 0xf
	gatePresent       = 1 << 15

	// stubBase and stubSize describe the layout of the generated entry
	// stubs: one fixed-size stub per vector which pushes the vector
	// number and jumps to the common trap entry.
	stubBase = uintptr(0xffffffff80102000)
	stubSize = uintptr(16)
)

// Entry describes one slot of the interrupt descriptor table.
type Entry struct {
	// Handler is the address of the entry stub for the vector.
	Handler uintptr

	// Selector is the code segment loaded when the gate is taken.
	Selector uint16

	// Privilege is the minimum privilege level allowed to raise the vector
	// with a software interrupt instruction.
	Privilege PrivilegeLevel

	// Trap is set for trap gates which leave interrupts enabled on entry.
	Trap bool

	Present bool
}

// Encode returns the 16-byte x86-64 gate descriptor for the entry.
// Slots that are not present encode as zero.
func (e Entry) Encode() [2]uint64 {
	if !e.Present {
		return [2]uint64{}
	}

	gateType := uint32(gateTypeInterrupt)
	if e.Trap {
		gateType = gateTypeTrap
	}

	pc := uint64(e.Handler)
	w0 := uint32(e.Selector)<<16 | uint32(pc&0xffff)
	w1 := uint32(pc&0xffff0000) | gatePresent | uint32(e.Privilege)<<13 | gateType<<8
	w2 := uint32(pc >> 32)
	return [2]uint64{uint64(w1)<<32 | uint64(w0), uint64(w2)}
}

// Table is the interrupt descriptor table. It is built once during boot,
// before interrupts are enabled on any core, and only read afterwards. Every
// installed entry is also kept in its encoded form; the encoded descriptors
// are what Activate hands to a core.
type Table struct {
	entries     [NumVectors]Entry
	descriptors [NumVectors][2]uint64
}

// Entry returns the slot for vector.
func (t *Table) Entry(vector InterruptNumber) Entry {
	return t.entries[vector]
}

// Descriptor returns the encoded gate descriptor for vector.
func (t *Table) Descriptor(vector InterruptNumber) [2]uint64 {
	return t.descriptors[vector]
}

// Install points vector at handler. The gate can be raised by software
// interrupts from priv or more privileged code.
func (t *Table) Install(vector InterruptNumber, handler uintptr, priv PrivilegeLevel) {
	t.set(vector, Entry{
		Handler:   handler,
		Selector:  KernelCodeSelector,
		Privilege: priv,
		Present:   true,
	})
}

// InstallAll installs one handler per vector as a kernel-only interrupt gate
// and then re-installs the Syscall vector as a trap gate that user code can
// invoke.
func (t *Table) InstallAll(handlers *[NumVectors]uintptr) {
	for vector := 0; vector < NumVectors; vector++ {
		t.Install(InterruptNumber(vector), handlers[vector], KernelLevel)
	}

	entry := t.entries[Syscall]
	entry.Privilege, entry.Trap = UserLevel, true
	t.set(Syscall, entry)
}

func (t *Table) set(vector InterruptNumber, e Entry) {
	t.entries[vector] = e
	t.descriptors[vector] = e.Encode()
}

// Activate loads the encoded descriptors into the interrupt mechanism of c.
// It must be called once on every core.
func (t *Table) Activate(c *cpu.Core) {
	c.LoadIDT(uintptr(unsafe.Pointer(&t.descriptors)), uint16(len(t.descriptors)*16-1))
}

// StubAddresses returns the entry stub address of every vector.
func StubAddresses() *[NumVectors]uintptr {
	var stubs [NumVectors]uintptr
	for vector := range stubs {
		stubs[vector] = stubBase + uintptr(vector)*stubSize
	}
	return &stubs
}
