package gate

import (
	"encoding/binary"
	"io"

	"xv6trap/kernel"
	"xv6trap/kernel/kfmt"
	"xv6trap/kernel/mm"
)

// Registers contains a snapshot of all register values when an exception,
// interrupt or syscall occurs. The entry stub builds it on the kernel stack;
// the dispatcher that receives it owns it until the trap returns.
type Registers struct {
	// RAX holds the syscall number on entry to a syscall and the syscall
	// result on return.
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64

	// TrapNo is the vector number that caused the trap.
	TrapNo InterruptNumber

	// ErrCode is the error code pushed by the CPU for exceptions that
	// provide one and zero otherwise.
	ErrCode uint64

	// The return frame used by IRETQ
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// Privilege returns the privilege level the CPU was executing at when the
// trap occurred, as encoded by the low two bits of the saved CS selector.
func (r *Registers) Privilege() PrivilegeLevel {
	if r.CS&3 == uint64(UserLevel) {
		return UserLevel
	}
	return KernelLevel
}

// UserMemory is implemented by address spaces that allow the kernel to write
// into user memory.
type UserMemory interface {
	CopyOut(virtAddr uintptr, data []byte) *kernel.Error
}

// Redirect arranges for the interrupted user context to resume at target as
// if it had called it: the current RIP is pushed onto the user stack as a
// return address, RSP is lowered by one word and RIP is set to target. If the
// return address cannot be written the registers are left untouched and the
// copy error is returned.
func (r *Registers) Redirect(target uint64, mem UserMemory) *kernel.Error {
	var retAddr [mm.WordSize]byte
	binary.LittleEndian.PutUint64(retAddr[:], r.RIP)

	sp := r.RSP - uint64(mm.WordSize)
	if err := mem.CopyOut(uintptr(sp), retAddr[:]); err != nil {
		return err
	}

	r.RSP = sp
	r.RIP = target
	return nil
}

// DumpTo outputs the register contents to w.
func (r *Registers) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "RAX = %16x RBX = %16x\n", r.RAX, r.RBX)
	kfmt.Fprintf(w, "RCX = %16x RDX = %16x\n", r.RCX, r.RDX)
	kfmt.Fprintf(w, "RSI = %16x RDI = %16x\n", r.RSI, r.RDI)
	kfmt.Fprintf(w, "RBP = %16x\n", r.RBP)
	kfmt.Fprintf(w, "R8  = %16x R9  = %16x\n", r.R8, r.R9)
	kfmt.Fprintf(w, "R10 = %16x R11 = %16x\n", r.R10, r.R11)
	kfmt.Fprintf(w, "R12 = %16x R13 = %16x\n", r.R12, r.R13)
	kfmt.Fprintf(w, "R14 = %16x R15 = %16x\n", r.R14, r.R15)
	kfmt.Fprintf(w, "\n")
	kfmt.Fprintf(w, "TRAP = %d ERR = %x\n", uint8(r.TrapNo), r.ErrCode)
	kfmt.Fprintf(w, "RIP = %16x CS  = %16x\n", r.RIP, r.CS)
	kfmt.Fprintf(w, "RSP = %16x SS  = %16x\n", r.RSP, r.SS)
	kfmt.Fprintf(w, "RFL = %16x\n", r.RFlags)
}
