package syscall

import (
	"encoding/binary"

	"xv6trap/kernel"
	"xv6trap/kernel/gate"
	"xv6trap/kernel/mm"
	"xv6trap/kernel/proc"
)

var (
	errFetchOutOfRange = &kernel.Error{Module: "syscall", Message: "word outside of the process address space"}
	errFetchFault      = &kernel.Error{Module: "syscall", Message: "word is not readable from user memory"}
	errArgOutOfRange   = &kernel.Error{Module: "syscall", Message: "argument outside of the process address space"}
	errPtrOutOfRange   = &kernel.Error{Module: "syscall", Message: "pointer argument outside of the process address space"}
)

// Call describes a system call in progress: the calling process and the
// registers it trapped with. Arguments live on the user stack just above the
// return address, one machine word each.
type Call struct {
	Proc *proc.Process
	Regs *gate.Registers
}

// FetchInt reads the word at user address addr.
func (c *Call) FetchInt(addr uintptr) (int, *kernel.Error) {
	p := c.Proc
	if addr >= p.Size || addr+mm.WordSize > p.Size || addr+mm.WordSize < addr {
		return 0, errFetchOutOfRange
	}

	var word [mm.WordSize]byte
	if p.AddressSpace == nil || p.AddressSpace.CopyIn(addr, word[:]) != nil {
		return 0, errFetchFault
	}

	return int(int64(binary.LittleEndian.Uint64(word[:]))), nil
}

// ArgInt returns the n-th word-sized system call argument.
func (c *Call) ArgInt(n int) (int, *kernel.Error) {
	addr := uintptr(c.Regs.RSP) + mm.WordSize + uintptr(n)*mm.WordSize

	v, err := c.FetchInt(addr)
	if err == errFetchOutOfRange {
		err = errArgOutOfRange
	}
	return v, err
}

// ArgPtr returns the n-th system call argument as a user pointer to a block
// of size bytes. The whole block must lie inside the process.
func (c *Call) ArgPtr(n, size int) (uintptr, *kernel.Error) {
	v, err := c.ArgInt(n)
	if err != nil {
		return 0, err
	}

	addr, procSize := uintptr(v), c.Proc.Size
	if size < 0 || v < 0 || addr >= procSize || uintptr(size) > procSize-addr {
		return 0, errPtrOutOfRange
	}
	return addr, nil
}
