package machine

import (
	"encoding/binary"

	"xv6trap/kernel"
	"xv6trap/kernel/gate"
	"xv6trap/kernel/mm"
	"xv6trap/kernel/proc"
	"xv6trap/kernel/syscall"
)

var errProcessExited = &kernel.Error{Module: "machine", Message: "process has exited"}

// UserRegisters returns the registers of a process executing user code at
// rip with its stack pointer at rsp.
func UserRegisters(rip, rsp uint64) *gate.Registers {
	return &gate.Registers{
		RIP:    rip,
		RSP:    rsp,
		CS:     uint64(gate.UserCodeSelector),
		SS:     uint64(gate.UserDataSelector),
		RFlags: 0x200,
	}
}

// Tick raises a timer interrupt on a core.
func (m *Machine) Tick(coreID int, p *proc.Process, regs *gate.Registers) *kernel.Error {
	regs.TrapNo = gate.TimerVector
	return m.Raise(coreID, p, regs)
}

// Syscall makes p invoke system call num. The arguments are stored on the
// user stack above regs.RSP, where the calling convention expects them, and
// the value the system call returned is passed back.
func (m *Machine) Syscall(coreID int, p *proc.Process, regs *gate.Registers, num int, args ...int) (int, *kernel.Error) {
	if p.AddressSpace == nil {
		return -1, errProcessExited
	}

	for i, arg := range args {
		var word [mm.WordSize]byte
		binary.LittleEndian.PutUint64(word[:], uint64(int64(arg)))

		addr := uintptr(regs.RSP) + mm.WordSize*uintptr(i+1)
		if err := p.AddressSpace.CopyOut(addr, word[:]); err != nil {
			return -1, err
		}
	}

	regs.TrapNo = gate.Syscall
	regs.RAX = uint64(num)
	if err := m.Raise(coreID, p, regs); err != nil {
		return -1, err
	}
	return syscall.Result(regs), nil
}
