package trap

import (
	"xv6trap/kernel/alarm"
	"xv6trap/kernel/gate"
	"xv6trap/kernel/kfmt"
	"xv6trap/kernel/mm/vmm"
)

// tickStep advances the clock on timer interrupts. Every core receives its
// own timer interrupt but only the designated core counts it.
func tickStep(d *Dispatcher, f *Frame) bool {
	if f.Regs.TrapNo != gate.TimerVector {
		return false
	}

	if f.Core.ID == d.tickCore {
		d.clock.Tick()
	}
	eoiFn(f.Core)
	return true
}

// alarmStep counts down the alarm of a process interrupted in user mode by
// the timer and redirects it to its handler when the alarm expires.
func alarmStep(_ *Dispatcher, f *Frame) bool {
	if f.Regs.TrapNo != gate.TimerVector {
		return false
	}

	if _, err := alarm.Check(f.Proc, f.Regs, f.Priv); err != nil {
		kfmt.Printf("pid %d %s: alarm delivery failed: %s--kill proc\n", f.Proc.PID, f.Proc.Name, err.Message)
	}
	return true
}

// pageFaultStep backs the faulting page of a user process with fresh
// memory. Faults that cannot be resolved kill the process. A fault with no
// process to blame is left to the unexpected trap handling.
func pageFaultStep(_ *Dispatcher, f *Frame) bool {
	if f.Regs.TrapNo != gate.PageFaultException || f.Proc == nil {
		return false
	}

	p, faultAddr := f.Proc, uintptr(f.Core.ReadCR2())
	if _, err := vmm.HandleUserFault(p.AddressSpace, p.Size, faultAddr, f.Priv); err != nil {
		kfmt.Printf("pid %d %s: %s at 0x%x: %s--kill proc\n",
			p.PID, p.Name, vmm.FaultReason(f.Regs.ErrCode), faultAddr, err.Message,
		)
		p.Kill()
	}
	return true
}

// deviceStep forwards device interrupts to their drivers and acknowledges
// them.
func deviceStep(d *Dispatcher, f *Frame) bool {
	var line uint8
	switch f.Regs.TrapNo {
	case gate.DiskVector:
		line = gate.IRQDisk
	case gate.KeyboardVector:
		line = gate.IRQKeyboard
	case gate.SerialVector:
		line = gate.IRQSerial
	case gate.SecondaryDiskVector:
		// Bochs raises spurious interrupts for the second IDE channel.
		return true
	default:
		return false
	}

	if !d.irqs.HandleIRQ(line) {
		kfmt.Printf("cpu%d: no driver for irq %d\n", f.Core.ID, line)
	}
	eoiFn(f.Core)
	return true
}

// spuriousStep logs and acknowledges spurious interrupts.
func spuriousStep(_ *Dispatcher, f *Frame) bool {
	switch f.Regs.TrapNo {
	case gate.BogusVector, gate.SpuriousVector:
		kfmt.Printf("cpu%d: spurious interrupt at %x:%x\n", f.Core.ID, f.Regs.CS, f.Regs.RIP)
		eoiFn(f.Core)
		return true
	}
	return false
}
