// Package alarm delivers periodic alarms to user processes by redirecting
// their user-mode execution to a registered handler address.
package alarm

import (
	"xv6trap/kernel"
	"xv6trap/kernel/gate"
	"xv6trap/kernel/proc"
)

var (
	errNegativeInterval  = &kernel.Error{Module: "alarm", Message: "alarm interval must not be negative"}
	errHandlerOutOfRange = &kernel.Error{Module: "alarm", Message: "alarm handler outside of the process address space"}
	errNoUserMemory      = &kernel.Error{Module: "alarm", Message: "process has no address space"}
)

// Register installs an alarm that fires every interval user-mode ticks and
// redirects p to handler. An interval of zero disables the alarm.
func Register(p *proc.Process, interval int, handler uintptr) *kernel.Error {
	switch {
	case interval < 0:
		return errNegativeInterval
	case handler >= p.Size:
		return errHandlerOutOfRange
	}

	p.Alarm = proc.Alarm{
		Interval:  interval,
		Remaining: interval,
		Handler:   handler,
	}
	return nil
}

// Check counts down the alarm of p for one timer interrupt and delivers it
// once the countdown expires. Only interrupts that land while p executes at
// user privilege are counted. Check returns true if execution was redirected
// to the handler; an error means that delivery failed and p was killed.
func Check(p *proc.Process, regs *gate.Registers, priv gate.PrivilegeLevel) (bool, *kernel.Error) {
	if p == nil || priv != gate.UserLevel || !p.Alarm.Armed() {
		return false, nil
	}

	p.Alarm.Remaining--
	if p.Alarm.Remaining > 0 {
		return false, nil
	}

	if err := Deliver(p, regs); err != nil {
		return false, err
	}
	return true, nil
}

// Deliver pushes the interrupted instruction pointer onto the user stack of
// p and resumes p at its alarm handler. If the handler is no longer inside
// the process or the return address cannot be written, regs are left
// untouched and p is killed. The countdown is reloaded in every case.
func Deliver(p *proc.Process, regs *gate.Registers) *kernel.Error {
	defer func() { p.Alarm.Remaining = p.Alarm.Interval }()

	var err *kernel.Error
	switch {
	case p.Alarm.Handler >= p.Size:
		err = errHandlerOutOfRange
	case p.AddressSpace == nil:
		err = errNoUserMemory
	default:
		err = regs.Redirect(uint64(p.Alarm.Handler), p.AddressSpace)
	}

	if err != nil {
		p.Kill()
	}
	return err
}
