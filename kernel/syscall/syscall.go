// Package syscall implements the system call gateway: it decodes the
// system call number and arguments of a trapping process, runs the handler
// and stores the result in the process registers.
package syscall

import (
	"xv6trap/kernel/clock"
	"xv6trap/kernel/gate"
	"xv6trap/kernel/kfmt"
	"xv6trap/kernel/proc"
)

// System call numbers. The number is passed in RAX.
const (
	SysFork   = 1
	SysExit   = 2
	SysWait   = 3
	SysKill   = 6
	SysGetpid = 11
	SysSbrk   = 12
	SysSleep  = 13
	SysUptime = 14
	SysDup2   = 23
	SysAlarm  = 24
)

// Scheduler terminates processes on behalf of the exit system call.
type Scheduler interface {
	Exit(p *proc.Process)
}

type handlerFn func(g *Gateway, c *Call) int

// sysent maps system call numbers to their handlers. Process creation and
// reaping are not handled by this kernel; fork and wait fall through to the
// unknown system call path.
var sysent = [...]handlerFn{
	SysExit:   sysExit,
	SysKill:   sysKill,
	SysGetpid: sysGetpid,
	SysSbrk:   sysSbrk,
	SysSleep:  sysSleep,
	SysUptime: sysUptime,
	SysDup2:   sysDup2,
	SysAlarm:  sysAlarm,
}

// Gateway dispatches system calls to their handlers.
type Gateway struct {
	clock *clock.Clock
	procs *proc.Table
	sched Scheduler
}

// NewGateway returns a gateway whose handlers use the supplied clock,
// process table and scheduler.
func NewGateway(c *clock.Clock, procs *proc.Table, sched Scheduler) *Gateway {
	return &Gateway{clock: c, procs: procs, sched: sched}
}

// Dispatch runs the system call requested by p and stores its result in
// regs.RAX. Unknown system calls are logged and fail with -1.
func (g *Gateway) Dispatch(p *proc.Process, regs *gate.Registers) {
	num := regs.RAX
	if num < uint64(len(sysent)) && sysent[num] != nil {
		SetResult(regs, sysent[num](g, &Call{Proc: p, Regs: regs}))
		return
	}

	kfmt.Printf("%d %s: unknown sys call %d\n", p.PID, p.Name, num)
	SetResult(regs, -1)
}

// SetResult stores a system call return value in regs.
func SetResult(regs *gate.Registers, v int) {
	regs.RAX = uint64(int64(v))
}

// Result returns the system call return value stored in regs.
func Result(regs *gate.Registers) int {
	return int(int64(regs.RAX))
}
