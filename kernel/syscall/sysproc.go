package syscall

import (
	"math"

	"xv6trap/kernel/alarm"
	"xv6trap/kernel/kfmt"
	"xv6trap/kernel/proc"
)

func sysExit(g *Gateway, c *Call) int {
	g.sched.Exit(c.Proc)
	return 0
}

func sysGetpid(_ *Gateway, c *Call) int {
	return c.Proc.PID
}

func sysKill(g *Gateway, c *Call) int {
	pid, err := c.ArgInt(0)
	if err != nil {
		return -1
	}

	if g.procs.Kill(pid) != nil {
		return -1
	}
	return 0
}

// sysSbrk grows or shrinks the process and returns its previous size. New
// memory is backed lazily by the page fault handler.
func sysSbrk(_ *Gateway, c *Call) int {
	n, err := c.ArgInt(0)
	if err != nil {
		return -1
	}

	oldSize, err := c.Proc.Grow(n)
	if err != nil {
		return -1
	}
	return int(oldSize)
}

func sysSleep(g *Gateway, c *Call) int {
	n, err := c.ArgInt(0)
	if err != nil || n < 0 || uint64(n) > math.MaxUint32 {
		return -1
	}

	c.Proc.SetState(proc.Sleeping)
	err = g.clock.Sleep(uint32(n), c.Proc)
	c.Proc.SetState(proc.Running)

	if err != nil {
		return -1
	}
	return 0
}

// sysUptime returns the number of clock ticks since boot.
func sysUptime(g *Gateway, _ *Call) int {
	return int(g.clock.Read())
}

// sysDup2 makes descriptor newfd refer to the open file of oldfd, closing
// whatever newfd referred to before. It returns newfd.
func sysDup2(_ *Gateway, c *Call) int {
	oldfd, err := c.ArgInt(0)
	if err != nil {
		return -1
	}
	newfd, err := c.ArgInt(1)
	if err != nil {
		return -1
	}

	files := &c.Proc.Files
	if oldfd < 0 || oldfd >= len(files) || newfd < 0 || newfd >= len(files) || files[oldfd] == nil {
		return -1
	}

	if oldfd == newfd {
		return newfd
	}

	if files[newfd] != nil {
		if err := files[newfd].Close(); err != nil {
			kfmt.Printf("[syscall] pid %d: dup2 close fd %d: %s\n", c.Proc.PID, newfd, err.Message)
		}
	}
	files[newfd] = files[oldfd].Dup()
	return newfd
}

// sysAlarm registers a periodic alarm. The handler argument must point
// inside the process.
func sysAlarm(_ *Gateway, c *Call) int {
	ticks, err := c.ArgInt(0)
	if err != nil {
		return -1
	}
	handler, err := c.ArgPtr(1, 1)
	if err != nil {
		return -1
	}

	if alarm.Register(c.Proc, ticks, handler) != nil {
		return -1
	}
	return 0
}
