package device

import (
	"bytes"
	"io"
	"sort"

	"xv6trap/kernel"
	"xv6trap/kernel/kfmt"
	"xv6trap/kernel/sync"
)

// NumIRQLines is the number of hardware interrupt lines that can be routed
// to drivers.
const NumIRQLines = 32

var (
	errIRQLineInvalid = &kernel.Error{Module: "device", Message: "interrupt line out of range"}
	errIRQLineInUse   = &kernel.Error{Module: "device", Message: "interrupt line already has a driver"}
)

// IRQTable routes hardware interrupt lines to the driver that services them.
// It is safe for concurrent use.
type IRQTable struct {
	lock    sync.Spinlock
	drivers [NumIRQLines]IRQDriver
}

// Attach routes the interrupt line of drv to drv.
func (t *IRQTable) Attach(drv IRQDriver) *kernel.Error {
	line := drv.IRQLine()
	if line >= NumIRQLines {
		return errIRQLineInvalid
	}

	t.lock.Acquire()
	defer t.lock.Release()

	if t.drivers[line] != nil {
		return errIRQLineInUse
	}
	t.drivers[line] = drv
	return nil
}

// Driver returns the driver attached to line or nil.
func (t *IRQTable) Driver(line uint8) IRQDriver {
	if line >= NumIRQLines {
		return nil
	}

	t.lock.Acquire()
	defer t.lock.Release()
	return t.drivers[line]
}

// HandleIRQ invokes the driver attached to line. It returns false if no
// driver services the line.
func (t *IRQTable) HandleIRQ(line uint8) bool {
	drv := t.Driver(line)
	if drv == nil {
		return false
	}

	drv.HandleIRQ()
	return true
}

// ProbeAll executes the probe function of every registered driver in
// detection order and initializes the drivers that find their hardware.
// Drivers that service an interrupt line are attached to irqs. Progress is
// logged to w.
func ProbeAll(irqs *IRQTable, w io.Writer) []Driver {
	if w == nil {
		w = logWriter{}
	}

	drivers := DriverList()
	sort.Sort(drivers)

	var (
		active []Driver
		strBuf bytes.Buffer
		pw     = kfmt.PrefixWriter{Sink: w}
	)

	for _, info := range drivers {
		drv := info.Probe()
		if drv == nil {
			continue
		}

		strBuf.Reset()
		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(&strBuf, "[device] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
		pw.Prefix = strBuf.Bytes()

		if err := drv.DriverInit(&pw); err != nil {
			kfmt.Fprintf(&pw, "init failed: %s\n", err.Message)
			continue
		}

		if irqDrv, ok := drv.(IRQDriver); ok {
			if err := irqs.Attach(irqDrv); err != nil {
				kfmt.Fprintf(&pw, "irq %d: %s\n", irqDrv.IRQLine(), err.Message)
				continue
			}
		}

		kfmt.Fprintf(&pw, "initialized\n")
		active = append(active, drv)
	}

	return active
}

// logWriter forwards writes to the active kfmt output sink.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	kfmt.Printf("%s", p)
	return len(p), nil
}
