// Package uart implements a driver for the first 16550 serial port.
package uart

import (
	"io"

	"xv6trap/device"
	"xv6trap/kernel"
	"xv6trap/kernel/gate"
	"xv6trap/kernel/kfmt"
	"xv6trap/kernel/sync"
)

// fifoSize is the capacity of the receive FIFO of the chip.
const fifoSize = 16

// Device is a serial port. Bytes received on the line wait in the chip FIFO
// until the interrupt handler moves them to the input buffer.
type Device struct {
	lock sync.Spinlock

	fifo  []byte
	input []byte

	// overruns counts bytes dropped because the FIFO was full.
	overruns uint32
}

// DriverName returns the name of the driver.
func (d *Device) DriverName() string { return "uart16550" }

// DriverVersion returns the driver version.
func (d *Device) DriverVersion() (uint16, uint16, uint16) { return 0, 0, 1 }

// DriverInit initializes the device driver.
func (d *Device) DriverInit(w io.Writer) *kernel.Error {
	kfmt.Fprintf(w, "COM1 at 0x3f8, ")
	return nil
}

// IRQLine returns the interrupt line raised by the device.
func (d *Device) IRQLine() uint8 { return gate.IRQSerial }

// Receive places bytes arriving on the serial line into the receive FIFO.
// Bytes that do not fit are dropped.
func (d *Device) Receive(data []byte) {
	d.lock.Acquire()
	defer d.lock.Release()

	for _, b := range data {
		if len(d.fifo) == fifoSize {
			d.overruns++
			continue
		}
		d.fifo = append(d.fifo, b)
	}
}

// HandleIRQ drains the receive FIFO into the input buffer. Carriage returns
// are translated to line feeds.
func (d *Device) HandleIRQ() {
	d.lock.Acquire()
	defer d.lock.Release()

	for _, b := range d.fifo {
		if b == '\r' {
			b = '\n'
		}
		d.input = append(d.input, b)
	}
	d.fifo = d.fifo[:0]
}

// Read moves buffered input into p and returns the number of bytes copied.
func (d *Device) Read(p []byte) int {
	d.lock.Acquire()
	defer d.lock.Release()

	n := copy(p, d.input)
	d.input = d.input[n:]
	return n
}

// Overruns returns the number of bytes lost to FIFO overflows.
func (d *Device) Overruns() uint32 {
	d.lock.Acquire()
	defer d.lock.Release()
	return d.overruns
}

func probeForUART() device.Driver {
	return new(Device)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderEarly,
		Probe: probeForUART,
	})
}
