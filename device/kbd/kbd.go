// Package kbd implements a driver for the PS/2 keyboard controller.
package kbd

import (
	"io"

	"xv6trap/device"
	"xv6trap/kernel"
	"xv6trap/kernel/gate"
	"xv6trap/kernel/sync"
)

const (
	scanLeftShift  = 0x2a
	scanRightShift = 0x36
	scanRelease    = 0x80
)

// normalMap translates set-1 scan codes to characters.
var normalMap = [0x3a]byte{
	0x02: '1', '2', '3', '4', '5', '6', '7', '8', '9', '0', '-', '=', '\b',
	0x0f: '\t', 'q', 'w', 'e', 'r', 't', 'y', 'u', 'i', 'o', 'p', '[', ']', '\n',
	0x1e: 'a', 's', 'd', 'f', 'g', 'h', 'j', 'k', 'l', ';', '\'', '`',
	0x2b: '\\', 'z', 'x', 'c', 'v', 'b', 'n', 'm', ',', '.', '/',
	0x39: ' ',
}

// shiftMap translates scan codes while shift is held.
var shiftMap = [0x3a]byte{
	0x02: '!', '@', '#', '$', '%', '^', '&', '*', '(', ')', '_', '+', '\b',
	0x0f: '\t', 'Q', 'W', 'E', 'R', 'T', 'Y', 'U', 'I', 'O', 'P', '{', '}', '\n',
	0x1e: 'A', 'S', 'D', 'F', 'G', 'H', 'J', 'K', 'L', ':', '"', '~',
	0x2b: '|', 'Z', 'X', 'C', 'V', 'B', 'N', 'M', '<', '>', '?',
	0x39: ' ',
}

// Device is the keyboard controller. Scan codes queue up in the controller
// until the interrupt handler decodes them.
type Device struct {
	lock sync.Spinlock

	pending []byte
	input   []byte
	shift   bool
}

// DriverName returns the name of the driver.
func (d *Device) DriverName() string { return "ps2_kbd" }

// DriverVersion returns the driver version.
func (d *Device) DriverVersion() (uint16, uint16, uint16) { return 0, 0, 1 }

// DriverInit initializes the device driver.
func (d *Device) DriverInit(_ io.Writer) *kernel.Error { return nil }

// IRQLine returns the interrupt line raised by the device.
func (d *Device) IRQLine() uint8 { return gate.IRQKeyboard }

// Press queues scan codes in the keyboard controller.
func (d *Device) Press(scanCodes ...byte) {
	d.lock.Acquire()
	d.pending = append(d.pending, scanCodes...)
	d.lock.Release()
}

// HandleIRQ decodes the queued scan codes into characters.
func (d *Device) HandleIRQ() {
	d.lock.Acquire()
	defer d.lock.Release()

	for _, code := range d.pending {
		if ch := d.decode(code); ch != 0 {
			d.input = append(d.input, ch)
		}
	}
	d.pending = d.pending[:0]
}

// decode returns the character for a scan code or 0 if the code does not
// produce one.
func (d *Device) decode(code byte) byte {
	if code&scanRelease != 0 {
		switch code &^ scanRelease {
		case scanLeftShift, scanRightShift:
			d.shift = false
		}
		return 0
	}

	switch {
	case code == scanLeftShift || code == scanRightShift:
		d.shift = true
		return 0
	case int(code) >= len(normalMap):
		return 0
	case d.shift:
		return shiftMap[code]
	default:
		return normalMap[code]
	}
}

// Read moves decoded input into p and returns the number of bytes copied.
func (d *Device) Read(p []byte) int {
	d.lock.Acquire()
	defer d.lock.Release()

	n := copy(p, d.input)
	d.input = d.input[n:]
	return n
}

func probeForKeyboard() device.Driver {
	return new(Device)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderNormal,
		Probe: probeForKeyboard,
	})
}
