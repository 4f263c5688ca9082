// Package ide implements a driver for the primary IDE disk controller.
// Requests are queued and completed one at a time by the disk interrupt.
package ide

import (
	"io"

	"xv6trap/device"
	"xv6trap/kernel"
	"xv6trap/kernel/gate"
	"xv6trap/kernel/kfmt"
	"xv6trap/kernel/sync"
)

const (
	// BlockSize is the size of a disk block in bytes.
	BlockSize = 512

	// NumBlocks is the capacity of the disk.
	NumBlocks = 1024
)

var (
	errBlockOutOfRange = &kernel.Error{Module: "ide", Message: "block number beyond the end of the disk"}
	errNotInitialized  = &kernel.Error{Module: "ide", Message: "controller has not been initialized"}
)

// Request is a single block transfer.
type Request struct {
	Block uint32
	Write bool
	Data  [BlockSize]byte

	done chan struct{}
}

// NewRequest returns a transfer request for block.
func NewRequest(block uint32, write bool) *Request {
	return &Request{Block: block, Write: write, done: make(chan struct{})}
}

// Done returns a channel that is closed once the transfer has completed.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Device is the disk controller.
type Device struct {
	lock sync.Spinlock

	disk  []byte
	queue []*Request
}

// DriverName returns the name of the driver.
func (d *Device) DriverName() string { return "ide" }

// DriverVersion returns the driver version.
func (d *Device) DriverVersion() (uint16, uint16, uint16) { return 0, 0, 1 }

// DriverInit initializes the device driver.
func (d *Device) DriverInit(w io.Writer) *kernel.Error {
	d.lock.Acquire()
	d.disk = make([]byte, NumBlocks*BlockSize)
	d.lock.Release()

	kfmt.Fprintf(w, "disk 1: %d blocks, ", NumBlocks)
	return nil
}

// IRQLine returns the interrupt line raised by the device.
func (d *Device) IRQLine() uint8 { return gate.IRQDisk }

// Submit queues a request. The caller must wait on req.Done before touching
// the request again. Requests are refused until DriverInit has run.
func (d *Device) Submit(req *Request) *kernel.Error {
	if req.Block >= NumBlocks {
		return errBlockOutOfRange
	}

	d.lock.Acquire()
	defer d.lock.Release()

	if d.disk == nil {
		return errNotInitialized
	}
	d.queue = append(d.queue, req)
	return nil
}

// Pending returns the number of queued requests.
func (d *Device) Pending() int {
	d.lock.Acquire()
	defer d.lock.Release()
	return len(d.queue)
}

// HandleIRQ completes the request at the head of the queue.
func (d *Device) HandleIRQ() {
	d.lock.Acquire()
	if len(d.queue) == 0 {
		d.lock.Release()
		return
	}

	req := d.queue[0]
	d.queue = d.queue[1:]

	block := d.disk[req.Block*BlockSize : (req.Block+1)*BlockSize]
	if req.Write {
		copy(block, req.Data[:])
	} else {
		copy(req.Data[:], block)
	}
	d.lock.Release()

	close(req.done)
}

func probeForDisk() device.Driver {
	return new(Device)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderLast,
		Probe: probeForDisk,
	})
}
