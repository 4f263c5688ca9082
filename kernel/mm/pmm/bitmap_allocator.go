// Package pmm provides the physical frame allocator used by the trap layer.
// Physical memory is modeled as a contiguous byte slice; frame N covers bytes
// [N*PageSize, (N+1)*PageSize).
package pmm

import (
	"xv6trap/kernel"
	"xv6trap/kernel/kfmt"
	"xv6trap/kernel/mm"
	"xv6trap/kernel/sync"
)

var (
	errOutOfMemory   = &kernel.Error{Module: "pmm", Message: "out of memory"}
	errInvalidFrame  = &kernel.Error{Module: "pmm", Message: "frame outside of physical memory"}
	errDoubleFree    = &kernel.Error{Module: "pmm", Message: "attempt to free a frame that is not allocated"}
	errReservedFrame = &kernel.Error{Module: "pmm", Message: "attempt to free a reserved frame"}
)

// junkByte fills freed frames so that stale data is never mistaken for a
// zero-filled page.
const junkByte = 0x01

// BitmapAllocator implements a physical frame allocator that tracks frame
// reservations using a bitmap. It is safe for concurrent use.
type BitmapAllocator struct {
	lock sync.Spinlock

	ram []byte

	// freeBitmap tracks used/free frames; bit i set means frame
	// (startFrame + i) is in use.
	freeBitmap []uint64

	// startFrame is the first frame managed by the allocator. Frames
	// below it are reserved for the kernel image.
	startFrame mm.Frame
	endFrame   mm.Frame

	totalFrames    uint32
	reservedFrames uint32
}

// NewBitmapAllocator creates an allocator managing frameCount frames of
// simulated RAM. The first reservedCount frames are never handed out.
func NewBitmapAllocator(frameCount, reservedCount uint32) *BitmapAllocator {
	if reservedCount > frameCount {
		reservedCount = frameCount
	}

	managed := frameCount - reservedCount
	return &BitmapAllocator{
		ram:         make([]byte, uintptr(frameCount)*mm.PageSize),
		freeBitmap:  make([]uint64, (managed+63)>>6),
		startFrame:  mm.Frame(reservedCount),
		endFrame:    mm.Frame(frameCount),
		totalFrames: managed,
	}
}

// AllocFrame reserves and returns the lowest-numbered free frame.
func (alloc *BitmapAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	alloc.lock.Acquire()
	defer alloc.lock.Release()

	if alloc.reservedFrames == alloc.totalFrames {
		return mm.InvalidFrame, errOutOfMemory
	}

	for blockIndex, block := range alloc.freeBitmap {
		if block == ^uint64(0) {
			continue
		}

		for bit := uint32(0); bit < 64; bit++ {
			mask := uint64(1) << bit
			if block&mask != 0 {
				continue
			}

			frameIndex := uint32(blockIndex)<<6 + bit
			if frameIndex >= alloc.totalFrames {
				return mm.InvalidFrame, errOutOfMemory
			}

			alloc.freeBitmap[blockIndex] |= mask
			alloc.reservedFrames++
			return alloc.startFrame + mm.Frame(frameIndex), nil
		}
	}

	return mm.InvalidFrame, errOutOfMemory
}

// FreeFrame releases a frame previously returned by AllocFrame and fills it
// with junk.
func (alloc *BitmapAllocator) FreeFrame(frame mm.Frame) *kernel.Error {
	if frame >= alloc.endFrame {
		return errInvalidFrame
	}
	if frame < alloc.startFrame {
		return errReservedFrame
	}

	alloc.lock.Acquire()
	defer alloc.lock.Release()

	frameIndex := uint32(frame - alloc.startFrame)
	blockIndex, mask := frameIndex>>6, uint64(1)<<(frameIndex&63)
	if alloc.freeBitmap[blockIndex]&mask == 0 {
		return errDoubleFree
	}

	alloc.freeBitmap[blockIndex] &^= mask
	alloc.reservedFrames--
	kernel.Memset(alloc.frameBytes(frame), junkByte)
	return nil
}

// FrameData returns the bytes of simulated RAM backing frame.
func (alloc *BitmapAllocator) FrameData(frame mm.Frame) ([]byte, *kernel.Error) {
	if !frame.Valid() || frame >= alloc.endFrame {
		return nil, errInvalidFrame
	}
	return alloc.frameBytes(frame), nil
}

func (alloc *BitmapAllocator) frameBytes(frame mm.Frame) []byte {
	start := frame.Address()
	return alloc.ram[start : start+mm.PageSize : start+mm.PageSize]
}

// FreeCount returns the number of frames that can still be allocated.
func (alloc *BitmapAllocator) FreeCount() uint32 {
	alloc.lock.Acquire()
	defer alloc.lock.Release()
	return alloc.totalFrames - alloc.reservedFrames
}

// PrintStats outputs the allocator usage to the kernel log.
func (alloc *BitmapAllocator) PrintStats() {
	alloc.lock.Acquire()
	total, reserved := alloc.totalFrames, alloc.reservedFrames
	alloc.lock.Release()

	kfmt.Printf("[pmm] frames: %d total, %d reserved, %d free (%dKb)\n",
		total, reserved, total-reserved, uint64(total-reserved)*uint64(mm.PageSize)>>10,
	)
}
