package mm

import "xv6trap/kernel"

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by page allocators when
	// they fail to reserve the requested frame.
	InvalidFrame = Frame(^uintptr(0))
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns the physical memory address pointed to by this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f << PageShift)
}

// FrameFromAddress returns the Frame that contains the given physical
// address.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame(PageRoundDown(physAddr) >> PageShift)
}

// Page describes a virtual memory page index.
type Page uintptr

// Address returns the virtual memory address pointed to by this Page.
func (p Page) Address() uintptr {
	return uintptr(p << PageShift)
}

// PageFromAddress returns the Page that contains the given virtual address.
func PageFromAddress(virtAddr uintptr) Page {
	return Page(PageRoundDown(virtAddr) >> PageShift)
}

// FrameAllocator is implemented by physical frame allocators. Implementations
// must be safe for concurrent use by multiple cores.
type FrameAllocator interface {
	// AllocFrame reserves a free physical frame.
	AllocFrame() (Frame, *kernel.Error)

	// FreeFrame returns a frame previously obtained by AllocFrame.
	FreeFrame(Frame) *kernel.Error

	// FrameData returns the PageSize bytes backing a frame.
	FrameData(Frame) ([]byte, *kernel.Error)
}

var (
	// frameAllocator points to the allocator registered using
	// SetFrameAllocator.
	frameAllocator FrameAllocator

	errNoAllocator = &kernel.Error{Module: "mm", Message: "no frame allocator registered"}
)

// SetFrameAllocator registers the allocator used by the vmm code when new
// physical frames need to be allocated, released or accessed.
func SetFrameAllocator(alloc FrameAllocator) { frameAllocator = alloc }

// AllocFrame allocates a new physical frame using the currently active
// physical frame allocator.
func AllocFrame() (Frame, *kernel.Error) {
	if frameAllocator == nil {
		return InvalidFrame, errNoAllocator
	}
	return frameAllocator.AllocFrame()
}

// FreeFrame releases a physical frame using the currently active physical
// frame allocator.
func FreeFrame(f Frame) *kernel.Error {
	if frameAllocator == nil {
		return errNoAllocator
	}
	return frameAllocator.FreeFrame(f)
}

// FrameData returns the contents of a physical frame.
func FrameData(f Frame) ([]byte, *kernel.Error) {
	if frameAllocator == nil {
		return nil, errNoAllocator
	}
	return frameAllocator.FrameData(f)
}
