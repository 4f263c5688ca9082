package vmm

import (
	"xv6trap/kernel"
	"xv6trap/kernel/gate"
	"xv6trap/kernel/mm"
)

var (
	// mapFn is mocked by tests.
	mapFn = (*AddressSpace).Map

	errKernelFault     = &kernel.Error{Module: "vmm", Message: "page fault while executing kernel code"}
	errFaultBeyondSize = &kernel.Error{Module: "vmm", Message: "page fault above the process size"}
	errNoAddressSpace  = &kernel.Error{Module: "vmm", Message: "page fault without a user address space"}
)

// FaultResolution describes how a user page fault was resolved.
type FaultResolution struct {
	// Addr is the faulting virtual address as read from CR2.
	Addr uintptr

	// Page is the page containing Addr.
	Page mm.Page

	// Frame is the zero-filled frame that now backs Page or
	// mm.InvalidFrame if the fault could not be resolved.
	Frame mm.Frame
}

// HandleUserFault lazily backs the page containing faultAddr with a fresh,
// zero-filled frame. Only faults raised by user code below the process size
// are resolved; every other fault is reported as an error and leaves the
// address space unchanged.
func HandleUserFault(as *AddressSpace, size, faultAddr uintptr, priv gate.PrivilegeLevel) (FaultResolution, *kernel.Error) {
	res := FaultResolution{Addr: faultAddr, Frame: mm.InvalidFrame}

	switch {
	case priv != gate.UserLevel:
		return res, errKernelFault
	case as == nil:
		return res, errNoAddressSpace
	case faultAddr >= size:
		return res, errFaultBeyondSize
	}

	res.Page = mm.PageFromAddress(faultAddr)

	frame, err := allocZeroedFrame()
	if err != nil {
		return res, err
	}

	if err = mapFn(as, res.Page, frame, FlagRW|FlagUserAccessible); err != nil {
		_ = freeFrameFn(frame)
		return res, err
	}

	res.Frame = frame
	return res, nil
}

// FaultReason decodes the error code pushed by the CPU for a page fault.
func FaultReason(errCode uint64) string {
	if errCode&0x8 != 0 {
		return "page table has reserved bit set"
	}

	var (
		mode   = "kernel"
		access = "read from"
		cause  = "non-present page"
	)

	if errCode&0x4 != 0 {
		mode = "user"
	}

	switch {
	case errCode&0x10 != 0:
		access = "instruction fetch from"
	case errCode&0x2 != 0:
		access = "write to"
	}

	if errCode&0x1 != 0 {
		cause = "protected page"
	}

	return mode + "-mode " + access + " " + cause
}
