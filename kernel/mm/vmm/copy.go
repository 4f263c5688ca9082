package vmm

import (
	"xv6trap/kernel"
	"xv6trap/kernel/mm"
)

// CopyOut copies data into user memory starting at virtAddr. Every page in
// the destination range must be present, user-accessible and writable.
func (as *AddressSpace) CopyOut(virtAddr uintptr, data []byte) *kernel.Error {
	return as.copyUser(virtAddr, len(data), FlagUserAccessible|FlagRW, func(frameBytes []byte, done int) int {
		return copy(frameBytes, data[done:])
	})
}

// CopyIn copies len(buf) bytes of user memory starting at virtAddr into buf.
// Every page in the source range must be present and user-accessible.
func (as *AddressSpace) CopyIn(virtAddr uintptr, buf []byte) *kernel.Error {
	return as.copyUser(virtAddr, len(buf), FlagUserAccessible, func(frameBytes []byte, done int) int {
		return copy(buf[done:], frameBytes)
	})
}

// copyUser visits the frames backing [virtAddr, virtAddr+length) and hands
// each page-bounded chunk to copyFn which returns the number of bytes it
// copied.
func (as *AddressSpace) copyUser(virtAddr uintptr, length int, required PageTableEntryFlag, copyFn func([]byte, int) int) *kernel.Error {
	if virtAddr+uintptr(length) < virtAddr {
		return errAddressOutOfRange
	}

	for done := 0; done < length; {
		addr := virtAddr + uintptr(done)
		pte, err := as.lookup(addr)
		if err != nil {
			return err
		}

		switch {
		case !pte.HasFlags(FlagUserAccessible):
			return errNotUserAccessible
		case !pte.HasFlags(required):
			return errReadOnly
		}

		frameBytes, err := frameDataFn(pte.Frame())
		if err != nil {
			return err
		}

		offset := PageOffset(addr)
		chunk := mm.PageSize - offset
		if remaining := uintptr(length - done); chunk > remaining {
			chunk = remaining
		}

		done += copyFn(frameBytes[offset:offset+chunk], done)
	}

	return nil
}
