package vmm

import (
	"encoding/binary"

	"xv6trap/kernel"
	"xv6trap/kernel/mm"
)

var (
	// the following functions are mocked by tests.
	allocFrameFn = mm.AllocFrame
	freeFrameFn  = mm.FreeFrame

	errRemap             = &kernel.Error{Module: "vmm", Message: "page is already mapped"}
	errAddressOutOfRange = &kernel.Error{Module: "vmm", Message: "virtual address outside of the user address space"}
	errNotUserAccessible = &kernel.Error{Module: "vmm", Message: "page is not accessible from user mode"}
	errReadOnly          = &kernel.Error{Module: "vmm", Message: "page is read-only"}
)

// AddressSpace is the page table hierarchy of one user process. Address
// spaces are private to their process and are not safe for concurrent use.
type AddressSpace struct {
	pdtFrame mm.Frame
}

// NewAddressSpace allocates an empty page directory.
func NewAddressSpace() (*AddressSpace, *kernel.Error) {
	pdtFrame, err := allocZeroedFrame()
	if err != nil {
		return nil, err
	}

	return &AddressSpace{pdtFrame: pdtFrame}, nil
}

// allocZeroedFrame reserves a physical frame and clears its contents.
func allocZeroedFrame() (mm.Frame, *kernel.Error) {
	frame, err := allocFrameFn()
	if err != nil {
		return mm.InvalidFrame, err
	}

	data, err := frameDataFn(frame)
	if err != nil {
		_ = freeFrameFn(frame)
		return mm.InvalidFrame, err
	}

	kernel.Memset(data, 0)
	return frame, nil
}

// Map establishes a mapping between a virtual page and a physical memory
// frame. Missing intermediate page tables are allocated on demand. Mapping a
// page that is already present fails with an error.
func (as *AddressSpace) Map(page mm.Page, frame mm.Frame, flags PageTableEntryFlag) *kernel.Error {
	if page.Address() >= MaxUserAddress {
		return errAddressOutOfRange
	}

	var err *kernel.Error
	walkErr := walk(as.pdtFrame, page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		// If we reached the last level all we need to do is to map the
		// frame in place and flag it as present
		if pteLevel == pageLevels-1 {
			if pte.HasFlags(FlagPresent) {
				err = errRemap
				return false
			}

			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(FlagPresent | flags)
			return true
		}

		// Next table does not yet exist; we need to allocate a
		// physical frame for it and clear its contents.
		if !pte.HasFlags(FlagPresent) {
			var newTableFrame mm.Frame
			if newTableFrame, err = allocZeroedFrame(); err != nil {
				return false
			}

			*pte = 0
			pte.SetFrame(newTableFrame)
			pte.SetFlags(FlagPresent | FlagRW | FlagUserAccessible)
		}

		return true
	})

	if walkErr != nil {
		return walkErr
	}
	return err
}

// Unmap removes the mapping for page and returns the frame it pointed to.
// The frame itself is not released.
func (as *AddressSpace) Unmap(page mm.Page) (mm.Frame, *kernel.Error) {
	var (
		frame = mm.InvalidFrame
		err   = ErrInvalidMapping
	)

	if page.Address() >= MaxUserAddress {
		return frame, errAddressOutOfRange
	}

	walkErr := walk(as.pdtFrame, page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			return false
		}

		if pteLevel == pageLevels-1 {
			frame, err = pte.Frame(), nil
			*pte = 0
		}
		return true
	})

	if walkErr != nil {
		return mm.InvalidFrame, walkErr
	}
	return frame, err
}

// lookup returns the last-level page table entry for virtAddr or
// ErrInvalidMapping if the page is not present.
func (as *AddressSpace) lookup(virtAddr uintptr) (pageTableEntry, *kernel.Error) {
	if virtAddr >= MaxUserAddress {
		return 0, errAddressOutOfRange
	}

	var (
		entry pageTableEntry
		err   = ErrInvalidMapping
	)

	walkErr := walk(as.pdtFrame, virtAddr, func(pteLevel uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			return false
		}

		if pteLevel == pageLevels-1 {
			entry, err = *pte, nil
		}
		return true
	})

	if walkErr != nil {
		return 0, walkErr
	}
	return entry, err
}

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the virtual address does not
// correspond to a mapped physical address.
func (as *AddressSpace) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	pte, err := as.lookup(virtAddr)
	if err != nil {
		return 0, err
	}

	// Calculate the physical address by taking the physical frame address and
	// appending the offset from the virtual address
	return pte.Frame().Address() + PageOffset(virtAddr), nil
}

// PageOffset returns the offset within the page specified by a virtual
// address.
func PageOffset(virtAddr uintptr) uintptr {
	return virtAddr & (mm.PageSize - 1)
}

// Dealloc unmaps and frees every page that is mapped in the range
// [PageRoundUp(newSize), oldSize). Pages in that range that were never
// touched are simply skipped.
func (as *AddressSpace) Dealloc(oldSize, newSize uintptr) *kernel.Error {
	for addr := mm.PageRoundUp(newSize); addr < oldSize; addr += mm.PageSize {
		frame, err := as.Unmap(mm.PageFromAddress(addr))
		switch {
		case err == ErrInvalidMapping:
			continue
		case err != nil:
			return err
		}

		if err = freeFrameFn(frame); err != nil {
			return err
		}
	}

	return nil
}

// Destroy releases every user frame, every page table and the page
// directory of the address space. The address space must not be used
// afterwards.
func (as *AddressSpace) Destroy() *kernel.Error {
	pdt, err := frameDataFn(as.pdtFrame)
	if err != nil {
		return err
	}

	for offset := uintptr(0); offset < mm.PageSize; offset += mm.WordSize {
		dirEntry := pageTableEntry(binary.LittleEndian.Uint64(pdt[offset:]))
		if !dirEntry.HasFlags(FlagPresent) {
			continue
		}

		table, err := frameDataFn(dirEntry.Frame())
		if err != nil {
			return err
		}

		for tableOffset := uintptr(0); tableOffset < mm.PageSize; tableOffset += mm.WordSize {
			pte := pageTableEntry(binary.LittleEndian.Uint64(table[tableOffset:]))
			if pte.HasFlags(FlagPresent) {
				if err = freeFrameFn(pte.Frame()); err != nil {
					return err
				}
			}
		}

		if err = freeFrameFn(dirEntry.Frame()); err != nil {
			return err
		}
	}

	err = freeFrameFn(as.pdtFrame)
	as.pdtFrame = mm.InvalidFrame
	return err
}
