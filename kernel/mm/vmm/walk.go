package vmm

import (
	"encoding/binary"

	"xv6trap/kernel"
	"xv6trap/kernel/mm"
)

var (
	// frameDataFn is used by tests to intercept accesses to page table
	// frames.
	frameDataFn = mm.FrameData
)

// pageTableWalker is a function that can be passed to the walk method. The
// function receives the current page level and page table entry as its
// arguments. Changes made to the entry are written back to the page table.
// If the function returns false, then the page walk is aborted.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk performs a page table walk for the given virtual address starting at
// the page directory stored in pdtFrame. It calls walkFn with the entry that
// corresponds to each page table level; after each level the walk follows
// the frame the (possibly updated) entry points to.
func walk(pdtFrame mm.Frame, virtAddr uintptr, walkFn pageTableWalker) *kernel.Error {
	tableFrame := pdtFrame
	for level := uint8(0); level < pageLevels; level++ {
		table, err := frameDataFn(tableFrame)
		if err != nil {
			return err
		}

		// Extract the bits from virtual address that correspond to the
		// index in this level's page table
		entryIndex := (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)
		entryOffset := entryIndex << mm.PointerShift

		pte := pageTableEntry(binary.LittleEndian.Uint64(table[entryOffset:]))
		origPte := pte
		ok := walkFn(level, &pte)
		if pte != origPte {
			binary.LittleEndian.PutUint64(table[entryOffset:], uint64(pte))
		}

		if !ok {
			return nil
		}

		tableFrame = pte.Frame()
	}

	return nil
}
