package vmm

const (
	// pageLevels is the number of page table levels used by user address
	// spaces.
	pageLevels = 2

	// ptePhysPageMask extracts the physical frame address from a page
	// table entry. Bits 12-51 hold the address.
	ptePhysPageMask = uint64(0x000ffffffffff000)

	// MaxUserAddress is the first virtual address that cannot be mapped
	// in a user address space.
	MaxUserAddress = uintptr(1) << 30
)

var (
	// pageLevelBits defines the number of virtual address bits that
	// correspond to each page level. Each level uses 9 bits which amounts
	// to 512 eight-byte entries per page-sized table.
	pageLevelBits = [pageLevels]uint8{
		9,
		9,
	}

	// pageLevelShifts defines the shift required to access each page
	// table component of a virtual address.
	pageLevelShifts = [pageLevels]uint8{
		21,
		12,
	}
)

const (
	// FlagPresent is set when the page is available in memory.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode processes can access this
	// page. If not set only kernel code can access this page.
	FlagUserAccessible
)
