package mm

const (
	// PointerShift is equal to log2(WordSize).
	PointerShift = uintptr(3)

	// WordSize is the size in bytes of a machine word. Values pushed to a
	// user stack by the kernel occupy one word.
	WordSize = uintptr(1 << PointerShift)

	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = uintptr(12)

	// PageSize defines the system's page size in bytes.
	PageSize = uintptr(1 << PageShift)
)

// PageRoundDown returns the address of the page boundary at or below addr.
func PageRoundDown(addr uintptr) uintptr {
	return addr &^ (PageSize - 1)
}

// PageRoundUp returns the address of the page boundary at or above addr.
func PageRoundUp(addr uintptr) uintptr {
	return (addr + PageSize - 1) &^ (PageSize - 1)
}
