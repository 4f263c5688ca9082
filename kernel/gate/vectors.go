package gate

// InterruptNumber describes an x86 interrupt/exception/trap slot.
type InterruptNumber uint8

// NumVectors is the number of slots in the interrupt descriptor table.
const NumVectors = 256

const (
	// DivideByZero occurs when dividing any number by 0 using the DIV or
	// IDIV instruction.
	DivideByZero = InterruptNumber(0)

	// NMI (non-maskable-interrupt) is a hardware interrupt that indicates
	// issues with RAM or unrecoverable hardware problems.
	NMI = InterruptNumber(2)

	// InvalidOpcode occurs when the CPU attempts to execute an invalid or
	// undefined instruction opcode.
	InvalidOpcode = InterruptNumber(6)

	// DoubleFault occurs when an unhandled exception occurs or when an
	// exception occurs within a running exception handler.
	DoubleFault = InterruptNumber(8)

	// GPFException occurs when a general protection fault occurs.
	GPFException = InterruptNumber(13)

	// PageFaultException occurs when a page directory table (PDT) or one
	// of its entries is not present or when a privilege and/or RW
	// protection check fails.
	PageFaultException = InterruptNumber(14)

	// Syscall is the software interrupt used by user code to request
	// kernel services. It is the only vector user code may invoke.
	Syscall = InterruptNumber(64)
)

// IRQ0 is the vector the first hardware interrupt line is remapped to. All
// IRQ vectors are expressed as IRQ0 + line.
const IRQ0 = InterruptNumber(32)

// Hardware interrupt lines.
const (
	IRQTimer    = 0
	IRQKeyboard = 1
	IRQSerial   = 4
	IRQBogus    = 7
	IRQDisk     = 14
	IRQError    = 19
	IRQSpurious = 31
)

// IRQ returns the vector for hardware interrupt line.
func IRQ(line uint8) InterruptNumber {
	return IRQ0 + InterruptNumber(line)
}

// Vectors raised by hardware interrupts.
const (
	TimerVector    = IRQ0 + IRQTimer
	KeyboardVector = IRQ0 + IRQKeyboard
	SerialVector   = IRQ0 + IRQSerial
	DiskVector     = IRQ0 + IRQDisk

	// SecondaryDiskVector is raised spuriously by some emulators (Bochs)
	// for the second IDE channel.
	SecondaryDiskVector = IRQ0 + IRQDisk + 1
	BogusVector         = IRQ0 + IRQBogus
	ErrorVector         = IRQ0 + IRQError
	SpuriousVector      = IRQ0 + IRQSpurious
)
