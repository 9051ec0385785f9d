// Package barrier provides the memory-ordering fences and raw MMIO
// accessors every device driver and page-table walk needs on RISC-V.
// Go's memory model says nothing about device registers or the
// ordering of loads and stores across a fence instruction, so these
// are thin asm wrappers rather than something expressible in Go
// itself; spec.md §5 requires each one to compile to exactly one
// `fence` variant with no surrounding prologue that could reorder
// around it.
package barrier

/// FenceRW is a full fence: no load or store before it may be
/// reordered past any load or store after it.
func FenceRW()

/// FenceW orders stores before the fence ahead of stores after it.
func FenceW()

/// FenceR orders loads before the fence ahead of loads after it.
func FenceR()

/// FenceIO orders device-IO accesses, used around MMIO register
/// writes that must be visible before a subsequent doorbell ring.
func FenceIO()

/// FenceI flushes the instruction fetch pipeline; required after
/// writing executable pages (ELF loading, exec) before jumping into
/// them.
func FenceI()

/// CompilerBarrier prevents the Go compiler from reordering or
/// eliminating memory accesses across this point, without emitting a
/// hardware fence. Used around lock-free reads of MMIO-backed
/// descriptors where a full fence would be overkill but instruction
/// reordering at compile time still isn't safe.
func CompilerBarrier()

/// Read32 loads a 32-bit MMIO register at the given physical address.
/// Callers must already hold that address identity-mapped
/// uncacheable; Read32 itself does not fence.
func Read32(addr uintptr) uint32

/// Write32 stores a 32-bit MMIO register at the given physical
/// address.
func Write32(addr uintptr, val uint32)

/// Irqdisable clears sstatus.SIE and returns whether it was set
/// beforehand, so the caller can restore exactly that state with
/// Irqrestore. Used by the scheduler, around its tinfo updates and
/// context switches, to make a critical section atomic with respect to the timer interrupt on this single
/// core (spec.md §4.5's concurrency note).
func Irqdisable() (was bool)

/// Irqenable unconditionally sets sstatus.SIE.
func Irqenable()

/// Irqrestore sets sstatus.SIE back on if was is true; otherwise it is
/// a no-op, since SIE is already clear.
func Irqrestore(was bool) {
	if was {
		Irqenable()
	}
}

/// Rmw32 performs an ordered read-modify-write of a 32-bit MMIO
/// register: it reads the register, applies fn to the current value,
/// writes the result back, and returns the value written. A FenceIO
/// brackets the whole sequence so neither the read nor the write can
/// be reordered against neighboring MMIO accesses.
func Rmw32(addr uintptr, fn func(uint32) uint32) uint32 {
	FenceIO()
	v := Read32(addr)
	v = fn(v)
	Write32(addr, v)
	FenceIO()
	return v
}
