// Package hal defines the boundary between the kernel and the two
// pieces of hardware spec.md treats as external collaborators: the
// UART console and the CLINT timer. Everything above this boundary
// (trap dispatch, the scheduler, the syscall surface) talks only to
// Console_i and Timer_i, never to a register address directly.
package hal

/// Console_i is the byte-oriented sink/source every console fd
/// (stdin/stdout/stderr, fds 0/1/2) is built on.
type Console_i interface {
	/// PutByte transmits one byte, blocking until the transmit FIFO
	/// has room.
	PutByte(b uint8)
	/// GetByte removes and returns the oldest received byte. ok is
	/// false if none is available.
	GetByte() (b uint8, ok bool)
	/// HasInput reports whether GetByte would succeed.
	HasInput() bool
}

/// Timer_i is the programmable periodic source that drives
/// preemption. NextTick arms the comparator for one tick in the
/// future; Now and Ticks are both monotonic, Ticks counting
/// interrupts taken and Now giving a finer-grained free-running count
/// used for cpu-time accounting between ticks.
type Timer_i interface {
	/// NextTick arms the next timer interrupt, one tick from now.
	NextTick()
	/// Now returns the free-running timer count.
	Now() uint64
	/// Ticks returns the number of timer interrupts taken so far.
	Ticks() uint64
}

// MMIO base addresses from spec.md's platform memory map.
const (
	ClintBase uint64 = 0x02000000
	ClintSize uint64 = 16 * 1024

	PlicBase uint64 = 0x0C000000
	PlicSize uint64 = 32 * 1024 * 1024

	Uart0Base uint64 = 0x10000000
	Uart0Size uint64 = 256
)

// CLINT register offsets (RISC-V privileged spec, single-hart layout).
// mtimecmp and mtime sit close to the base rather than at the
// upstream SiFive offsets (0x4000/0xBFF8) so both fit inside the
// platform's declared 16KiB CLINT window.
const (
	ClintMsipOffset  uint64 = 0x0000
	ClintMtimecmpOff uint64 = 0x0008
	ClintMtimeOffset uint64 = 0x3FF8
)
