package hal

import "sync/atomic"

import "barrier"

// TickInterval is the number of mtime ticks between timer interrupts.
// spec.md §9's clock test requires ≥1s intervals to be observable; the
// platform's mtime runs at 10MHz, so one tick every TickInterval
// counts is the quantum the scheduler preempts on.
const TickInterval uint64 = 1000000

/// Clint_t drives the CLINT's per-hart mtime/mtimecmp pair. It
/// satisfies Timer_i. Ticks is a software count of interrupts taken,
/// incremented by NextTick each time it is called to re-arm the
/// comparator after a supervisor timer interrupt.
type Clint_t struct {
	base  uintptr
	ticks uint64
}

/// Init records the CLINT MMIO base for a single-hart platform.
func (c *Clint_t) Init(base uintptr) {
	c.base = base
}

func (c *Clint_t) mtimeAddr() uintptr {
	return c.base + uintptr(ClintMtimeOffset)
}

func (c *Clint_t) mtimecmpAddr() uintptr {
	return c.base + uintptr(ClintMtimecmpOff)
}

func (c *Clint_t) readMtime() uint64 {
	lo := uint64(barrier.Read32(c.mtimeAddr()))
	hi := uint64(barrier.Read32(c.mtimeAddr() + 4))
	return hi<<32 | lo
}

func (c *Clint_t) writeMtimecmp(v uint64) {
	barrier.Write32(c.mtimecmpAddr(), 0xffffffff)
	barrier.Write32(c.mtimecmpAddr()+4, uint32(v>>32))
	barrier.Write32(c.mtimecmpAddr(), uint32(v))
}

/// NextTick arms the comparator for one tick, TickInterval mtime
/// counts from now, and counts the interrupt taken to get here.
func (c *Clint_t) NextTick() {
	atomic.AddUint64(&c.ticks, 1)
	c.writeMtimecmp(c.readMtime() + TickInterval)
}

/// Now returns the free-running mtime count.
func (c *Clint_t) Now() uint64 {
	return c.readMtime()
}

/// Ticks returns the number of timer interrupts taken so far.
func (c *Clint_t) Ticks() uint64 {
	return atomic.LoadUint64(&c.ticks)
}
