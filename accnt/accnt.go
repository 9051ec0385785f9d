// Package accnt tracks per-process CPU-time accounting: one Accnt_t
// embedded in every proc.Pcb_t.
package accnt

import "sync/atomic"

/// Accnt_t accumulates the CPU-time consumed by one process, measured
/// in timer ticks. spec.md §8.8 requires exactly one increment per
/// tick for the currently running process and no decrements ever, so
/// the counter is a single monotonic value rather than the teacher's
/// split user/system nanosecond pair (ThunderOS charges a whole tick
/// to whichever process was RUNNING when it fired; there is no
/// separate notion of kernel-on-behalf-of-process time to subtract).
type Accnt_t struct {
	ticks uint64
}

/// Tick credits one timer tick to this process's running time.
func (a *Accnt_t) Tick() {
	atomic.AddUint64(&a.ticks, 1)
}

/// Ticks returns the total number of ticks charged so far.
func (a *Accnt_t) Ticks() uint64 {
	return atomic.LoadUint64(&a.ticks)
}

/// Add merges another record's ticks into this one.
func (a *Accnt_t) Add(n *Accnt_t) {
	atomic.AddUint64(&a.ticks, n.Ticks())
}
