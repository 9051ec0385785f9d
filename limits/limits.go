// Package limits holds the fixed, compile-time resource bounds. Only
// the process-count bound is checked, by proc before it grows the
// process table; the fd and block bounds are not read by vfs or ext2.
package limits

import "sync/atomic"
import "unsafe"

/// Lhits counts limit hits, for diagnostics.
var Lhits int

/// Sysatomic_t is a numeric limit that can be atomically given and
/// taken without a separate lock.
type Sysatomic_t int64

/// Syslimit_t tracks ThunderOS's system-wide resource limits. The
/// single-CPU kernel has no futex table, ARP table, route table, or
/// socket layer, so three limits remain: how many processes may exist,
/// how many file descriptors may be handed out, and how many disk
/// blocks may be allocated. Only Sysprocs is consulted, by proc; the
/// VFS fd table has its own fixed size and ext2 does not read Blocks.
type Syslimit_t struct {
	// protected by proc's process-table lock
	Sysprocs int
	// file descriptors; not read by vfs
	Fds Sysatomic_t
	// bdev blocks ext2 may have outstanding at once
	Blocks Sysatomic_t
}

/// Syslimit describes the configured system-wide limits.
var Syslimit *Syslimit_t = MkSysLimit()

/// MkSysLimit returns a pointer to the default set of limits.
func MkSysLimit() *Syslimit_t {
	return &Syslimit_t{
		Sysprocs: 1024,
		Fds:      4096,
		Blocks:   1 << 20, // 4GB of ext2 blocks at a 4K block size
	}
}

func (s *Sysatomic_t) _aptr() *int64 {
	return (*int64)(unsafe.Pointer(s))
}

/// Given increases the limit by the provided amount.
func (s *Sysatomic_t) Given(_n uint) {
	n := int64(_n)
	if n < 0 {
		panic("too mighty")
	}
	atomic.AddInt64(s._aptr(), n)
}

/// Taken tries to decrement the limit by the provided amount.
/// It returns true on success.
func (s *Sysatomic_t) Taken(_n uint) bool {
	n := int64(_n)
	if n < 0 {
		panic("too mighty")
	}
	g := atomic.AddInt64(s._aptr(), -n)
	if g >= 0 {
		return true
	}
	atomic.AddInt64(s._aptr(), n)
	Lhits++
	return false
}

/// Take decrements the limit and reports whether it succeeded.
func (s *Sysatomic_t) Take() bool {
	return s.Taken(1)
}

/// Give increments the limit by one.
func (s *Sysatomic_t) Give() {
	s.Given(1)
}
