// Package kpanic is the kernel's print/panic surface: every subsystem
// that needs to log or halt goes through here instead of calling
// fmt.Printf directly, following this corpus's habit of a single
// console-print chokepoint rather than a third-party structured
// logger.
package kpanic

import (
	"fmt"
	"sync"

	"caller"
)

/// Level gates which Kprintf calls actually print.
type Level int

const (
	LQuiet Level = iota
	LWarn
	LInfo
	LDebug
)

var lock sync.Mutex
var level = LInfo

// dup tracks, per distinct call site, whether a warning has
// already been reported from there. A hot loop that logs the same
// warning on every iteration (e.g. a page-fault storm) would otherwise
// drown the console in identical stack dumps; after the first sighting
// of a call chain, later calls from the same site collapse to a
// one-line notice instead of the full dump.
var dup caller.Distinct_caller_t

func init() {
	dup.Enabled = true
}

/// SetLevel changes the global log level. Calls at or below level
/// print; calls above it are silently dropped.
func SetLevel(l Level) {
	lock.Lock()
	level = l
	lock.Unlock()
}

/// Kprintf prints format/args if lvl is at or under the current log
/// level, prefixed with lvl's tag. LWarn calls are additionally run
/// through dup: the first call from a given site prints its full
/// caller chain, later calls from the same site print only the
/// message.
func Kprintf(lvl Level, format string, args ...interface{}) {
	lock.Lock()
	cur := level
	lock.Unlock()
	if lvl > cur {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if lvl != LWarn {
		fmt.Printf("[%s] %s", tag(lvl), msg)
		return
	}
	if first, trace := dup.Distinct(); first {
		fmt.Printf("[%s] %s%s", tag(lvl), msg, trace)
	} else {
		fmt.Printf("[%s] %s (repeat from known site, suppressing trace)\n", tag(lvl), msg)
	}
}

func tag(lvl Level) string {
	switch lvl {
	case LWarn:
		return "warn"
	case LInfo:
		return "info"
	case LDebug:
		return "debug"
	default:
		return "quiet"
	}
}

/// Kpanic prints a formatted cause, dumps the call stack, and halts
/// the kernel. It never returns.
func Kpanic(format string, args ...interface{}) {
	fmt.Printf("kernel panic: "+format+"\n", args...)
	caller.Callerdump(2)
	panic(fmt.Sprintf(format, args...))
}
