// Package tinfo tracks the thread note of whichever process is
// currently running on ThunderOS's single core. The scheduler installs
// a new Tnote_t with SetCurrent immediately before switching to a
// process and clears it with ClearCurrent immediately after switching
// away, always with interrupts disabled (barrier.Irqdisable), so there
// is never more than one writer and Current never races a context
// switch.
package tinfo

import "sync"

import "defs"
import "errno"

/// Tnote_t stores the state a signal or a kill needs to interrupt a
/// running process without going through the scheduler's run queue.
type Tnote_t struct {
	Pid      defs.Pid_t
	Killed   bool
	Isdoomed bool
	sync.Mutex
	Killnaps struct {
		Killch chan bool
		Cond   *sync.Cond
		Kerr   errno.Err_t
	}
}

/// Doomed reports whether the thread is marked to die at its next
/// kernel/user boundary crossing.
func (t *Tnote_t) Doomed() bool {
	return t.Isdoomed
}

/// Threadinfo_t indexes every live thread note by pid, letting a
/// signal sent to a pid reach the note of whatever may be running.
type Threadinfo_t struct {
	Notes map[defs.Pid_t]*Tnote_t
	sync.Mutex
}

/// Init allocates the note map.
func (t *Threadinfo_t) Init() {
	t.Notes = make(map[defs.Pid_t]*Tnote_t)
}

var current *Tnote_t

/// Current returns the thread note of the process presently running on
/// this core. It panics if called outside of process context (for
/// example, before the scheduler has run anything).
func Current() *Tnote_t {
	if current == nil {
		panic("no current thread")
	}
	return current
}

/// SetCurrent installs p as the running thread note. The caller must
/// hold interrupts disabled and must have called ClearCurrent (or never
/// called SetCurrent) since the last switch.
func SetCurrent(p *Tnote_t) {
	if p == nil {
		panic("nil thread note")
	}
	if current != nil {
		panic("thread note already current")
	}
	current = p
}

/// ClearCurrent removes the running thread note just before the
/// scheduler switches to a different process.
func ClearCurrent() {
	if current == nil {
		panic("no current thread to clear")
	}
	current = nil
}
