package proc

import (
	"defs"
	"errno"
	"trap"
)

// SigtrampVA is a fixed one-page mapping, installed in every user
// process alongside its code, holding two hand-assembled instructions:
//
//	addi a7, zero, SigReturnNr
//	ecall
//
// A signal handler returns into this page (its ra is pointed here by
// pushSignalFrame) instead of back into whatever called it, which is
// how the kernel learns the handler is done and the original frame
// should be resumed, per spec.md §4.5's "predefined trampoline that
// issues a restore syscall".
const SigtrampVA uintptr = 0x9000

// SigReturnNr is a syscall number reserved for the sigreturn
// trampoline; it is intercepted by hooksImpl.Syscall before reaching
// the installed syscall table, so it never collides with the numbers
// spec.md §6 assigns.
const SigReturnNr = 30

var sigtrampCode = []uint8{
	0x93, 0x08, 0xE0, 0x01, // addi a7, zero, 30
	0x73, 0x00, 0x00, 0x00, // ecall
}

// fatalDefault reports whether sig's default disposition (no handler
// installed) terminates the process, per spec.md §4.5.
func fatalDefault(sig int) bool {
	switch sig {
	case defs.SIGSEGV, defs.SIGILL, defs.SIGKILL, defs.SIGTERM:
		return true
	default:
		return false
	}
}

/// Kill sets sig's pending bit on pid's PCB. Delivery happens lazily,
/// the next time that process returns to user mode.
func Kill(pid defs.Pid_t, sig int) errno.Err_t {
	if sig < 0 || sig >= defs.NSIG {
		return errno.EINVAL
	}
	p := Lookup(pid)
	if p == nil {
		return errno.ESRCH
	}
	p.Lock()
	p.Pending |= 1 << uint(sig)
	p.Unlock()
	return 0
}

/// SetHandler installs handler as sig's user handler address; 0
/// restores the default disposition.
func SetHandler(p *Pcb_t, sig int, handler uintptr) errno.Err_t {
	if sig < 0 || sig >= defs.NSIG {
		return errno.EINVAL
	}
	p.Lock()
	p.Handlers[sig] = handler
	p.Unlock()
	return 0
}

// deliverDefault runs a fatal signal's default action immediately, for
// synchronous faults (trap.Hooks_i.Fault) that have nowhere else to go
// if the process installed no handler of its own.
func deliverDefault(p *Pcb_t, sig int) {
	p.Lock()
	handler := p.Handlers[sig]
	p.Unlock()
	if handler == 0 {
		Exit(p, 128+sig)
		return
	}
	pushSignalFrame(p, sig, handler)
}

// deliverPending runs on every trap-return (trap.Hooks_i.DeliverSignals)
// and delivers at most one pending signal per call, lowest-numbered
// first. It keeps no in-handler state, so a later trap-return (such as
// a syscall made from inside a handler) can deliver the next pending
// signal before the previous handler sigreturns.
func deliverPending(p *Pcb_t) {
	p.Lock()
	sig := -1
	for s := 0; s < defs.NSIG; s++ {
		if p.Pending&(1<<uint(s)) != 0 {
			sig = s
			break
		}
	}
	if sig < 0 {
		p.Unlock()
		return
	}
	p.Pending &^= 1 << uint(sig)
	handler := p.Handlers[sig]
	p.Unlock()

	if handler == 0 {
		if fatalDefault(sig) {
			Exit(p, 128+sig)
		}
		return
	}
	pushSignalFrame(p, sig, handler)
}

// pushSignalFrame saves a0..a7, sepc and sstatus onto the user stack,
// sets the frame to enter handler with a0=sig and ra pointed at
// SigtrampVA, per spec.md §4.5.
func pushSignalFrame(p *Pcb_t, sig int, handler uintptr) {
	f := &p.Frame
	saved := [10]uint64{
		f.A0(), f.A1(), f.A2(), f.A3(), f.A4(), f.A5(), f.A6(), f.A7(),
		f.Sepc, f.Sstatus,
	}
	newSp := (uintptr(f.Sp()) - 80) &^ 0xf
	for i, v := range saved {
		if err := p.As.Userwriten(newSp+uintptr(i*8), 8, int(v)); err != 0 {
			// Stack unmapped or out of range: fall back to the
			// default fatal action rather than faulting forever.
			Exit(p, 128+sig)
			return
		}
	}
	f.SetSp(uint64(newSp))
	f.SetRa(uint64(SigtrampVA))
	f.SetA0(uint64(sig))
	f.Sepc = uint64(handler)
}

// sigreturn restores the frame pushSignalFrame saved, reading it back
// from the current sp (unchanged since the handler returned straight
// into the trampoline without touching it).
func sigreturn(p *Pcb_t, f *trap.Frame_t) {
	sp := uintptr(f.Sp())
	var saved [10]uint64
	for i := range saved {
		v, err := p.As.Userreadn(sp+uintptr(i*8), 8)
		if err != 0 {
			Exit(p, 128+defs.SIGSEGV)
			return
		}
		saved[i] = uint64(v)
	}
	f.SetA0(saved[0])
	f.SetA1(saved[1])
	f.SetA2(saved[2])
	f.SetA3(saved[3])
	f.SetA4(saved[4])
	f.SetA5(saved[5])
	f.SetA6(saved[6])
	f.SetA7(saved[7])
	f.Sepc = saved[8]
	f.Sstatus = saved[9]
}
