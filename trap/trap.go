// Package trap implements spec.md §4.4: the supervisor trap vector,
// the saved register frame it builds, and the scause-driven
// dispatcher that routes interrupts to the timer and exceptions to
// the syscall table or signal delivery. The vector itself and the
// frame save/restore sequence live in trap_riscv64.s; this file is
// everything that can be expressed in Go.
package trap

import (
	"kpanic"
)

// sstatus bits trap and proc both need to agree on.
const (
	SSTATUS_SPP  uint64 = 1 << 8 /// previous privilege: 0=user, 1=supervisor
	SSTATUS_SPIE uint64 = 1 << 5 /// previous interrupt-enable, restored into SIE on sret
	SSTATUS_SIE  uint64 = 1 << 1 /// current interrupt-enable
)

// scause encodings (RISC-V privileged spec, supervisor trap causes).
const (
	causeInterruptBit uint64 = 1 << 63

	causeSupervisorSoftware uint64 = 1
	causeSupervisorTimer    uint64 = 5
	causeSupervisorExternal uint64 = 9

	causeInstrAddrMisaligned uint64 = 0
	causeIllegalInstruction  uint64 = 2
	causeEcallFromU          uint64 = 8
	causeInstrPageFault      uint64 = 12
	causeLoadPageFault       uint64 = 13
	causeStorePageFault      uint64 = 15
)

/// Frame_t is the trap frame saved by the assembly vector: all 31
/// general-purpose registers other than x0 (zero), plus the
/// supervisor CSRs that describe the trapped context. Regs is indexed
/// by register number minus one, so Regs[9] is a0 (x10) and
/// Regs[16] is a7 (x17).
type Frame_t struct {
	Regs    [31]uint64
	Sepc    uint64
	Sstatus uint64
	Scause  uint64
	Stval   uint64
}

const (
	regRA = 1 - 1
	regSP = 2 - 1
	regA0 = 10 - 1
	regA1 = 11 - 1
	regA2 = 12 - 1
	regA3 = 13 - 1
	regA4 = 14 - 1
	regA5 = 15 - 1
	regA6 = 16 - 1
	regA7 = 17 - 1
)

func (f *Frame_t) A0() uint64       { return f.Regs[regA0] }
func (f *Frame_t) A1() uint64       { return f.Regs[regA1] }
func (f *Frame_t) A2() uint64       { return f.Regs[regA2] }
func (f *Frame_t) A3() uint64       { return f.Regs[regA3] }
func (f *Frame_t) A4() uint64       { return f.Regs[regA4] }
func (f *Frame_t) A5() uint64       { return f.Regs[regA5] }
func (f *Frame_t) A6() uint64       { return f.Regs[regA6] }
func (f *Frame_t) A7() uint64       { return f.Regs[regA7] }
func (f *Frame_t) Sp() uint64       { return f.Regs[regSP] }
func (f *Frame_t) Ra() uint64       { return f.Regs[regRA] }
func (f *Frame_t) SetA0(v uint64)   { f.Regs[regA0] = v }
func (f *Frame_t) SetA1(v uint64)   { f.Regs[regA1] = v }
func (f *Frame_t) SetA2(v uint64)   { f.Regs[regA2] = v }
func (f *Frame_t) SetA3(v uint64)   { f.Regs[regA3] = v }
func (f *Frame_t) SetA4(v uint64)   { f.Regs[regA4] = v }
func (f *Frame_t) SetA5(v uint64)   { f.Regs[regA5] = v }
func (f *Frame_t) SetA6(v uint64)   { f.Regs[regA6] = v }
func (f *Frame_t) SetA7(v uint64)   { f.Regs[regA7] = v }
func (f *Frame_t) SetSp(v uint64)   { f.Regs[regSP] = v }
func (f *Frame_t) SetRa(v uint64)   { f.Regs[regRA] = v }

/// FromUser reports whether the trapped context was running in user
/// mode, read from the previous-privilege bit saved in Sstatus.
func (f *Frame_t) FromUser() bool {
	return f.Sstatus&SSTATUS_SPP == 0
}

/// Hooks_i is implemented by package proc and registered once at
/// boot via SetHooks. Dispatch calls exactly one of Syscall/Fault/
/// TimerTick per trap, then always calls DeliverSignals before
/// returning to user mode.
type Hooks_i interface {
	/// Syscall handles an ECALL from U-mode: f.A7() is the syscall
	/// number, f.A0()..f.A5() the arguments. The implementation
	/// writes its return value back via f.SetA0.
	Syscall(f *Frame_t)
	/// Fault delivers signal sig (SIGSEGV, SIGILL, ...) to the
	/// process that owns f.
	Fault(f *Frame_t, sig int)
	/// TimerTick advances the tick count and may trigger a
	/// preemptive reschedule.
	TimerTick()
	/// DeliverSignals runs on every trap-return path and may rewrite
	/// f's sepc/sp/argument registers to push a signal trampoline.
	DeliverSignals(f *Frame_t)
}

var hooks Hooks_i

/// SetHooks installs the process/scheduler layer's trap handlers.
/// Called once during boot before interrupts are enabled.
func SetHooks(h Hooks_i) {
	hooks = h
}

/// Dispatch is called by the assembly vector with a pointer to the
/// just-saved frame. It branches on Scause exactly as spec.md §4.4
/// describes, then always runs the signal-delivery step before
/// returning to the vector for sret.
func Dispatch(f *Frame_t) {
	if f.Scause&causeInterruptBit != 0 {
		dispatchInterrupt(f, f.Scause&^causeInterruptBit)
	} else {
		dispatchException(f, f.Scause)
	}
	if hooks != nil {
		hooks.DeliverSignals(f)
	}
}

func dispatchInterrupt(f *Frame_t, code uint64) {
	switch code {
	case causeSupervisorTimer:
		if hooks != nil {
			hooks.TimerTick()
		}
	case causeSupervisorSoftware, causeSupervisorExternal:
		kpanic.Kprintf(kpanic.LInfo, "unhandled interrupt, scause code %d\n", code)
	default:
		kpanic.Kpanic("unknown interrupt cause %d", code)
	}
}

func dispatchException(f *Frame_t, cause uint64) {
	switch cause {
	case causeEcallFromU:
		f.Sepc += 4 // skip past the ecall instruction
		if hooks != nil {
			hooks.Syscall(f)
		}
	case causeInstrPageFault, causeLoadPageFault, causeStorePageFault:
		if !f.FromUser() {
			kpanic.Kpanic("page fault in supervisor mode, stval %#x, sepc %#x", f.Stval, f.Sepc)
		}
		hooks.Fault(f, sigsegv)
	case causeIllegalInstruction:
		if !f.FromUser() {
			kpanic.Kpanic("illegal instruction in supervisor mode, sepc %#x", f.Sepc)
		}
		hooks.Fault(f, sigill)
	default:
		kpanic.Kpanic("unhandled trap, scause %#x sepc %#x stval %#x", cause, f.Sepc, f.Stval)
	}
}

// Kept as plain ints rather than importing defs, so trap has no
// dependency on the process-signal package; proc's Hooks_i
// implementation is the one place these numbers need to agree with
// defs.SIGSEGV/defs.SIGILL, checked by trap_test.go.
const (
	sigsegv = 11
	sigill  = 4
)

/// InstallVector points stvec at the assembly trap entry. Called once
/// during boot, before the timer or any user process exists.
func InstallVector()

/// SetFrame points sscratch at f, the frame the vector will save into
/// and restore from the next time this hart traps. The scheduler
/// calls this on every context switch so each PCB's own frame is
/// always the one the hardware lands in.
func SetFrame(f *Frame_t)

/// ReturnToFrame loads sepc/sstatus/registers from whatever Frame_t
/// SetFrame last pointed sscratch at and executes sret, without
/// having taken a trap first. Used to enter a freshly created
/// process for the first time.
func ReturnToFrame()
