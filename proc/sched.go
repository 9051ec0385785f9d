package proc

import (
	"sync"

	"barrier"
	"kpanic"
	"tinfo"
	"trap"
	"vm"
)

// Quantum is the number of timer ticks a RUNNING process gets before
// the scheduler preempts it for the next READY process, per spec.md
// §4.5's round-robin rule.
const Quantum = 5

var schedLock sync.Mutex
var readyQ []*Pcb_t
var running *Pcb_t
var schedCtx Context_t

/// enqueue appends p to the tail of the FIFO ready queue.
func enqueue(p *Pcb_t) {
	schedLock.Lock()
	readyQ = append(readyQ, p)
	schedLock.Unlock()
}

func dequeue() *Pcb_t {
	schedLock.Lock()
	defer schedLock.Unlock()
	if len(readyQ) == 0 {
		return nil
	}
	p := readyQ[0]
	readyQ = readyQ[1:]
	return p
}

/// Running returns the PCB presently scheduled on this core, or nil
/// if the scheduler is idle.
func Running() *Pcb_t {
	schedLock.Lock()
	defer schedLock.Unlock()
	return running
}

/// Run is the scheduler's main loop: never returns. Called once from
/// the boot path after every driver is initialized. When the ready
/// queue is empty it executes wfi in a loop, as spec.md §4.5
/// prescribes, until the next timer tick re-checks.
func Run() {
	for {
		p := dequeue()
		if p == nil {
			wfi()
			continue
		}

		was := barrier.Irqdisable()
		schedLock.Lock()
		p.State = RUNNING
		running = p
		schedLock.Unlock()

		tinfo.SetCurrent(&p.Tnote)
		trap.SetFrame(&p.Frame)
		vm.SwitchRoot(p.As.P_root)
		Swtch(&schedCtx, &p.Ctx)

		// control returns here once p yields or is preempted back to
		// the scheduler via Yield's Swtch(&p.Ctx, &schedCtx).
		tinfo.ClearCurrent()

		schedLock.Lock()
		running = nil
		schedLock.Unlock()
		barrier.Irqrestore(was)

		if p.State == READY {
			enqueue(p)
		}
	}
}

/// Yield gives up the remainder of p's quantum, returning it to the
/// tail of the ready queue and switching back into the scheduler loop.
func Yield(p *Pcb_t) {
	was := barrier.Irqdisable()
	p.Lock()
	if p.State == RUNNING {
		p.State = READY
	}
	p.Unlock()
	Swtch(&p.Ctx, &schedCtx)
	barrier.Irqrestore(was)
}

// hooksImpl wires trap.Hooks_i to the scheduler and syscall table.
type hooksImpl struct{}

var syscallTable func(f *trap.Frame_t)

/// SetSyscallTable registers the syscall dispatcher package syscall
/// builds; trap.Hooks_i.Syscall forwards to it. Kept indirect so proc
/// never imports syscall (which imports proc).
func SetSyscallTable(fn func(f *trap.Frame_t)) {
	syscallTable = fn
}

func (hooksImpl) Syscall(f *trap.Frame_t) {
	if f.A7() == SigReturnNr {
		p := Running()
		if p != nil {
			sigreturn(p, f)
		}
		return
	}
	if syscallTable == nil {
		kpanic.Kpanic("syscall before syscall table installed")
		return
	}
	syscallTable(f)
}

type sleeper_t struct {
	p    *Pcb_t
	wake uint64
}

var globalTicks uint64
var sleepList []sleeper_t

/// Sleep parks p off the ready queue until globalTicks reaches
/// globalTicks+nticks, per spec.md's "sleep wakes on tick count
/// reaching target." Returns once woken.
func Sleep(p *Pcb_t, nticks uint64) {
	was := barrier.Irqdisable()
	schedLock.Lock()
	p.State = SLEEPING
	sleepList = append(sleepList, sleeper_t{p: p, wake: globalTicks + nticks})
	schedLock.Unlock()
	Swtch(&p.Ctx, &schedCtx)
	barrier.Irqrestore(was)
}

/// GlobalTicks returns the number of timer ticks taken since boot,
/// the same counter Sleep's wake targets are measured against.
func GlobalTicks() uint64 {
	schedLock.Lock()
	defer schedLock.Unlock()
	return globalTicks
}

func wakeSleepers() {
	schedLock.Lock()
	var still []sleeper_t
	var woken []*Pcb_t
	for _, s := range sleepList {
		if globalTicks >= s.wake {
			woken = append(woken, s.p)
		} else {
			still = append(still, s)
		}
	}
	sleepList = still
	schedLock.Unlock()
	for _, p := range woken {
		p.Lock()
		p.State = READY
		p.Unlock()
		enqueue(p)
	}
}

var timerRearm func()

/// SetTimerRearm registers the callback that re-arms the hardware
/// timer comparator (hal.Clint_t.NextTick) for one more tick. Kept
/// indirect for the same reason SetSyscallTable is: proc has no
/// business importing hal just to re-arm a comparator after every
/// interrupt it takes.
func SetTimerRearm(fn func()) {
	timerRearm = fn
}

func (hooksImpl) TimerTick() {
	schedLock.Lock()
	globalTicks++
	schedLock.Unlock()
	wakeSleepers()

	if timerRearm != nil {
		timerRearm()
	}

	p := Running()
	if p == nil {
		return
	}
	p.Accnt.Tick()
	if p.Accnt.Ticks()%Quantum == 0 {
		Yield(p)
	}
}

func (hooksImpl) Fault(f *trap.Frame_t, sig int) {
	p := Running()
	if p == nil {
		kpanic.Kpanic("fault with no running process, sig %d", sig)
		return
	}
	deliverDefault(p, sig)
}

func (hooksImpl) DeliverSignals(f *trap.Frame_t) {
	p := Running()
	if p == nil {
		return
	}
	deliverPending(p)
}

func init() {
	trap.SetHooks(hooksImpl{})
}

/// Boot installs the trap vector. Called once, very early, before Run;
/// it does not arm the timer, which the kernel's main does separately.
func Boot() {
	trap.InstallVector()
}

func wfi() {
	wfiAsm()
}

// wfiAsm executes the wfi instruction; a no-op loop iteration until
// the next interrupt. Declared here so sched.go stays the single file
// that knows about idling.
func wfiAsm()

/// Swtch saves the callee-saved registers of the currently executing
/// context into old, loads new's, and returns into whatever new.Ra
/// points at. Implemented in context_riscv64.s.
func Swtch(old, next *Context_t)

// kthreadTrampolinePC and userTrampolinePC return the addresses of the
// two asm-only trampolines a freshly created PCB's Ctx.Ra is pointed
// at (context_riscv64.s). Swtch passes no arguments, so each
// trampoline calls a fixed Go landing function that recovers its own
// process via Running().
func kthreadTrampolinePC() uintptr
func userTrampolinePC() uintptr

/// runKernelThread is the landing pad a freshly created kernel
/// thread's first context switch returns into (Ctx.Ra points at the
/// asm trampoline that calls this). It reads the scheduler's notion of
/// "currently running" to find its own entry/arg, since Swtch passes
/// no arguments.
func runKernelThread() {
	p := Running()
	if p == nil {
		kpanic.Kpanic("runKernelThread with no running process")
		return
	}
	p.kentry(p.karg)
	Exit(p, 0)
	Yield(p) // unreachable: Exit leaves p ZOMBIE, never re-enqueued
}

/// runUserFirstEntry is the landing pad a freshly created or forked user
/// process's first context switch returns into. It points sscratch at
/// the process's trap frame and sret's straight into user mode.
func runUserFirstEntry() {
	p := Running()
	if p == nil {
		kpanic.Kpanic("runUserFirstEntry with no running process")
		return
	}
	trap.SetFrame(&p.Frame)
	trap.ReturnToFrame()
}
