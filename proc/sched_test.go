package proc

import (
	"testing"

	"defs"
	"mem"
	"trap"
	"vm"
)

func resetSched(t *testing.T) {
	t.Helper()
	schedLock.Lock()
	readyQ = nil
	running = nil
	schedLock.Unlock()
	syscallTable = nil
}

func TestEnqueueDequeueFIFO(t *testing.T) {
	resetSched(t)
	a := &Pcb_t{Pid: 1}
	b := &Pcb_t{Pid: 2}
	enqueue(a)
	enqueue(b)
	if got := dequeue(); got != a {
		t.Fatalf("dequeue = %v, want a", got)
	}
	if got := dequeue(); got != b {
		t.Fatalf("dequeue = %v, want b", got)
	}
	if got := dequeue(); got != nil {
		t.Fatalf("dequeue on empty queue = %v, want nil", got)
	}
}

func TestSyscallHookInterceptsSigReturn(t *testing.T) {
	arena(t, 64)
	resetSched(t)
	resetTable(t)

	p := newPcb("sigret")
	root, rootPa := vm.CreateUserRoot()
	p.As.Root = root
	p.As.P_root = rootPa
	vmas, err := vm.MapUserMemory(root, 0x50000, 0, mem.PGSIZE, true)
	if err != 0 {
		t.Fatalf("MapUserMemory failed: %d", err)
	}
	for _, v := range vmas {
		p.As.AddVma(v)
	}

	schedLock.Lock()
	running = p
	schedLock.Unlock()

	// Simulate the frame a handler returns into: pushSignalFrame already
	// saved the original registers on the user stack below sp.
	p.Frame.Sepc = 0x10000
	p.Frame.Sstatus = trap.SSTATUS_SPIE
	p.Frame.SetA0(99)
	p.Frame.SetSp(uint64(0x50000 + mem.PGSIZE))
	pushSignalFrame(p, defs.SIGUSR1, 0x10100)

	var calledTable bool
	SetSyscallTable(func(f *trap.Frame_t) { calledTable = true })

	p.Frame.SetA7(SigReturnNr)
	hooksImpl{}.Syscall(&p.Frame)

	if calledTable {
		t.Fatal("SigReturnNr must not reach the installed syscall table")
	}
	if p.Frame.Sepc != 0x10000 {
		t.Fatalf("sepc after sigreturn = %#x, want restored 0x10000", p.Frame.Sepc)
	}
	if p.Frame.A0() != 99 {
		t.Fatalf("a0 after sigreturn = %d, want restored 99", p.Frame.A0())
	}
}

func TestSyscallHookForwardsOrdinarySyscalls(t *testing.T) {
	resetSched(t)
	var gotNr uint64
	SetSyscallTable(func(f *trap.Frame_t) { gotNr = f.A7() })

	f := &trap.Frame_t{}
	f.SetA7(1) // Sys_write, arbitrary non-sigreturn number
	hooksImpl{}.Syscall(f)

	if gotNr != 1 {
		t.Fatalf("syscall table saw a7=%d, want 1", gotNr)
	}
}

func TestTimerTickAccumulatesBelowQuantum(t *testing.T) {
	resetSched(t)
	p := &Pcb_t{Pid: 1, State: RUNNING}
	schedLock.Lock()
	running = p
	schedLock.Unlock()

	for i := 0; i < Quantum-1; i++ {
		hooksImpl{}.TimerTick()
	}
	if p.Accnt.Ticks() != uint64(Quantum-1) {
		t.Fatalf("ticks = %d, want %d", p.Accnt.Ticks(), Quantum-1)
	}
}

func TestTimerTickNoopWhenIdle(t *testing.T) {
	resetSched(t)
	hooksImpl{}.TimerTick() // must not panic with no running process
}
