// Package proc implements spec.md §4.5 and §3's PCB in full: process
// lifecycle, the FIFO round-robin scheduler (sched.go), fork/exit/
// wait, and signal delivery (signal.go). Grounded on the teacher's
// accnt.Accnt_t (per-PCB tick accounting) and tinfo.Tnote_t/Current
// (single "running now" tracking), generalized from Biscuit's
// refcounted multi-CPU process table to a single lock-guarded map,
// since ThunderOS runs one core (spec.md §5).
package proc

import (
	"sync"
	"unsafe"

	"accnt"
	"defs"
	"errno"
	"fd"
	"kpanic"
	"limits"
	"mem"
	"tinfo"
	"trap"
	"util"
	"vm"
)

/// Pstate_t is a PCB's position in spec.md §4.5's state machine.
type Pstate_t int

const (
	UNUSED Pstate_t = iota
	EMBRYO
	READY
	RUNNING
	SLEEPING
	ZOMBIE
)

func (s Pstate_t) String() string {
	switch s {
	case UNUSED:
		return "UNUSED"
	case EMBRYO:
		return "EMBRYO"
	case READY:
		return "READY"
	case RUNNING:
		return "RUNNING"
	case SLEEPING:
		return "SLEEPING"
	case ZOMBIE:
		return "ZOMBIE"
	default:
		return "???"
	}
}

// Entry points, per spec.md §4.5.
const (
	UserCodeBase uintptr = 0x10000
	UserStackTop uintptr = 0x80000000
	userStackLen         = 1 << 20 // 1 MiB
)

const kstackSize = 16 * 1024

/// Context_t is the callee-saved register set a kernel-mode context
/// switch preserves: ra, sp, and s0..s11. Swtch (context_riscv64.s)
/// assumes both the outgoing and incoming PCB's Context_t are
/// internally consistent, exactly as spec.md §4.5 describes.
type Context_t struct {
	Ra uint64
	Sp uint64
	S  [12]uint64
}

/// Pcb_t is one process control block.
type Pcb_t struct {
	sync.Mutex

	Pid   defs.Pid_t
	Ppid  defs.Pid_t
	State Pstate_t
	Name  string

	Frame trap.Frame_t
	Ctx   Context_t
	As    vm.Vm_t

	kstack []byte

	Cwd   *fd.Cwd_t
	Accnt accnt.Accnt_t
	Tnote tinfo.Tnote_t

	Pending  uint32
	Handlers [defs.NSIG]uintptr

	ExitCode int

	// Brk is the current top of the heap region sbrk grows, initially
	// set to the first page boundary past the loaded code image.
	Brk uintptr

	// entry/arg for a kernel-mode process; unused for a user process,
	// whose first switch jumps straight into runUserFirstEntry.
	kentry func(interface{})
	karg   interface{}
}

var tableLock sync.Mutex
var waitCond = sync.NewCond(&tableLock)
var table = map[defs.Pid_t]*Pcb_t{}
var nextPid defs.Pid_t = 1
var liveProcs int

func allocPid() defs.Pid_t {
	tableLock.Lock()
	defer tableLock.Unlock()
	p := nextPid
	nextPid++
	return p
}

/// Lookup returns the PCB for pid, or nil if no such process exists.
func Lookup(pid defs.Pid_t) *Pcb_t {
	tableLock.Lock()
	defer tableLock.Unlock()
	return table[pid]
}

// takeSlot reports whether the process table has room for one more
// live PCB under limits.Syslimit.Sysprocs, reserving it if so.
func takeSlot() bool {
	tableLock.Lock()
	defer tableLock.Unlock()
	if liveProcs >= limits.Syslimit.Sysprocs {
		return false
	}
	liveProcs++
	return true
}

func giveSlot() {
	tableLock.Lock()
	liveProcs--
	tableLock.Unlock()
}

func register(p *Pcb_t) {
	tableLock.Lock()
	table[p.Pid] = p
	tableLock.Unlock()
}

func newPcb(name string) *Pcb_t {
	p := &Pcb_t{
		Pid:   allocPid(),
		Name:  name,
		State: EMBRYO,
	}
	p.Tnote.Pid = p.Pid
	return p
}

func newKstack(p *Pcb_t, trampoline uintptr) {
	p.kstack = make([]byte, kstackSize)
	base := uintptr(unsafe.Pointer(&p.kstack[0]))
	p.Ctx.Sp = uint64(base + kstackSize)
	p.Ctx.Ra = uint64(trampoline)
}

/// ProcessCreate creates an EMBRYO kernel-thread PCB whose first
/// context switch into it returns into entry(arg), per spec.md §4.5.
/// It allocates a kernel stack, arranges Ctx.Ra to point at the
/// kernel-thread trampoline, and transitions EMBRYO -> READY before
/// enqueuing it.
func ProcessCreate(name string, entry func(interface{}), arg interface{}) (*Pcb_t, errno.Err_t) {
	if !takeSlot() {
		return nil, errno.EAGAIN
	}
	p := newPcb(name)
	p.kentry = entry
	p.karg = arg

	kroot, kpa := vm.KernelRoot()
	p.As.Root = kroot
	p.As.P_root = kpa

	newKstack(p, kthreadTrampolinePC())

	register(p)
	p.State = READY
	enqueue(p)
	return p, 0
}

/// ProcessCreateUser creates a user process with code mapped R|X|U at
/// UserCodeBase and entry fixed at UserCodeBase; kept for callers (and
/// tests) that hand it a flat, position-independent code blob rather
/// than a full ELF image. See ProcessCreateUserAt for the general
/// form the ELF loader uses.
func ProcessCreateUser(name string, code []uint8) (*Pcb_t, errno.Err_t) {
	return ProcessCreateUserAt(name, code, UserCodeBase)
}

/// ProcessCreateUserAt creates a user process: a fresh user root with
/// code mapped R|X|U at UserCodeBase, a 1MiB stack R|W|U ending at
/// UserStackTop, and a trap frame arranged so the first trap-return
/// jumps into user code at entry (which must fall within
/// [UserCodeBase, UserCodeBase+len(code))), sp=UserStackTop,
/// sstatus.SPP=0 (user), sstatus.SPIE=1. The ELF loader computes entry
/// as UserCodeBase + (e_entry - min_vaddr) per spec.md §4.9.
func ProcessCreateUserAt(name string, code []uint8, entry uintptr) (*Pcb_t, errno.Err_t) {
	if !takeSlot() {
		return nil, errno.EAGAIN
	}
	p := newPcb(name)

	root, rootPa := vm.CreateUserRoot()
	p.As.Root = root
	p.As.P_root = rootPa

	codeVmas, err := vm.MapUserCode(root, UserCodeBase, code, len(code))
	if err != 0 {
		vm.FreeRootTree(root, rootPa)
		giveSlot()
		return nil, err
	}
	for _, v := range codeVmas {
		p.As.AddVma(v)
	}

	stackBase := UserStackTop - userStackLen
	stackVmas, err := vm.MapUserMemory(root, stackBase, 0, userStackLen, true)
	if err != 0 {
		vm.FreeRootTree(root, rootPa)
		giveSlot()
		return nil, err
	}
	for _, v := range stackVmas {
		p.As.AddVma(v)
	}

	trampVmas, err := vm.MapUserCode(root, SigtrampVA, sigtrampCode, len(sigtrampCode))
	if err != 0 {
		vm.FreeRootTree(root, rootPa)
		giveSlot()
		return nil, err
	}
	for _, v := range trampVmas {
		p.As.AddVma(v)
	}

	p.Frame.Sepc = uint64(entry)
	p.Frame.SetSp(uint64(UserStackTop))
	p.Frame.Sstatus = trap.SSTATUS_SPIE // SPP=0 (user), SPIE=1
	p.Cwd = fd.MkRootCwd(0)
	p.Brk = uintptr(util.Roundup(int(UserCodeBase)+len(code), vm.PGSIZE))

	newKstack(p, userTrampolinePC())

	register(p)
	p.State = READY
	enqueue(p)
	return p, 0
}

const regS0 = 8 - 1

// argvMaxCount and argvMaxLen bound exec's argument vector: at most 16
// args, each shorter than 128 bytes. ExecReplace checks them before it
// frees the caller's memory, since the new image is built after that.
const (
	argvMaxCount = 16
	argvMaxLen   = 128
)

/// ExecReplace implements spec.md §4.9's exec-replace: tears down p's
/// entire address space (stack included — ThunderOS always rebuilds a
/// fresh stack rather than distinguishing "stack VMA" from the rest,
/// since Vm_t.Vmas carries no such tag), installs code as the new
/// program image at UserCodeBase, builds argv top-down on the new
/// user stack, and rewrites the trap frame so the next trap-return
/// enters the new program at entry with a0=argc, a1=argv_base. Caller
/// must have already copied path and argv out of the old user memory
/// before calling this, per spec.md's caveat that both live in memory
/// this call unmaps.
func ExecReplace(p *Pcb_t, code []uint8, entryOff uint64, argv []string) errno.Err_t {
	if len(argv) > argvMaxCount {
		return errno.E2BIG
	}
	for _, a := range argv {
		if len(a) >= argvMaxLen {
			return errno.E2BIG
		}
	}

	p.As.Uvmfree()

	root, rootPa := vm.CreateUserRoot()
	p.As.Root = root
	p.As.P_root = rootPa

	codeVmas, err := vm.MapUserCode(root, UserCodeBase, code, len(code))
	if err != 0 {
		vm.FreeRootTree(root, rootPa)
		return err
	}
	for _, v := range codeVmas {
		p.As.AddVma(v)
	}

	stackBase := UserStackTop - userStackLen
	stackVmas, err := vm.MapUserMemory(root, stackBase, 0, userStackLen, true)
	if err != 0 {
		vm.FreeRootTree(root, rootPa)
		return err
	}
	for _, v := range stackVmas {
		p.As.AddVma(v)
	}

	trampVmas, err := vm.MapUserCode(root, SigtrampVA, sigtrampCode, len(sigtrampCode))
	if err != 0 {
		vm.FreeRootTree(root, rootPa)
		return err
	}
	for _, v := range trampVmas {
		p.As.AddVma(v)
	}

	sp := UserStackTop
	strAddrs := make([]uint64, len(argv))
	for i := len(argv) - 1; i >= 0; i-- {
		s := argv[i]
		sp -= uintptr(len(s) + 1)
		buf := make([]uint8, len(s)+1)
		copy(buf, s)
		if err := p.As.K2user(buf, sp); err != 0 {
			return err
		}
		strAddrs[i] = uint64(sp)
	}
	sp &^= 7 // 8-byte align before the pointer array

	ptrTableBytes := (len(argv) + 1) * 8
	sp -= uintptr(ptrTableBytes)
	sp &^= 15 // 16-byte align the final stack pointer, per spec.md

	ptrs := make([]uint8, ptrTableBytes)
	for i, a := range strAddrs {
		wu64(ptrs, i*8, a)
	}
	wu64(ptrs, len(argv)*8, 0)
	if err := p.As.K2user(ptrs, sp); err != 0 {
		return err
	}
	argvBase := uint64(sp)

	p.Frame.Regs = [31]uint64{}
	p.Frame.Sepc = uint64(UserCodeBase) + entryOff
	p.Frame.SetSp(uint64(sp))
	p.Frame.Regs[regS0] = uint64(sp)
	p.Frame.SetA0(uint64(len(argv)))
	p.Frame.SetA1(argvBase)
	p.Frame.Sstatus = trap.SSTATUS_SPIE
	p.Brk = uintptr(util.Roundup(int(UserCodeBase)+len(code), vm.PGSIZE))

	return 0
}

func wu64(b []uint8, off int, v uint64) {
	for i := 0; i < 8; i++ {
		b[off+i] = uint8(v >> (8 * i))
	}
}

/// Sbrk grows or shrinks p's heap by incr bytes and returns the heap's
/// previous top, per spec.md's sbrk syscall. Only growth maps new
/// pages (shrinking just moves Brk back without unmapping, mirroring
/// how Biscuit's Uvmfree is the only place that ever frees user
/// pages); a grow past the stack's low end fails with ENOMEM.
func Sbrk(p *Pcb_t, incr int) (uintptr, errno.Err_t) {
	old := p.Brk
	if incr == 0 {
		return old, 0
	}
	newBrk := uintptr(int(old) + incr)
	if incr < 0 {
		if newBrk > old {
			return 0, errno.EINVAL
		}
		p.Brk = newBrk
		return old, 0
	}

	stackBase := UserStackTop - userStackLen
	if newBrk > stackBase {
		return 0, errno.ENOMEM
	}

	oldTop := uintptr(util.Roundup(int(old), vm.PGSIZE))
	newTop := uintptr(util.Roundup(int(newBrk), vm.PGSIZE))
	if newTop > oldTop {
		vmas, err := vm.MapUserMemory(p.As.Root, oldTop, 0, int(newTop-oldTop), true)
		if err != 0 {
			return 0, err
		}
		for _, v := range vmas {
			p.As.AddVma(v)
		}
	}
	p.Brk = newBrk
	return old, 0
}

/// Fork duplicates parent: new pid, new user root, every VMA's pages
/// copied byte for byte and remapped at the same user VA with the
/// same permissions, trap frame duplicated with the child's a0 set to
/// 0. The child is enqueued READY; the caller gets the child's pid to
/// place in its own a0.
func Fork(parent *Pcb_t) (defs.Pid_t, errno.Err_t) {
	if !takeSlot() {
		return 0, errno.EAGAIN
	}
	parent.Lock()
	defer parent.Unlock()

	child := newPcb(parent.Name)
	child.Ppid = parent.Pid

	root, rootPa := vm.CreateUserRoot()
	child.As.Root = root
	child.As.P_root = rootPa

	for _, v := range parent.As.Vmas {
		for i := 0; i < v.Pages; i++ {
			va := v.Start + uintptr(i*vm.PGSIZE)
			pa, ok := vm.Translate(parent.As.Root, va)
			if !ok {
				continue
			}
			writable := v.Perms&mem.PTE_W != 0
			newVmas, err := vm.MapUserMemory(root, va, 0, vm.PGSIZE, writable)
			if err != 0 {
				vm.FreeRootTree(root, rootPa)
				giveSlot()
				return 0, err
			}
			dstPa, _ := vm.Translate(root, va)
			copy(mem.Dmap8(dstPa), mem.Dmap8(pa)[:vm.PGSIZE])
			for _, nv := range newVmas {
				child.As.AddVma(nv)
			}
		}
	}

	child.Frame = parent.Frame
	child.Frame.SetA0(0)
	child.Cwd = fd.MkRootCwd(parent.Cwd.Fdnum)
	child.Brk = parent.Brk

	newKstack(child, userTrampolinePC())

	register(child)
	child.State = READY
	enqueue(child)
	return child.Pid, 0
}

/// Exit tears down p's address space, marks it ZOMBIE retaining pid
/// and code, and wakes anyone blocked in Wait.
func Exit(p *Pcb_t, code int) {
	p.Lock()
	p.As.Uvmfree()
	p.ExitCode = code
	p.State = ZOMBIE
	p.Unlock()

	tableLock.Lock()
	waitCond.Broadcast()
	tableLock.Unlock()
}

/// Wait blocks the caller until a child of parentPid is ZOMBIE, then
/// reaps it (frees its PCB slot) and returns its pid and exit code.
/// Returns ESRCH immediately if parentPid has no children at all.
func Wait(parentPid defs.Pid_t) (defs.Pid_t, int, errno.Err_t) {
	tableLock.Lock()
	defer tableLock.Unlock()
	for {
		haveChild := false
		for _, c := range table {
			if c.Ppid != parentPid {
				continue
			}
			haveChild = true
			c.Lock()
			zombie := c.State == ZOMBIE
			c.Unlock()
			if zombie {
				pid := c.Pid
				code := c.ExitCode
				delete(table, pid)
				liveProcs--
				return pid, code, 0
			}
		}
		if !haveChild {
			return 0, 0, errno.ESRCH
		}
		waitCond.Wait()
	}
}

/// Kprintall dumps every live process's pid, name and state. Used by
/// a debug syscall and by kernel panics that want a process-table
/// snapshot.
func Kprintall() {
	tableLock.Lock()
	defer tableLock.Unlock()
	for _, p := range table {
		kpanic.Kprintf(kpanic.LInfo, "pid %d (%s): %s\n", p.Pid, p.Name, p.State)
	}
}
