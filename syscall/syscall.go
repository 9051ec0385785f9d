// Package syscall implements spec.md §4.10's trap-time dispatcher and
// §6's fixed syscall numbering. It has no antecedent in the teacher
// repo (whose process model never grew a userland), so its shape is
// grounded on the teacher's own ecall-dispatch description carried
// into trap.Hooks_i.Syscall: number in a7, arguments in a0..a5, result
// written back into a0. Every user pointer is validated by going
// through vm.Vm_t's Userdmap8r/Userstr/User2k/K2user helpers, which
// return EFAULT on an unmapped or out-of-range address rather than
// dereferencing it directly, satisfying the dispatcher's "validates
// user pointers with a user-address-range check before dereferencing"
// requirement without a separate bounds table.
package syscall

import (
	"defs"
	"elf"
	"errno"
	"proc"
	"stat"
	"trap"
	"ustr"
	"vfs"
)

// Syscall numbers, spec.md §6 verbatim plus the non-listed-but-implied
// bodies (stat, unlink, seek) slotted into the gaps the numbered table
// leaves open. 30 (proc.SigReturnNr) is reserved and never reaches
// Dispatch: hooksImpl.Syscall intercepts it first.
const (
	SYS_EXIT    = 0
	SYS_WRITE   = 1
	SYS_READ    = 2
	SYS_GETPID  = 3
	SYS_SBRK    = 4
	SYS_SLEEP   = 5
	SYS_YIELD   = 6
	SYS_FORK    = 7
	SYS_EXEC    = 8 // legacy exec, flat code blob rather than an ELF path
	SYS_WAIT    = 9
	SYS_GETPPID = 10
	SYS_KILL    = 11
	SYS_GETTIME = 12
	SYS_OPEN    = 13
	SYS_CLOSE   = 14
	SYS_STAT    = 15
	SYS_UNLINK  = 16
	SYS_MKDIR   = 17
	SYS_SEEK    = 18
	SYS_RMDIR   = 19
	SYS_EXECVE  = 20
	SYS_SIGNAL  = 21
	SYS_CHDIR   = 28
	SYS_GETCWD  = 29
)

const maxPathLen = 256

// argStr copies a NUL-terminated string out of p's user memory at uva,
// the same validated path every other user-pointer argument goes
// through.
func argStr(p *proc.Pcb_t, uva uintptr) (ustr.Ustr, errno.Err_t) {
	return p.As.Userstr(uva, maxPathLen)
}

/// Dispatch is installed via proc.SetSyscallTable and runs on every
/// ecall trap whose a7 is not proc.SigReturnNr. It reads the number
/// and arguments out of f, runs the matching handler, and writes the
/// result back into f's a0 per spec.md §4.10.
func Dispatch(f *trap.Frame_t) {
	p := proc.Running()
	if p == nil {
		return
	}
	var ret int64
	switch f.A7() {
	case SYS_EXIT:
		sysExit(p, f)
		return // never returns to the caller's frame
	case SYS_WRITE:
		ret = sysWrite(p, f)
	case SYS_READ:
		ret = sysRead(p, f)
	case SYS_GETPID:
		ret = int64(p.Pid)
	case SYS_SBRK:
		ret = sysSbrk(p, f)
	case SYS_SLEEP:
		proc.Sleep(p, f.A0())
		ret = 0
	case SYS_YIELD:
		proc.Yield(p)
		ret = 0
	case SYS_FORK:
		ret = sysFork(p)
	case SYS_EXEC:
		ret = sysExecFlat(p, f)
	case SYS_WAIT:
		ret = sysWait(p, f)
	case SYS_GETPPID:
		ret = int64(p.Ppid)
	case SYS_KILL:
		ret = int64(proc.Kill(defs.Pid_t(f.A0()), int(f.A1())))
	case SYS_GETTIME:
		ret = int64(proc.GlobalTicks())
	case SYS_OPEN:
		ret = sysOpen(p, f)
	case SYS_CLOSE:
		ret = int64(vfs.Close(int(f.A0())))
	case SYS_STAT:
		ret = sysStat(p, f)
	case SYS_UNLINK:
		ret = sysUnlink(p, f)
	case SYS_MKDIR:
		ret = sysMkdir(p, f)
	case SYS_SEEK:
		n, err := vfs.Seek(int(f.A0()), int(f.A1()), int(f.A2()))
		ret = result(n, err)
	case SYS_RMDIR:
		ret = sysRmdir(p, f)
	case SYS_EXECVE:
		ret = sysExecve(p, f)
	case SYS_SIGNAL:
		ret = int64(proc.SetHandler(p, int(f.A0()), uintptr(f.A1())))
	case SYS_CHDIR:
		ret = sysChdir(p, f)
	case SYS_GETCWD:
		ret = sysGetcwd(p, f)
	default:
		ret = int64(errno.EINVAL)
	}
	f.SetA0(uint64(ret))
}

// result folds a (count, err) pair into the single signed return value
// a syscall's a0 carries: err on failure, n on success.
func result(n int, err errno.Err_t) int64 {
	if err != 0 {
		return int64(err)
	}
	return int64(n)
}

func sysExit(p *proc.Pcb_t, f *trap.Frame_t) {
	proc.Exit(p, int(f.A0()))
	proc.Yield(p) // unreachable: Exit leaves p ZOMBIE, never re-enqueued
}

func sysWrite(p *proc.Pcb_t, f *trap.Frame_t) int64 {
	n := int(f.A2())
	if n < 0 {
		return int64(errno.EINVAL)
	}
	buf := make([]uint8, n)
	if err := p.As.User2k(buf, uintptr(f.A1())); err != 0 {
		return int64(err)
	}
	wrote, err := vfs.Write(int(f.A0()), buf)
	return result(wrote, err)
}

func sysRead(p *proc.Pcb_t, f *trap.Frame_t) int64 {
	n := int(f.A2())
	if n < 0 {
		return int64(errno.EINVAL)
	}
	buf := make([]uint8, n)
	got, err := vfs.Read(int(f.A0()), buf)
	if err != 0 {
		return int64(err)
	}
	if err := p.As.K2user(buf[:got], uintptr(f.A1())); err != 0 {
		return int64(err)
	}
	return int64(got)
}

func sysSbrk(p *proc.Pcb_t, f *trap.Frame_t) int64 {
	old, err := proc.Sbrk(p, int(int64(f.A0())))
	if err != 0 {
		return int64(err)
	}
	return int64(old)
}

func sysFork(p *proc.Pcb_t) int64 {
	child, err := proc.Fork(p)
	if err != 0 {
		return int64(err)
	}
	return int64(child)
}

// sysExecFlat is the legacy slot (8): replaces the caller with a flat,
// position-independent code blob handed directly in user memory
// rather than a path to an ELF file on disk, kept for the same reason
// spec.md keeps it listed as "exec (legacy)" alongside execve (20).
func sysExecFlat(p *proc.Pcb_t, f *trap.Frame_t) int64 {
	n := int(f.A1())
	if n <= 0 {
		return int64(errno.EINVAL)
	}
	code := make([]uint8, n)
	if err := p.As.User2k(code, uintptr(f.A0())); err != 0 {
		return int64(err)
	}
	if err := proc.ExecReplace(p, code, 0, nil); err != 0 {
		return int64(err)
	}
	return 0
}

func sysWait(p *proc.Pcb_t, f *trap.Frame_t) int64 {
	pid, code, err := proc.Wait(p.Pid)
	if err != 0 {
		return int64(err)
	}
	if f.A0() != 0 {
		if err := p.As.Userwriten(uintptr(f.A0()), 8, code); err != 0 {
			return int64(err)
		}
	}
	return int64(pid)
}

func sysOpen(p *proc.Pcb_t, f *trap.Frame_t) int64 {
	path, err := argStr(p, uintptr(f.A0()))
	if err != 0 {
		return int64(err)
	}
	full := p.Cwd.Canonicalpath(path)
	fdn, err := vfs.Open(full, int(f.A1()), int(f.A2()))
	return result(fdn, err)
}

func sysStat(p *proc.Pcb_t, f *trap.Frame_t) int64 {
	path, err := argStr(p, uintptr(f.A0()))
	if err != 0 {
		return int64(err)
	}
	full := p.Cwd.Canonicalpath(path)
	var st stat.Stat_t
	if err := vfs.StatPath(full, &st); err != 0 {
		return int64(err)
	}
	if err := p.As.K2user(st.Bytes(), uintptr(f.A1())); err != 0 {
		return int64(err)
	}
	return 0
}

func sysUnlink(p *proc.Pcb_t, f *trap.Frame_t) int64 {
	path, err := argStr(p, uintptr(f.A0()))
	if err != 0 {
		return int64(err)
	}
	return int64(vfs.UnlinkPath(p.Cwd.Canonicalpath(path)))
}

func sysMkdir(p *proc.Pcb_t, f *trap.Frame_t) int64 {
	path, err := argStr(p, uintptr(f.A0()))
	if err != 0 {
		return int64(err)
	}
	return int64(vfs.Mkdir(p.Cwd.Canonicalpath(path), int(f.A1())))
}

func sysRmdir(p *proc.Pcb_t, f *trap.Frame_t) int64 {
	path, err := argStr(p, uintptr(f.A0()))
	if err != 0 {
		return int64(err)
	}
	return int64(vfs.Rmdir(p.Cwd.Canonicalpath(path)))
}

// execReader adapts an open vfs fd to elf.Reader_i so execve can hand
// elf.Load the file directly instead of reading it whole first.
type execReader struct {
	fd int
}

func (r execReader) ReadAt(buf []uint8, off int) (int, errno.Err_t) {
	if _, err := vfs.Seek(r.fd, off, defs.SEEK_SET); err != 0 {
		return 0, err
	}
	return vfs.Read(r.fd, buf)
}

func sysExecve(p *proc.Pcb_t, f *trap.Frame_t) int64 {
	path, err := argStr(p, uintptr(f.A0()))
	if err != 0 {
		return int64(err)
	}
	full := p.Cwd.Canonicalpath(path)

	argv, err := readArgv(p, uintptr(f.A1()))
	if err != 0 {
		return int64(err)
	}

	fdn, err := vfs.Open(full, defs.O_RDONLY, 0)
	if err != 0 {
		return int64(err)
	}
	img, err := elf.Load(execReader{fd: fdn})
	vfs.Close(fdn)
	if err != 0 {
		return int64(err)
	}

	if err := proc.ExecReplace(p, img.Code, img.EntryOff, argv); err != 0 {
		return int64(err)
	}
	return 0
}

// readArgv copies argv's NUL-terminated strings out of user memory via
// a NULL-terminated array of user pointers at uva, the exec-replace
// argv layout spec.md §4.9 describes building on the other end.
func readArgv(p *proc.Pcb_t, uva uintptr) ([]string, errno.Err_t) {
	if uva == 0 {
		return nil, 0
	}
	var argv []string
	for i := 0; i <= 16; i++ {
		ptr, err := p.As.Userreadn(uva+uintptr(i*8), 8)
		if err != 0 {
			return nil, err
		}
		if ptr == 0 {
			return argv, 0
		}
		s, err := argStr(p, uintptr(ptr))
		if err != 0 {
			return nil, err
		}
		argv = append(argv, s.String())
	}
	return nil, errno.E2BIG
}

func sysChdir(p *proc.Pcb_t, f *trap.Frame_t) int64 {
	path, err := argStr(p, uintptr(f.A0()))
	if err != 0 {
		return int64(err)
	}
	full := p.Cwd.Canonicalpath(path)

	var st stat.Stat_t
	if err := vfs.StatPath(full, &st); err != 0 {
		return int64(err)
	}
	if st.Mode()&0xF000 != defs.S_IFDIR {
		return int64(errno.ENOTDIR)
	}
	p.Cwd.Lock()
	p.Cwd.Path = full
	p.Cwd.Unlock()
	return 0
}

func sysGetcwd(p *proc.Pcb_t, f *trap.Frame_t) int64 {
	p.Cwd.Lock()
	cur := p.Cwd.Path
	p.Cwd.Unlock()

	n := int(f.A1())
	if len(cur)+1 > n {
		return int64(errno.ENAMETOOLONG)
	}
	buf := make([]uint8, len(cur)+1)
	copy(buf, cur)
	if err := p.As.K2user(buf, uintptr(f.A0())); err != 0 {
		return int64(err)
	}
	return int64(len(cur))
}

func init() {
	proc.SetSyscallTable(Dispatch)
}
