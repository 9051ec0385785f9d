package vfs

import (
	"sync"

	"errno"
	"hal"
	"stat"
	"ustr"
)

/// NFDS is the size of the global file-descriptor table. Slots 0/1/2
/// are reserved for stdin/stdout/stderr and pre-connected to the
/// console; Open never returns an index below 3.
const NFDS = 64

// fdkind distinguishes a console slot (backed directly by hal.Console_i)
// from a filesystem slot (backed by a mount + inode number).
type fdkind int

const (
	fdFree fdkind = iota
	fdConsole
	fdFile
)

type fdslot_t struct {
	kind   fdkind
	mount  *Mount_t
	ino    uint
	offset int
	flags  int
}

var fdLock sync.Mutex
var fdtable [NFDS]fdslot_t
var console hal.Console_i

/// Init wires the console into fds 0/1/2 and marks the rest of the
/// table free. Called once during boot after the UART driver is up.
func Init(c hal.Console_i) {
	fdLock.Lock()
	defer fdLock.Unlock()
	console = c
	for i := 0; i < 3; i++ {
		fdtable[i] = fdslot_t{kind: fdConsole}
	}
	for i := 3; i < NFDS; i++ {
		fdtable[i] = fdslot_t{kind: fdFree}
	}
}

func allocSlot() (int, errno.Err_t) {
	for i := 3; i < NFDS; i++ {
		if fdtable[i].kind == fdFree {
			return i, 0
		}
	}
	return 0, errno.EMFILE
}

/// Open resolves path's mount, delegates to its Ops_i.Open, and on
/// success allocates an fd recording {mount, offset=0, flags, inode}.
func Open(path ustr.Ustr, flags int, mode int) (int, errno.Err_t) {
	m, residual, err := Resolve(path)
	if err != 0 {
		return 0, err
	}
	ino, err := m.Ops.Open(residual, flags, mode)
	if err != 0 {
		return 0, err
	}

	fdLock.Lock()
	defer fdLock.Unlock()
	slot, err := allocSlot()
	if err != 0 {
		m.Ops.Close(ino)
		return 0, err
	}
	fdtable[slot] = fdslot_t{kind: fdFile, mount: m, ino: ino, offset: 0, flags: flags}
	return slot, 0
}

func slotOrErr(fdn int) (*fdslot_t, errno.Err_t) {
	if fdn < 0 || fdn >= NFDS {
		return nil, errno.EBADF
	}
	fdLock.Lock()
	s := &fdtable[fdn]
	fdLock.Unlock()
	if s.kind == fdFree {
		return nil, errno.EBADF
	}
	return s, 0
}

/// Read validates fdn, delegates, and on success advances the stored
/// offset by the bytes transferred. The access mode recorded at open is
/// not checked.
func Read(fdn int, dst []uint8) (int, errno.Err_t) {
	s, err := slotOrErr(fdn)
	if err != 0 {
		return 0, err
	}
	if s.kind == fdConsole {
		n := 0
		for n < len(dst) {
			b, ok := console.GetByte()
			if !ok {
				break
			}
			dst[n] = b
			n++
		}
		return n, 0
	}
	n, err := s.mount.Ops.Read(s.ino, dst, s.offset)
	if err != 0 {
		return 0, err
	}
	fdLock.Lock()
	s.offset += n
	fdLock.Unlock()
	return n, 0
}

/// Write validates fdn, delegates, and on success advances the stored
/// offset by the bytes transferred. The access mode recorded at open is
/// not checked.
func Write(fdn int, src []uint8) (int, errno.Err_t) {
	s, err := slotOrErr(fdn)
	if err != 0 {
		return 0, err
	}
	if s.kind == fdConsole {
		for _, b := range src {
			console.PutByte(b)
		}
		return len(src), 0
	}
	n, err := s.mount.Ops.Write(s.ino, src, s.offset)
	if err != 0 {
		return 0, err
	}
	fdLock.Lock()
	s.offset += n
	fdLock.Unlock()
	return n, 0
}

/// Seek updates fdn's stored offset directly; SEEK_END stats the file
/// to learn its size first.
func Seek(fdn int, off int, whence int) (int, errno.Err_t) {
	s, err := slotOrErr(fdn)
	if err != 0 {
		return 0, err
	}
	if s.kind == fdConsole {
		return 0, errno.EINVAL
	}
	var base int
	switch whence {
	case 0: // SEEK_SET
		base = 0
	case 1: // SEEK_CUR
		base = s.offset
	case 2: // SEEK_END
		var st stat.Stat_t
		if err := s.mount.Ops.Stat(s.ino, &st); err != 0 {
			return 0, err
		}
		base = int(st.Size())
	default:
		return 0, errno.EINVAL
	}
	fdLock.Lock()
	s.offset = base + off
	newoff := s.offset
	fdLock.Unlock()
	return newoff, 0
}

/// Close delegates to the filesystem (if it defines Close) and
/// releases the slot.
func Close(fdn int) errno.Err_t {
	s, err := slotOrErr(fdn)
	if err != 0 {
		return err
	}
	if s.kind == fdFile {
		if err := s.mount.Ops.Close(s.ino); err != 0 {
			return err
		}
	}
	fdLock.Lock()
	fdtable[fdn] = fdslot_t{kind: fdFree}
	fdLock.Unlock()
	return 0
}

/// Fstat delegates to the filesystem's Stat operation.
func Fstat(fdn int, st *stat.Stat_t) errno.Err_t {
	s, err := slotOrErr(fdn)
	if err != 0 {
		return err
	}
	if s.kind == fdConsole {
		return errno.EINVAL
	}
	return s.mount.Ops.Stat(s.ino, st)
}
