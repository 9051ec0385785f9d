// Package vfs implements spec.md §4.6: a mount-point list consulted by
// longest-prefix match, a per-filesystem operations vtable (Ops_i),
// and the kernel's single global file-descriptor table. Grounded on
// the teacher's fd.Fd_t/fd.Cwd_t shape (kept in package fd for the
// cwd-path half) generalized to own the open-file slots itself, since
// the retrieved pack's own VFS layer was an empty placeholder.
package vfs

import (
	"sync"

	"errno"
	"stat"
	"ustr"
)

/// Dirent_t is one entry returned by Readdir.
type Dirent_t struct {
	Ino      uint
	Name     string
	Filetype uint8
}

/// Ops_i is the operations vtable every mounted filesystem implements.
/// A path argument is always already resolved to its residual form
/// within that filesystem (the mount-point prefix stripped).
type Ops_i interface {
	Open(path ustr.Ustr, flags int, mode int) (ino uint, err errno.Err_t)
	Close(ino uint) errno.Err_t
	Read(ino uint, dst []uint8, off int) (int, errno.Err_t)
	Write(ino uint, src []uint8, off int) (int, errno.Err_t)
	Readdir(ino uint, off int) ([]Dirent_t, errno.Err_t)
	Mkdir(path ustr.Ustr, mode int) errno.Err_t
	Rmdir(path ustr.Ustr) errno.Err_t
	Stat(ino uint, st *stat.Stat_t) errno.Err_t
	Unlink(path ustr.Ustr) errno.Err_t
	Rename(oldpath, newpath ustr.Ustr) errno.Err_t
}

/// Mount_t is one node of the kernel-global mount list.
type Mount_t struct {
	Point ustr.Ustr
	Ops   Ops_i
	next  *Mount_t
}

var mountLock sync.Mutex
var mounts *Mount_t

/// Mount links a new filesystem into the global mount list. Mounting
/// the same point twice replaces the earlier entry (remount).
func Mount(point ustr.Ustr, ops Ops_i) {
	mountLock.Lock()
	defer mountLock.Unlock()
	m := &Mount_t{Point: point, Ops: ops}
	m.next = mounts
	mounts = m
}

/// Unmount removes point from the global mount list.
func Unmount(point ustr.Ustr) {
	mountLock.Lock()
	defer mountLock.Unlock()
	if mounts == nil {
		return
	}
	if mounts.Point.Eq(point) {
		mounts = mounts.next
		return
	}
	for m := mounts; m.next != nil; m = m.next {
		if m.next.Point.Eq(point) {
			m.next = m.next.next
			return
		}
	}
}

// boundaryPrefix reports whether prefix is a prefix of path that ends
// exactly at a '/' boundary (or consumes path entirely).
func boundaryPrefix(prefix, path ustr.Ustr) bool {
	if len(prefix) > len(path) {
		return false
	}
	for i := range prefix {
		if prefix[i] != path[i] {
			return false
		}
	}
	if len(prefix) == len(path) {
		return true
	}
	if prefix.Eq(ustr.MkUstrRoot()) {
		return true
	}
	return path[len(prefix)] == '/'
}

/// Resolve walks the mount list and returns the mount whose point is
/// the longest '/'-boundary prefix of path, plus the residual path
/// within that filesystem.
func Resolve(path ustr.Ustr) (*Mount_t, ustr.Ustr, errno.Err_t) {
	mountLock.Lock()
	defer mountLock.Unlock()

	var best *Mount_t
	for m := mounts; m != nil; m = m.next {
		if !boundaryPrefix(m.Point, path) {
			continue
		}
		if best == nil || len(m.Point) > len(best.Point) {
			best = m
		}
	}
	if best == nil {
		return nil, nil, errno.ENOENT
	}
	residual := path[len(best.Point):]
	if len(residual) == 0 || residual[0] != '/' {
		residual = append(ustr.Ustr{'/'}, residual...)
	}
	return best, residual, 0
}

/// Mkdir resolves path's mount and delegates to its Ops_i.Mkdir.
func Mkdir(path ustr.Ustr, mode int) errno.Err_t {
	m, residual, err := Resolve(path)
	if err != 0 {
		return err
	}
	return m.Ops.Mkdir(residual, mode)
}

/// Rmdir resolves path's mount and delegates to its Ops_i.Rmdir.
func Rmdir(path ustr.Ustr) errno.Err_t {
	m, residual, err := Resolve(path)
	if err != 0 {
		return err
	}
	return m.Ops.Rmdir(residual)
}

/// UnlinkPath resolves path's mount and delegates to its Ops_i.Unlink.
func UnlinkPath(path ustr.Ustr) errno.Err_t {
	m, residual, err := Resolve(path)
	if err != 0 {
		return err
	}
	return m.Ops.Unlink(residual)
}

/// RenamePath resolves both paths' mounts and delegates to Ops_i.Rename;
/// a rename across two different mounted filesystems is rejected, since
/// no filesystem's Ops_i can move an inode it does not own.
func RenamePath(oldpath, newpath ustr.Ustr) errno.Err_t {
	mOld, oldResidual, err := Resolve(oldpath)
	if err != 0 {
		return err
	}
	mNew, newResidual, err := Resolve(newpath)
	if err != 0 {
		return err
	}
	if mOld != mNew {
		return errno.EXDEV
	}
	return mOld.Ops.Rename(oldResidual, newResidual)
}

/// StatPath resolves path's mount and opens+stats+closes it, for the
/// stat(2) syscall which has no existing fd to stat through.
func StatPath(path ustr.Ustr, st *stat.Stat_t) errno.Err_t {
	m, residual, err := Resolve(path)
	if err != 0 {
		return err
	}
	ino, err := m.Ops.Open(residual, 0, 0)
	if err != 0 {
		return err
	}
	defer m.Ops.Close(ino)
	return m.Ops.Stat(ino, st)
}

// Permission mode bits per spec.md §4.6.
const (
	R_OK = 4
	W_OK = 2
	X_OK = 1
)

/// CheckPermission implements spec.md's check_permission: uid 0 always
/// passes; otherwise the owner/group/other bits are chosen by matching
/// euid/egid, and the requested mode subset is tested against them.
func CheckPermission(mode uint, fileUid, fileGid uint, euid, egid uint, want uint) bool {
	if euid == 0 {
		return true
	}
	var bits uint
	switch {
	case euid == fileUid:
		bits = (mode >> 6) & 0x7
	case egid == fileGid:
		bits = (mode >> 3) & 0x7
	default:
		bits = mode & 0x7
	}
	return bits&want == want
}
