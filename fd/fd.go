// Package fd tracks a process's current working directory. The file
// descriptor table itself (spec.md §4.6's global 64-slot array) lives
// in package vfs, which owns path resolution and the open-file vtable;
// this package keeps only the teacher's Cwd_t path-joining logic.
package fd

import (
	"sync"

	"bpath"
	"ustr"
)

/// Cwd_t tracks the current working directory for a process.
type Cwd_t struct {
	sync.Mutex // serializes concurrent chdirs
	Fdnum int       /// vfs fd table index backing this directory
	Path  ustr.Ustr /// canonical path
}

/// Fullpath joins cwd with p if p is not already absolute.
func (cwd *Cwd_t) Fullpath(p ustr.Ustr) ustr.Ustr {
	if p.IsAbsolute() {
		return p
	}
	return cwd.Path.Extend(p)
}

/// Canonicalpath resolves path components relative to cwd.
func (cwd *Cwd_t) Canonicalpath(p ustr.Ustr) ustr.Ustr {
	p1 := cwd.Fullpath(p)
	return bpath.Canonicalize(p1)
}

/// MkRootCwd constructs a Cwd_t rooted at "/", backed by fdnum (the
/// vfs fd table slot holding the root directory's open file).
func MkRootCwd(fdnum int) *Cwd_t {
	c := &Cwd_t{}
	c.Fdnum = fdnum
	c.Path = ustr.MkUstrRoot()
	return c
}
