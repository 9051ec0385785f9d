package ext2

import (
	"defs"
	"errno"
	"stat"
	"ustr"
	"vfs"
)

/// Filesystem_t adapts a mounted ext2 Context_t to vfs.Ops_i, the way
/// the teacher's ufs.Ufs_t adapts fs.Fs_t to its own test harness.
type Filesystem_t struct {
	Ctx *Context_t
}

func splitPath(p ustr.Ustr) []string {
	s := p.String()
	var comps []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '/' {
			if i > start {
				comps = append(comps, s[start:i])
			}
			start = i + 1
		}
	}
	return comps
}

// walk resolves path (already mount-residual, absolute) to its inode
// number by walking components from the root inode.
func walk(ctx *Context_t, path ustr.Ustr) (uint32, errno.Err_t) {
	comps := splitPath(path)
	cur := uint32(rootIno)
	for _, c := range comps {
		ino, _, err := Lookup(ctx, cur, c)
		if err != 0 {
			return 0, err
		}
		cur = ino
	}
	return cur, 0
}

// resolveParent walks all but the last path component, returning the
// parent inode number and the leaf name.
func resolveParent(ctx *Context_t, path ustr.Ustr) (uint32, string, errno.Err_t) {
	comps := splitPath(path)
	if len(comps) == 0 {
		return 0, "", errno.EINVAL
	}
	cur := uint32(rootIno)
	for _, c := range comps[:len(comps)-1] {
		ino, ft, err := Lookup(ctx, cur, c)
		if err != 0 {
			return 0, "", err
		}
		if ft != FT_DIR {
			return 0, "", errno.ENOTDIR
		}
		cur = ino
	}
	return cur, comps[len(comps)-1], 0
}

func modeFiletype(mode uint16) uint8 {
	if mode&0xF000 == S_IFDIR {
		return FT_DIR
	}
	return FT_REG
}

/// Fs_open resolves path to an inode, creating a new regular file when
/// O_CREAT is set and the name is absent, and truncating an existing
/// regular file when O_TRUNC is set.
func Fs_open(ctx *Context_t, path ustr.Ustr, flags int, mode int) (uint32, errno.Err_t) {
	if len(splitPath(path)) == 0 {
		return rootIno, 0
	}
	parent, leaf, err := resolveParent(ctx, path)
	if err != 0 {
		return 0, err
	}
	ino, ft, err := Lookup(ctx, parent, leaf)
	if err == errno.ENOENT {
		if flags&defs.O_CREAT == 0 {
			return 0, errno.ENOENT
		}
		newIno, aerr := AllocInode(ctx)
		if aerr != 0 {
			return 0, aerr
		}
		iv := make(inodeView_t, ctx.InodeSize)
		iv.SetMode(uint16(S_IFREG | (mode & 0777)))
		iv.SetLinks(1)
		if perr := PutInode(ctx, newIno, iv); perr != 0 {
			return 0, perr
		}
		if ierr := InsertEntry(ctx, parent, leaf, newIno, FT_REG); ierr != 0 {
			return 0, ierr
		}
		return newIno, 0
	}
	if err != 0 {
		return 0, err
	}
	if flags&defs.O_TRUNC != 0 && ft == FT_REG {
		if terr := truncate(ctx, ino); terr != 0 {
			return 0, terr
		}
	}
	return ino, 0
}

func truncate(ctx *Context_t, ino uint32) errno.Err_t {
	iv, err := GetInode(ctx, ino)
	if err != 0 {
		return err
	}
	FreeInodeBlocks(ctx, iv)
	for i := 0; i < blocksPerInode; i++ {
		iv.SetBlock(i, 0)
	}
	iv.SetSize(0)
	iv.SetBlocks512(0)
	return PutInode(ctx, ino, iv)
}

/// Fs_mkdir creates an empty directory at path, per spec.md §4.7.
func Fs_mkdir(ctx *Context_t, path ustr.Ustr, mode int) errno.Err_t {
	parent, leaf, err := resolveParent(ctx, path)
	if err != 0 {
		return err
	}
	if leaf == "." || leaf == ".." {
		return errno.EINVAL
	}
	if _, _, err := Lookup(ctx, parent, leaf); err == 0 {
		return errno.EEXIST
	}
	newIno, err := AllocInode(ctx)
	if err != 0 {
		return err
	}
	iv := make(inodeView_t, ctx.InodeSize)
	iv.SetMode(uint16(S_IFDIR | (mode & 0777)))
	if perr := PutInode(ctx, newIno, iv); perr != 0 {
		return perr
	}
	if derr := MkEmptyDir(ctx, newIno, parent); derr != 0 {
		return derr
	}
	return InsertEntry(ctx, parent, leaf, newIno, FT_DIR)
}

/// Fs_rmdir removes an empty directory, refusing "."/".." names and
/// non-empty directories per spec.md §4.7.
func Fs_rmdir(ctx *Context_t, path ustr.Ustr) errno.Err_t {
	parent, leaf, err := resolveParent(ctx, path)
	if err != 0 {
		return err
	}
	if leaf == "." || leaf == ".." {
		return errno.EINVAL
	}
	ino, ft, err := Lookup(ctx, parent, leaf)
	if err != 0 {
		return err
	}
	if ft != FT_DIR {
		return errno.ENOTDIR
	}
	empty, err := IsEmptyDir(ctx, ino)
	if err != 0 {
		return err
	}
	if !empty {
		return errno.ENOTEMPTY
	}
	if err := RemoveEntry(ctx, parent, leaf); err != 0 {
		return err
	}
	piv, err := GetInode(ctx, parent)
	if err != 0 {
		return err
	}
	piv.SetLinks(piv.Links() - 1)
	if err := PutInode(ctx, parent, piv); err != 0 {
		return err
	}
	iv, err := GetInode(ctx, ino)
	if err != 0 {
		return err
	}
	FreeInodeBlocks(ctx, iv)
	return FreeInode(ctx, ino)
}

/// Fs_unlink removes a file's directory entry and, once its link
/// count reaches zero, frees its blocks and inode, refusing
/// directories with EISDIR per spec.md §4.7.
func Fs_unlink(ctx *Context_t, path ustr.Ustr) errno.Err_t {
	parent, leaf, err := resolveParent(ctx, path)
	if err != 0 {
		return err
	}
	ino, ft, err := Lookup(ctx, parent, leaf)
	if err != 0 {
		return err
	}
	if ft == FT_DIR {
		return errno.EISDIR
	}
	if err := RemoveEntry(ctx, parent, leaf); err != 0 {
		return err
	}
	iv, err := GetInode(ctx, ino)
	if err != 0 {
		return err
	}
	iv.SetLinks(iv.Links() - 1)
	if iv.Links() == 0 {
		FreeInodeBlocks(ctx, iv)
		iv.SetDtime(1)
		if err := PutInode(ctx, ino, iv); err != 0 {
			return err
		}
		return FreeInode(ctx, ino)
	}
	return PutInode(ctx, ino, iv)
}

/// Fs_rename moves oldpath to newpath, replacing an empty directory or
/// any non-directory already at newpath, and fixing up the moved
/// directory's ".." entry when its parent changes.
func Fs_rename(ctx *Context_t, oldpath, newpath ustr.Ustr) errno.Err_t {
	oldParent, oldLeaf, err := resolveParent(ctx, oldpath)
	if err != 0 {
		return err
	}
	ino, ft, err := Lookup(ctx, oldParent, oldLeaf)
	if err != 0 {
		return err
	}
	newParent, newLeaf, err := resolveParent(ctx, newpath)
	if err != 0 {
		return err
	}

	if dstIno, dstFt, derr := Lookup(ctx, newParent, newLeaf); derr == 0 {
		if dstFt == FT_DIR {
			empty, eerr := IsEmptyDir(ctx, dstIno)
			if eerr != 0 {
				return eerr
			}
			if !empty {
				return errno.ENOTEMPTY
			}
		}
		if err := RemoveEntry(ctx, newParent, newLeaf); err != 0 {
			return err
		}
		div, err := GetInode(ctx, dstIno)
		if err != 0 {
			return err
		}
		div.SetLinks(div.Links() - 1)
		if div.Links() == 0 {
			FreeInodeBlocks(ctx, div)
			if err := FreeInode(ctx, dstIno); err != 0 {
				return err
			}
		} else if err := PutInode(ctx, dstIno, div); err != 0 {
			return err
		}
	}

	if err := InsertEntry(ctx, newParent, newLeaf, ino, ft); err != 0 {
		return err
	}
	if err := RemoveEntry(ctx, oldParent, oldLeaf); err != 0 {
		return err
	}

	if ft == FT_DIR && oldParent != newParent {
		fixupDotDot(ctx, ino, newParent)
		oldPiv, err := GetInode(ctx, oldParent)
		if err != 0 {
			return err
		}
		oldPiv.SetLinks(oldPiv.Links() - 1)
		if err := PutInode(ctx, oldParent, oldPiv); err != 0 {
			return err
		}
		newPiv, err := GetInode(ctx, newParent)
		if err != 0 {
			return err
		}
		newPiv.SetLinks(newPiv.Links() + 1)
		return PutInode(ctx, newParent, newPiv)
	}
	return 0
}

func fixupDotDot(ctx *Context_t, dirIno uint32, newParent uint32) {
	iv, err := GetInode(ctx, dirIno)
	if err != 0 {
		return
	}
	pb, err := Bmap(ctx, iv, 0)
	if err != 0 || pb == 0 {
		return
	}
	blk := ReadBlock(ctx, pb)
	walkBlock(ctx, blk, func(d Dirdata_t, off int) bool {
		if d.Ino() != 0 && d.Name() == ".." {
			d.SetIno(newParent)
			return true
		}
		return false
	})
	WriteBlock(ctx, pb, blk)
	kfree(blk)
}

/// Fs_stat fills st from ino's on-disk inode, per spec.md's fstat
/// contract.
func Fs_stat(ctx *Context_t, ino uint32, st *stat.Stat_t) errno.Err_t {
	iv, err := GetInode(ctx, ino)
	if err != 0 {
		return err
	}
	st.Wino(uint(ino))
	st.Wmode(uint(iv.Mode()))
	st.Wnlink(uint(iv.Links()))
	st.Wuid(uint(iv.Uid()))
	st.Wgid(uint(iv.Gid()))
	st.Wsize(uint(iv.Size()))
	st.Wblocks(uint(iv.Blocks512()))
	st.Wmtime(uint(iv.Mtime()), 0)
	st.Wrdev(0)
	return 0
}

// --- vfs.Ops_i adapter ---

func (f *Filesystem_t) Open(path ustr.Ustr, flags int, mode int) (uint, errno.Err_t) {
	ino, err := Fs_open(f.Ctx, path, flags, mode)
	return uint(ino), err
}

func (f *Filesystem_t) Close(ino uint) errno.Err_t {
	return 0
}

func (f *Filesystem_t) Read(ino uint, dst []uint8, off int) (int, errno.Err_t) {
	return ReadFile(f.Ctx, uint32(ino), off, dst)
}

func (f *Filesystem_t) Write(ino uint, src []uint8, off int) (int, errno.Err_t) {
	return WriteFile(f.Ctx, uint32(ino), off, src)
}

func (f *Filesystem_t) Readdir(ino uint, off int) ([]vfs.Dirent_t, errno.Err_t) {
	var all []vfs.Dirent_t
	err := ListDir(f.Ctx, uint32(ino), func(name string, dino uint32, ft uint8) {
		all = append(all, vfs.Dirent_t{Ino: uint(dino), Name: name, Filetype: ft})
	})
	if err != 0 {
		return nil, err
	}
	if off >= len(all) {
		return nil, 0
	}
	return all[off:], 0
}

func (f *Filesystem_t) Mkdir(path ustr.Ustr, mode int) errno.Err_t {
	return Fs_mkdir(f.Ctx, path, mode)
}

func (f *Filesystem_t) Rmdir(path ustr.Ustr) errno.Err_t {
	return Fs_rmdir(f.Ctx, path)
}

func (f *Filesystem_t) Stat(ino uint, st *stat.Stat_t) errno.Err_t {
	return Fs_stat(f.Ctx, uint32(ino), st)
}

func (f *Filesystem_t) Unlink(path ustr.Ustr) errno.Err_t {
	return Fs_unlink(f.Ctx, path)
}

func (f *Filesystem_t) Rename(oldpath, newpath ustr.Ustr) errno.Err_t {
	return Fs_rename(f.Ctx, oldpath, newpath)
}
