package ext2

import "errno"

// Directory entry field offsets within its variable-length record, per
// spec.md §3: {inode, rec_len, name_len, file_type, name[]}.
const (
	dOffIno      = 0
	dOffRecLen   = 4
	dOffNameLen  = 6
	dOffFileType = 7
	dOffName     = 8
)

const (
	FT_UNKNOWN = 0
	FT_REG     = 1
	FT_DIR     = 2
)

/// Dirdata_t views one directory-entry record inside a directory
/// block buffer, the variable-length-record counterpart of the
/// teacher's fixed-slot Dirdata_t.
type Dirdata_t struct {
	raw []uint8
}

func (d Dirdata_t) Ino() uint32       { return ru32(d.raw, dOffIno) }
func (d Dirdata_t) SetIno(v uint32)   { wu32(d.raw, dOffIno, v) }
func (d Dirdata_t) RecLen() uint16    { return ru16(d.raw, dOffRecLen) }
func (d Dirdata_t) SetRecLen(v uint16) { wu16(d.raw, dOffRecLen, v) }
func (d Dirdata_t) NameLen() uint8    { return d.raw[dOffNameLen] }
func (d Dirdata_t) SetNameLen(v uint8) { d.raw[dOffNameLen] = v }
func (d Dirdata_t) FileType() uint8   { return d.raw[dOffFileType] }
func (d Dirdata_t) SetFileType(v uint8) { d.raw[dOffFileType] = v }
func (d Dirdata_t) Name() string {
	return string(d.raw[dOffName : dOffName+int(d.NameLen())])
}
func (d Dirdata_t) SetName(name string) {
	d.SetNameLen(uint8(len(name)))
	copy(d.raw[dOffName:], name)
}

// minEntrySize returns the 4-byte-aligned record size needed to hold
// a name of length n, per spec.md §3's "rec_len is 4-byte aligned".
func minEntrySize(n int) int {
	sz := dOffName + n
	return (sz + 3) &^ 3
}

// walkBlock calls visit for each record (including tombstones, where
// Ino()==0) in a directory block buffer, stopping early if visit
// returns true.
func walkBlock(ctx *Context_t, blk []uint8, visit func(d Dirdata_t, off int) bool) {
	off := 0
	for off < ctx.BlockSize {
		d := Dirdata_t{blk[off:]}
		rl := int(d.RecLen())
		if rl == 0 {
			break
		}
		if visit(d, off) {
			return
		}
		off += rl
	}
}

/// Lookup scans dirIno's directory blocks linearly for name, returning
/// its inode number and file type, or 0/ENOENT if absent.
func Lookup(ctx *Context_t, dirIno uint32, name string) (uint32, uint8, errno.Err_t) {
	ctx.DirLookups.Inc()
	iv, err := GetInode(ctx, dirIno)
	if err != 0 {
		return 0, 0, err
	}
	if !iv.IsDir() {
		return 0, 0, errno.ENOTDIR
	}
	nblocks := (int(iv.Size()) + ctx.BlockSize - 1) / ctx.BlockSize
	for lb := 0; lb < nblocks; lb++ {
		pb, err := Bmap(ctx, iv, lb)
		if err != 0 {
			return 0, 0, err
		}
		if pb == 0 {
			continue
		}
		blk := ReadBlock(ctx, pb)
		var foundIno uint32
		var foundType uint8
		walkBlock(ctx, blk, func(d Dirdata_t, off int) bool {
			if d.Ino() != 0 && d.Name() == name {
				foundIno = d.Ino()
				foundType = d.FileType()
				return true
			}
			return false
		})
		kfree(blk)
		if foundIno != 0 {
			return foundIno, foundType, 0
		}
	}
	return 0, 0, errno.ENOENT
}

/// ListDir invokes cb for every non-tombstone entry of dirIno's
/// directory contents, per spec.md's list_dir.
func ListDir(ctx *Context_t, dirIno uint32, cb func(name string, ino uint32, filetype uint8)) errno.Err_t {
	iv, err := GetInode(ctx, dirIno)
	if err != 0 {
		return err
	}
	if !iv.IsDir() {
		return errno.ENOTDIR
	}
	nblocks := (int(iv.Size()) + ctx.BlockSize - 1) / ctx.BlockSize
	for lb := 0; lb < nblocks; lb++ {
		pb, err := Bmap(ctx, iv, lb)
		if err != 0 {
			return err
		}
		if pb == 0 {
			continue
		}
		blk := ReadBlock(ctx, pb)
		walkBlock(ctx, blk, func(d Dirdata_t, off int) bool {
			if d.Ino() != 0 {
				cb(d.Name(), d.Ino(), d.FileType())
			}
			return false
		})
		kfree(blk)
	}
	return 0
}

/// InsertEntry adds a {ino, name, filetype} record into dirIno's
/// directory, first-fitting into an existing record's slack space and
/// falling back to appending a new block when no existing block has
/// room, per spec.md §4.7.
func InsertEntry(ctx *Context_t, dirIno uint32, name string, ino uint32, filetype uint8) errno.Err_t {
	need := minEntrySize(len(name))
	iv, err := GetInode(ctx, dirIno)
	if err != 0 {
		return err
	}
	nblocks := (int(iv.Size()) + ctx.BlockSize - 1) / ctx.BlockSize

	for lb := 0; lb < nblocks; lb++ {
		pb, err := BmapAlloc(ctx, iv, lb)
		if err != 0 {
			return err
		}
		blk := ReadBlock(ctx, pb)
		if tryInsertInBlock(ctx, blk, name, ino, filetype, need) {
			WriteBlock(ctx, pb, blk)
			kfree(blk)
			PutInode(ctx, dirIno, iv)
			return 0
		}
		kfree(blk)
	}

	// No existing block had room: append a fresh block holding one
	// free record spanning the whole block, then split it.
	newLb := nblocks
	pb, err := BmapAlloc(ctx, iv, newLb)
	if err != 0 {
		return err
	}
	blk := zeroBlock(ctx)
	d := Dirdata_t{blk}
	d.SetIno(0)
	d.SetRecLen(uint16(ctx.BlockSize))
	d.SetNameLen(0)
	d.SetFileType(FT_UNKNOWN)
	if !tryInsertInBlock(ctx, blk, name, ino, filetype, need) {
		panic("ext2: fresh directory block too small for one entry")
	}
	WriteBlock(ctx, pb, blk)
	kfree(blk)

	iv.SetSize(uint32((newLb + 1) * ctx.BlockSize))
	iv.SetBlocks512(iv.Blocks512() + uint32(ctx.BlockSize/512))
	PutInode(ctx, dirIno, iv)
	return 0
}

// tryInsertInBlock scans blk's records for a tombstone or a live
// record with enough slack to split, writing name/ino/filetype in
// place if found.
func tryInsertInBlock(ctx *Context_t, blk []uint8, name string, ino uint32, filetype uint8, need int) bool {
	found := false
	walkBlock(ctx, blk, func(d Dirdata_t, off int) bool {
		rl := int(d.RecLen())
		if d.Ino() == 0 && rl >= need {
			d.SetIno(ino)
			d.SetFileType(filetype)
			d.SetName(name)
			found = true
			return true
		}
		used := minEntrySize(int(d.NameLen()))
		if d.Ino() != 0 && rl-used >= need {
			d.SetRecLen(uint16(used))
			nd := Dirdata_t{blk[off+used:]}
			nd.SetIno(ino)
			nd.SetRecLen(uint16(rl - used))
			nd.SetFileType(filetype)
			nd.SetName(name)
			found = true
			return true
		}
		return false
	})
	return found
}

/// RemoveEntry zeros name's inode field within dirIno's directory and
/// merges its rec_len into the previous entry, per spec.md §4.7.
func RemoveEntry(ctx *Context_t, dirIno uint32, name string) errno.Err_t {
	iv, err := GetInode(ctx, dirIno)
	if err != 0 {
		return err
	}
	nblocks := (int(iv.Size()) + ctx.BlockSize - 1) / ctx.BlockSize
	for lb := 0; lb < nblocks; lb++ {
		pb, err := Bmap(ctx, iv, lb)
		if err != 0 {
			return err
		}
		if pb == 0 {
			continue
		}
		blk := ReadBlock(ctx, pb)
		removed := false
		prevOff := -1
		off := 0
		for off < ctx.BlockSize {
			d := Dirdata_t{blk[off:]}
			rl := int(d.RecLen())
			if rl == 0 {
				break
			}
			if d.Ino() != 0 && d.Name() == name {
				d.SetIno(0)
				if prevOff >= 0 {
					prev := Dirdata_t{blk[prevOff:]}
					prev.SetRecLen(prev.RecLen() + uint16(rl))
				}
				removed = true
				break
			}
			prevOff = off
			off += rl
		}
		if removed {
			WriteBlock(ctx, pb, blk)
			kfree(blk)
			return 0
		}
		kfree(blk)
	}
	return errno.ENOENT
}

/// MkEmptyDir allocates a fresh block for newIno, writes "." and ".."
/// entries, and sets newIno's link count to 2 and parentIno's link
/// count up by one, per spec.md §4.7.
func MkEmptyDir(ctx *Context_t, newIno, parentIno uint32) errno.Err_t {
	iv, err := GetInode(ctx, newIno)
	if err != 0 {
		return err
	}
	pb, err := BmapAlloc(ctx, iv, 0)
	if err != 0 {
		return err
	}
	blk := zeroBlock(ctx)

	dot := Dirdata_t{blk}
	dot.SetIno(newIno)
	dotSize := minEntrySize(1)
	dot.SetRecLen(uint16(dotSize))
	dot.SetFileType(FT_DIR)
	dot.SetName(".")

	dotdot := Dirdata_t{blk[dotSize:]}
	dotdot.SetIno(parentIno)
	dotdot.SetRecLen(uint16(ctx.BlockSize - dotSize))
	dotdot.SetFileType(FT_DIR)
	dotdot.SetName("..")

	WriteBlock(ctx, pb, blk)
	kfree(blk)

	iv.SetSize(uint32(ctx.BlockSize))
	iv.SetBlocks512(uint32(ctx.BlockSize / 512))
	iv.SetLinks(2)
	if err := PutInode(ctx, newIno, iv); err != 0 {
		return err
	}

	piv, err := GetInode(ctx, parentIno)
	if err != 0 {
		return err
	}
	piv.SetLinks(piv.Links() + 1)
	return PutInode(ctx, parentIno, piv)
}

/// IsEmptyDir reports whether dirIno contains entries other than "."
/// and "..", used by rmdir to enforce ENOTEMPTY.
func IsEmptyDir(ctx *Context_t, dirIno uint32) (bool, errno.Err_t) {
	empty := true
	err := ListDir(ctx, dirIno, func(name string, ino uint32, ft uint8) {
		if name != "." && name != ".." {
			empty = false
		}
	})
	return empty, err
}
