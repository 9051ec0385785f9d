package ext2

import "errno"

// Inode field byte offsets within its defaultInodeSize-byte record,
// per the standard ext2 rev-0 on-disk inode layout spec.md §3 names.
const (
	iOffMode   = 0
	iOffUid    = 2
	iOffSize   = 4
	iOffAtime  = 8
	iOffCtime  = 12
	iOffMtime  = 16
	iOffDtime  = 20
	iOffGid    = 24
	iOffLinks  = 26
	iOffBlocks = 28
	iOffBlock0 = 40
)

const blocksPerInode = 15
const directBlocks = 12
const singleIndirectIdx = 12
const doubleIndirectIdx = 13
const tripleIndirectIdx = 14

// Mode bits (the S_IF* family, standard POSIX values).
const (
	S_IFDIR = 0x4000
	S_IFREG = 0x8000
)

const DefaultFileMode = 0644
const DefaultDirMode = 0755

/// inodeView_t is a 128-byte slice aliasing an on-disk inode record;
/// its accessors read/write fields directly, matching the teacher's
/// Superblock_t field-accessor style generalized to ext2's own layout.
type inodeView_t []uint8

func (iv inodeView_t) Mode() uint16      { return ru16(iv, iOffMode) }
func (iv inodeView_t) SetMode(v uint16)  { wu16(iv, iOffMode, v) }
func (iv inodeView_t) Uid() uint16       { return ru16(iv, iOffUid) }
func (iv inodeView_t) SetUid(v uint16)   { wu16(iv, iOffUid, v) }
func (iv inodeView_t) Gid() uint16       { return ru16(iv, iOffGid) }
func (iv inodeView_t) SetGid(v uint16)   { wu16(iv, iOffGid, v) }
func (iv inodeView_t) Size() uint32      { return ru32(iv, iOffSize) }
func (iv inodeView_t) SetSize(v uint32)  { wu32(iv, iOffSize, v) }
func (iv inodeView_t) Links() uint16     { return ru16(iv, iOffLinks) }
func (iv inodeView_t) SetLinks(v uint16) { wu16(iv, iOffLinks, v) }
func (iv inodeView_t) Blocks512() uint32 { return ru32(iv, iOffBlocks) }
func (iv inodeView_t) SetBlocks512(v uint32) { wu32(iv, iOffBlocks, v) }
func (iv inodeView_t) Atime() uint32     { return ru32(iv, iOffAtime) }
func (iv inodeView_t) SetAtime(v uint32) { wu32(iv, iOffAtime, v) }
func (iv inodeView_t) Ctime() uint32     { return ru32(iv, iOffCtime) }
func (iv inodeView_t) SetCtime(v uint32) { wu32(iv, iOffCtime, v) }
func (iv inodeView_t) Mtime() uint32     { return ru32(iv, iOffMtime) }
func (iv inodeView_t) SetMtime(v uint32) { wu32(iv, iOffMtime, v) }
func (iv inodeView_t) Dtime() uint32     { return ru32(iv, iOffDtime) }
func (iv inodeView_t) SetDtime(v uint32) { wu32(iv, iOffDtime, v) }

func (iv inodeView_t) Block(i int) uint32 {
	return ru32(iv, iOffBlock0+4*i)
}
func (iv inodeView_t) SetBlock(i int, v uint32) {
	wu32(iv, iOffBlock0+4*i, v)
}

func (iv inodeView_t) IsDir() bool { return iv.Mode()&0xF000 == S_IFDIR }
func (iv inodeView_t) IsReg() bool { return iv.Mode()&0xF000 == S_IFREG }

// inodeLocation resolves inode number n (n >= 1) to the block holding
// it and its byte offset within that block, per spec.md §4.7's
// group/index/block/offset formulas.
func inodeLocation(ctx *Context_t, n uint32) (block uint32, offset int) {
	idx := int(n) - 1
	group := idx / ctx.InodesPerGroup
	indexInGroup := idx % ctx.InodesPerGroup
	block = ctx.gdInodeTable(group) + uint32(indexInGroup/ctx.InodesPerBlock)
	offset = (indexInGroup % ctx.InodesPerBlock) * ctx.InodeSize
	return
}

/// GetInode reads n's on-disk record and returns a private 128-byte
/// copy the caller can freely mutate; persist changes with PutInode.
func GetInode(ctx *Context_t, n uint32) (inodeView_t, errno.Err_t) {
	if n == 0 || int(n) > int(ctx.inodesCount()) {
		return nil, errno.EFS_BADINO
	}
	block, off := inodeLocation(ctx, n)
	blk := ReadBlock(ctx, block)
	iv := make(inodeView_t, ctx.InodeSize)
	copy(iv, blk[off:off+ctx.InodeSize])
	kfree(blk)
	return iv, 0
}

/// PutInode writes iv back as a read-modify-write of n's containing
/// block, per spec.md §4.7's "Write is read-modify-write of the same
/// block."
func PutInode(ctx *Context_t, n uint32, iv inodeView_t) errno.Err_t {
	if n == 0 || int(n) > int(ctx.inodesCount()) {
		return errno.EFS_BADINO
	}
	block, off := inodeLocation(ctx, n)
	blk := ReadBlock(ctx, block)
	copy(blk[off:off+ctx.InodeSize], iv)
	WriteBlock(ctx, block, blk)
	kfree(blk)
	return 0
}

func (ctx *Context_t) ptrsPerBlock() int {
	return ctx.BlockSize / 4
}

// indirectReach returns the total logical block count reachable
// through single- and double-indirect pointers (the triple-indirect
// boundary where spec.md requires EFBIG).
func (ctx *Context_t) indirectReach() (singleEnd, doubleEnd int) {
	ppb := ctx.ptrsPerBlock()
	singleEnd = directBlocks + ppb
	doubleEnd = singleEnd + ppb*ppb
	return
}

/// Bmap resolves logical block index `logical` of inode iv to a
/// physical block number without allocating; returns (0, 0) for a
/// sparse hole, and EFBIG once the triple-indirect range is reached
/// (spec.md: "triple-indirect is unsupported in code paths").
func Bmap(ctx *Context_t, iv inodeView_t, logical int) (uint32, errno.Err_t) {
	singleEnd, doubleEnd := ctx.indirectReach()
	switch {
	case logical < directBlocks:
		return iv.Block(logical), 0
	case logical < singleEnd:
		ind := iv.Block(singleIndirectIdx)
		if ind == 0 {
			return 0, 0
		}
		return readIndirectSlot(ctx, ind, logical-directBlocks), 0
	case logical < doubleEnd:
		ind := iv.Block(doubleIndirectIdx)
		if ind == 0 {
			return 0, 0
		}
		ppb := ctx.ptrsPerBlock()
		rel := logical - singleEnd
		outer := rel / ppb
		inner := rel % ppb
		mid := readIndirectSlot(ctx, ind, outer)
		if mid == 0 {
			return 0, 0
		}
		return readIndirectSlot(ctx, mid, inner), 0
	default:
		return 0, errno.EFBIG
	}
}

func readIndirectSlot(ctx *Context_t, indBlock uint32, slot int) uint32 {
	blk := ReadBlock(ctx, indBlock)
	v := ru32(blk, slot*4)
	kfree(blk)
	return v
}

func writeIndirectSlot(ctx *Context_t, indBlock uint32, slot int, v uint32) {
	blk := ReadBlock(ctx, indBlock)
	wu32(blk, slot*4, v)
	WriteBlock(ctx, indBlock, blk)
	kfree(blk)
}

/// BmapAlloc is Bmap's get_or_alloc_block counterpart: it allocates
/// the physical block (and any indirect blocks needed to reach it) if
/// not already present, mutating iv's direct/indirect pointers in
/// place. The caller is responsible for persisting iv via PutInode.
func BmapAlloc(ctx *Context_t, iv inodeView_t, logical int) (uint32, errno.Err_t) {
	singleEnd, doubleEnd := ctx.indirectReach()
	switch {
	case logical < directBlocks:
		if b := iv.Block(logical); b != 0 {
			return b, 0
		}
		nb, err := AllocBlock(ctx)
		if err != 0 {
			return 0, err
		}
		iv.SetBlock(logical, nb)
		return nb, 0

	case logical < singleEnd:
		ind := iv.Block(singleIndirectIdx)
		if ind == 0 {
			nind, err := AllocBlock(ctx)
			if err != 0 {
				return 0, err
			}
			WriteBlock(ctx, nind, zeroBlock(ctx))
			iv.SetBlock(singleIndirectIdx, nind)
			ind = nind
		}
		slot := logical - directBlocks
		if b := readIndirectSlot(ctx, ind, slot); b != 0 {
			return b, 0
		}
		nb, err := AllocBlock(ctx)
		if err != 0 {
			return 0, err
		}
		writeIndirectSlot(ctx, ind, slot, nb)
		return nb, 0

	case logical < doubleEnd:
		ind := iv.Block(doubleIndirectIdx)
		if ind == 0 {
			nind, err := AllocBlock(ctx)
			if err != 0 {
				return 0, err
			}
			WriteBlock(ctx, nind, zeroBlock(ctx))
			iv.SetBlock(doubleIndirectIdx, nind)
			ind = nind
		}
		ppb := ctx.ptrsPerBlock()
		rel := logical - singleEnd
		outer := rel / ppb
		inner := rel % ppb

		mid := readIndirectSlot(ctx, ind, outer)
		if mid == 0 {
			nmid, err := AllocBlock(ctx)
			if err != 0 {
				return 0, err
			}
			WriteBlock(ctx, nmid, zeroBlock(ctx))
			writeIndirectSlot(ctx, ind, outer, nmid)
			mid = nmid
		}
		if b := readIndirectSlot(ctx, mid, inner); b != 0 {
			return b, 0
		}
		nb, err := AllocBlock(ctx)
		if err != 0 {
			return 0, err
		}
		writeIndirectSlot(ctx, mid, inner, nb)
		return nb, 0

	default:
		return 0, errno.EFBIG
	}
}

/// FreeInodeBlocks walks every direct/single-indirect/double-indirect
/// pointer of iv, freeing each referenced data and indirect block;
/// called once an unlinked inode's link count reaches zero.
func FreeInodeBlocks(ctx *Context_t, iv inodeView_t) {
	for i := 0; i < directBlocks; i++ {
		if b := iv.Block(i); b != 0 {
			FreeBlock(ctx, b)
		}
	}
	if ind := iv.Block(singleIndirectIdx); ind != 0 {
		freeIndirectBlock(ctx, ind)
	}
	if dind := iv.Block(doubleIndirectIdx); dind != 0 {
		ppb := ctx.ptrsPerBlock()
		blk := ReadBlock(ctx, dind)
		for i := 0; i < ppb; i++ {
			if mid := ru32(blk, i*4); mid != 0 {
				freeIndirectBlock(ctx, mid)
			}
		}
		kfree(blk)
		FreeBlock(ctx, dind)
	}
}

func freeIndirectBlock(ctx *Context_t, ind uint32) {
	ppb := ctx.ptrsPerBlock()
	blk := ReadBlock(ctx, ind)
	for i := 0; i < ppb; i++ {
		if b := ru32(blk, i*4); b != 0 {
			FreeBlock(ctx, b)
		}
	}
	kfree(blk)
	FreeBlock(ctx, ind)
}
