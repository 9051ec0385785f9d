package ext2

import "errno"

// AllocBlock scans group 0's block bitmap for the first clear bit,
// sets it, writes the bitmap back, and decrements the group
// descriptor's and superblock's free-block counters, per spec.md
// §4.7's "Caller picks the starting group (currently always 0)."
func AllocBlock(ctx *Context_t) (uint32, errno.Err_t) {
	ctx.Lock()
	defer ctx.Unlock()

	const group = 0
	if ctx.gdFreeBlocks(group) == 0 {
		return 0, errno.EFS_NOBLK
	}
	bm := ReadBlock(ctx, ctx.gdBlockBitmap(group))
	defer kfree(bm)

	blocksInGroup := ctx.BlocksPerGroup
	if group == ctx.NumGroups-1 {
		last := int(ctx.blocksCount()) - ctx.FirstDataBlock - group*ctx.BlocksPerGroup
		blocksInGroup = last
	}

	for i := 0; i < blocksInGroup; i++ {
		if !testBit(bm, i) {
			setBit(bm, i)
			WriteBlock(ctx, ctx.gdBlockBitmap(group), bm)
			ctx.setGdFreeBlocks(group, ctx.gdFreeBlocks(group)-1)
			ctx.setFreeBlocksCount(ctx.freeBlocksCount() - 1)
			ctx.flushGroupDescBlock(group)
			ctx.flushSuper()
			return uint32(ctx.FirstDataBlock) + uint32(group*ctx.BlocksPerGroup) + uint32(i), 0
		}
	}
	return 0, errno.EFS_NOBLK
}

/// FreeBlock clears block's bit in its group's bitmap and restores the
/// group/superblock free counters.
func FreeBlock(ctx *Context_t, block uint32) {
	ctx.Lock()
	defer ctx.Unlock()

	rel := int(block) - ctx.FirstDataBlock
	if rel < 0 {
		panic("ext2: FreeBlock out of range")
	}
	group := rel / ctx.BlocksPerGroup
	i := rel % ctx.BlocksPerGroup

	bm := ReadBlock(ctx, ctx.gdBlockBitmap(group))
	if !testBit(bm, i) {
		kfree(bm)
		panic("ext2: double free of block")
	}
	clearBit(bm, i)
	WriteBlock(ctx, ctx.gdBlockBitmap(group), bm)
	kfree(bm)

	ctx.setGdFreeBlocks(group, ctx.gdFreeBlocks(group)+1)
	ctx.setFreeBlocksCount(ctx.freeBlocksCount() + 1)
	ctx.flushGroupDescBlock(group)
	ctx.flushSuper()
}

/// AllocInode mirrors AllocBlock for the inode bitmap; group 0 only.
func AllocInode(ctx *Context_t) (uint32, errno.Err_t) {
	ctx.Lock()
	defer ctx.Unlock()

	const group = 0
	if ctx.gdFreeInodes(group) == 0 {
		return 0, errno.EFS_NOINODE
	}
	bm := ReadBlock(ctx, ctx.gdInodeBitmap(group))
	defer kfree(bm)

	inodesInGroup := ctx.InodesPerGroup
	if group == ctx.NumGroups-1 {
		last := int(ctx.inodesCount()) - group*ctx.InodesPerGroup
		inodesInGroup = last
	}

	for i := 0; i < inodesInGroup; i++ {
		if !testBit(bm, i) {
			setBit(bm, i)
			WriteBlock(ctx, ctx.gdInodeBitmap(group), bm)
			ctx.setGdFreeInodes(group, ctx.gdFreeInodes(group)-1)
			ctx.setFreeInodesCount(ctx.freeInodesCount() - 1)
			ctx.flushGroupDescBlock(group)
			ctx.flushSuper()
			return uint32(group*ctx.InodesPerGroup+i) + 1, 0
		}
	}
	return 0, errno.EFS_NOINODE
}

/// FreeInode clears ino's bit in its group's inode bitmap and restores
/// the group/superblock free counters.
func FreeInode(ctx *Context_t, ino uint32) errno.Err_t {
	ctx.Lock()
	defer ctx.Unlock()

	if ino == 0 || int(ino) > int(ctx.inodesCount()) {
		return errno.EFS_BADINO
	}
	idx := int(ino) - 1
	group := idx / ctx.InodesPerGroup
	i := idx % ctx.InodesPerGroup

	bm := ReadBlock(ctx, ctx.gdInodeBitmap(group))
	if !testBit(bm, i) {
		kfree(bm)
		panic("ext2: double free of inode")
	}
	clearBit(bm, i)
	WriteBlock(ctx, ctx.gdInodeBitmap(group), bm)
	kfree(bm)

	ctx.setGdFreeInodes(group, ctx.gdFreeInodes(group)+1)
	ctx.setFreeInodesCount(ctx.freeInodesCount() + 1)
	ctx.flushGroupDescBlock(group)
	ctx.flushSuper()
	return 0
}
