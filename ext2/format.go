package ext2

import "errno"

// Format lays out a fresh one-group ext2 filesystem on disk: superblock
// at block 1, group descriptor at block 2, block/inode bitmaps at
// blocks 3/4, an inode table sized for inodesPerGroup starting at block
// 5, and data blocks after that. Inode 1 (reserved bad-blocks) and
// inode 2 (root) come out pre-allocated; root's single data block
// holds "." and ".." only. cmd/mkfs calls this once per image, then
// mounts the result and builds the rest of the tree through the normal
// Ops_i surface.
func Format(disk Disk_i, totalBlocks int, inodesPerGroup int) errno.Err_t {
	const blockSize = 1024
	const inodeSize = defaultInodeSize
	const bitmapBlk = 3
	const inodeBitmapBlk = 4
	const inodeTableStart = 5

	if inodesPerGroup <= 0 {
		inodesPerGroup = 32
	}
	inodeTableBlocks := (inodesPerGroup*inodeSize + blockSize - 1) / blockSize
	dataStart := inodeTableStart + inodeTableBlocks
	if totalBlocks <= dataStart+1 {
		return errno.EFS_INVAL
	}
	rootDataBlk := uint32(dataStart)

	img := make([]byte, totalBlocks*blockSize)

	sb := img[1*blockSize : 2*blockSize]
	wu32(sb, sOffInodesCount, uint32(inodesPerGroup))
	wu32(sb, sOffBlocksCount, uint32(totalBlocks))
	wu32(sb, sOffFreeBlocks, uint32(totalBlocks-dataStart-1))
	wu32(sb, sOffFreeInodes, uint32(inodesPerGroup-2))
	wu32(sb, sOffFirstData, 1)
	wu32(sb, sOffLogBlockSize, 0)
	wu32(sb, sOffBlocksPerGrp, uint32(totalBlocks))
	wu32(sb, sOffInodesPerGrp, uint32(inodesPerGroup))
	wu16(sb, sOffMagic, sbMagicValue)

	gd := img[2*blockSize : 2*blockSize+gdSize]
	wu32(gd, gOffBlockBitmap, bitmapBlk)
	wu32(gd, gOffInodeBitmap, inodeBitmapBlk)
	wu32(gd, gOffInodeTable, inodeTableStart)
	wu16(gd, gOffFreeBlocks, uint16(totalBlocks-dataStart-1))
	wu16(gd, gOffFreeInodes, uint16(inodesPerGroup-2))
	wu16(gd, gOffUsedDirs, 1)

	bbm := img[bitmapBlk*blockSize : (bitmapBlk+1)*blockSize]
	for i := 0; i < dataStart; i++ {
		bbm[i/8] |= 1 << uint(i%8)
	}

	ibm := img[inodeBitmapBlk*blockSize : (inodeBitmapBlk+1)*blockSize]
	ibm[0] |= 1<<0 | 1<<1

	rootOff := inodeTableStart*blockSize + (rootIno-1)*inodeSize
	riv := inodeView_t(img[rootOff : rootOff+inodeSize])
	riv.SetMode(uint16(S_IFDIR | 0755))
	riv.SetLinks(2)
	riv.SetSize(blockSize)
	riv.SetBlocks512(blockSize / 512)
	riv.SetBlock(0, rootDataBlk)

	dirBlk := img[int(rootDataBlk)*blockSize : int(rootDataBlk+1)*blockSize]
	dot := Dirdata_t{dirBlk}
	dot.SetIno(rootIno)
	dotSize := minEntrySize(1)
	dot.SetRecLen(uint16(dotSize))
	dot.SetFileType(FT_DIR)
	dot.SetName(".")
	dotdot := Dirdata_t{dirBlk[dotSize:]}
	dotdot.SetIno(rootIno)
	dotdot.SetRecLen(uint16(blockSize - dotSize))
	dotdot.SetFileType(FT_DIR)
	dotdot.SetName("..")

	sectorsPerBlock := blockSize / 512
	buf := make([]uint8, 512)
	for i := 0; i < totalBlocks*sectorsPerBlock; i++ {
		copy(buf, img[i*512:(i+1)*512])
		if err := disk.WriteSectors(uint64(i), buf); err != 0 {
			return err
		}
	}
	return 0
}
