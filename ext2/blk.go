package ext2

// ReadBlock reads one filesystem block (ctx.BlockSize bytes) starting
// at the device sector blockNum*sectorsPerBlock into a freshly
// kheap-allocated buffer.
func ReadBlock(ctx *Context_t, blockNum uint32) []uint8 {
	buf := kbuf(ctx.BlockSize)
	sector := uint64(blockNum) * ctx.sectorsPerBlock()
	if err := ctx.Disk.ReadSectors(sector, buf); err != 0 {
		panic("ext2: block read failed")
	}
	ctx.Reads.Inc()
	return buf
}

// WriteBlock writes data (exactly ctx.BlockSize bytes) to the device
// sector backing blockNum.
func WriteBlock(ctx *Context_t, blockNum uint32, data []uint8) {
	if len(data) != ctx.BlockSize {
		panic("ext2: WriteBlock length mismatch")
	}
	sector := uint64(blockNum) * ctx.sectorsPerBlock()
	if err := ctx.Disk.WriteSectors(sector, data); err != 0 {
		panic("ext2: block write failed")
	}
	ctx.Writes.Inc()
}

// zeroBlock returns a freshly allocated, all-zero block buffer; kheap
// makes no zeroing guarantee, so the buffer is cleared explicitly.
func zeroBlock(ctx *Context_t) []uint8 {
	b := kbuf(ctx.BlockSize)
	for i := range b {
		b[i] = 0
	}
	return b
}

// testBit reports whether bit i is set in a bitmap byte slice.
func testBit(bm []uint8, i int) bool {
	return bm[i/8]&(1<<uint(i%8)) != 0
}

// setBit sets bit i in a bitmap byte slice.
func setBit(bm []uint8, i int) {
	bm[i/8] |= 1 << uint(i%8)
}

// clearBit clears bit i in a bitmap byte slice.
func clearBit(bm []uint8, i int) {
	bm[i/8] &^= 1 << uint(i%8)
}
