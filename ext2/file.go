package ext2

import "errno"

/// ReadFile implements spec.md's read_file: clamps n to i_size-off,
/// iterates blocks via the index map, and returns zeros for sparse
/// holes without issuing I/O.
func ReadFile(ctx *Context_t, ino uint32, off int, buf []uint8) (int, errno.Err_t) {
	iv, err := GetInode(ctx, ino)
	if err != 0 {
		return 0, err
	}
	if off < 0 {
		return 0, errno.EINVAL
	}
	size := int(iv.Size())
	if off >= size {
		return 0, 0
	}
	n := len(buf)
	if off+n > size {
		n = size - off
	}

	done := 0
	for done < n {
		lb := (off + done) / ctx.BlockSize
		blockOff := (off + done) % ctx.BlockSize
		chunk := ctx.BlockSize - blockOff
		if chunk > n-done {
			chunk = n - done
		}

		pb, err := Bmap(ctx, iv, lb)
		if err != 0 {
			return done, err
		}
		if pb == 0 {
			for i := 0; i < chunk; i++ {
				buf[done+i] = 0
			}
		} else {
			blk := ReadBlock(ctx, pb)
			copy(buf[done:done+chunk], blk[blockOff:blockOff+chunk])
			kfree(blk)
		}
		done += chunk
	}
	return done, 0
}

/// WriteFile implements spec.md's write_file: iterates blocks,
/// allocating missing ones via BmapAlloc, read-modify-writing partial
/// blocks, extending i_size past the current end, and updating
/// i_blocks as ceil(i_size/block_size)*(block_size/512).
func WriteFile(ctx *Context_t, ino uint32, off int, buf []uint8) (int, errno.Err_t) {
	if off < 0 {
		return 0, errno.EINVAL
	}
	iv, err := GetInode(ctx, ino)
	if err != 0 {
		return 0, err
	}

	n := len(buf)
	done := 0
	for done < n {
		lb := (off + done) / ctx.BlockSize
		blockOff := (off + done) % ctx.BlockSize
		chunk := ctx.BlockSize - blockOff
		if chunk > n-done {
			chunk = n - done
		}

		pb, err := BmapAlloc(ctx, iv, lb)
		if err != 0 {
			return done, err
		}

		var blk []uint8
		if chunk == ctx.BlockSize {
			blk = zeroBlock(ctx)
		} else {
			blk = ReadBlock(ctx, pb)
		}
		copy(blk[blockOff:blockOff+chunk], buf[done:done+chunk])
		WriteBlock(ctx, pb, blk)
		kfree(blk)
		done += chunk
	}

	newSize := off + done
	if newSize > int(iv.Size()) {
		iv.SetSize(uint32(newSize))
	}
	blocks := (int(iv.Size()) + ctx.BlockSize - 1) / ctx.BlockSize
	iv.SetBlocks512(uint32(blocks * (ctx.BlockSize / 512)))

	if perr := PutInode(ctx, ino, iv); perr != 0 {
		return done, perr
	}
	return done, 0
}
