// Command mkfs builds an ext2 disk image and copies a host skeleton
// directory tree into it, the same two-step job the teacher's mkfs
// did for Biscuit's own on-disk format: format an empty image, then
// walk a directory on the host and replicate it inode by inode.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unsafe"

	"defs"
	"errno"
	"ext2"
	"mem"
	"pmm"
	"ustr"
)

// Image geometry. 32768 1024-byte blocks is a 32MiB image, room enough
// for a skeleton userland without guessing at a tighter bound.
const (
	totalBlocks    = 32768
	inodesPerGroup = 4096
)

// fileDisk adapts an *os.File to ext2.Disk_i at 512-byte sector
// granularity, the host-side counterpart to virtio.Device_t.
type fileDisk struct {
	f *os.File
}

func (d *fileDisk) ReadSectors(sector uint64, buf []uint8) errno.Err_t {
	if _, err := d.f.ReadAt(buf, int64(sector)*512); err != nil {
		fmt.Printf("mkfs: read at sector %d: %v\n", sector, err)
		return errno.EIO
	}
	return 0
}

func (d *fileDisk) WriteSectors(sector uint64, buf []uint8) errno.Err_t {
	if _, err := d.f.WriteAt(buf, int64(sector)*512); err != nil {
		fmt.Printf("mkfs: write at sector %d: %v\n", sector, err)
		return errno.EIO
	}
	return 0
}

// backKheap gives kheap.Kmalloc (which every ext2 block read/write
// routes through via kbuf) real memory to carve up, the same way
// ext2's own tests arena a pmm region before mounting.
func backKheap(npages int) {
	buf := make([]byte, (npages+1)*mem.PGSIZE)
	base := uintptr(unsafe.Pointer(&buf[0]))
	aligned := (base + uintptr(mem.PGSIZE) - 1) &^ uintptr(mem.PGSIZE-1)
	pmm.Init(aligned, uintptr(npages*mem.PGSIZE))
}

// copydata streams src's contents on the host into dst within fs,
// 4KiB at a time.
func copydata(src string, fs *ext2.Filesystem_t, ino uint) {
	srcFile, err := os.Open(src)
	if err != nil {
		panic(err)
	}
	defer srcFile.Close()

	buf := make([]byte, 4096)
	off := 0
	for {
		n, readErr := srcFile.Read(buf)
		if readErr != nil && readErr != io.EOF {
			panic(readErr)
		}
		if n > 0 {
			wrote, werr := fs.Write(ino, buf[:n], off)
			if werr != 0 {
				panic(fmt.Sprintf("mkfs: write failed: %d", werr))
			}
			off += wrote
		}
		if readErr == io.EOF {
			break
		}
	}
}

// addfiles walks skeldir on the host and replicates its contents into
// fs, creating a directory or regular file at each matching path.
func addfiles(fs *ext2.Filesystem_t, skeldir string) {
	err := filepath.WalkDir(skeldir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			fmt.Printf("mkfs: failed to access %q: %v\n", path, err)
			return err
		}
		rel := strings.TrimPrefix(path, skeldir)
		if rel == "" {
			return nil
		}
		rel = "/" + strings.TrimPrefix(rel, "/")

		if d.IsDir() {
			if e := fs.Mkdir(ustr.Ustr(rel), int(defs.DefaultDirMode)); e != 0 {
				fmt.Printf("mkfs: failed to create dir %v: %d\n", rel, e)
			}
			return nil
		}

		ino, e := fs.Open(ustr.Ustr(rel), defs.O_CREAT|defs.O_TRUNC, defs.DefaultFileMode)
		if e != 0 {
			fmt.Printf("mkfs: failed to create file %v: %d\n", rel, e)
			return nil
		}
		copydata(path, fs, ino)
		fs.Close(ino)
		return nil
	})
	if err != nil {
		fmt.Printf("mkfs: error walking %q: %v\n", skeldir, err)
		os.Exit(1)
	}
}

func main() {
	if len(os.Args) < 3 {
		fmt.Printf("Usage: mkfs <output image> <skel dir>\n")
		os.Exit(1)
	}
	image := os.Args[1]
	skeldir := os.Args[2]

	f, err := os.Create(image)
	if err != nil {
		panic(err)
	}
	defer f.Close()
	if err := f.Truncate(int64(totalBlocks) * 1024); err != nil {
		panic(err)
	}

	backKheap(8192)

	disk := &fileDisk{f: f}
	if e := ext2.Format(disk, totalBlocks, inodesPerGroup); e != 0 {
		fmt.Printf("mkfs: format failed: %d\n", e)
		os.Exit(1)
	}

	ctx, e := ext2.Mount(disk)
	if e != 0 {
		fmt.Printf("mkfs: not a valid fs: %d\n", e)
		os.Exit(1)
	}
	fs := &ext2.Filesystem_t{Ctx: ctx}

	addfiles(fs, skeldir)
}
