package ext2

import (
	"testing"
	"unsafe"

	"errno"
	"mem"
	"pmm"
)

// fakeDisk backs Disk_i with a plain in-memory byte slice addressed by
// 512-byte sectors, the lightweight stand-in the Disk_i interface was
// introduced for: filesystem tests drive it directly instead of a
// real virtio.Device_t's virtqueue.
type fakeDisk struct {
	sectors [][512]byte
}

func newFakeDisk(nsectors int) *fakeDisk {
	return &fakeDisk{sectors: make([][512]byte, nsectors)}
}

func (d *fakeDisk) ReadSectors(sector uint64, buf []uint8) errno.Err_t {
	n := len(buf) / 512
	for i := 0; i < n; i++ {
		copy(buf[i*512:(i+1)*512], d.sectors[sector+uint64(i)][:])
	}
	return 0
}

func (d *fakeDisk) WriteSectors(sector uint64, buf []uint8) errno.Err_t {
	n := len(buf) / 512
	for i := 0; i < n; i++ {
		copy(d.sectors[sector+uint64(i)][:], buf[i*512:(i+1)*512])
	}
	return 0
}

// arena backs pmm (and therefore kheap.Kmalloc, which every kbuf call
// routes through) with real Go memory, the same pattern kheap_test.go
// and virtio_test.go both use.
func arena(t *testing.T, npages int) {
	t.Helper()
	buf := make([]byte, (npages+1)*mem.PGSIZE)
	base := uintptr(unsafe.Pointer(&buf[0]))
	aligned := (base + uintptr(mem.PGSIZE) - 1) &^ uintptr(mem.PGSIZE-1)
	pmm.Init(aligned, uintptr(npages*mem.PGSIZE))
}

// buildMinimalImage lays out a tiny one-group, 1024-byte-block ext2
// filesystem via Format, the same entry point cmd/mkfs uses against a
// real disk.
func buildMinimalImage(t *testing.T, totalBlocks int) *fakeDisk {
	t.Helper()
	const blockSize = 1024
	d := newFakeDisk(totalBlocks * (blockSize / 512))
	if err := Format(d, totalBlocks, 32); err != 0 {
		t.Fatalf("Format failed: %d", err)
	}
	return d
}

func mountFake(t *testing.T, totalBlocks int) *Context_t {
	t.Helper()
	arena(t, 4096)
	d := buildMinimalImage(t, totalBlocks)
	ctx, err := Mount(d)
	if err != 0 {
		t.Fatalf("Mount failed: %d", err)
	}
	return ctx
}
