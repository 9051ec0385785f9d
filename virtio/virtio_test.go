package virtio

import (
	"testing"
	"unsafe"

	"errno"
	"mem"
	"pmm"
	"vm"
)

// fakeMMIO backs a virtio-blk device's register file with plain Go
// memory, the same way hal/clint_test.go fakes the CLINT: barrier's
// Read32/Write32 are ordinary loads/stores, so a byte array works as
// a stand-in for a real MMIO window in a test.
type fakeMMIO struct {
	regs [0x200]byte
}

func (f *fakeMMIO) base() uintptr {
	return uintptr(unsafe.Pointer(&f.regs[0]))
}

func put32(b []byte, off int, v uint32) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
}

// testSectorBuf carves a 512-byte buffer out of an arena-backed
// physical page rather than the test binary's own heap, so its
// address falls inside the range InitKernelRoot identity-mapped and
// submit()'s physOf() can translate it.
func testSectorBuf(t *testing.T) []byte {
	t.Helper()
	pa := pmm.AllocPage()
	if pa == 0 {
		t.Fatal("AllocPage failed")
	}
	return mem.Dmap8(mem.Pa_t(pa))[:512]
}

// arena backs physical memory for pmm/vm's DMA allocator, mirroring
// the pattern established in vm/dma_test.go, and also identity-maps
// the whole range into the kernel root the way boot's InitKernelRoot
// call does for real RAM, since submit() translates its DMA and
// caller-supplied buffer addresses through vm.KernelRoot().
func arena(t *testing.T, npages int) {
	t.Helper()
	buf := make([]byte, (npages+1)*mem.PGSIZE)
	base := uintptr(unsafe.Pointer(&buf[0]))
	aligned := (base + uintptr(mem.PGSIZE) - 1) &^ uintptr(mem.PGSIZE-1)
	size := uintptr(npages * mem.PGSIZE)
	pmm.Init(aligned, size)
	if err := vm.InitKernelRoot(aligned, size, mem.PTE_R|mem.PTE_W); err != 0 {
		t.Fatalf("InitKernelRoot failed: %d", err)
	}
}

// newFakeDevice seeds a magic/device-id/queue-max/capacity-bearing
// register file. The DeviceFeatures register is set to a single
// value whose low bit is VIRTIO_F_VERSION_1 and whose other bits are
// the block features this driver negotiates; since the fake never
// actually changes behavior based on FeaturesSel, one shared value
// read at both "selector 0" and "selector 1" works because the two
// masks Probe applies (featVersion1 vs. the block feature bits) don't
// overlap.
func newFakeDevice(t *testing.T) (*fakeMMIO, uintptr) {
	t.Helper()
	f := &fakeMMIO{}
	put32(f.regs[:], regMagic, virtioMagic)
	put32(f.regs[:], regDeviceID, blkDeviceID)
	put32(f.regs[:], regQueueNumMax, 8)
	put32(f.regs[:], regDeviceFeatures, featVersion1|featBlkFlush)
	// capacity = 1024 sectors (512 KiB).
	put32(f.regs[:], regConfig+0, 1024)
	put32(f.regs[:], regConfig+4, 0)
	return f, f.base()
}

func TestProbeRejectsBadMagic(t *testing.T) {
	arena(t, 64)
	f := &fakeMMIO{}
	if _, err := Probe(f.base()); err != errno.EVIRTIO_PROBE {
		t.Fatalf("err = %d, want EVIRTIO_PROBE", err)
	}
}

func TestProbeRejectsWrongDeviceID(t *testing.T) {
	arena(t, 64)
	f := &fakeMMIO{}
	put32(f.regs[:], regMagic, virtioMagic)
	put32(f.regs[:], regDeviceID, 99)
	if _, err := Probe(f.base()); err != errno.EVIRTIO_PROBE {
		t.Fatalf("err = %d, want EVIRTIO_PROBE", err)
	}
}

func TestProbeRejectsLegacyOnlyDevice(t *testing.T) {
	arena(t, 64)
	f, base := newFakeDevice(t)
	put32(f.regs[:], regDeviceFeatures, featBlkFlush) // no VIRTIO_F_VERSION_1
	if _, err := Probe(base); err != errno.EVIRTIO_PROBE {
		t.Fatalf("err = %d, want EVIRTIO_PROBE", err)
	}
}

func TestProbeNegotiatesAndSetsUpQueue(t *testing.T) {
	arena(t, 256)
	f, base := newFakeDevice(t)

	d, err := Probe(base)
	if err != 0 {
		t.Fatalf("Probe failed: %d", err)
	}
	if d.Capacity() != 1024 {
		t.Fatalf("capacity = %d, want 1024", d.Capacity())
	}
	if d.BlockSize() != 512 {
		t.Fatalf("block size = %d, want default 512 (F_BLK_SIZE not negotiated)", d.BlockSize())
	}
	if !d.flushSupported {
		t.Fatal("F_FLUSH was offered and should have been accepted")
	}
	if d.q != 8 {
		t.Fatalf("queue size = %d, want min(max,64) = 8", d.q)
	}
	if d.numFree != 8 {
		t.Fatalf("numFree = %d, want 8", d.numFree)
	}
	status := uint32(f.regs[regStatus])
	want := statusAcknowledge | statusDriver | statusFeaturesOK | statusDriverOK
	if status != want {
		t.Fatalf("final status = %#x, want %#x", status, want)
	}
}

// driveDevice emulates the device side of one request: waits for
// avail.Idx to advance, writes VIRTIO_BLK_S_OK into the descriptor
// chain's status buffer, appends a used entry, and bumps used.Idx --
// exactly what poll() is spinning to observe.
func driveDevice(d *Device_t) {
	go func() {
		startIdx := d.avail.Idx
		for d.avail.Idx == startIdx {
		}
		slot := startIdx % uint16(d.q)
		head := d.avail.Ring[slot]

		idx := head
		for d.descs[idx].Flags&descFNext != 0 {
			idx = d.descs[idx].Next
		}
		statusPtr := (*uint8)(unsafe.Pointer(mem.Dmap(mem.Pa_t(d.descs[idx].Addr))))
		*statusPtr = blkStatusOK

		used := d.used.Idx % uint16(d.q)
		d.used.Ring[used] = vqUsedElem{ID: uint32(head), Len: 1}
		d.used.Idx++
	}()
}

func TestReadSectorsRoundTrip(t *testing.T) {
	arena(t, 256)
	_, base := newFakeDevice(t)

	d, err := Probe(base)
	if err != 0 {
		t.Fatalf("Probe failed: %d", err)
	}

	driveDevice(d)
	buf := testSectorBuf(t)
	if err := d.ReadSectors(5, buf); err != 0 {
		t.Fatalf("ReadSectors failed: %d", err)
	}
	if d.Reads != 1 {
		t.Fatalf("Reads = %d, want 1", d.Reads)
	}
	if d.numFree != uint16(d.q) {
		t.Fatalf("numFree after completion = %d, want %d (chain freed)", d.numFree, d.q)
	}
}

func TestWriteSectorsRejectedWhenReadOnly(t *testing.T) {
	arena(t, 256)
	_, base := newFakeDevice(t)

	d, err := Probe(base)
	if err != 0 {
		t.Fatalf("Probe failed: %d", err)
	}
	d.readOnly = true

	buf := testSectorBuf(t)
	if err := d.WriteSectors(0, buf); err != errno.EROFS {
		t.Fatalf("err = %d, want EROFS", err)
	}
}

func TestFlushNoopWithoutFeature(t *testing.T) {
	arena(t, 256)
	_, base := newFakeDevice(t)

	d, err := Probe(base)
	if err != 0 {
		t.Fatalf("Probe failed: %d", err)
	}
	d.flushSupported = false
	if err := d.Flush(); err != 0 {
		t.Fatalf("Flush() = %d, want 0 (no-op without F_FLUSH)", err)
	}
}
