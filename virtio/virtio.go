// Package virtio implements spec.md §4.8 and the register table of §6:
// the modern-mode (VIRTIO_F_VERSION_1-only) MMIO probe and feature
// negotiation sequence, virtqueue setup, and a synchronous polling
// block request path. Grounded on the teacher's fs.Bdevcmd_t
// (BDEV_READ/BDEV_WRITE/BDEV_FLUSH) for the request-kind vocabulary
// and stats.Counter_t for the read/write/error counters spec.md §4.8
// calls for; the MMIO register layout itself follows the same
// barrier.Read32/Write32 + bracketing-fence idiom hal's Clint_t
// already established, since no AHCI/virtio source survived retrieval
// from the teacher and this is the pack's only block transport.
package virtio

import (
	"sync"
	"unsafe"

	"barrier"
	"errno"
	"mem"
	"stats"
	"vm"
)

// MMIO register offsets, relative to a device's base, per spec.md §6.
const (
	regMagic             = 0x000
	regVersion           = 0x004
	regDeviceID          = 0x008
	regVendorID          = 0x00C
	regDeviceFeatures    = 0x010
	regDeviceFeaturesSel = 0x014
	regDriverFeatures    = 0x020
	regDriverFeaturesSel = 0x024
	regQueueSel          = 0x030
	regQueueNumMax       = 0x034
	regQueueNum          = 0x038
	regQueueReady        = 0x044
	regQueueNotify       = 0x050
	regInterruptStatus   = 0x060
	regInterruptAck      = 0x064
	regStatus            = 0x070
	regQueueDescLow      = 0x080
	regQueueDescHigh     = 0x084
	regQueueAvailLow     = 0x090
	regQueueAvailHigh    = 0x094
	regQueueUsedLow      = 0x0A0
	regQueueUsedHigh     = 0x0A4
	regConfig            = 0x100
)

const virtioMagic uint32 = 0x74726976
const blkDeviceID uint32 = 2

// Status register bits.
const (
	statusAcknowledge  uint32 = 1
	statusDriver       uint32 = 2
	statusDriverOK     uint32 = 4
	statusFeaturesOK   uint32 = 8
	statusNeedsReset   uint32 = 64
	statusFailed       uint32 = 128
)

// Feature bits. Version1 lives in the high 32-bit half (bit 32
// overall, selector 1); the rest live in the low half (selector 0).
const (
	featVersion1    uint32 = 1 << 0 // selector 1
	featBlkSizeMax  uint32 = 1 << 1
	featBlkSegMax   uint32 = 1 << 2
	featBlkRO       uint32 = 1 << 5
	featBlkBlkSize  uint32 = 1 << 6
	featBlkFlush    uint32 = 1 << 9
)

// Block request types and status codes, per the virtio-blk spec.
const (
	blkTypeIn    uint32 = 0
	blkTypeOut   uint32 = 1
	blkTypeFlush uint32 = 4
)

const (
	blkStatusOK     uint8 = 0
	blkStatusIOErr  uint8 = 1
	blkStatusUnsupp uint8 = 2
)

// pollCeiling bounds Device_t.poll, per spec.md §4.8's "bounded
// polling loop (e.g. 10^6 iterations)".
const pollCeiling = 1_000_000

// MaxQueueSize is the cap spec.md §4.8 names: "choose Q = min(max,
// 64)". Fixing it lets the three rings be ordinary arrays sized at
// compile time instead of runtime-shaped DMA layouts.
const MaxQueueSize = 64

type vqDesc struct {
	Addr  uint64
	Len   uint32
	Flags uint16
	Next  uint16
}

const (
	descFNext  uint16 = 1
	descFWrite uint16 = 2
)

type vqAvail struct {
	Flags     uint16
	Idx       uint16
	Ring      [MaxQueueSize]uint16
	UsedEvent uint16
}

type vqUsedElem struct {
	ID  uint32
	Len uint32
}

type vqUsed struct {
	Flags      uint16
	Idx        uint16
	Ring       [MaxQueueSize]vqUsedElem
	AvailEvent uint16
}

// Device_t is a probed virtio-blk device: its MMIO base, its single
// virtqueue, and the counters and reusable request buffers a
// synchronous one-request-at-a-time driver needs.
type Device_t struct {
	base uintptr

	q            int
	descNode     *vm.Dmaregion_t
	availNode    *vm.Dmaregion_t
	usedNode     *vm.Dmaregion_t
	descs        *[MaxQueueSize]vqDesc
	avail        *vqAvail
	used         *vqUsed
	freeHead     uint16
	numFree      uint16
	lastSeenUsed uint16

	hdrNode    *vm.Dmaregion_t
	statusNode *vm.Dmaregion_t

	lock sync.Mutex

	capacity       uint64 // 512-byte sectors
	blockSize      uint32
	readOnly       bool
	flushSupported bool

	Reads  stats.Counter_t
	Writes stats.Counter_t
	Errors stats.Counter_t
}

/// Probe performs spec.md §4.8's discovery sequence: magic and
/// device-id check, ACKNOWLEDGE/DRIVER/FEATURES_OK/DRIVER_OK status
/// progression negotiating only the feature bits this driver
/// understands, virtqueue setup, and a read of the device
/// configuration area for capacity and block size.
func Probe(base uintptr) (*Device_t, errno.Err_t) {
	if barrier.Read32(base+regMagic) != virtioMagic {
		return nil, errno.EVIRTIO_PROBE
	}
	if barrier.Read32(base+regDeviceID) != blkDeviceID {
		return nil, errno.EVIRTIO_PROBE
	}

	barrier.Write32(base+regStatus, 0)
	barrier.Write32(base+regStatus, statusAcknowledge)
	barrier.Write32(base+regStatus, statusAcknowledge|statusDriver)

	barrier.Write32(base+regDeviceFeaturesSel, 0)
	devFeat0 := barrier.Read32(base + regDeviceFeatures)
	barrier.Write32(base+regDeviceFeaturesSel, 1)
	devFeat1 := barrier.Read32(base + regDeviceFeatures)

	accept0 := devFeat0 & (featBlkSizeMax | featBlkSegMax | featBlkRO | featBlkBlkSize | featBlkFlush)
	accept1 := devFeat1 & featVersion1
	if accept1&featVersion1 == 0 {
		// Legacy-only device; this driver requires modern mode.
		barrier.Write32(base+regStatus, statusFailed)
		return nil, errno.EVIRTIO_PROBE
	}

	barrier.Write32(base+regDriverFeaturesSel, 0)
	barrier.Write32(base+regDriverFeatures, accept0)
	barrier.Write32(base+regDriverFeaturesSel, 1)
	barrier.Write32(base+regDriverFeatures, accept1)

	barrier.Write32(base+regStatus, statusAcknowledge|statusDriver|statusFeaturesOK)
	if barrier.Read32(base+regStatus)&statusFeaturesOK == 0 {
		barrier.Write32(base+regStatus, statusFailed)
		return nil, errno.EVIRTIO_PROBE
	}

	d := &Device_t{base: base}
	d.flushSupported = accept0&featBlkFlush != 0
	d.readOnly = accept0&featBlkRO != 0

	if err := d.setupQueue(); err != 0 {
		barrier.Write32(base+regStatus, statusFailed)
		return nil, err
	}

	d.hdrNode = vm.DmaAlloc(16, vm.ZERO)
	d.statusNode = vm.DmaAlloc(1, vm.ZERO)
	if d.hdrNode == nil || d.statusNode == nil {
		barrier.Write32(base+regStatus, statusFailed)
		return nil, errno.ENOMEM
	}

	capLo := barrier.Read32(base + regConfig + 0)
	capHi := barrier.Read32(base + regConfig + 4)
	d.capacity = uint64(capHi)<<32 | uint64(capLo)
	d.blockSize = 512
	if accept0&featBlkBlkSize != 0 {
		d.blockSize = barrier.Read32(base + regConfig + 20)
	}

	barrier.Write32(base+regStatus, statusAcknowledge|statusDriver|statusFeaturesOK|statusDriverOK)
	return d, 0
}

func (d *Device_t) setupQueue() errno.Err_t {
	barrier.Write32(d.base+regQueueSel, 0)
	max := barrier.Read32(d.base + regQueueNumMax)
	if max == 0 {
		return errno.EVIRTIO_PROBE
	}
	q := MaxQueueSize
	if int(max) < q {
		q = int(max)
	}
	d.q = q

	descNode := vm.DmaAlloc(int(unsafe.Sizeof([MaxQueueSize]vqDesc{})), vm.ZERO)
	availNode := vm.DmaAlloc(int(unsafe.Sizeof(vqAvail{})), vm.ZERO)
	usedNode := vm.DmaAlloc(int(unsafe.Sizeof(vqUsed{})), vm.ZERO)
	if descNode == nil || availNode == nil || usedNode == nil {
		return errno.ENOMEM
	}
	d.descNode, d.availNode, d.usedNode = descNode, availNode, usedNode
	d.descs = (*[MaxQueueSize]vqDesc)(unsafe.Pointer(descNode.Va))
	d.avail = (*vqAvail)(unsafe.Pointer(availNode.Va))
	d.used = (*vqUsed)(unsafe.Pointer(usedNode.Va))

	for i := 0; i < q-1; i++ {
		d.descs[i].Next = uint16(i + 1)
	}
	d.freeHead = 0
	d.numFree = uint16(q)

	barrier.Write32(d.base+regQueueNum, uint32(q))
	barrier.Write32(d.base+regQueueDescLow, uint32(descNode.Pa))
	barrier.Write32(d.base+regQueueDescHigh, uint32(uint64(descNode.Pa)>>32))
	barrier.Write32(d.base+regQueueAvailLow, uint32(availNode.Pa))
	barrier.Write32(d.base+regQueueAvailHigh, uint32(uint64(availNode.Pa)>>32))
	barrier.Write32(d.base+regQueueUsedLow, uint32(usedNode.Pa))
	barrier.Write32(d.base+regQueueUsedHigh, uint32(uint64(usedNode.Pa)>>32))
	barrier.Write32(d.base+regQueueReady, 1)
	return 0
}

/// Capacity returns the device's size in 512-byte sectors.
func (d *Device_t) Capacity() uint64 { return d.capacity }

/// BlockSize returns the device-reported optimal block size, or 512
/// if the device never negotiated VIRTIO_BLK_F_BLK_SIZE.
func (d *Device_t) BlockSize() uint32 { return d.blockSize }

/// ReadOnly reports whether the device negotiated VIRTIO_BLK_F_RO.
func (d *Device_t) ReadOnly() bool { return d.readOnly }

func (d *Device_t) allocDesc() uint16 {
	idx := d.freeHead
	d.freeHead = d.descs[idx].Next
	d.numFree--
	return idx
}

// freeChain walks the Next links starting at head and returns every
// descriptor on that chain to the free list.
func (d *Device_t) freeChain(head uint16) {
	idx := head
	n := uint16(0)
	for {
		n++
		desc := &d.descs[idx]
		if desc.Flags&descFNext == 0 {
			desc.Next = d.freeHead
			break
		}
		next := desc.Next
		idx = next
	}
	d.freeHead = head
	d.numFree += n
}

func physOf(vaddr uintptr) (mem.Pa_t, errno.Err_t) {
	root, _ := vm.KernelRoot()
	pa, ok := vm.Translate(root, vaddr)
	if !ok {
		return 0, errno.EFAULT
	}
	return pa, 0
}

// submit builds and posts a descriptor chain and polls for its
// completion: header (always), an optional data buffer, and a status
// byte. deviceWrites selects whether the data descriptor is
// device-writable (a read request) or device-readable (a write).
func (d *Device_t) submit(reqType uint32, sector uint64, buf []uint8, deviceWrites bool) errno.Err_t {
	d.lock.Lock()
	defer d.lock.Unlock()

	need := uint16(2)
	if len(buf) > 0 {
		need = 3
	}
	if d.numFree < need {
		panic("virtio: descriptor ring exhausted by a single in-flight request")
	}

	hdrBytes := vm.DmaBytes(d.hdrNode)
	hdrBytes[0] = uint8(reqType)
	hdrBytes[1] = uint8(reqType >> 8)
	hdrBytes[2] = uint8(reqType >> 16)
	hdrBytes[3] = uint8(reqType >> 24)
	for i := 4; i < 16; i++ {
		hdrBytes[i] = 0
	}
	for i := 0; i < 8; i++ {
		hdrBytes[8+i] = uint8(sector >> (8 * uint(i)))
	}

	statusBytes := vm.DmaBytes(d.statusNode)
	statusBytes[0] = 0xff

	hdrPa, err := physOf(d.hdrNode.Va)
	if err != 0 {
		return err
	}
	statusPa, err := physOf(d.statusNode.Va)
	if err != 0 {
		return err
	}

	head := d.allocDesc()
	cur := head

	var dataIdx uint16
	if len(buf) > 0 {
		dataPa, derr := physOf(uintptr(unsafe.Pointer(&buf[0])))
		if derr != 0 {
			d.freeChain(head)
			return derr
		}
		dataIdx = d.allocDesc()
		d.descs[cur] = vqDesc{Addr: uint64(hdrPa), Len: 16, Flags: descFNext, Next: dataIdx}
		cur = dataIdx

		dataFlags := descFNext
		if deviceWrites {
			dataFlags |= descFWrite
		}
		statusIdx := d.allocDesc()
		d.descs[cur] = vqDesc{Addr: uint64(dataPa), Len: uint32(len(buf)), Flags: dataFlags, Next: statusIdx}
		cur = statusIdx
	} else {
		statusIdx := d.allocDesc()
		d.descs[cur] = vqDesc{Addr: uint64(hdrPa), Len: 16, Flags: descFNext, Next: statusIdx}
		cur = statusIdx
	}
	d.descs[cur] = vqDesc{Addr: uint64(statusPa), Len: 1, Flags: descFWrite, Next: 0}

	barrier.CompilerBarrier()
	slot := d.avail.Idx % uint16(d.q)
	d.avail.Ring[slot] = head
	barrier.FenceW()
	d.avail.Idx++
	barrier.FenceW()
	barrier.Write32(d.base+regQueueNotify, 0)
	barrier.FenceIO()

	if perr := d.poll(); perr != 0 {
		d.Errors.Inc()
		return perr
	}
	if statusBytes[0] != blkStatusOK {
		d.Errors.Inc()
		return errno.EIO
	}
	return 0
}

// poll spins on the used ring until an entry appears or pollCeiling
// iterations elapse, per spec.md §4.8.
func (d *Device_t) poll() errno.Err_t {
	for i := 0; i < pollCeiling; i++ {
		barrier.FenceR()
		if d.lastSeenUsed != d.used.Idx {
			elem := d.used.Ring[d.lastSeenUsed%uint16(d.q)]
			d.lastSeenUsed++
			d.freeChain(uint16(elem.ID))
			if ack := barrier.Read32(d.base + regInterruptStatus); ack != 0 {
				barrier.Write32(d.base+regInterruptAck, ack)
			}
			return 0
		}
	}
	return errno.EVIRTIO_TIMEOUT
}

/// ReadSectors reads len(buf)/512 sectors starting at sector into buf.
func (d *Device_t) ReadSectors(sector uint64, buf []uint8) errno.Err_t {
	if len(buf) == 0 || len(buf)%512 != 0 {
		panic("virtio: read length must be a positive multiple of 512")
	}
	if err := d.submit(blkTypeIn, sector, buf, true); err != 0 {
		return err
	}
	d.Reads.Inc()
	return 0
}

/// WriteSectors writes len(buf)/512 sectors starting at sector from buf.
func (d *Device_t) WriteSectors(sector uint64, buf []uint8) errno.Err_t {
	if d.readOnly {
		return errno.EROFS
	}
	if len(buf) == 0 || len(buf)%512 != 0 {
		panic("virtio: write length must be a positive multiple of 512")
	}
	if err := d.submit(blkTypeOut, sector, buf, false); err != 0 {
		return err
	}
	d.Writes.Inc()
	return 0
}

/// Flush submits a type-FLUSH request if VIRTIO_BLK_F_FLUSH was
/// negotiated; otherwise it is a no-op success, per spec.md §4.8.
func (d *Device_t) Flush() errno.Err_t {
	if !d.flushSupported {
		return 0
	}
	return d.submit(blkTypeFlush, 0, nil, false)
}

/// Stats formats the read/write/error counters, grounded on the
/// teacher's fs.Disk_i.Stats() method signature.
func (d *Device_t) Stats() string {
	return stats.Stats2String(struct {
		Reads, Writes, Errors stats.Counter_t
	}{d.Reads, d.Writes, d.Errors})
}
