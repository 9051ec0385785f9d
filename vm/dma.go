package vm

import (
	"sync"
	"unsafe"

	"kheap"
	"mem"
	"pmm"
	"util"
)

/// Dmaflag_t selects alignment/zeroing behavior for DmaAlloc.
type Dmaflag_t int

const (
	ZERO      Dmaflag_t = 1 << 0
	ALIGN_4K  Dmaflag_t = 1 << 1
	ALIGN_64K Dmaflag_t = 1 << 2
)

/// Dmaregion_t is one node of the kernel-global DMA region list:
/// virtual address, physical address, and page-rounded size. Since
/// ThunderOS identity-maps all of RAM, Va and Pa always hold the same
/// numeric value; both are kept so call sites can read whichever is
/// semantically clearer, matching spec.md §3's "DMA region" fields.
type Dmaregion_t struct {
	Va   uintptr
	Pa   mem.Pa_t
	Size int
	next *Dmaregion_t
}

var dmaLock sync.Mutex
var dmaList *Dmaregion_t

// alignPages returns the number of pages to allocate so the run starts
// on a multiple of align bytes; ALIGN_64K asks pmm for 15 extra pages
// (64K/PGSIZE - 1) of slack and hands back the first 64K-aligned page within the run.
func alignPages(npages int, flags Dmaflag_t) int {
	if flags&ALIGN_64K != 0 {
		extra := (64*1024)/mem.PGSIZE - 1
		if extra > 0 {
			return npages + extra
		}
	}
	return npages
}

func align64k(pa uintptr) uintptr {
	return util.Roundup(pa, 64*1024)
}

/// DmaAlloc rounds size up to whole pages, obtains a physically
/// contiguous run from pmm, optionally zeroes it, allocates a tracker
/// node from the kernel heap, links it into the global DMA list, and
/// returns the node. Since the kernel identity-maps RAM, the node's Va
/// equals its Pa. Returns nil on exhaustion.
func DmaAlloc(size int, flags Dmaflag_t) *Dmaregion_t {
	if size <= 0 {
		panic("dma_alloc: non-positive size")
	}
	npages := util.Roundup(size, mem.PGSIZE) / mem.PGSIZE
	reqPages := alignPages(npages, flags)

	base := pmm.AllocPages(reqPages)
	if base == 0 {
		return nil
	}

	start := base
	if flags&ALIGN_64K != 0 {
		start = align64k(base)
	}
	unused := int(start-base) / mem.PGSIZE
	if unused > 0 {
		pmm.FreePages(base, unused)
	}
	trailing := reqPages - unused - npages
	if trailing > 0 {
		pmm.FreePages(start+uintptr(npages*mem.PGSIZE), trailing)
	}

	if flags&ZERO != 0 {
		for i := 0; i < npages; i++ {
			pg := mem.Dmap(mem.Pa_t(start) + mem.Pa_t(i*mem.PGSIZE))
			for j := range pg {
				pg[j] = 0
			}
		}
	}

	nodep := kheap.Kmalloc(int(unsafe.Sizeof(Dmaregion_t{})))
	if nodep == nil {
		pmm.FreePages(start, npages)
		return nil
	}
	node := (*Dmaregion_t)(nodep)
	node.Va = start
	node.Pa = mem.Pa_t(start)
	node.Size = npages * mem.PGSIZE

	dmaLock.Lock()
	node.next = dmaList
	dmaList = node
	dmaLock.Unlock()

	return node
}

/// DmaFree unlinks node from the global DMA list, returns its pages to
/// pmm, and frees its tracker allocation. Panics if node is not on the
/// list (double free or a foreign pointer).
func DmaFree(node *Dmaregion_t) {
	if node == nil {
		return
	}
	dmaLock.Lock()
	if dmaList == node {
		dmaList = node.next
	} else {
		found := false
		for p := dmaList; p != nil; p = p.next {
			if p.next == node {
				p.next = node.next
				found = true
				break
			}
		}
		if !found {
			dmaLock.Unlock()
			panic("dma_free: node not on the DMA list")
		}
	}
	dmaLock.Unlock()

	pmm.FreePages(uintptr(node.Pa), node.Size/mem.PGSIZE)
	node.next = nil
	kheap.Kfree(unsafe.Pointer(node))
}

/// DmaBytes returns a byte slice spanning node's entire region,
/// addressed through the identity map. Since the pages backing a
/// single DmaAlloc are physically (and so, identity-mapped, virtually)
/// contiguous, one slice can span the whole run.
func DmaBytes(node *Dmaregion_t) []uint8 {
	p := unsafe.Pointer(mem.Dmap(node.Pa))
	return unsafe.Slice((*uint8)(p), node.Size)
}
