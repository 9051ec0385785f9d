// Package kheap implements the kernel's general-purpose allocator:
// kmalloc/kfree backed directly by pmm pages rather than a sub-page
// free-list, following spec.md §3's "kernel heap allocation" data
// model exactly (header-tagged, magic-sentinel-checked). Grounded on
// the shape of a bare-metal Go heap allocator (segment header placed
// just before the data it describes, returned pointer is the slice
// past the header) the way iansmith-mazarin's heap.go does it, adapted
// from a sub-page best-fit free list to a whole-page-run allocator
// since spec.md's PMM only hands out whole pages.
package kheap

import (
	"sync"
	"unsafe"

	"mem"
	"oommsg"
	"pmm"
)

// magic tags a live allocation's header; kfree panics if it doesn't
// see this value, per spec.md's kmalloc invariant.
const magic = 0xdeadc0de

const headerSize = int(unsafe.Sizeof(header_t{}))

type header_t struct {
	Size   int
	Pages  int
	Magic  uint32
}

var lock sync.Mutex

/// Kmalloc rounds size+headerSize up to whole pages, allocates them
/// from pmm, writes the header at the start of the run, and returns a
/// pointer to the byte immediately following it. Returns nil on
/// exhaustion after notifying oommsg.OomCh.
func Kmalloc(size int) unsafe.Pointer {
	if size <= 0 {
		panic("kmalloc: non-positive size")
	}
	lock.Lock()
	defer lock.Unlock()

	total := size + headerSize
	npages := (total + mem.PGSIZE - 1) / mem.PGSIZE
	base := pmm.AllocPages(npages)
	if base == 0 {
		notifyOom(size)
		return nil
	}
	pg := mem.Dmap(mem.Pa_t(base))
	hdr := (*header_t)(unsafe.Pointer(pg))
	hdr.Size = size
	hdr.Pages = npages
	hdr.Magic = magic

	return unsafe.Pointer(uintptr(unsafe.Pointer(pg)) + uintptr(headerSize))
}

func notifyOom(need int) {
	resume := make(chan bool, 1)
	select {
	case oommsg.OomCh <- oommsg.Oommsg_t{Need: need, Resume: resume}:
		<-resume
	default:
	}
}

/// Kfree reads the header at p-headerSize, panics if its magic
/// sentinel doesn't match (corruption or double-free), then returns
/// its pages to pmm.
func Kfree(p unsafe.Pointer) {
	if p == nil {
		return
	}
	lock.Lock()
	defer lock.Unlock()

	hdrAddr := uintptr(p) - uintptr(headerSize)
	hdr := (*header_t)(unsafe.Pointer(hdrAddr))
	if hdr.Magic != magic {
		panic("kfree: bad magic, corruption or double-free")
	}
	hdr.Magic = 0
	pmm.FreePages(hdrAddr, hdr.Pages)
}

/// Ksize returns the usable size (excluding the header) of a live
/// allocation, or -1 if its magic doesn't match.
func Ksize(p unsafe.Pointer) int {
	if p == nil {
		return 0
	}
	hdr := (*header_t)(unsafe.Pointer(uintptr(p) - uintptr(headerSize)))
	if hdr.Magic != magic {
		return -1
	}
	return hdr.Size
}

/// Kzmalloc is Kmalloc followed by zeroing the returned region.
func Kzmalloc(size int) unsafe.Pointer {
	p := Kmalloc(size)
	if p == nil {
		return nil
	}
	b := (*[1 << 30]byte)(p)[:size:size]
	for i := range b {
		b[i] = 0
	}
	return p
}
