package kheap

import (
	"testing"
	"unsafe"

	"mem"
	"pmm"
)

// arena backs every test's "physical memory" with real Go memory so
// Kmalloc/Kfree's writes through mem.Dmap land somewhere valid; pmm is
// told the arena starts at its first page-aligned address.
func setup(npages int) {
	arena := make([]byte, (npages+1)*mem.PGSIZE)
	base := uintptr(unsafe.Pointer(&arena[0]))
	aligned := (base + uintptr(mem.PGSIZE) - 1) &^ uintptr(mem.PGSIZE-1)
	pmm.Init(aligned, uintptr(npages*mem.PGSIZE))
}

func TestKmallocKfreeRoundtrip(t *testing.T) {
	setup(64)
	_, free0 := pmm.Stats()

	p := Kmalloc(64)
	if p == nil {
		t.Fatal("kmalloc failed")
	}
	if Ksize(p) != 64 {
		t.Fatalf("Ksize = %d, want 64", Ksize(p))
	}
	_, free1 := pmm.Stats()
	if free1 >= free0 {
		t.Fatalf("expected pages consumed: free0=%d free1=%d", free0, free1)
	}

	Kfree(p)
	_, free2 := pmm.Stats()
	if free2 != free0 {
		t.Fatalf("expected all pages returned: free0=%d free2=%d", free0, free2)
	}
}

func TestKfreeBadMagicPanics(t *testing.T) {
	setup(64)
	p := Kmalloc(16)
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on corrupted header")
		}
	}()
	hdr := (*header_t)(unsafe.Pointer(uintptr(p) - uintptr(headerSize)))
	hdr.Magic = 0
	Kfree(p)
}

func TestKzmallocZeroes(t *testing.T) {
	setup(64)
	p := Kzmalloc(32)
	if p == nil {
		t.Fatal("kzmalloc failed")
	}
	b := (*[32]byte)(p)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not zeroed: %d", i, v)
		}
	}
}

func TestKmallocExhaustion(t *testing.T) {
	setup(3)
	var last unsafe.Pointer
	for i := 0; i < 100; i++ {
		p := Kmalloc(4000)
		if p == nil {
			break
		}
		last = p
	}
	_ = last
	if p := Kmalloc(4000); p != nil {
		t.Fatal("expected nil once pages are exhausted")
	}
}
