package vm

import (
	"testing"

	"mem"
	"pmm"
)

func TestDmaAllocFreeRoundtrip(t *testing.T) {
	arena(t, 64)
	_, before := pmm.Stats()

	node := DmaAlloc(3*mem.PGSIZE, 0)
	if node == nil {
		t.Fatal("DmaAlloc failed")
	}
	if node.Va != uintptr(node.Pa) {
		t.Fatalf("identity map violated: Va=%#x Pa=%#x", node.Va, node.Pa)
	}
	if node.Size != 3*mem.PGSIZE {
		t.Fatalf("Size = %d, want %d", node.Size, 3*mem.PGSIZE)
	}

	DmaFree(node)
	_, after := pmm.Stats()
	if after != before {
		t.Fatalf("pages leaked: before=%d after=%d", before, after)
	}
}

func TestDmaAllocZeroesWhenAsked(t *testing.T) {
	arena(t, 64)
	node := DmaAlloc(mem.PGSIZE, ZERO)
	if node == nil {
		t.Fatal("DmaAlloc failed")
	}
	b := DmaBytes(node)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not zeroed: %d", i, v)
		}
	}
	DmaFree(node)
}

func TestDmaAllocLinksIntoGlobalList(t *testing.T) {
	arena(t, 64)
	a := DmaAlloc(mem.PGSIZE, 0)
	b := DmaAlloc(mem.PGSIZE, 0)

	found := 0
	for p := dmaList; p != nil; p = p.next {
		if p == a || p == b {
			found++
		}
	}
	if found != 2 {
		t.Fatalf("expected both nodes linked, found %d", found)
	}

	DmaFree(a)
	DmaFree(b)
	if dmaList != nil {
		t.Fatalf("expected empty list after freeing all nodes, got %+v", dmaList)
	}
}

func TestDmaFreeUnknownNodePanics(t *testing.T) {
	arena(t, 64)
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic freeing a foreign node")
		}
	}()
	foreign := &Dmaregion_t{Va: 0x1234, Pa: 0x1234, Size: mem.PGSIZE}
	DmaFree(foreign)
}

func TestDmaAlloc64kAlignment(t *testing.T) {
	arena(t, 64)
	node := DmaAlloc(mem.PGSIZE, ALIGN_64K)
	if node == nil {
		t.Fatal("DmaAlloc failed")
	}
	if node.Va%(64*1024) != 0 {
		t.Fatalf("Va %#x not 64K aligned", node.Va)
	}
	DmaFree(node)
}
