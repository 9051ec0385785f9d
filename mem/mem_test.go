package mem

import (
	"testing"
	"unsafe"
)

func TestDmapRoundsDownToPage(t *testing.T) {
	var bpg Bytepg_t
	base := Pa_t(uintptr(unsafe.Pointer(&bpg)))
	aligned := base &^ PGOFFSET
	p := aligned + 64
	got := Dmap(p)
	want := (*Pg_t)(unsafe.Pointer(uintptr(aligned)))
	if got != want {
		t.Fatalf("Dmap(%#x) = %p, want %p", p, got, want)
	}
}

func TestDmap8PreservesOffset(t *testing.T) {
	var bpg Bytepg_t
	base := Pa_t(uintptr(unsafe.Pointer(&bpg)))
	aligned := base &^ PGOFFSET
	p := aligned + 16
	got := Dmap8(p)
	want := uintptr(unsafe.Pointer(&got[0]))
	if want != uintptr(aligned)+16 {
		t.Fatalf("Dmap8 offset mismatch: got addr %#x, want %#x", want, uintptr(aligned)+16)
	}
}
