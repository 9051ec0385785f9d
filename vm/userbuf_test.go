package vm

import (
	"testing"

	"mem"
)

func TestUserbufReadWrite(t *testing.T) {
	arena(t, 64)
	root, rootPa := CreateUserRoot()
	as := &Vm_t{Root: root, P_root: rootPa}

	vmas, err := MapUserMemory(root, 0x50000, 0, mem.PGSIZE, true)
	if err != 0 {
		t.Fatalf("MapUserMemory failed: %d", err)
	}
	for _, v := range vmas {
		as.AddVma(v)
	}

	src := []uint8{1, 2, 3, 4, 5, 6, 7, 8}
	if err := as.K2user(src, 0x50000); err != 0 {
		t.Fatalf("K2user failed: %d", err)
	}

	ub := as.Mkuserbuf(0x50000, len(src))
	if ub.Totalsz() != len(src) {
		t.Fatalf("Totalsz = %d, want %d", ub.Totalsz(), len(src))
	}
	got := make([]uint8, len(src))
	n, err := ub.Uioread(got)
	if err != 0 {
		t.Fatalf("Uioread failed: %d", err)
	}
	if n != len(src) {
		t.Fatalf("Uioread n = %d, want %d", n, len(src))
	}
	for i := range src {
		if got[i] != src[i] {
			t.Fatalf("byte %d: got %d want %d", i, got[i], src[i])
		}
	}
	if ub.Remain() != 0 {
		t.Fatalf("Remain = %d, want 0", ub.Remain())
	}

	wb := as.Mkuserbuf(0x50000, 4)
	n, err = wb.Uiowrite([]uint8{0xaa, 0xbb, 0xcc, 0xdd})
	if err != 0 || n != 4 {
		t.Fatalf("Uiowrite failed: n=%d err=%d", n, err)
	}
	dst := make([]uint8, 4)
	if err := as.User2k(dst, 0x50000); err != 0 {
		t.Fatalf("User2k failed: %d", err)
	}
	want := []uint8{0xaa, 0xbb, 0xcc, 0xdd}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("byte %d: got %#x want %#x", i, dst[i], want[i])
		}
	}

	as.Uvmfree()
}

func TestFakeubufReadWrite(t *testing.T) {
	buf := []uint8{9, 8, 7, 6}
	var fb Fakeubuf_t
	fb.Fake_init(append([]uint8{}, buf...))

	if fb.Totalsz() != len(buf) {
		t.Fatalf("Totalsz = %d, want %d", fb.Totalsz(), len(buf))
	}
	got := make([]uint8, len(buf))
	n, err := fb.Uioread(got)
	if err != 0 || n != len(buf) {
		t.Fatalf("Uioread failed: n=%d err=%d", n, err)
	}
	for i := range buf {
		if got[i] != buf[i] {
			t.Fatalf("byte %d: got %d want %d", i, got[i], buf[i])
		}
	}
	if fb.Remain() != 0 {
		t.Fatalf("Remain = %d, want 0", fb.Remain())
	}
}

func TestFakeubufWrite(t *testing.T) {
	dst := make([]uint8, 4)
	var fb Fakeubuf_t
	fb.Fake_init(dst)
	n, err := fb.Uiowrite([]uint8{1, 2, 3, 4})
	if err != 0 || n != 4 {
		t.Fatalf("Uiowrite failed: n=%d err=%d", n, err)
	}
	for i, v := range dst {
		if v != uint8(i+1) {
			t.Fatalf("dst[%d] = %d, want %d", i, v, i+1)
		}
	}
}
