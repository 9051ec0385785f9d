package barrier

import (
	"testing"
	"unsafe"
)

func TestReadWrite32Roundtrip(t *testing.T) {
	var reg uint32
	addr := uintptr(unsafe.Pointer(&reg))
	Write32(addr, 0xdeadbeef)
	if got := Read32(addr); got != 0xdeadbeef {
		t.Fatalf("Read32 = %#x, want 0xdeadbeef", got)
	}
}

func TestRmw32(t *testing.T) {
	var reg uint32 = 0x1
	addr := uintptr(unsafe.Pointer(&reg))
	Write32(addr, 0x1)
	got := Rmw32(addr, func(v uint32) uint32 { return v | 0x2 })
	if got != 0x3 {
		t.Fatalf("Rmw32 returned %#x, want 0x3", got)
	}
	if Read32(addr) != 0x3 {
		t.Fatalf("register not updated, got %#x", Read32(addr))
	}
}

func TestFencesDoNotPanic(t *testing.T) {
	FenceRW()
	FenceW()
	FenceR()
	FenceIO()
	FenceI()
	CompilerBarrier()
}

func TestIrqdisableRestoreRoundtrip(t *testing.T) {
	Irqenable()
	was := Irqdisable()
	if !was {
		t.Fatal("Irqdisable should report SIE was set after Irqenable")
	}
	was2 := Irqdisable()
	if was2 {
		t.Fatal("second Irqdisable should report SIE already clear")
	}
	Irqrestore(was)
}
