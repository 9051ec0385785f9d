package util

import "testing"

func TestRoundupRounddown(t *testing.T) {
	if Roundup(4097, 4096) != 8192 {
		t.Fatal("roundup wrong")
	}
	if Rounddown(4097, 4096) != 4096 {
		t.Fatal("rounddown wrong")
	}
	if Roundup(4096, 4096) != 4096 {
		t.Fatal("roundup of aligned value should be itself")
	}
}

func TestMin(t *testing.T) {
	if Min(3, 5) != 3 {
		t.Fatal("min wrong")
	}
	if Min(uint32(9), uint32(2)) != 2 {
		t.Fatal("min wrong for uint32")
	}
}

func TestReadnWriten(t *testing.T) {
	buf := make([]uint8, 16)
	Writen(buf, 8, 0, 0x1122334455667788)
	if got := Readn(buf, 8, 0); got != 0x1122334455667788 {
		t.Fatalf("readn/writen roundtrip failed: got %x", got)
	}
	Writen(buf, 4, 4, 0xdeadbeef)
	// only low 32 bits are meaningful for a 4-byte field.
	if got := Readn(buf, 4, 4); got != int(uint32(0xdeadbeef)) {
		t.Fatalf("4-byte roundtrip failed: got %x", got)
	}
}
