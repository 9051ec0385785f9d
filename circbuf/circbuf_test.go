package circbuf

import "testing"

func TestPutGetByte(t *testing.T) {
	var cb Circbuf_t
	cb.Init(4)
	if !cb.Empty() || cb.Full() {
		t.Fatal("fresh buffer must be empty and not full")
	}
	for i := 0; i < 4; i++ {
		if !cb.PutByte(uint8(i)) {
			t.Fatalf("put %d should have succeeded", i)
		}
	}
	if !cb.Full() {
		t.Fatal("buffer should be full after 4 puts into a 4-byte buffer")
	}
	if cb.PutByte(42) {
		t.Fatal("put into a full buffer must fail")
	}
	for i := 0; i < 4; i++ {
		b, ok := cb.GetByte()
		if !ok || b != uint8(i) {
			t.Fatalf("get %d: got (%d, %v), want (%d, true)", i, b, ok, i)
		}
	}
	if !cb.Empty() {
		t.Fatal("buffer should be empty after draining all bytes")
	}
	if _, ok := cb.GetByte(); ok {
		t.Fatal("get from an empty buffer must fail")
	}
}

func TestWriteReadWraparound(t *testing.T) {
	var cb Circbuf_t
	cb.Init(4)
	cb.Write([]uint8{1, 2, 3})
	buf := make([]uint8, 2)
	if n := cb.Read(buf); n != 2 || buf[0] != 1 || buf[1] != 2 {
		t.Fatalf("got n=%d buf=%v", n, buf)
	}
	n := cb.Write([]uint8{4, 5, 6})
	if n != 3 {
		t.Fatalf("expected to fit 3 more bytes after draining 2, got %d", n)
	}
	out := make([]uint8, 4)
	if n := cb.Read(out); n != 4 {
		t.Fatalf("expected 4 bytes remaining, got %d", n)
	}
	want := []uint8{3, 4, 5, 6}
	for i, w := range want {
		if out[i] != w {
			t.Fatalf("out[%d] = %d, want %d", i, out[i], w)
		}
	}
}

func TestLeftUsed(t *testing.T) {
	var cb Circbuf_t
	cb.Init(8)
	cb.Write([]uint8{1, 2, 3})
	if cb.Used() != 3 || cb.Left() != 5 {
		t.Fatalf("used=%d left=%d, want 3,5", cb.Used(), cb.Left())
	}
}
