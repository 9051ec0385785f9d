// Package circbuf implements small fixed-capacity ring buffers. ThunderOS
// uses one Circbuf_t per direction (RX and TX) inside hal.Uart16550_t to
// decouple the interrupt handler, which appends bytes one at a time off
// the wire, from the syscall path, which drains or fills the buffer in
// bulk on behalf of a process.
package circbuf

/// Circbuf_t is a byte ring buffer over a fixed backing array. It is not
/// safe for concurrent use; the console driver serializes access to its
/// RX and TX buffers with its own lock.
type Circbuf_t struct {
	buf  []uint8
	head int
	tail int
}

/// Init allocates the backing array. sz must be a small, fixed size
/// chosen at driver-init time; ThunderOS does not grow console buffers.
func (cb *Circbuf_t) Init(sz int) {
	if sz <= 0 {
		panic("bad circbuf size")
	}
	cb.buf = make([]uint8, sz)
	cb.head, cb.tail = 0, 0
}

/// Full reports whether the buffer has no room left.
func (cb *Circbuf_t) Full() bool {
	return cb.head-cb.tail == len(cb.buf)
}

/// Empty reports whether the buffer holds no bytes.
func (cb *Circbuf_t) Empty() bool {
	return cb.head == cb.tail
}

/// Left returns the number of bytes that can still be written.
func (cb *Circbuf_t) Left() int {
	return len(cb.buf) - (cb.head - cb.tail)
}

/// Used returns the number of bytes available to read.
func (cb *Circbuf_t) Used() int {
	return cb.head - cb.tail
}

/// PutByte appends one byte. It returns false without modifying the
/// buffer if it is full.
func (cb *Circbuf_t) PutByte(b uint8) bool {
	if cb.Full() {
		return false
	}
	cb.buf[cb.head%len(cb.buf)] = b
	cb.head++
	return true
}

/// GetByte removes and returns the oldest byte. ok is false if the
/// buffer is empty.
func (cb *Circbuf_t) GetByte() (b uint8, ok bool) {
	if cb.Empty() {
		return 0, false
	}
	b = cb.buf[cb.tail%len(cb.buf)]
	cb.tail++
	return b, true
}

/// Write copies as much of p into the buffer as fits, returning the
/// number of bytes copied.
func (cb *Circbuf_t) Write(p []uint8) int {
	n := 0
	for n < len(p) && cb.PutByte(p[n]) {
		n++
	}
	return n
}

/// Read copies as many buffered bytes into p as fit, returning the
/// number of bytes copied.
func (cb *Circbuf_t) Read(p []uint8) int {
	n := 0
	for n < len(p) {
		b, ok := cb.GetByte()
		if !ok {
			break
		}
		p[n] = b
		n++
	}
	return n
}
