package hal

import "sync"

import "barrier"
import "circbuf"

// NS16550A register byte offsets from the UART base.
const (
	uartRBR = 0 // receiver buffer register (read)
	uartTHR = 0 // transmit holding register (write)
	uartIER = 1 // interrupt enable register
	uartFCR = 2 // FIFO control register (write)
	uartLCR = 3 // line control register
	uartMCR = 4 // modem control register
	uartLSR = 5 // line status register
)

const (
	lsrDataReady  = 1 << 0
	lsrThrEmpty   = 1 << 5
)

const rxBufSize = 256
const txBufSize = 256

/// Uart16550_t drives an NS16550A UART over MMIO. It satisfies
/// Console_i. RX bytes land in rx via Notify; TX bytes are written
/// straight through to the holding register, spinning until it is
/// empty. PutByte drains tx first, but nothing in this file adds bytes
/// to tx.
type Uart16550_t struct {
	sync.Mutex
	base uintptr
	rx   circbuf.Circbuf_t
	tx   circbuf.Circbuf_t
}

/// Init configures the UART for 8N1 with FIFOs enabled and readies
/// the RX/TX ring buffers.
func (u *Uart16550_t) Init(base uintptr) {
	u.base = base
	u.rx.Init(rxBufSize)
	u.tx.Init(txBufSize)
	barrier.Write32(u.reg(uartFCR), 0x07) // enable + clear both FIFOs
	barrier.Write32(u.reg(uartLCR), 0x03) // 8 data bits, no parity, 1 stop bit
	barrier.Write32(u.reg(uartIER), 0x01) // enable receive-data-available interrupt
}

func (u *Uart16550_t) reg(off uintptr) uintptr {
	return u.base + off
}

func (u *Uart16550_t) thrEmpty() bool {
	return barrier.Read32(u.reg(uartLSR))&lsrThrEmpty != 0
}

func (u *Uart16550_t) dataReady() bool {
	return barrier.Read32(u.reg(uartLSR))&lsrDataReady != 0
}

/// PutByte transmits one byte, draining any buffered TX bytes ahead of
/// it first and spinning while the holding register is full. On
/// ThunderOS this runs with interrupts enabled, so it is preemptible
/// between polls.
func (u *Uart16550_t) PutByte(b uint8) {
	u.Lock()
	defer u.Unlock()
	u.drainTxLocked()
	for !u.thrEmpty() {
	}
	barrier.Write32(u.reg(uartTHR), uint32(b))
}

func (u *Uart16550_t) drainTxLocked() {
	for !u.tx.Empty() && u.thrEmpty() {
		b, _ := u.tx.GetByte()
		barrier.Write32(u.reg(uartTHR), uint32(b))
	}
}

/// GetByte removes the oldest byte delivered by Notify. ok is false if
/// the RX buffer is empty.
func (u *Uart16550_t) GetByte() (uint8, bool) {
	u.Lock()
	defer u.Unlock()
	return u.rx.GetByte()
}

/// HasInput reports whether GetByte would succeed.
func (u *Uart16550_t) HasInput() bool {
	u.Lock()
	defer u.Unlock()
	return !u.rx.Empty()
}

/// Notify drains every byte currently sitting in the receiver and appends it to the RX ring, dropping bytes that
/// arrive faster than the ring can absorb them. The loop is bounded by
/// the FIFO's own 16-byte depth so a stuck data-ready bit can never
/// starve other interrupt sources. trap.Dispatch does not call it:
/// external interrupts are only logged there.
func (u *Uart16550_t) Notify() {
	u.Lock()
	defer u.Unlock()
	const fifoDepth = 16
	for i := 0; i < fifoDepth && u.dataReady(); i++ {
		b := uint8(barrier.Read32(u.reg(uartRBR)))
		u.rx.PutByte(b)
	}
}
