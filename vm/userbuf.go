package vm

import "errno"

/// Userbuf_t assists reading and writing a bounded run of user memory
/// one page at a time through as.Userdmap8r/userdmap8w, tracking how
/// much of the run has been consumed so a partial transfer can be
/// resumed or reported accurately.
type Userbuf_t struct {
	userva uintptr
	len    int
	off    int
	as     *Vm_t
}

/// Ub_init initializes the buffer for the given address space.
func (ub *Userbuf_t) Ub_init(as *Vm_t, uva uintptr, len int) {
	if len < 0 {
		panic("negative length")
	}
	ub.userva = uva
	ub.len = len
	ub.off = 0
	ub.as = as
}

/// Remain returns the number of unread bytes left in the buffer.
func (ub *Userbuf_t) Remain() int {
	return ub.len - ub.off
}

/// Totalsz reports the total size of the buffer in bytes.
func (ub *Userbuf_t) Totalsz() int {
	return ub.len
}

/// Uioread copies data from user memory into dst.
func (ub *Userbuf_t) Uioread(dst []uint8) (int, errno.Err_t) {
	return ub.tx(dst, false)
}

/// Uiowrite copies data from src into user memory.
func (ub *Userbuf_t) Uiowrite(src []uint8) (int, errno.Err_t) {
	return ub.tx(src, true)
}

func (ub *Userbuf_t) tx(buf []uint8, write bool) (int, errno.Err_t) {
	ret := 0
	for len(buf) != 0 && ub.off != ub.len {
		va := ub.userva + uintptr(ub.off)
		var ubuf []uint8
		var err errno.Err_t
		if write {
			ubuf, err = ub.as.userdmap8w(va)
		} else {
			ubuf, err = ub.as.Userdmap8r(va)
		}
		if err != 0 {
			return ret, err
		}
		if left := ub.len - ub.off; len(ubuf) > left {
			ubuf = ubuf[:left]
		}
		var c int
		if write {
			c = copy(ubuf, buf)
		} else {
			c = copy(buf, ubuf)
		}
		buf = buf[c:]
		ub.off += c
		ret += c
	}
	return ret, 0
}

/// Fakeubuf_t satisfies the same Uioread/Uiowrite shape as Userbuf_t
/// but copies to/from a plain kernel byte slice. Tests use it to drive
/// code written against a user-io interface without a real address
/// space.
type Fakeubuf_t struct {
	fbuf []uint8
	len  int
}

/// Fake_init sets up the fake buffer with the provided slice.
func (fb *Fakeubuf_t) Fake_init(buf []uint8) {
	fb.fbuf = buf
	fb.len = len(fb.fbuf)
}

/// Remain returns the number of bytes left in the fake buffer.
func (fb *Fakeubuf_t) Remain() int {
	return len(fb.fbuf)
}

/// Totalsz returns the total length of the fake buffer.
func (fb *Fakeubuf_t) Totalsz() int {
	return fb.len
}

func (fb *Fakeubuf_t) tx(buf []uint8, tofbuf bool) (int, errno.Err_t) {
	var c int
	if tofbuf {
		c = copy(fb.fbuf, buf)
	} else {
		c = copy(buf, fb.fbuf)
	}
	fb.fbuf = fb.fbuf[c:]
	return c, 0
}

/// Uioread copies from the fake buffer into dst.
func (fb *Fakeubuf_t) Uioread(dst []uint8) (int, errno.Err_t) {
	return fb.tx(dst, false)
}

/// Uiowrite copies src into the fake buffer.
func (fb *Fakeubuf_t) Uiowrite(src []uint8) (int, errno.Err_t) {
	return fb.tx(src, true)
}

/// Mkuserbuf allocates and initializes a Userbuf_t referencing user
/// memory starting at userva.
func (as *Vm_t) Mkuserbuf(userva uintptr, len int) *Userbuf_t {
	ret := &Userbuf_t{}
	ret.Ub_init(as, userva, len)
	return ret
}
