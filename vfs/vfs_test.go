package vfs

import (
	"testing"

	"errno"
	"stat"
	"ustr"
)

type fakeFile struct {
	data []uint8
}

type fakeFs struct {
	files map[string]*fakeFile
}

func newFakeFs() *fakeFs {
	return &fakeFs{files: map[string]*fakeFile{}}
}

func (f *fakeFs) Open(path ustr.Ustr, flags int, mode int) (uint, errno.Err_t) {
	key := string(path)
	if _, ok := f.files[key]; !ok {
		f.files[key] = &fakeFile{}
	}
	return uint(len(key)), 0 // fake inode number, good enough for a test double
}
func (f *fakeFs) Close(ino uint) errno.Err_t { return 0 }
func (f *fakeFs) Read(ino uint, dst []uint8, off int) (int, errno.Err_t) {
	for _, fl := range f.files {
		if off >= len(fl.data) {
			return 0, 0
		}
		n := copy(dst, fl.data[off:])
		return n, 0
	}
	return 0, errno.ENOENT
}
func (f *fakeFs) Write(ino uint, src []uint8, off int) (int, errno.Err_t) {
	for _, fl := range f.files {
		need := off + len(src)
		if need > len(fl.data) {
			grown := make([]uint8, need)
			copy(grown, fl.data)
			fl.data = grown
		}
		copy(fl.data[off:], src)
		return len(src), 0
	}
	return 0, errno.ENOENT
}
func (f *fakeFs) Readdir(ino uint, off int) ([]Dirent_t, errno.Err_t) { return nil, 0 }
func (f *fakeFs) Mkdir(path ustr.Ustr, mode int) errno.Err_t          { return 0 }
func (f *fakeFs) Rmdir(path ustr.Ustr) errno.Err_t                    { return 0 }
func (f *fakeFs) Stat(ino uint, st *stat.Stat_t) errno.Err_t {
	for _, fl := range f.files {
		st.Wsize(uint(len(fl.data)))
		return 0
	}
	return errno.ENOENT
}
func (f *fakeFs) Unlink(path ustr.Ustr) errno.Err_t                 { return 0 }
func (f *fakeFs) Rename(oldpath, newpath ustr.Ustr) errno.Err_t     { return 0 }

type fakeConsole struct {
	in  []uint8
	out []uint8
}

func (c *fakeConsole) PutByte(b uint8)       { c.out = append(c.out, b) }
func (c *fakeConsole) GetByte() (uint8, bool) {
	if len(c.in) == 0 {
		return 0, false
	}
	b := c.in[0]
	c.in = c.in[1:]
	return b, true
}
func (c *fakeConsole) HasInput() bool { return len(c.in) > 0 }

func resetMounts() {
	mountLock.Lock()
	mounts = nil
	mountLock.Unlock()
}

func TestResolveLongestPrefix(t *testing.T) {
	resetMounts()
	Mount(ustr.MkUstrRoot(), newFakeFs())
	Mount(ustr.Ustr("/mnt"), newFakeFs())

	m, residual, err := Resolve(ustr.Ustr("/mnt/data/x"))
	if err != 0 {
		t.Fatalf("Resolve failed: %d", err)
	}
	if !m.Point.Eq(ustr.Ustr("/mnt")) {
		t.Fatalf("Resolve chose %q, want /mnt", m.Point)
	}
	if string(residual) != "/data/x" {
		t.Fatalf("residual = %q, want /data/x", residual)
	}
}

func TestResolveNoMountReturnsEnoent(t *testing.T) {
	resetMounts()
	_, _, err := Resolve(ustr.Ustr("/anything"))
	if err != errno.ENOENT {
		t.Fatalf("err = %d, want ENOENT", err)
	}
}

func TestOpenReadWriteCloseRoundtrip(t *testing.T) {
	resetMounts()
	Init(&fakeConsole{})
	Mount(ustr.MkUstrRoot(), newFakeFs())

	fdn, err := Open(ustr.Ustr("/hello.txt"), 0, 0)
	if err != 0 {
		t.Fatalf("Open failed: %d", err)
	}
	if fdn < 3 {
		t.Fatalf("Open returned reserved fd %d", fdn)
	}

	n, err := Write(fdn, []uint8("hello"))
	if err != 0 || n != 5 {
		t.Fatalf("Write failed: n=%d err=%d", n, err)
	}

	if _, err := Seek(fdn, 0, 0); err != 0 {
		t.Fatalf("Seek failed: %d", err)
	}
	got := make([]uint8, 5)
	n, err = Read(fdn, got)
	if err != 0 || n != 5 || string(got) != "hello" {
		t.Fatalf("Read = %q n=%d err=%d, want hello", got, n, err)
	}

	if err := Close(fdn); err != 0 {
		t.Fatalf("Close failed: %d", err)
	}
	if _, err := Read(fdn, got); err != errno.EBADF {
		t.Fatalf("Read after close = %d, want EBADF", err)
	}
}

func TestConsoleFdsPreconnected(t *testing.T) {
	resetMounts()
	c := &fakeConsole{in: []uint8("hi")}
	Init(c)

	got := make([]uint8, 2)
	n, err := Read(0, got)
	if err != 0 || n != 2 || string(got) != "hi" {
		t.Fatalf("console read failed: n=%d err=%d got=%q", n, err, got)
	}
	if _, err := Write(1, []uint8("out")); err != 0 {
		t.Fatalf("console write failed: %d", err)
	}
	if string(c.out) != "out" {
		t.Fatalf("console out = %q, want out", c.out)
	}
}

func TestCheckPermission(t *testing.T) {
	const mode = 0640 // rw-r-----
	if !CheckPermission(mode, 1, 1, 0, 0, R_OK|W_OK) {
		t.Fatal("root should always pass")
	}
	if !CheckPermission(mode, 1, 1, 1, 1, W_OK) {
		t.Fatal("owner should have write")
	}
	if CheckPermission(mode, 1, 1, 2, 1, W_OK) {
		t.Fatal("group should not have write")
	}
	if CheckPermission(mode, 1, 1, 2, 2, R_OK) {
		t.Fatal("other should not have read")
	}
}
