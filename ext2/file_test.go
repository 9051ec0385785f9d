package ext2

import (
	"bytes"
	"testing"
)

func TestWriteReadFileRoundtrip(t *testing.T) {
	ctx := mountFake(t, 256)
	defer Unmount(ctx)

	ino, err := AllocInode(ctx)
	if err != 0 {
		t.Fatalf("AllocInode failed: %d", err)
	}
	iv := make(inodeView_t, ctx.InodeSize)
	iv.SetMode(S_IFREG | 0644)
	iv.SetLinks(1)
	if err := PutInode(ctx, ino, iv); err != 0 {
		t.Fatalf("PutInode failed: %d", err)
	}

	data := bytes.Repeat([]byte("hello-ext2-"), 100) // spans several blocks
	n, err := WriteFile(ctx, ino, 0, data)
	if err != 0 || n != len(data) {
		t.Fatalf("WriteFile = (%d, %d), want (%d, 0)", n, err, len(data))
	}

	out := make([]byte, len(data))
	n, err = ReadFile(ctx, ino, 0, out)
	if err != 0 || n != len(data) {
		t.Fatalf("ReadFile = (%d, %d), want (%d, 0)", n, err, len(data))
	}
	if !bytes.Equal(out, data) {
		t.Fatal("read back data does not match what was written")
	}

	got, err := GetInode(ctx, ino)
	if err != 0 {
		t.Fatalf("GetInode failed: %d", err)
	}
	if int(got.Size()) != len(data) {
		t.Fatalf("i_size = %d, want %d", got.Size(), len(data))
	}
}

func TestReadSparseHoleReturnsZeros(t *testing.T) {
	ctx := mountFake(t, 256)
	defer Unmount(ctx)

	ino, err := AllocInode(ctx)
	if err != 0 {
		t.Fatalf("AllocInode failed: %d", err)
	}
	iv := make(inodeView_t, ctx.InodeSize)
	iv.SetMode(S_IFREG | 0644)
	iv.SetLinks(1)
	iv.SetSize(uint32(ctx.BlockSize * 3))
	if err := PutInode(ctx, ino, iv); err != 0 {
		t.Fatalf("PutInode failed: %d", err)
	}

	buf := make([]byte, ctx.BlockSize)
	n, err := ReadFile(ctx, ino, ctx.BlockSize, buf)
	if err != 0 || n != ctx.BlockSize {
		t.Fatalf("ReadFile sparse = (%d, %d)", n, err)
	}
	for _, b := range buf {
		if b != 0 {
			t.Fatal("sparse hole read back non-zero byte")
		}
	}
}

func TestWriteFilePartialBlockPreservesRest(t *testing.T) {
	ctx := mountFake(t, 256)
	defer Unmount(ctx)

	ino, err := AllocInode(ctx)
	if err != 0 {
		t.Fatalf("AllocInode failed: %d", err)
	}
	iv := make(inodeView_t, ctx.InodeSize)
	iv.SetMode(S_IFREG | 0644)
	iv.SetLinks(1)
	if err := PutInode(ctx, ino, iv); err != 0 {
		t.Fatalf("PutInode failed: %d", err)
	}

	full := bytes.Repeat([]byte{0xAA}, ctx.BlockSize)
	if _, err := WriteFile(ctx, ino, 0, full); err != 0 {
		t.Fatalf("initial WriteFile failed: %d", err)
	}

	patch := []byte{1, 2, 3, 4}
	if _, err := WriteFile(ctx, ino, 10, patch); err != 0 {
		t.Fatalf("patch WriteFile failed: %d", err)
	}

	out := make([]byte, ctx.BlockSize)
	if _, err := ReadFile(ctx, ino, 0, out); err != 0 {
		t.Fatalf("ReadFile failed: %d", err)
	}
	if !bytes.Equal(out[10:14], patch) {
		t.Fatal("patched bytes not written")
	}
	if out[0] != 0xAA || out[9] != 0xAA || out[14] != 0xAA {
		t.Fatal("partial write clobbered bytes outside the patch range")
	}
}
