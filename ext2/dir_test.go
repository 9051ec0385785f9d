package ext2

import (
	"testing"

	"errno"
)

func TestInsertLookupRemoveEntry(t *testing.T) {
	ctx := mountFake(t, 256)
	defer Unmount(ctx)

	ino, err := AllocInode(ctx)
	if err != 0 {
		t.Fatalf("AllocInode failed: %d", err)
	}
	if err := InsertEntry(ctx, rootIno, "foo", ino, FT_REG); err != 0 {
		t.Fatalf("InsertEntry failed: %d", err)
	}

	got, ft, err := Lookup(ctx, rootIno, "foo")
	if err != 0 {
		t.Fatalf("Lookup failed: %d", err)
	}
	if got != ino || ft != FT_REG {
		t.Fatalf("Lookup = (%d, %d), want (%d, %d)", got, ft, ino, FT_REG)
	}

	if err := RemoveEntry(ctx, rootIno, "foo"); err != 0 {
		t.Fatalf("RemoveEntry failed: %d", err)
	}
	if _, _, err := Lookup(ctx, rootIno, "foo"); err != errno.ENOENT {
		t.Fatalf("Lookup after remove = %d, want ENOENT", err)
	}
}

func TestInsertManyEntriesSpillsToNewBlock(t *testing.T) {
	ctx := mountFake(t, 256)
	defer Unmount(ctx)

	// Entries reference arbitrary inode numbers rather than ones
	// actually allocated: InsertEntry only stores what it is given, and
	// this keeps the test from needing 80 free inodes just to force a
	// second directory block.
	names := make([]string, 0)
	for i := 0; i < 80; i++ {
		name := "file" + itoa(i)
		if err := InsertEntry(ctx, rootIno, name, uint32(100+i), FT_REG); err != 0 {
			t.Fatalf("InsertEntry[%s] failed: %d", name, err)
		}
		names = append(names, name)
	}

	seen := map[string]bool{}
	if err := ListDir(ctx, rootIno, func(name string, ino uint32, ft uint8) {
		seen[name] = true
	}); err != 0 {
		t.Fatalf("ListDir failed: %d", err)
	}
	for _, n := range names {
		if !seen[n] {
			t.Fatalf("entry %q missing after spilling to a new directory block", n)
		}
	}
}

func TestMkEmptyDirAndIsEmptyDir(t *testing.T) {
	ctx := mountFake(t, 256)
	defer Unmount(ctx)

	ino, err := AllocInode(ctx)
	if err != 0 {
		t.Fatalf("AllocInode failed: %d", err)
	}
	if err := MkEmptyDir(ctx, ino, rootIno); err != 0 {
		t.Fatalf("MkEmptyDir failed: %d", err)
	}

	empty, err := IsEmptyDir(ctx, ino)
	if err != 0 {
		t.Fatalf("IsEmptyDir failed: %d", err)
	}
	if !empty {
		t.Fatal("freshly made directory reports non-empty")
	}

	if err := InsertEntry(ctx, ino, "child", rootIno, FT_REG); err != 0 {
		t.Fatalf("InsertEntry failed: %d", err)
	}
	empty, err = IsEmptyDir(ctx, ino)
	if err != 0 {
		t.Fatalf("IsEmptyDir failed: %d", err)
	}
	if empty {
		t.Fatal("directory with a child reports empty")
	}
}
