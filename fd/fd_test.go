package fd

import (
	"testing"

	"ustr"
)

func TestMkRootCwd(t *testing.T) {
	cwd := MkRootCwd(3)
	if cwd.Fdnum != 3 {
		t.Fatalf("Fdnum = %d, want 3", cwd.Fdnum)
	}
	if !cwd.Path.Eq(ustr.MkUstrRoot()) {
		t.Fatalf("Path = %q, want /", cwd.Path)
	}
}

func TestFullpath(t *testing.T) {
	cwd := MkRootCwd(3)
	cwd.Path = ustr.Ustr("/home/user")

	if got := cwd.Fullpath(ustr.Ustr("/etc/passwd")); !got.Eq(ustr.Ustr("/etc/passwd")) {
		t.Fatalf("Fullpath(absolute) = %q, want unchanged", got)
	}
	if got := cwd.Fullpath(ustr.Ustr("file.txt")); !got.Eq(ustr.Ustr("/home/user/file.txt")) {
		t.Fatalf("Fullpath(relative) = %q, want %q", got, "/home/user/file.txt")
	}
}

func TestCanonicalpath(t *testing.T) {
	cwd := MkRootCwd(3)
	cwd.Path = ustr.Ustr("/home/user")

	got := cwd.Canonicalpath(ustr.Ustr("../other/./x"))
	if !got.Eq(ustr.Ustr("/home/other/x")) {
		t.Fatalf("Canonicalpath = %q, want %q", got, "/home/other/x")
	}
}
