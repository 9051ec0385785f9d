package ustr

import "testing"

func TestIsdotIsdotdot(t *testing.T) {
	if !Ustr(".").Isdot() {
		t.Fatal(`"." must be Isdot`)
	}
	if Ustr("..").Isdot() {
		t.Fatal(`".." must not be Isdot`)
	}
	if !Ustr("..").Isdotdot() {
		t.Fatal(`".." must be Isdotdot`)
	}
	if Ustr("a").Isdotdot() {
		t.Fatal(`"a" must not be Isdotdot`)
	}
}

func TestEq(t *testing.T) {
	if !Ustr("abc").Eq(Ustr("abc")) {
		t.Fatal("identical strings must be Eq")
	}
	if Ustr("abc").Eq(Ustr("abd")) {
		t.Fatal("differing strings must not be Eq")
	}
	if Ustr("ab").Eq(Ustr("abc")) {
		t.Fatal("differing lengths must not be Eq")
	}
}

func TestMkConstructors(t *testing.T) {
	if len(MkUstr()) != 0 {
		t.Fatal("MkUstr must be empty")
	}
	if !MkUstrDot().Isdot() {
		t.Fatal("MkUstrDot must be Isdot")
	}
	if !MkUstrRoot().Eq(Ustr("/")) {
		t.Fatal("MkUstrRoot must equal \"/\"")
	}
	if !DotDot.Isdotdot() {
		t.Fatal("DotDot must be Isdotdot")
	}
}

func TestMkUstrSlice(t *testing.T) {
	buf := []uint8{'h', 'i', 0, 'x', 'x'}
	got := MkUstrSlice(buf)
	if !got.Eq(Ustr("hi")) {
		t.Fatalf("MkUstrSlice truncated = %q, want %q", got, "hi")
	}

	noNul := []uint8{'h', 'i'}
	got = MkUstrSlice(noNul)
	if !got.Eq(Ustr("hi")) {
		t.Fatalf("MkUstrSlice without NUL = %q, want %q", got, "hi")
	}
}

func TestExtend(t *testing.T) {
	base := Ustr("/a")
	got := base.Extend(Ustr("b"))
	if !got.Eq(Ustr("/a/b")) {
		t.Fatalf("Extend = %q, want %q", got, "/a/b")
	}
	// base must be untouched by Extend.
	if !base.Eq(Ustr("/a")) {
		t.Fatalf("Extend mutated receiver: %q", base)
	}
	if !base.ExtendStr("c").Eq(Ustr("/a/c")) {
		t.Fatalf("ExtendStr = %q, want %q", base.ExtendStr("c"), "/a/c")
	}
}

func TestIsAbsolute(t *testing.T) {
	if !Ustr("/a").IsAbsolute() {
		t.Fatal(`"/a" must be absolute`)
	}
	if Ustr("a").IsAbsolute() {
		t.Fatal(`"a" must not be absolute`)
	}
	if Ustr("").IsAbsolute() {
		t.Fatal(`"" must not be absolute`)
	}
}

func TestIndexByte(t *testing.T) {
	if i := Ustr("a/b").IndexByte('/'); i != 1 {
		t.Fatalf("IndexByte('/') = %d, want 1", i)
	}
	if i := Ustr("abc").IndexByte('/'); i != -1 {
		t.Fatalf("IndexByte('/') on no-match = %d, want -1", i)
	}
}

func TestString(t *testing.T) {
	if Ustr("abc").String() != "abc" {
		t.Fatalf("String() = %q, want %q", Ustr("abc").String(), "abc")
	}
}
