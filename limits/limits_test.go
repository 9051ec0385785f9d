package limits

import "testing"

func TestTakenRejectsOverdraw(t *testing.T) {
	var s Sysatomic_t = 2
	if !s.Taken(2) {
		t.Fatal("taking exactly the available amount should succeed")
	}
	if s.Taken(1) {
		t.Fatal("taking past zero must fail")
	}
	if s != 0 {
		t.Fatalf("failed Taken must restore the balance, got %d", s)
	}
}

func TestGiveTake(t *testing.T) {
	var s Sysatomic_t
	s.Give()
	s.Give()
	if !s.Take() {
		t.Fatal("Take should succeed after two Give calls")
	}
	if int64(s) != 1 {
		t.Fatalf("s = %d, want 1", s)
	}
}

func TestMkSysLimit(t *testing.T) {
	l := MkSysLimit()
	if l.Sysprocs <= 0 {
		t.Fatal("Sysprocs must be positive")
	}
}
