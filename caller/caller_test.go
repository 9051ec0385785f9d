package caller

import "testing"

func TestDistinctCallerFirstSeen(t *testing.T) {
	var dc Distinct_caller_t
	dc.Enabled = true
	first, _ := dc.Distinct()
	if !first {
		t.Fatal("first call from a new path should be reported distinct")
	}
	second, _ := dc.Distinct()
	if second {
		t.Fatal("repeated call from the same path should not be distinct")
	}
}

func TestDistinctCallerDisabled(t *testing.T) {
	var dc Distinct_caller_t
	ok, _ := dc.Distinct()
	if ok {
		t.Fatal("disabled tracker must never report distinct")
	}
}
