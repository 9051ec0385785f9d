package tinfo

import "testing"

func TestCurrentPanicsWhenUnset(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Current() must panic with no thread installed")
		}
	}()
	Current()
}

func TestSetGetClear(t *testing.T) {
	n := &Tnote_t{Pid: 7}
	SetCurrent(n)
	defer ClearCurrent()
	if Current() != n {
		t.Fatal("Current() must return the installed note")
	}
	if Current().Pid != 7 {
		t.Fatalf("Pid = %d, want 7", Current().Pid)
	}
}

func TestThreadinfoInit(t *testing.T) {
	var ti Threadinfo_t
	ti.Init()
	if ti.Notes == nil {
		t.Fatal("Init must allocate the notes map")
	}
}
