package oommsg

import "testing"

func TestOomChRoundtrip(t *testing.T) {
	resume := make(chan bool, 1)
	done := make(chan struct{})
	go func() {
		msg := <-OomCh
		if msg.Need != 16 {
			t.Errorf("Need = %d, want 16", msg.Need)
		}
		msg.Resume <- true
		close(done)
	}()
	OomCh <- Oommsg_t{Need: 16, Resume: resume}
	<-done
	if !<-resume {
		t.Fatal("expected resume signal")
	}
}
