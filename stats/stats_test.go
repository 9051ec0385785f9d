package stats

import "testing"

type sample struct {
	Reqs  Counter_t
	Ticks Cycles_t
}

func TestIncNoopWhenDisabled(t *testing.T) {
	var c Counter_t
	c.Inc()
	if c != 0 {
		t.Fatalf("Inc must be a no-op when Stats is disabled, got %d", c)
	}
}

func TestStats2StringEmptyWhenDisabled(t *testing.T) {
	s := sample{}
	if got := Stats2String(s); got != "" {
		t.Fatalf("Stats2String must return empty string when Stats is disabled, got %q", got)
	}
}
