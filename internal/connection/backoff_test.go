package connection

import (
	"testing"
	"time"
)

func TestBackoff_ExponentialUpToCap(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 10 * time.Second}

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
		10 * time.Second,
	}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("Next() #%d = %s, want %s", i, got, w)
		}
	}
	if b.Attempt() != len(want) {
		t.Errorf("Attempt = %d, want %d", b.Attempt(), len(want))
	}
}

func TestBackoff_Reset(t *testing.T) {
	b := Backoff{Base: time.Second, Max: 10 * time.Second}

	b.Next()
	b.Next()
	b.Reset()

	if b.Attempt() != 0 {
		t.Errorf("Attempt after reset = %d, want 0", b.Attempt())
	}
	if got := b.Next(); got != time.Second {
		t.Errorf("Next after reset = %s, want 1s", got)
	}
}
