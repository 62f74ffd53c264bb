package job

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestDefaultBackoff(t *testing.T) {
	b := DefaultBackoff()

	if b.Initial != 3*time.Second || b.Max != 15*time.Second || b.Multiplier != 1.2 {
		t.Errorf("unexpected defaults: %+v", b)
	}
	if err := b.Validate(); err != nil {
		t.Errorf("defaults should be valid: %v", err)
	}
}

func TestBackoff_Validate(t *testing.T) {
	tests := []struct {
		name    string
		backoff Backoff
		wantErr bool
	}{
		{"valid", Backoff{Initial: time.Second, Max: 2 * time.Second, Multiplier: 1.5}, false},
		{"constant", Backoff{Initial: time.Second, Max: time.Second, Multiplier: 1}, false},
		{"zero initial", Backoff{Initial: 0, Max: time.Second, Multiplier: 1.2}, true},
		{"max below initial", Backoff{Initial: 2 * time.Second, Max: time.Second, Multiplier: 1.2}, true},
		{"shrinking", Backoff{Initial: time.Second, Max: 2 * time.Second, Multiplier: 0.5}, true},
		{"infinite multiplier", Backoff{Initial: time.Second, Max: 2 * time.Second, Multiplier: math.Inf(1)}, true},
		{"NaN multiplier", Backoff{Initial: time.Second, Max: 2 * time.Second, Multiplier: math.NaN()}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.backoff.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidBackoff) {
				t.Errorf("expected ErrInvalidBackoff, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestBackoff_Sequence(t *testing.T) {
	b := DefaultBackoff()

	want := []time.Duration{
		3 * time.Second,
		3600 * time.Millisecond,
		4320 * time.Millisecond,
	}

	d := b.First()
	for i, w := range want {
		if d != w {
			t.Errorf("step %d: expected %s, got %s", i, w, d)
		}
		d = b.Next(d)
	}
}

func TestBackoff_MonotonicAndCapped(t *testing.T) {
	b := DefaultBackoff()

	d := b.First()
	for i := 0; i < 100; i++ {
		next := b.Next(d)
		if next < d {
			t.Fatalf("step %d: delay decreased from %s to %s", i, d, next)
		}
		if next > b.Max {
			t.Fatalf("step %d: delay %s exceeds max %s", i, next, b.Max)
		}
		d = next
	}
	if d != b.Max {
		t.Errorf("expected delay to settle at max, got %s", d)
	}
}
