package circuitbreaker

import (
	"sync"
	"testing"
	"time"

	"github.com/mbd888/saathi/internal/apperr"
)

func TestBreaker_AllowWhenClosed(t *testing.T) {
	b := New("test", 3, 2, 100*time.Millisecond)
	if err := b.Allow("svc1"); err != nil {
		t.Fatalf("expected closed circuit to allow, got %v", err)
	}
}

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := New("test", 3, 2, 100*time.Millisecond)

	b.RecordFailure("svc1")
	b.RecordFailure("svc1")
	if err := b.Allow("svc1"); err != nil {
		t.Fatalf("should still allow before threshold, got %v", err)
	}

	b.RecordFailure("svc1")
	err := b.Allow("svc1")
	if err == nil {
		t.Fatal("should be open after 3 failures")
	}
	if apperr.KindOf(err) != apperr.KindCircuitOpen {
		t.Fatalf("expected KindCircuitOpen, got %v", apperr.KindOf(err))
	}
	if b.State("svc1") != StateOpen {
		t.Fatalf("expected StateOpen, got %v", b.State("svc1"))
	}
}

func TestBreaker_OpenToHalfOpenAfterDuration(t *testing.T) {
	b := New("test", 2, 2, 50*time.Millisecond)

	b.RecordFailure("svc1")
	b.RecordFailure("svc1")
	if b.Allow("svc1") == nil {
		t.Fatal("should be open")
	}

	time.Sleep(60 * time.Millisecond)

	if err := b.Allow("svc1"); err != nil {
		t.Fatalf("should allow probe in half-open, got %v", err)
	}
	if b.State("svc1") != StateHalfOpen {
		t.Fatalf("expected StateHalfOpen, got %v", b.State("svc1"))
	}
}

func TestBreaker_HalfOpenRequiresConsecutiveSuccesses(t *testing.T) {
	b := New("test", 2, 2, 50*time.Millisecond)

	b.RecordFailure("svc1")
	b.RecordFailure("svc1")
	time.Sleep(60 * time.Millisecond)
	b.Allow("svc1") // transitions to half-open

	b.RecordSuccess("svc1")
	if b.State("svc1") != StateHalfOpen {
		t.Fatalf("one success should not close (successThreshold=2), got %v", b.State("svc1"))
	}

	b.RecordSuccess("svc1")
	if b.State("svc1") != StateClosed {
		t.Fatalf("two consecutive successes should close, got %v", b.State("svc1"))
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New("test", 2, 2, 50*time.Millisecond)

	b.RecordFailure("svc1")
	b.RecordFailure("svc1")
	time.Sleep(60 * time.Millisecond)
	b.Allow("svc1") // transitions to half-open

	b.RecordFailure("svc1")
	if b.State("svc1") != StateOpen {
		t.Fatalf("expected StateOpen after half-open failure, got %v", b.State("svc1"))
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New("test", 3, 2, 100*time.Millisecond)

	b.RecordFailure("svc1")
	b.RecordFailure("svc1")
	b.RecordSuccess("svc1")

	b.RecordFailure("svc1")
	if err := b.Allow("svc1"); err != nil {
		t.Fatalf("should still be closed after reset, got %v", err)
	}
}

func TestBreaker_IndependentKeys(t *testing.T) {
	b := New("test", 2, 2, 100*time.Millisecond)

	b.RecordFailure("svc1")
	b.RecordFailure("svc1")

	if b.Allow("svc1") == nil {
		t.Fatal("svc1 should be open")
	}
	if err := b.Allow("svc2"); err != nil {
		t.Fatalf("svc2 should be closed, got %v", err)
	}
}

func TestBreaker_UnknownKeyIsClosed(t *testing.T) {
	b := New("test", 2, 2, 100*time.Millisecond)
	if b.State("unknown") != StateClosed {
		t.Fatalf("expected StateClosed for unknown key, got %v", b.State("unknown"))
	}
}

func TestBreaker_OnTransitionCallback(t *testing.T) {
	b := New("test", 2, 2, 50*time.Millisecond)

	var mu sync.Mutex
	var transitions []struct{ from, to State }
	b.OnTransition(func(key string, from, to State) {
		mu.Lock()
		transitions = append(transitions, struct{ from, to State }{from, to})
		mu.Unlock()
	})

	b.RecordFailure("svc1")
	b.RecordFailure("svc1") // closed -> open

	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	if len(transitions) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(transitions))
	}
	if transitions[0].from != StateClosed || transitions[0].to != StateOpen {
		t.Fatalf("expected closed->open, got %v->%v", transitions[0].from, transitions[0].to)
	}
	mu.Unlock()
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
