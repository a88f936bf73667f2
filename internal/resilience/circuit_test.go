package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("twenty", CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})
	fail := func(_ context.Context) error { return &statusErr{code: 503} }

	for i := 0; i < 3; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	var called bool
	err := cb.Execute(context.Background(), func(_ context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("fn should not run while open")
	}
}

func TestCircuitBreaker_FatalErrorsDoNotTrip(t *testing.T) {
	cb := NewCircuitBreaker("twenty", CircuitBreakerConfig{FailureThreshold: 2})
	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func(_ context.Context) error {
			return &statusErr{code: 422}
		})
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("sendgrid", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	cb.nowFunc = func() time.Time { return now }

	_ = cb.Execute(context.Background(), func(_ context.Context) error { return &statusErr{code: 500} })
	if cb.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	now = now.Add(2 * time.Second)
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open, got %s", cb.State())
	}

	val, err := ExecuteVal(context.Background(), cb, func(_ context.Context) (int, error) { return 7, nil })
	if err != nil || val != 7 {
		t.Fatalf("probe failed: %d %v", val, err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	cb := NewCircuitBreaker("sendgrid", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	cb.nowFunc = func() time.Time { return now }

	fail := func(_ context.Context) error { return &statusErr{code: 500} }
	_ = cb.Execute(context.Background(), fail)
	now = now.Add(2 * time.Second)
	_ = cb.Execute(context.Background(), fail)

	if cb.State() != CircuitOpen {
		t.Errorf("expected open, got %s", cb.State())
	}
}

func TestCircuitState_String(t *testing.T) {
	for state, want := range map[CircuitState]string{
		CircuitClosed:    "closed",
		CircuitOpen:      "open",
		CircuitHalfOpen:  "half-open",
		CircuitState(99): "unknown",
	} {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}

func TestServiceBreakers(t *testing.T) {
	sb := NewServiceBreakers(FromCircuitConfig(0, 0))
	a := sb.Get("twenty")
	if sb.Get("twenty") != a {
		t.Error("expected same breaker for same service")
	}
	sb.Get("sendgrid")

	states := sb.States()
	if len(states) != 2 || states["twenty"] != "closed" {
		t.Errorf("unexpected states: %v", states)
	}
}

func TestFromCircuitConfig(t *testing.T) {
	cfg := FromCircuitConfig(4, 12)
	if cfg.FailureThreshold != 4 || cfg.ResetTimeout != 12*time.Second {
		t.Errorf("unexpected config: %+v", cfg)
	}
}
