package destination

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-migrator/internal/resilience"
)

func hit(id string) Strategy {
	return Strategy{Name: "hit", Find: func(context.Context, string) (*Existing, error) {
		return &Existing{ID: id}, nil
	}}
}

func miss() Strategy {
	return Strategy{Name: "miss", Find: func(context.Context, string) (*Existing, error) {
		return nil, nil
	}}
}

func fail(msg string) Strategy {
	return Strategy{Name: msg, Find: func(context.Context, string) (*Existing, error) {
		return nil, errors.New(msg)
	}}
}

func TestLookup_FirstHitWins(t *testing.T) {
	called := false
	second := Strategy{Name: "second", Find: func(context.Context, string) (*Existing, error) {
		called = true
		return nil, nil
	}}

	got, err := NewLookup(hit("p1"), second).Find(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)
	assert.False(t, called)
}

func TestLookup_FallsBackAfterError(t *testing.T) {
	got, err := NewLookup(fail("rest"), hit("p2")).Find(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "p2", got.ID)
}

func TestLookup_MissAfterError(t *testing.T) {
	got, err := NewLookup(fail("rest"), miss()).Find(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLookup_AllFailed(t *testing.T) {
	_, err := NewLookup(fail("rest"), fail("graphql")).Find(context.Background(), "a@example.com")
	require.Error(t, err)

	var lookupErr *LookupError
	require.True(t, errors.As(err, &lookupErr))
	assert.Equal(t, "a@example.com", lookupErr.Email)
	require.Len(t, lookupErr.Failures, 2)
	assert.Equal(t, "rest", lookupErr.Failures[0].Strategy)
	assert.Contains(t, err.Error(), "graphql: graphql")
}

func TestLookup_NoStrategies(t *testing.T) {
	got, err := NewLookup().Find(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLookup_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLookup(hit("p1")).Find(ctx, "a@example.com")
	assert.ErrorIs(t, err, context.Canceled)
}

// flaky fails with a 503 for the first n calls, then finds id.
func flaky(n int, id string, calls *int) Strategy {
	return Strategy{Name: "flaky", Find: func(context.Context, string) (*Existing, error) {
		*calls++
		if *calls <= n {
			return nil, resilience.NewTransientError(errors.New("unavailable"), http.StatusServiceUnavailable)
		}
		return &Existing{ID: id}, nil
	}}
}

func testRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}
}

func TestLookup_RetriesTransientError(t *testing.T) {
	var calls int
	got, err := NewLookup(flaky(1, "p1", &calls)).WithRetry(testRetry()).Find(context.Background(), "a@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "p1", got.ID)
	assert.Equal(t, 2, calls)
}

func TestLookup_RetriesExhausted(t *testing.T) {
	var calls int
	_, err := NewLookup(flaky(10, "p1", &calls)).WithRetry(testRetry()).Find(context.Background(), "a@example.com")

	var lookupErr *LookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, 3, calls)
}

func TestLookup_NoRetryByDefault(t *testing.T) {
	var calls int
	_, err := NewLookup(flaky(1, "p1", &calls)).Find(context.Background(), "a@example.com")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
