package destination

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contact-migrator/internal/model"
	"github.com/sells-group/contact-migrator/internal/resilience"
)

// fakeDest implements Destination with func fields.
type fakeDest struct {
	findFn   func(ctx context.Context, email string) (*Existing, error)
	createFn func(ctx context.Context, p Payload) (string, error)
	updateFn func(ctx context.Context, id string, p Payload) (string, error)

	creates atomic.Int32
	updates atomic.Int32
}

func (f *fakeDest) Name() string { return "fake" }

func (f *fakeDest) FindByEmail(ctx context.Context, email string) (*Existing, error) {
	if f.findFn == nil {
		return nil, nil
	}
	return f.findFn(ctx, email)
}

func (f *fakeDest) Create(ctx context.Context, p Payload) (string, error) {
	f.creates.Add(1)
	if f.createFn == nil {
		return "new-id", nil
	}
	return f.createFn(ctx, p)
}

func (f *fakeDest) Update(ctx context.Context, id string, p Payload) (string, error) {
	f.updates.Add(1)
	if f.updateFn == nil {
		return id, nil
	}
	return f.updateFn(ctx, id, p)
}

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatus() int { return int(e) }

func fastOptions() Options {
	return Options{Retry: resilience.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}}
}

var testContact = model.Contact{Email: "ann@example.com", FirstName: "Ann", Tags: []string{"new"}, Source: "sendgrid"}

func TestUpsert_CreatesWhenMissing(t *testing.T) {
	var got Payload
	dest := &fakeDest{createFn: func(_ context.Context, p Payload) (string, error) {
		got = p
		return "p1", nil
	}}

	out, err := NewUpserter(dest, fastOptions()).Upsert(context.Background(), testContact)
	require.NoError(t, err)
	assert.Equal(t, model.Outcome{Email: "ann@example.com", Action: model.ActionCreated, ID: "p1"}, out)
	assert.Equal(t, []string{"new"}, got.Tags)
	assert.Equal(t, int32(0), dest.updates.Load())
}

func TestUpsert_UpdatesExistingWithMergedTags(t *testing.T) {
	var gotID string
	var got Payload
	dest := &fakeDest{
		findFn: func(context.Context, string) (*Existing, error) {
			return &Existing{ID: "p9", Tags: []string{"old"}}, nil
		},
		updateFn: func(_ context.Context, id string, p Payload) (string, error) {
			gotID, got = id, p
			return "", nil
		},
	}

	out, err := NewUpserter(dest, fastOptions()).Upsert(context.Background(), testContact)
	require.NoError(t, err)
	assert.Equal(t, model.ActionUpdated, out.Action)
	assert.Equal(t, "p9", out.ID)
	assert.Equal(t, "p9", gotID)
	assert.Equal(t, []string{"new", "old"}, got.Tags)
	assert.Equal(t, int32(0), dest.creates.Load())
}

func TestUpsert_DryRunNeverWrites(t *testing.T) {
	opts := fastOptions()
	opts.DryRun = true

	dest := &fakeDest{}
	out, err := NewUpserter(dest, opts).Upsert(context.Background(), testContact)
	require.NoError(t, err)
	assert.Equal(t, model.ActionCreated, out.Action)
	assert.True(t, out.DryRun)

	dest.findFn = func(context.Context, string) (*Existing, error) { return &Existing{ID: "p2"}, nil }
	out, err = NewUpserter(dest, opts).Upsert(context.Background(), testContact)
	require.NoError(t, err)
	assert.Equal(t, model.ActionUpdated, out.Action)
	assert.Equal(t, "p2", out.ID)
	assert.True(t, out.DryRun)

	assert.Equal(t, int32(0), dest.creates.Load())
	assert.Equal(t, int32(0), dest.updates.Load())
}

func TestUpsert_LookupErrorDoesNotCreate(t *testing.T) {
	dest := &fakeDest{findFn: func(ctx context.Context, email string) (*Existing, error) {
		return NewLookup(fail("rest"), fail("graphql")).Find(ctx, email)
	}}

	_, err := NewUpserter(dest, fastOptions()).Upsert(context.Background(), testContact)
	var lookupErr *LookupError
	require.True(t, errors.As(err, &lookupErr))
	assert.Equal(t, int32(0), dest.creates.Load())
}

func TestUpsert_RetriesServerErrors(t *testing.T) {
	dest := &fakeDest{createFn: func(context.Context, Payload) (string, error) {
		return "", statusErr(http.StatusBadGateway)
	}}

	_, err := NewUpserter(dest, fastOptions()).Upsert(context.Background(), testContact)
	require.Error(t, err)
	assert.Equal(t, int32(3), dest.creates.Load())

	var writeErr *WriteError
	require.True(t, errors.As(err, &writeErr))
	assert.Equal(t, "create", writeErr.Op)
	assert.Equal(t, http.StatusBadGateway, writeErr.HTTPStatus())
}

func TestUpsert_ClientErrorFailsOnce(t *testing.T) {
	dest := &fakeDest{createFn: func(context.Context, Payload) (string, error) {
		return "", statusErr(http.StatusUnprocessableEntity)
	}}

	_, err := NewUpserter(dest, fastOptions()).Upsert(context.Background(), testContact)
	require.Error(t, err)
	assert.Equal(t, int32(1), dest.creates.Load())
	assert.Contains(t, err.Error(), "fake create ann@example.com")
}

func TestUpsert_RecoversOnThirdAttempt(t *testing.T) {
	dest := &fakeDest{}
	dest.createFn = func(context.Context, Payload) (string, error) {
		if dest.creates.Load() < 3 {
			return "", statusErr(http.StatusServiceUnavailable)
		}
		return "p3", nil
	}

	out, err := NewUpserter(dest, fastOptions()).Upsert(context.Background(), testContact)
	require.NoError(t, err)
	assert.Equal(t, "p3", out.ID)
	assert.Equal(t, int32(3), dest.creates.Load())
}

func TestUpsert_OpenBreakerFailsFast(t *testing.T) {
	opts := fastOptions()
	opts.Retry.MaxAttempts = 1
	opts.Breaker = resilience.NewCircuitBreaker("fake", resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	})

	dest := &fakeDest{createFn: func(context.Context, Payload) (string, error) {
		return "", statusErr(http.StatusInternalServerError)
	}}
	u := NewUpserter(dest, opts)

	for i := 0; i < 2; i++ {
		_, err := u.Upsert(context.Background(), testContact)
		require.Error(t, err)
	}
	assert.Equal(t, resilience.CircuitOpen, opts.Breaker.State())

	_, err := u.Upsert(context.Background(), testContact)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), dest.creates.Load())
}
