package destination

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/contact-migrator/internal/model"
	"github.com/sells-group/contact-migrator/internal/resilience"
)

// Options configures an Upserter.
type Options struct {
	// DryRun classifies each contact without writing.
	DryRun bool
	// Retry wraps every create and update call.
	Retry resilience.RetryConfig
	// Breaker, when set, short-circuits writes to a failing destination.
	Breaker *resilience.CircuitBreaker
}

// WriteError is a create or update that failed after retries.
type WriteError struct {
	Destination string
	Op          string
	Email       string
	Err         error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Destination, e.Op, e.Email, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// HTTPStatus returns the status of the underlying response, or 0.
func (e *WriteError) HTTPStatus() int {
	var sc resilience.StatusCoder
	if errors.As(e.Err, &sc) {
		return sc.HTTPStatus()
	}
	return 0
}

// Upserter decides between create and update for each contact.
type Upserter struct {
	dest Destination
	opts Options
}

// NewUpserter creates an Upserter writing to dest.
func NewUpserter(dest Destination, opts Options) *Upserter {
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger(dest.Name(), "write")
	}
	return &Upserter{dest: dest, opts: opts}
}

// DryRun reports whether writes are suppressed.
func (u *Upserter) DryRun() bool { return u.opts.DryRun }

// Upsert creates c when no record has its email and updates the existing
// record otherwise. A failed lookup is returned as an error; it never falls
// through to a create.
func (u *Upserter) Upsert(ctx context.Context, c model.Contact) (model.Outcome, error) {
	out := model.Outcome{Email: c.Email, DryRun: u.opts.DryRun}

	existing, err := u.dest.FindByEmail(ctx, c.Email)
	if err != nil {
		return out, err
	}

	if existing == nil {
		out.Action = model.ActionCreated
		if u.opts.DryRun {
			return out, nil
		}
		payload := BuildPayload(c, nil)
		out.ID, err = u.write(ctx, "create", c.Email, func(ctx context.Context) (string, error) {
			return u.dest.Create(ctx, payload)
		})
		return out, err
	}

	out.Action = model.ActionUpdated
	out.ID = existing.ID
	if u.opts.DryRun {
		return out, nil
	}
	payload := BuildPayload(c, existing)
	id, err := u.write(ctx, "update", c.Email, func(ctx context.Context) (string, error) {
		return u.dest.Update(ctx, existing.ID, payload)
	})
	if err != nil {
		return out, err
	}
	if id != "" {
		out.ID = id
	}
	return out, nil
}

func (u *Upserter) write(ctx context.Context, op, email string, fn func(ctx context.Context) (string, error)) (string, error) {
	call := fn
	if u.opts.Breaker != nil {
		call = func(ctx context.Context) (string, error) {
			return resilience.ExecuteVal(ctx, u.opts.Breaker, fn)
		}
	}

	id, err := resilience.DoVal(ctx, u.opts.Retry, call)
	if err != nil {
		zap.L().Debug("destination write failed",
			zap.String("destination", u.dest.Name()),
			zap.String("op", op),
			zap.String("email", email),
			zap.Error(err),
		)
		return "", &WriteError{Destination: u.dest.Name(), Op: op, Email: email, Err: err}
	}
	return id, nil
}
