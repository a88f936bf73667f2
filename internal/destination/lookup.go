package destination

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/contact-migrator/internal/resilience"
)

// Strategy is one way of finding an existing record by email.
type Strategy struct {
	Name string
	Find func(ctx context.Context, email string) (*Existing, error)
}

// Lookup tries strategies in order until one finds a record.
type Lookup struct {
	strategies []Strategy
	retry      *resilience.RetryConfig
}

// NewLookup creates a lookup chain. Each strategy is called once unless
// WithRetry is set.
func NewLookup(strategies ...Strategy) *Lookup {
	return &Lookup{strategies: strategies}
}

// WithRetry retries transient strategy errors before the strategy counts
// as failed.
func (l *Lookup) WithRetry(cfg resilience.RetryConfig) *Lookup {
	l.retry = &cfg
	return l
}

// Find returns the first hit. A strategy error does not stop the chain.
// The result is (nil, nil) when at least one strategy ran cleanly and none
// matched, and a *LookupError when every strategy failed.
func (l *Lookup) Find(ctx context.Context, email string) (*Existing, error) {
	lookupErr := &LookupError{Email: email}
	var clean bool
	for _, s := range l.strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		existing, err := l.call(ctx, s, email)
		if err != nil {
			zap.L().Debug("lookup strategy failed",
				zap.String("strategy", s.Name),
				zap.String("email", email),
				zap.Error(err),
			)
			lookupErr.Failures = append(lookupErr.Failures, StrategyFailure{Strategy: s.Name, Err: err})
			continue
		}
		if existing != nil {
			return existing, nil
		}
		clean = true
	}

	if clean || len(lookupErr.Failures) == 0 {
		return nil, nil
	}
	return nil, lookupErr
}

func (l *Lookup) call(ctx context.Context, s Strategy, email string) (*Existing, error) {
	if l.retry == nil {
		return s.Find(ctx, email)
	}
	cfg := *l.retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("lookup", s.Name)
	}
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (*Existing, error) {
		return s.Find(ctx, email)
	})
}

// StrategyFailure records why one lookup strategy failed.
type StrategyFailure struct {
	Strategy string
	Err      error
}

// LookupError is returned when no lookup strategy could run. The record may
// or may not exist, so creating it could produce a duplicate.
type LookupError struct {
	Email    string
	Failures []StrategyFailure
}

func (e *LookupError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Strategy, f.Err))
	}
	return fmt.Sprintf("lookup failed for %s: %s", e.Email, strings.Join(parts, "; "))
}

// Unwrap exposes the underlying strategy errors.
func (e *LookupError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
