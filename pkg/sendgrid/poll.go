package sendgrid

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-migrator/internal/model"
	"github.com/sells-group/contact-migrator/internal/resilience"
)

const (
	defaultPollInterval = 4 * time.Second
	defaultMaxPolls     = 120
)

// PollOption configures polling behavior.
type PollOption func(*pollConfig)

type pollConfig struct {
	interval time.Duration
	maxPolls int
	retry    *resilience.RetryConfig
	breaker  *resilience.CircuitBreaker
}

// WithPollInterval overrides the fixed delay between polls.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithMaxPolls overrides the number of polls before giving up.
func WithMaxPolls(n int) PollOption {
	return func(c *pollConfig) {
		if n > 0 {
			c.maxPolls = n
		}
	}
}

// WithPollRetry retries a poll request that fails transiently before the
// failure ends polling.
func WithPollRetry(cfg resilience.RetryConfig) PollOption {
	return func(c *pollConfig) {
		c.retry = &cfg
	}
}

// WithPollBreaker routes poll requests through cb.
func WithPollBreaker(cb *resilience.CircuitBreaker) PollOption {
	return func(c *pollConfig) {
		c.breaker = cb
	}
}

// PollExport polls GetExport at a fixed interval until the job is ready with
// at least one file URL. It returns *ExportFailedError if the job fails and
// *ExportTimeoutError once the poll ceiling is reached. Polls are strictly
// sequential; a poll request error that survives retries ends polling.
func PollExport(ctx context.Context, client Client, id string, opts ...PollOption) ([]string, error) {
	cfg := pollConfig{interval: defaultPollInterval, maxPolls: defaultMaxPolls}
	for _, opt := range opts {
		opt(&cfg)
	}

	log := zap.L().With(zap.String("export_id", id))
	start := time.Now()

	for poll := 1; poll <= cfg.maxPolls; poll++ {
		job, err := cfg.get(ctx, client, id)
		if err != nil {
			return nil, eris.Wrapf(err, "sendgrid: poll export %s", id)
		}

		switch job.Status {
		case model.ExportFailed:
			return nil, &ExportFailedError{JobID: id}
		case model.ExportReady:
			if len(job.URLs) > 0 {
				log.Info("export ready",
					zap.Int("files", len(job.URLs)),
					zap.Int("polls", poll),
				)
				return job.URLs, nil
			}
			log.Warn("export reported ready without file urls, polling again", zap.Int("poll", poll))
		default:
			log.Debug("export pending", zap.Int("poll", poll), zap.Int("max_polls", cfg.maxPolls))
		}

		if poll == cfg.maxPolls {
			break
		}

		timer := time.NewTimer(cfg.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, eris.Wrapf(ctx.Err(), "sendgrid: poll export %s", id)
		case <-timer.C:
		}
	}

	return nil, &ExportTimeoutError{JobID: id, Polls: cfg.maxPolls, Elapsed: time.Since(start)}
}

func (c pollConfig) get(ctx context.Context, client Client, id string) (*model.ExportJob, error) {
	call := func(ctx context.Context) (*model.ExportJob, error) {
		return client.GetExport(ctx, id)
	}
	if c.breaker != nil {
		direct := call
		call = func(ctx context.Context) (*model.ExportJob, error) {
			return resilience.ExecuteVal(ctx, c.breaker, direct)
		}
	}
	if c.retry == nil {
		return call(ctx)
	}
	retry := *c.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("sendgrid", "poll export")
	}
	return resilience.DoVal(ctx, retry, call)
}
