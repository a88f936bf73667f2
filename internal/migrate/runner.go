// Package migrate drives a migration: it upserts normalized contacts with
// bounded concurrency, tracks progress, and orchestrates the export,
// ingest and write stages.
package migrate

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/contact-migrator/internal/checkpoint"
	"github.com/sells-group/contact-migrator/internal/failures"
	"github.com/sells-group/contact-migrator/internal/model"
)

// Upserter writes one contact to the destination.
type Upserter interface {
	Upsert(ctx context.Context, c model.Contact) (model.Outcome, error)
}

// RunnerOptions configures a Runner. Zero values take defaults.
type RunnerOptions struct {
	Concurrency      int
	CheckpointEvery  int
	ProgressLogEvery int
}

func (o RunnerOptions) withDefaults() RunnerOptions {
	if o.Concurrency <= 0 {
		o.Concurrency = 5
	}
	if o.CheckpointEvery <= 0 {
		o.CheckpointEvery = 100
	}
	if o.ProgressLogEvery <= 0 {
		o.ProgressLogEvery = 50
	}
	return o
}

// Result is the outcome of a Runner pass.
type Result struct {
	Summary  model.RunSummary
	Outcomes []model.Outcome
}

// Runner upserts every contact, never aborting the batch on a per-contact
// failure.
type Runner struct {
	upserter   Upserter
	checkpoint *checkpoint.Store
	failures   *failures.Sink
	opts       RunnerOptions
	now        func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(u Upserter, cp *checkpoint.Store, sink *failures.Sink, opts RunnerOptions) *Runner {
	return &Runner{
		upserter:   u,
		checkpoint: cp,
		failures:   sink,
		opts:       opts.withDefaults(),
		now:        time.Now,
	}
}

// progress holds the shared counters.
type progress struct {
	mu       sync.Mutex
	snap     model.ProgressSnapshot
	outcomes []model.Outcome
}

// Run upserts contacts and returns the summary. After every task settles
// the failure artifact is flushed and, unless ctx was cancelled, the
// checkpoint is cleared. The returned error is non-nil only when ctx ended
// the run early.
func (r *Runner) Run(ctx context.Context, contacts []model.Contact) (*Result, error) {
	log := zap.L().With(zap.String("component", "runner"))
	start := r.now()
	p := &progress{snap: model.ProgressSnapshot{Total: len(contacts), StartTime: start}}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)

	for _, c := range contacts {
		if gCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			out, err := r.upserter.Upsert(gCtx, c)
			if err != nil {
				r.recordFailure(p, c.Email, err)
				log.Error("contact failed", zap.String("email", c.Email), zap.Error(err))
				return nil // one contact never aborts the batch
			}
			r.recordSuccess(p, out)
			return nil
		})
	}
	_ = g.Wait()

	p.mu.Lock()
	snap := p.snap
	outcomes := p.outcomes
	p.mu.Unlock()

	res := &Result{
		Summary: model.RunSummary{
			Total:     snap.Total,
			Processed: snap.Processed,
			Created:   snap.Created,
			Updated:   snap.Updated,
			Failed:    snap.Failed,
			Elapsed:   r.now().Sub(start),
		},
		Outcomes: outcomes,
	}

	path, err := r.failures.Flush()
	if err != nil {
		log.Error("write failure artifact", zap.Error(err))
	}
	res.Summary.FailurePath = path

	if err := ctx.Err(); err != nil {
		snap.LastUpdate = r.now()
		_ = r.checkpoint.Save(snap)
		return res, err
	}
	_ = r.checkpoint.Clear()
	return res, nil
}

func (r *Runner) recordSuccess(p *progress, out model.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.snap.Processed++
	switch out.Action {
	case model.ActionCreated:
		p.snap.Created++
	case model.ActionUpdated:
		p.snap.Updated++
	}
	p.outcomes = append(p.outcomes, out)

	n := p.snap.Processed
	if n%r.opts.CheckpointEvery == 0 {
		p.snap.LastUpdate = r.now()
		_ = r.checkpoint.Save(p.snap)
	}
	if n%r.opts.ProgressLogEvery == 0 {
		zap.L().Info(ProgressLine(n, p.snap.Total, r.now().Sub(p.snap.StartTime)))
	}
}

func (r *Runner) recordFailure(p *progress, email string, err error) {
	p.mu.Lock()
	p.snap.Failed++
	p.mu.Unlock()
	r.failures.Add(email, err)
}

// ProgressLine formats "Progress: n/total (rate/s, ETA: Ns)". The monitor
// parses this text.
func ProgressLine(processed, total int, elapsed time.Duration) string {
	var rate, eta float64
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(processed) / secs
	}
	if rate > 0 {
		eta = float64(total-processed) / rate
	}
	return fmt.Sprintf("Progress: %d/%d (%d/s, ETA: %ds)", processed, total, int(math.Round(rate)), int(math.Round(eta)))
}
