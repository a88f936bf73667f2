package migrate

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-migrator/internal/checkpoint"
	"github.com/sells-group/contact-migrator/internal/failures"
	"github.com/sells-group/contact-migrator/internal/ingest"
	"github.com/sells-group/contact-migrator/internal/model"
	"github.com/sells-group/contact-migrator/internal/resilience"
	"github.com/sells-group/contact-migrator/pkg/sendgrid"
)

// Ledger records runs. Ledger errors are logged and never fail a run.
type Ledger interface {
	CreateRun(ctx context.Context, run *model.Run) error
	CompleteRun(ctx context.Context, id string, summary *model.RunSummary) error
	FailRun(ctx context.Context, id string, errMsg string) error
}

// Deps are the collaborators a Pipeline drives. Source and Downloader may
// be nil when only Import is used; Ledger and Breakers may be nil.
type Deps struct {
	Source     sendgrid.Client
	Downloader ingest.Downloader
	Upserter   Upserter
	Checkpoint *checkpoint.Store
	Failures   *failures.Sink
	Ledger     Ledger
	// Breakers holds the per-service circuit breakers. The source breaker
	// is taken from it by name.
	Breakers *resilience.ServiceBreakers
}

// Options configures a Pipeline.
type Options struct {
	Filter sendgrid.ExportFilter
	DryRun bool
	// Resume keeps a stale checkpoint instead of clearing it. Records are
	// still processed from the start.
	Resume bool
	Retry  resilience.RetryConfig
	Poll   []sendgrid.PollOption
	Runner RunnerOptions
}

// Pipeline runs export, ingest and upsert end to end.
type Pipeline struct {
	deps Deps
	opts Options
}

// NewPipeline creates a Pipeline.
func NewPipeline(deps Deps, opts Options) *Pipeline {
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger("sendgrid", "create export")
	}
	return &Pipeline{deps: deps, opts: opts}
}

// Run exports contacts from the source and migrates them. Any export,
// download or parse error aborts the run before a write is made.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if p.deps.Source == nil || p.deps.Downloader == nil {
		return nil, eris.New("migrate: pipeline has no source")
	}
	return p.execute(ctx, model.SourceSendGrid, p.export)
}

// Import migrates rows that were already parsed, such as a manual export
// file. source labels the run in the ledger.
func (p *Pipeline) Import(ctx context.Context, source string, rows []ingest.Row) (*Result, error) {
	return p.execute(ctx, source, func(context.Context) ([]ingest.Row, error) {
		return rows, nil
	})
}

func (p *Pipeline) execute(ctx context.Context, source string, fetch func(context.Context) ([]ingest.Row, error)) (*Result, error) {
	log := zap.L().With(zap.String("component", "pipeline"))
	log.Info("starting migration", zap.String("source", source), zap.Bool("dry_run", p.opts.DryRun))

	p.checkStaleCheckpoint(log)

	run := &model.Run{
		ID:     uuid.NewString(),
		Status: model.RunStatusRunning,
		DryRun: p.opts.DryRun,
		Source: source,
	}
	p.ledgerCall(log, "create run", func() error { return p.deps.Ledger.CreateRun(ctx, run) })

	res, err := p.process(ctx, fetch, log)
	p.logBreakers(log)
	if err != nil {
		p.ledgerCall(log, "fail run", func() error {
			return p.deps.Ledger.FailRun(context.WithoutCancel(ctx), run.ID, err.Error())
		})
		return res, err
	}

	p.ledgerCall(log, "complete run", func() error {
		return p.deps.Ledger.CompleteRun(ctx, run.ID, &res.Summary)
	})
	logSummary(log, res.Summary, p.opts.DryRun)
	return res, nil
}

func (p *Pipeline) process(ctx context.Context, fetch func(context.Context) ([]ingest.Row, error), log *zap.Logger) (*Result, error) {
	rows, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	log.Info("parsed rows", zap.Int("rows", len(rows)))

	norm := ingest.NormalizeAll(rows)
	log.Info("normalized and de-duplicated",
		zap.Int("contacts", len(norm.Contacts)),
		zap.Int("invalid", norm.Invalid),
		zap.Int("duplicates", norm.Duplicates),
	)

	runner := NewRunner(p.deps.Upserter, p.deps.Checkpoint, p.deps.Failures, p.opts.Runner)
	res, err := runner.Run(ctx, norm.Contacts)
	if res != nil {
		res.Summary.Dropped = norm.Dropped()
	}
	if err != nil {
		return res, eris.Wrap(err, "migrate: run interrupted")
	}
	return res, nil
}

func (p *Pipeline) export(ctx context.Context) ([]ingest.Row, error) {
	log := zap.L().With(zap.String("component", "export"))
	log.Info("export scope",
		zap.Strings("lists", p.opts.Filter.ListIDs),
		zap.Strings("segments", p.opts.Filter.SegmentIDs),
	)

	create := func(ctx context.Context) (string, error) {
		return p.deps.Source.CreateExport(ctx, p.opts.Filter)
	}
	poll := p.opts.Poll
	if p.deps.Breakers != nil {
		cb := p.deps.Breakers.Get(model.SourceSendGrid)
		direct := create
		create = func(ctx context.Context) (string, error) {
			return resilience.ExecuteVal(ctx, cb, direct)
		}
		poll = append(poll[:len(poll):len(poll)], sendgrid.WithPollBreaker(cb))
	}

	jobID, err := resilience.DoVal(ctx, p.opts.Retry, create)
	if err != nil {
		return nil, eris.Wrap(err, "migrate: create export")
	}
	log.Info("export job created", zap.String("export_id", jobID))

	urls, err := sendgrid.PollExport(ctx, p.deps.Source, jobID, poll...)
	if err != nil {
		return nil, err
	}
	log.Info("export ready", zap.Int("files", len(urls)))

	var rows []ingest.Row
	for i, u := range urls {
		log.Info(fmt.Sprintf("downloading file %d/%d", i+1, len(urls)))
		fileRows, err := ingest.DownloadAndParse(ctx, p.deps.Downloader, u)
		if err != nil {
			return nil, eris.Wrapf(err, "migrate: export file %d", i+1)
		}
		rows = append(rows, fileRows...)
	}
	return rows, nil
}

// checkStaleCheckpoint reports a snapshot left by an interrupted run and
// clears it unless resuming.
func (p *Pipeline) checkStaleCheckpoint(log *zap.Logger) {
	snap, err := p.deps.Checkpoint.Load()
	if err != nil {
		log.Warn("unreadable checkpoint, clearing", zap.Error(err))
		_ = p.deps.Checkpoint.Clear()
		return
	}
	if snap == nil {
		return
	}

	log.Info(fmt.Sprintf("Found existing progress: %d/%d processed", snap.Processed, snap.Total))
	if p.opts.Resume {
		log.Info("resume requested, keeping checkpoint; all records are processed again")
		return
	}
	log.Info("starting fresh migration (use --resume to keep the checkpoint)")
	_ = p.deps.Checkpoint.Clear()
}

func (p *Pipeline) logBreakers(log *zap.Logger) {
	if p.deps.Breakers == nil {
		return
	}
	if states := p.deps.Breakers.States(); len(states) > 0 {
		log.Info("circuit breakers", zap.Any("states", states))
	}
}

func (p *Pipeline) ledgerCall(log *zap.Logger, op string, fn func() error) {
	if p.deps.Ledger == nil {
		return
	}
	if err := fn(); err != nil {
		log.Warn("run ledger: "+op+" failed", zap.Error(err))
	}
}

func logSummary(log *zap.Logger, s model.RunSummary, dryRun bool) {
	log.Info("Migration completed",
		zap.Bool("dry_run", dryRun),
		zap.Int("total", s.Total),
		zap.Int("processed", s.Processed),
		zap.Int("created", s.Created),
		zap.Int("updated", s.Updated),
		zap.Int("failed", s.Failed),
		zap.Int("dropped", s.Dropped),
		zap.Duration("elapsed", s.Elapsed.Round(time.Second)),
		zap.Int64("contacts_per_second", int64(math.Round(s.Throughput()))),
	)
	if s.FailurePath != "" {
		log.Warn("failed contacts written", zap.String("path", s.FailurePath), zap.Int("count", s.Failed))
	}
}
