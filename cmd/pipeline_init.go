package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contact-migrator/internal/checkpoint"
	"github.com/sells-group/contact-migrator/internal/config"
	"github.com/sells-group/contact-migrator/internal/destination"
	"github.com/sells-group/contact-migrator/internal/failures"
	"github.com/sells-group/contact-migrator/internal/fetcher"
	"github.com/sells-group/contact-migrator/internal/migrate"
	"github.com/sells-group/contact-migrator/internal/resilience"
	"github.com/sells-group/contact-migrator/internal/store"
	sfpkg "github.com/sells-group/contact-migrator/pkg/salesforce"
	"github.com/sells-group/contact-migrator/pkg/sendgrid"
	"github.com/sells-group/contact-migrator/pkg/twenty"
)

const userAgent = "contact-migrator/1.0"

// pipelineEnv holds the initialized clients and the pipeline needed by
// the migrate and import commands.
type pipelineEnv struct {
	Store    store.Store // may be nil
	Pipeline *migrate.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// destinationEnv pairs a destination with its connectivity check.
type destinationEnv struct {
	Dest destination.Destination
	Ping func(ctx context.Context) error
}

// initDestination builds the configured CRM destination.
func initDestination() (*destinationEnv, error) {
	switch cfg.Destination.Kind {
	case config.DestinationTwenty:
		p := cfg.Destination.Paths
		client := twenty.NewClient(cfg.Destination.BaseURL, cfg.Destination.Token,
			twenty.WithPaths(twenty.Paths{
				CreatePerson:       p.CreatePerson,
				UpdatePerson:       p.UpdatePerson,
				SearchPerson:       p.SearchPerson,
				CreateOrganization: p.CreateOrganization,
				SearchOrganization: p.SearchOrganization,
				GraphQL:            p.GraphQL,
			}),
			twenty.WithRateLimit(cfg.Destination.RateLimit),
		)
		return &destinationEnv{
			Dest: destination.NewTwenty(client, destination.TwentyOptions{
				LinkCompanies: cfg.Destination.LinkCompanies,
				Retry:         retryConfig(),
			}),
			Ping: client.Ping,
		}, nil

	case config.DestinationSalesforce:
		client, err := sfpkg.Connect(sfpkg.JWTCreds{
			LoginURL: cfg.Salesforce.LoginURL,
			Username: cfg.Salesforce.Username,
			ClientID: cfg.Salesforce.ClientID,
			KeyPath:  cfg.Salesforce.KeyPath,
		}, sfpkg.WithRateLimit(cfg.Destination.RateLimit))
		if err != nil {
			return nil, eris.Wrap(err, "init salesforce")
		}
		return &destinationEnv{
			Dest: destination.NewSalesforce(client, destination.SalesforceOptions{
				LinkAccount: cfg.Salesforce.LinkAccount,
				Retry:       retryConfig(),
			}),
			Ping: func(ctx context.Context) error {
				_, err := client.DescribeSObject(ctx, "Contact")
				return err
			},
		}, nil

	default:
		return nil, eris.Errorf("unsupported destination: %s", cfg.Destination.Kind)
	}
}

func initSource() sendgrid.Client {
	return sendgrid.NewClient(cfg.Source.APIKey, sendgrid.WithBaseURL(cfg.Source.BaseURL))
}

func retryConfig() resilience.RetryConfig {
	return resilience.FromConfig(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelayMs)
}

// initPipeline wires the destination, artifacts, ledger and source into a
// Pipeline. withSource is false for local imports. Callers should defer
// env.Close().
func initPipeline(ctx context.Context, withSource bool) (*pipelineEnv, error) {
	dest, err := initDestination()
	if err != nil {
		return nil, err
	}

	breakers := resilience.NewServiceBreakers(
		resilience.FromCircuitConfig(cfg.Retry.BreakerThreshold, cfg.Retry.BreakerResetTimeSecs))
	upserter := destination.NewUpserter(dest.Dest, destination.Options{
		DryRun:  cfg.Migration.DryRun,
		Retry:   retryConfig(),
		Breaker: breakers.Get(dest.Dest.Name()),
	})

	env := &pipelineEnv{}
	deps := migrate.Deps{
		Upserter:   upserter,
		Checkpoint: checkpoint.New(logsDir()),
		Failures:   failures.NewSink(logsDir()),
		Breakers:   breakers,
	}

	if st, err := openLedger(ctx); err != nil {
		zap.L().Warn("run ledger unavailable, continuing without it", zap.Error(err))
	} else {
		env.Store = st
		deps.Ledger = st
	}

	if withSource {
		deps.Source = initSource()
		deps.Downloader = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent: userAgent,
			Retry:     retryConfig(),
		})
	}

	env.Pipeline = migrate.NewPipeline(deps, migrate.Options{
		Filter: sendgrid.ExportFilter{
			ListIDs:    cfg.Source.ListIDs,
			SegmentIDs: cfg.Source.SegmentIDs,
		},
		DryRun: cfg.Migration.DryRun,
		Resume: cfg.Migration.Resume,
		Retry:  retryConfig(),
		Poll: []sendgrid.PollOption{
			sendgrid.WithPollInterval(time.Duration(cfg.Source.PollIntervalSecs) * time.Second),
			sendgrid.WithMaxPolls(cfg.Source.MaxPolls),
			sendgrid.WithPollRetry(retryConfig()),
		},
		Runner: migrate.RunnerOptions{
			Concurrency:      cfg.Migration.Concurrency,
			CheckpointEvery:  cfg.Migration.CheckpointEvery,
			ProgressLogEvery: cfg.Migration.ProgressLogEvery,
		},
	})
	return env, nil
}
