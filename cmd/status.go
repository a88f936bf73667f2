package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/contact-migrator/internal/checkpoint"
	"github.com/sells-group/contact-migrator/internal/failures"
	"github.com/sells-group/contact-migrator/internal/monitoring"
	"github.com/sells-group/contact-migrator/internal/store"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration progress, failures and recent runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		collector, st := initCollector(ctx)
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		status, err := collector.Collect(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		return writeStatus(os.Stdout, status, statusOutput)
	},
}

// initCollector builds a status collector over the logs directory. The
// ledger is optional: when it cannot be opened the status omits runs.
func initCollector(ctx context.Context) (*monitoring.Collector, store.Store) {
	dir := logsDir()
	st, err := openLedger(ctx)
	if err != nil {
		zap.L().Warn("run ledger unavailable", zap.Error(err))
		return monitoring.NewCollector(checkpoint.New(dir), failurePath(), nil, cfg.Monitoring.RecentRuns), nil
	}
	return monitoring.NewCollector(checkpoint.New(dir), failurePath(), st, cfg.Monitoring.RecentRuns), st
}

func failurePath() string {
	return failures.NewSink(logsDir()).Path()
}

// writeStatus renders status as text, json or yaml.
func writeStatus(out io.Writer, status *monitoring.Status, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(status); err != nil {
			return eris.Wrap(err, "status: encode yaml")
		}
		return enc.Close()
	case "", "text":
		formatStatus(out, status)
		return nil
	default:
		return eris.Errorf("status: unknown output format %q", format)
	}
}

func formatStatus(out io.Writer, s *monitoring.Status) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if cp := s.Checkpoint; cp != nil {
		_, _ = fmt.Fprintf(w, "Checkpoint:\t%d/%d (%d%%)\n", cp.Processed, cp.Total, cp.Percent)
		_, _ = fmt.Fprintf(w, "  Created:\t%d\n", cp.Created)
		_, _ = fmt.Fprintf(w, "  Updated:\t%d\n", cp.Updated)
		_, _ = fmt.Fprintf(w, "  Failed:\t%d\n", cp.Failed)
		_, _ = fmt.Fprintf(w, "  Last update:\t%s\n", cp.LastUpdate.Format(time.RFC3339))
	} else {
		_, _ = fmt.Fprintln(w, "Checkpoint:\tnone")
	}

	_, _ = fmt.Fprintf(w, "Failures:\t%d\n", s.Failures.Count)
	for _, r := range s.Failures.Rows {
		_, _ = fmt.Fprintf(w, "  %s\t%s\n", r.Email, r.Error)
	}
	if s.Failures.Count > len(s.Failures.Rows) {
		_, _ = fmt.Fprintf(w, "  ...\t%d more in %s\n", s.Failures.Count-len(s.Failures.Rows), s.Failures.Path)
	}
	_ = w.Flush()

	if len(s.Runs) > 0 {
		_, _ = fmt.Fprintln(out)
		formatRunsList(out, s.Runs)
	}
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "text", "output format (text, json, yaml)")
	rootCmd.AddCommand(statusCmd)
}
