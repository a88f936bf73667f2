package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	migrateDryRun      bool
	migrateResume      bool
	migrateConcurrency int
	migrateLists       []string
	migrateSegments    []string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Export contacts from SendGrid and upsert them into the CRM",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyMigrationFlags(cmd)
		if err := cfg.Validate(); err != nil {
			return err
		}

		env, err := initPipeline(ctx, true)
		if err != nil {
			return err
		}
		defer env.Close()

		if _, err := env.Pipeline.Run(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}
		return nil
	},
}

// applyMigrationFlags overrides config values with flags the user set.
func applyMigrationFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("dry-run") {
		cfg.Migration.DryRun = migrateDryRun
	}
	if flags.Changed("resume") {
		cfg.Migration.Resume = migrateResume
	}
	if flags.Changed("concurrency") {
		cfg.Migration.Concurrency = migrateConcurrency
	}
	if flags.Changed("lists") {
		cfg.Source.ListIDs = migrateLists
	}
	if flags.Changed("segments") {
		cfg.Source.SegmentIDs = migrateSegments
	}
}

func addMigrationFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "classify contacts without writing to the CRM")
	cmd.Flags().BoolVar(&migrateResume, "resume", false, "keep an existing checkpoint instead of clearing it")
	cmd.Flags().IntVar(&migrateConcurrency, "concurrency", 0, "max concurrent upserts (default from config)")
}

func init() {
	addMigrationFlags(migrateCmd)
	migrateCmd.Flags().StringSliceVar(&migrateLists, "lists", nil, "SendGrid list IDs to export (comma-separated)")
	migrateCmd.Flags().StringSliceVar(&migrateSegments, "segments", nil, "SendGrid segment IDs to export (comma-separated)")
	rootCmd.AddCommand(migrateCmd)
}
