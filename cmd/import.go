package main

import (
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contact-migrator/internal/ingest"
)

var importFilePath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Migrate contacts from a local SendGrid export file (CSV, gzip, ZIP or XLSX)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyMigrationFlags(cmd)
		if err := cfg.ValidateImport(); err != nil {
			return err
		}

		rows, err := ingest.ParseFile(ctx, importFilePath)
		if err != nil {
			return eris.Wrap(err, "import")
		}
		zap.L().Info("parsed export file",
			zap.String("file", importFilePath),
			zap.Int("rows", len(rows)),
		)

		env, err := initPipeline(ctx, false)
		if err != nil {
			return err
		}
		defer env.Close()

		if _, err := env.Pipeline.Import(ctx, importSource(importFilePath), rows); err != nil {
			return eris.Wrap(err, "import")
		}
		return nil
	},
}

// importSource labels a file import in the run ledger.
func importSource(path string) string {
	return "file:" + filepath.Base(path)
}

func init() {
	importCmd.Flags().StringVar(&importFilePath, "file", "", "path to export file (required)")
	_ = importCmd.MarkFlagRequired("file")
	addMigrationFlags(importCmd)
	rootCmd.AddCommand(importCmd)
}
