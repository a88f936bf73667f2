package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/contact-migrator/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "contact-migrator",
	Short: "Migrate SendGrid marketing contacts into a CRM",
	Long:  "Exports contacts from SendGrid, normalizes and deduplicates them, and upserts them into Twenty CRM or Salesforce with checkpointing and a failure report.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
