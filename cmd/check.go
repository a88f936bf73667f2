package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify SendGrid and CRM credentials without migrating",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}

		dest, err := initDestination()
		if err != nil {
			return err
		}

		checks := []connectivityCheck{
			{Name: "sendgrid", Ping: initSource().Ping},
			{Name: dest.Dest.Name(), Ping: dest.Ping},
		}
		if failed := runChecks(cmd.Context(), os.Stdout, checks); failed > 0 {
			return eris.Errorf("check: %d of %d services unreachable", failed, len(checks))
		}
		return nil
	},
}

type connectivityCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// runChecks pings each service with a timeout and reports one line per
// service. It returns the number of failed checks.
func runChecks(ctx context.Context, out io.Writer, checks []connectivityCheck) int {
	failed := 0
	for _, c := range checks {
		pctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		start := time.Now()
		err := c.Ping(pctx)
		cancel()

		if err != nil {
			failed++
			_, _ = fmt.Fprintf(out, "%-12s FAIL  %v\n", c.Name, err)
			continue
		}
		_, _ = fmt.Fprintf(out, "%-12s OK    %s\n", c.Name, time.Since(start).Round(time.Millisecond))
	}
	return failed
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
