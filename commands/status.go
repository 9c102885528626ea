package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/penwyp/go-photometry-sync/internal/core/model"
	"github.com/penwyp/go-photometry-sync/internal/ledger"
	"github.com/penwyp/go-photometry-sync/internal/presentation/formatter"
	"github.com/penwyp/go-photometry-sync/internal/util"
	"github.com/spf13/cobra"
)

var (
	// Status command flags
	statusLimit        int
	statusRun          string
	statusOutputFormat string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the history of batch runs",
	Long: `Lists recent batch runs with their session counts, newest first.

With --run, lists the session outcomes recorded for one run.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "Number of runs to show")
	statusCmd.Flags().StringVar(&statusRun, "run", "", "Show the sessions of this run id")
	statusCmd.Flags().StringVarP(&statusOutputFormat, "output", "o", "table", "Output format (table, json, csv, summary)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	color := false
	if f, ok := out.(*os.File); ok {
		color = util.IsTerminal(f)
	}
	format, err := formatter.New(statusOutputFormat, out, color)
	if err != nil {
		return err
	}

	if !cfg.Ledger.Enabled {
		return fmt.Errorf("the run ledger is disabled (ledger.enabled)")
	}
	led, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return err
	}
	defer led.Close()

	ctx := context.Background()
	if statusRun != "" {
		entries, err := led.Sessions(ctx, statusRun)
		if err != nil {
			return err
		}
		outcomes := make([]model.Outcome, len(entries))
		for i, e := range entries {
			outcomes[i] = e.Outcome
		}
		return format.FormatOutcomes(outcomes)
	}

	runs, err := led.Runs(ctx, statusLimit)
	if err != nil {
		return err
	}
	return format.FormatRuns(runs)
}
