package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/penwyp/go-photometry-sync/internal/batch"
	"github.com/penwyp/go-photometry-sync/internal/convert"
	"github.com/penwyp/go-photometry-sync/internal/core/model"
	"github.com/penwyp/go-photometry-sync/internal/ledger"
	"github.com/penwyp/go-photometry-sync/internal/presentation/formatter"
	"github.com/penwyp/go-photometry-sync/internal/util"
	"github.com/penwyp/go-photometry-sync/internal/watch"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// Batch command flags
	batchTable        string
	batchSubjects     string
	batchDir          string
	batchOut          string
	batchSubjectIDs   []string
	batchStub         bool
	batchOverwrite    bool
	batchConcurrency  int
	batchWatch        bool
	batchOutputFormat string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Convert every manifest session of the selected subjects",
	Long: `Converts the dual-wavelength sessions listed in a session table.

Sessions are looked up under <dir>/<subject>/<experiment>/ and written to
<out>/<subject>_<experiment>.nwb.json. A session whose output exists is
skipped unless --overwrite is set; a failing session does not stop the batch.

With --watch the batch re-runs whenever the tables or session folders change,
skipping sessions whose inputs are unchanged since their last conversion.`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	f := batchCmd.Flags()
	f.StringVar(&batchTable, "table", "", "Session table (CSV)")
	f.StringVar(&batchSubjects, "subjects", "", "Subject table (CSV)")
	f.StringVar(&batchDir, "dir", "", "Root folder of the session data")
	f.StringVar(&batchOut, "out", "", "Output folder")
	f.StringSliceVar(&batchSubjectIDs, "subject", nil, "Subjects to convert as written in the table (repeatable)")
	f.BoolVar(&batchStub, "stub", false, "Convert only the first frames of each session")
	f.BoolVar(&batchOverwrite, "overwrite", false, "Replace existing outputs")
	f.IntVar(&batchConcurrency, "concurrency", 0, "Sessions converted in parallel (0 = from config)")
	f.BoolVar(&batchWatch, "watch", false, "Re-run when inputs change")
	f.StringVarP(&batchOutputFormat, "output", "o", "table", "Output format (table, json, csv, summary)")

	for _, name := range []string{"table", "dir", "out", "subject"} {
		_ = batchCmd.MarkFlagRequired(name)
	}
}

func runBatch(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	color := false
	if f, ok := out.(*os.File); ok {
		color = util.IsTerminal(f)
	}
	format, err := formatter.New(batchOutputFormat, out, color)
	if err != nil {
		return err
	}

	conv, err := newConverter()
	if err != nil {
		return err
	}

	var (
		recorder batch.Recorder
		led      *ledger.Ledger
	)
	if cfg.Ledger.Enabled {
		if led, err = ledger.Open(cfg.Ledger.Path); err != nil {
			return err
		}
		defer led.Close()
		recorder = led
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	params := convert.BatchParams{
		DataTablePath:     batchTable,
		SubjectsTablePath: batchSubjects,
		FolderPath:        batchDir,
		NWBFileFolderPath: batchOut,
		SubjectIDs:        batchSubjectIDs,
		StubTest:          batchStub,
		Overwrite:         batchOverwrite,
		Concurrency:       batchConcurrency,
		SkipUnchanged:     batchWatch,
	}
	command := commandLine(cmd)

	runOnce := func(ctx context.Context) error {
		outcomes, err := convertBatch(ctx, conv, led, recorder, command, params)
		if err != nil && len(outcomes) == 0 {
			return err
		}
		if ferr := format.FormatOutcomes(outcomes); ferr != nil {
			return ferr
		}
		if err != nil {
			return err
		}
		if n := countFailed(outcomes); n > 0 && !batchWatch {
			return fmt.Errorf("%d of %d sessions failed", n, len(outcomes))
		}
		return nil
	}

	if !batchWatch {
		return runOnce(ctx)
	}

	paths := []string{batchTable, batchDir}
	if batchSubjects != "" {
		paths = append(paths, batchSubjects)
	}
	util.LogInfo(fmt.Sprintf("Watching %s for changes", strings.Join(paths, ", ")))
	return watch.Run(ctx, watch.Options{
		Paths:    paths,
		Ignore:   []string{batchOut},
		Debounce: cfg.Batch.WatchDebounce,
	}, runOnce)
}

// convertBatch runs one batch, bracketed by a ledger run when led is set.
func convertBatch(ctx context.Context, conv *convert.Converter, led *ledger.Ledger, recorder batch.Recorder, command string, params convert.BatchParams) ([]model.Outcome, error) {
	if led != nil {
		runID, err := led.StartRun(ctx, command)
		if err != nil {
			return nil, err
		}
		params.RunID = runID
		defer func() {
			if err := led.FinishRun(context.WithoutCancel(ctx), runID); err != nil {
				util.LogWarn(fmt.Sprintf("Failed to close ledger run %s: %v", runID, err))
			}
		}()
	}
	return conv.ConvertAllDualWavelengthSessions(ctx, params, recorder)
}

// commandLine renders the command and its explicitly set flags for the
// run history.
func commandLine(cmd *cobra.Command) string {
	parts := []string{cmd.Name()}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		parts = append(parts, fmt.Sprintf("--%s=%s", f.Name, f.Value))
	})
	return strings.Join(parts, " ")
}

func countFailed(outcomes []model.Outcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Status == model.StatusFailed {
			n++
		}
	}
	return n
}
