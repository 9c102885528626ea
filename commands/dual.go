package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/penwyp/go-photometry-sync/internal/convert"
	"github.com/spf13/cobra"
)

var (
	// Dual-wavelength command flags; list flags take the first then the
	// second channel.
	dualImaging          []string
	dualTTL              string
	dualTTLStreams       []string
	dualFibers           string
	dualWavelengths      []int
	dualIndicators       []string
	dualProcessed        string
	dualPhotometryFields []string
	dualBehaviorFields   []string
	dualIndexFields      []string
	dualOutput           string
	dualRate             float64
	dualStub             bool
	dualOverwrite        bool
	dualRawBehavior      []string
	dualSubjectID        string
	dualSessionID        string
)

var dualCmd = &cobra.Command{
	Use:   "dual",
	Short: "Convert a dual-wavelength session",
	Long: `Converts one session imaged at two alternating excitation wavelengths.

Each channel flag takes two comma-separated values. Passing the same imaging
file twice splits one interleaved stack; passing the same TTL stream twice
splits one interleaved pulse train. Behavior is taken from the first channel.`,
	RunE: runDual,
}

func init() {
	rootCmd.AddCommand(dualCmd)

	f := dualCmd.Flags()
	f.StringSliceVar(&dualImaging, "imaging", nil, "Raw imaging stacks")
	f.StringVar(&dualTTL, "ttl", "", "Behavioral acquisition file holding the TTL streams")
	f.StringSliceVar(&dualTTLStreams, "ttl-stream", nil, "TTL streams (default from config)")
	f.StringVar(&dualFibers, "fibers", "", "Fiber location table")
	f.IntSliceVar(&dualWavelengths, "wavelength", []int{470, 570}, "Excitation wavelengths in nm")
	f.StringSliceVar(&dualIndicators, "indicator", nil, "Indicator names")
	f.StringVar(&dualProcessed, "processed", "", "Processed data document")
	f.StringSliceVar(&dualPhotometryFields, "photometry-field", nil, "Processed photometry fields")
	f.StringSliceVar(&dualBehaviorFields, "behavior-field", nil, "Processed behavior fields")
	f.StringSliceVar(&dualIndexFields, "index-field", nil, "Processed inclusion index fields")
	f.StringVarP(&dualOutput, "output", "o", "", "Output container path")
	f.Float64Var(&dualRate, "rate", 0, "Declared per-channel frame rate in Hz")
	f.BoolVar(&dualStub, "stub", false, "Convert only the first frames of the session")
	f.BoolVar(&dualOverwrite, "overwrite", false, "Replace an existing output")
	f.StringSliceVar(&dualRawBehavior, "raw-behavior", nil, "Acquisition channels to resample at frame times")
	f.StringVar(&dualSubjectID, "subject-id", "", "Subject id (default from the processed file path)")
	f.StringVar(&dualSessionID, "session-id", "", "Session id (default from the processed file path)")

	for _, name := range []string{"imaging", "ttl", "indicator", "processed", "photometry-field", "index-field", "output"} {
		_ = dualCmd.MarkFlagRequired(name)
	}
}

func runDual(cmd *cobra.Command, args []string) error {
	conv, err := newConverter()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	streams := dualTTLStreams
	if len(streams) == 0 {
		streams = cfg.Conversion.TTLStreams
	}
	rawBehavior := dualRawBehavior
	if len(rawBehavior) == 0 {
		rawBehavior = cfg.Conversion.RawBehavior
	}
	record, err := conv.DualWavelengthSessionToNWB(ctx, convert.DualWavelengthParams{
		RawImagingFilePaths:     dualImaging,
		TTLFilePath:             dualTTL,
		TTLStreamNames:          streams,
		FiberLocationsFilePath:  dualFibers,
		ExcitationWavelengthsNM: dualWavelengths,
		Indicators:              dualIndicators,
		ProcessedDataFilePath:   dualProcessed,
		FiberPhotometryFields:   dualPhotometryFields,
		BehaviorFields:          dualBehaviorFields,
		IndexFields:             dualIndexFields,
		NWBFilePath:             dualOutput,
		SamplingFrequency:       rateOrDefault(cmd, "rate", dualRate),
		StubTest:                dualStub,
		Overwrite:               dualOverwrite,
		RawBehavior:             rawBehavior,
		SubjectID:               dualSubjectID,
		SessionID:               dualSessionID,
	})
	if err != nil {
		return err
	}
	return printRecord(cmd.OutOrStdout(), record, dualOutput)
}
