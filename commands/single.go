package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/penwyp/go-photometry-sync/internal/convert"
	"github.com/penwyp/go-photometry-sync/internal/core/model"
	"github.com/penwyp/go-photometry-sync/internal/util"
	"github.com/spf13/cobra"
)

var (
	// Single-wavelength command flags
	singleImaging         string
	singleTTL             string
	singleTTLStream       string
	singleFibers          string
	singleWavelength      int
	singleIndicator       string
	singleProcessed       string
	singlePhotometryField string
	singleBehaviorField   string
	singleIndexField      string
	singleOutput          string
	singleRate            float64
	singleStub            bool
	singleOverwrite       bool
	singleRawBehavior     []string
	singleSubjectID       string
	singleSessionID       string
)

var singleCmd = &cobra.Command{
	Use:   "single",
	Short: "Convert a single-wavelength session",
	Long: `Converts one session imaged at a single excitation wavelength.

Subject and session ids default to the names of the processed file's
grandparent and parent folders.`,
	RunE: runSingle,
}

func init() {
	rootCmd.AddCommand(singleCmd)

	f := singleCmd.Flags()
	f.StringVar(&singleImaging, "imaging", "", "Raw imaging stack")
	f.StringVar(&singleTTL, "ttl", "", "Behavioral acquisition file holding the TTL streams")
	f.StringVar(&singleTTLStream, "ttl-stream", "ttlIn1", "TTL stream carrying the camera frame pulses")
	f.StringVar(&singleFibers, "fibers", "", "Fiber location table")
	f.IntVar(&singleWavelength, "wavelength", 470, "Excitation wavelength in nm")
	f.StringVar(&singleIndicator, "indicator", "", "Indicator name, e.g. ACh3.0")
	f.StringVar(&singleProcessed, "processed", "", "Processed data document")
	f.StringVar(&singlePhotometryField, "photometry-field", "", "Processed photometry field")
	f.StringVar(&singleBehaviorField, "behavior-field", "", "Processed behavior field")
	f.StringVar(&singleIndexField, "index-field", "", "Processed inclusion index field")
	f.StringVarP(&singleOutput, "output", "o", "", "Output container path")
	f.Float64Var(&singleRate, "rate", 0, "Declared frame rate in Hz (0 = from the stack header or inferred)")
	f.BoolVar(&singleStub, "stub", false, "Convert only the first frames of the session")
	f.BoolVar(&singleOverwrite, "overwrite", false, "Replace an existing output")
	f.StringSliceVar(&singleRawBehavior, "raw-behavior", nil, "Acquisition channels to resample at frame times")
	f.StringVar(&singleSubjectID, "subject-id", "", "Subject id (default from the processed file path)")
	f.StringVar(&singleSessionID, "session-id", "", "Session id (default from the processed file path)")

	for _, name := range []string{"imaging", "ttl", "processed", "photometry-field", "index-field", "output"} {
		_ = singleCmd.MarkFlagRequired(name)
	}
}

func runSingle(cmd *cobra.Command, args []string) error {
	conv, err := newConverter()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rawBehavior := singleRawBehavior
	if len(rawBehavior) == 0 {
		rawBehavior = cfg.Conversion.RawBehavior
	}
	record, err := conv.SingleWavelengthSessionToNWB(ctx, convert.SingleWavelengthParams{
		RawImagingFilePath:     singleImaging,
		TTLFilePath:            singleTTL,
		TTLStreamName:          singleTTLStream,
		FiberLocationsFilePath: singleFibers,
		ExcitationWavelengthNM: singleWavelength,
		Indicator:              singleIndicator,
		ProcessedDataFilePath:  singleProcessed,
		FiberPhotometryField:   singlePhotometryField,
		BehaviorField:          singleBehaviorField,
		IndexField:             singleIndexField,
		NWBFilePath:            singleOutput,
		SamplingFrequency:      rateOrDefault(cmd, "rate", singleRate),
		StubTest:               singleStub,
		Overwrite:              singleOverwrite,
		RawBehavior:            rawBehavior,
		SubjectID:              singleSubjectID,
		SessionID:              singleSessionID,
	})
	if err != nil {
		return err
	}
	return printRecord(cmd.OutOrStdout(), record, singleOutput)
}

// rateOrDefault returns the flag value when set, otherwise the configured
// sampling frequency.
func rateOrDefault(cmd *cobra.Command, name string, value float64) float64 {
	if cmd.Flags().Changed(name) {
		return value
	}
	return cfg.Conversion.SamplingFrequency
}

// printRecord summarizes a converted session.
func printRecord(w io.Writer, record *model.SessionRecord, outputPath string) error {
	color := false
	if f, ok := w.(*os.File); ok {
		color = util.IsTerminal(f)
	}

	fmt.Fprintln(w, util.Colorize(fmt.Sprintf("%s/%s", record.SubjectID, record.SessionID), util.ColorBold, color))
	fmt.Fprintf(w, "Output:     %s\n", outputPath)
	fmt.Fprintf(w, "Mode:       %s\n", record.ExcitationMode)
	fmt.Fprintf(w, "Start:      %s\n", record.SessionStartTime.Format("2006-01-02 15:04:05 MST"))
	for _, ch := range record.Channels {
		fmt.Fprintf(w, "Channel:    %s frames %s of %s at %s, %s to %s\n",
			ch.Channel, ch.Window, util.FormatNumber(ch.TotalFrames), util.FormatRate(ch.Rate, ch.RateInferred),
			util.FormatSeconds(ch.Fluorescence.Start()), util.FormatSeconds(ch.Fluorescence.Stop()))
	}
	for _, warning := range record.Warnings {
		fmt.Fprintln(w, util.Colorize("Warning:    "+warning, util.ColorYellow, color))
	}
	return nil
}
