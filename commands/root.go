package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/penwyp/go-photometry-sync/internal/config"
	"github.com/penwyp/go-photometry-sync/internal/convert"
	"github.com/penwyp/go-photometry-sync/internal/data/metadata"
	"github.com/penwyp/go-photometry-sync/internal/util"
	"github.com/spf13/cobra"
)

var (
	// Logging related
	debug bool

	// Configuration files
	configFile   string
	metadataFile string

	// Resolved by the root pre-run hook
	cfg  *config.Config
	meta map[string]any

	rootCmd = &cobra.Command{
		Use:   "go-photometry-sync",
		Short: "Align fiber photometry recordings to behavioral TTL clocks",
		Long: `go-photometry-sync converts fiber photometry sessions into self-describing containers.

Imaging frames, processed fluorescence and behavior are placed on the clock of the
behavioral acquisition card using the TTL pulses the camera emits per frame.

Examples:
  go-photometry-sync single --imaging raw/green.rawstack --ttl raw/behavior.edf ...
  go-photometry-sync batch --table sessions.csv --dir /data --out /nwb --subject UG-27
  go-photometry-sync batch ... --watch               # Re-run when inputs change
  go-photometry-sync status --limit 5                # Show recent batch runs
  go-photometry-sync inspect /nwb/UG27_240214.nwb.json`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
)

const defaultLogFile = config.AppDir + "/logs/app.log"

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"Enable debug mode")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Alignment config file (default ./photometry-sync.yaml or ~/.go-photometry-sync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&metadataFile, "metadata", "",
		"YAML file overriding the default descriptive metadata")
}

// setup initializes logging and loads configuration for every command.
func setup(cmd *cobra.Command, args []string) error {
	logLevel := "info"
	if debug {
		logLevel = "debug"
	}

	logFile := config.ExpandPath(defaultLogFile)
	if err := ensureDir(filepath.Dir(logFile)); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := util.InitLogger(logLevel, logFile, debug); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	var err error
	if cfg, err = config.Load(configFile); err != nil {
		return err
	}
	if err := util.InitializeTimeProvider(cfg.Conversion.Timezone); err != nil {
		return err
	}

	override := metadataFile
	if override == "" {
		override = cfg.Conversion.MetadataFile
	}
	if override != "" {
		override = config.ExpandPath(override)
	}
	if meta, err = metadata.Load(override); err != nil {
		return err
	}

	if cfg.File != "" {
		util.LogDebug(fmt.Sprintf("Loaded config from %s", cfg.File))
	}
	return nil
}

// newConverter builds a converter from the resolved configuration.
func newConverter() (*convert.Converter, error) {
	return convert.NewConverter(cfg, meta, convert.DefaultDeps(cfg))
}

func Execute() error {
	return rootCmd.Execute()
}

// Helper functions

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
