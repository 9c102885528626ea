package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/penwyp/go-photometry-sync/internal/core/model"
	"github.com/penwyp/go-photometry-sync/internal/inspect"
	"github.com/penwyp/go-photometry-sync/internal/ledger"
	"github.com/penwyp/go-photometry-sync/internal/testing/fixtures"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag to its default. Flag variables are package
// level, so values would otherwise leak between executions.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			def := strings.Trim(f.DefValue, "[]")
			var values []string
			if def != "" {
				values = strings.Split(def, ",")
			}
			_ = sv.Replace(values)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the CLI in-process with HOME pointed at a temporary folder.
func execute(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", home)
	resetFlags(rootCmd)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func generate(t *testing.T, root string, specs ...fixtures.SessionSpec) []*fixtures.SessionFiles {
	t.Helper()
	gen := fixtures.NewTestDataGenerator(root)
	var out []*fixtures.SessionFiles
	for _, spec := range specs {
		files, err := gen.GenerateSession(spec)
		require.NoError(t, err)
		out = append(out, files)
	}
	return out
}

func TestCommandStructure(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, expected := range []string{"single", "dual", "batch", "status", "inspect"} {
		assert.True(t, names[expected], "missing command %s", expected)
	}

	for _, flag := range []string{"debug", "config", "metadata"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(flag), flag)
	}
}

func TestSingleCommand(t *testing.T) {
	home, root := t.TempDir(), t.TempDir()
	files := generate(t, root, fixtures.SessionSpec{Mouse: "UG-27", Experiment: "240214"})[0]
	out := filepath.Join(root, "nwb", "single.nwb.json")

	stdout, _, err := execute(t, home, "single",
		"--imaging", files.GreenImaging,
		"--ttl", files.TTL,
		"--fibers", files.FiberTable,
		"--indicator", "ACh3.0",
		"--processed", files.Processed,
		"--photometry-field", fixtures.GreenField,
		"--behavior-field", fixtures.GreenBehavior,
		"--index-field", fixtures.GreenIndex,
		"--output", out,
		"--stub")
	require.NoError(t, err)

	assert.Contains(t, stdout, "UG27/240214")
	assert.Contains(t, stdout, "Channel:    ACh3.0@470nm frames [0, 9] of 60 at 18.00 Hz")
	assert.FileExists(t, out)
	assert.FileExists(t, filepath.Join(home, ".go-photometry-sync", "logs", "app.log"))

	// The output now exists.
	_, _, err = execute(t, home, "single",
		"--imaging", files.GreenImaging, "--ttl", files.TTL, "--processed", files.Processed,
		"--photometry-field", fixtures.GreenField, "--index-field", fixtures.GreenIndex, "--output", out)
	assert.ErrorContains(t, err, "output already exists")
}

func TestDualCommand(t *testing.T) {
	home, root := t.TempDir(), t.TempDir()
	files := generate(t, root, fixtures.SessionSpec{Mouse: "UG27", Experiment: "240214"})[0]
	out := filepath.Join(root, "dual.nwb.json")

	stdout, _, err := execute(t, home, "dual",
		"--imaging", files.GreenImaging+","+files.RedImaging,
		"--ttl", files.TTL,
		"--indicator", "ACh3.0,rDA3m",
		"--processed", files.Processed,
		"--photometry-field", fixtures.GreenField+","+fixtures.RedField,
		"--behavior-field", fixtures.GreenBehavior,
		"--index-field", fixtures.GreenIndex+","+fixtures.RedIndex,
		"--output", out)
	require.NoError(t, err)

	assert.Contains(t, stdout, "Mode:       dual-wavelength")
	assert.Contains(t, stdout, "rDA3m@570nm")
	assert.FileExists(t, out)

	_, _, err = execute(t, home, "dual",
		"--imaging", files.GreenImaging, "--ttl", files.TTL, "--indicator", "ACh3.0",
		"--processed", files.Processed, "--photometry-field", fixtures.GreenField,
		"--index-field", fixtures.GreenIndex, "--output", filepath.Join(root, "x.nwb.json"))
	assert.ErrorContains(t, err, "need two raw imaging file paths, got 1")
}

func TestBatchStatusAndInspectCommands(t *testing.T) {
	home, root := t.TempDir(), t.TempDir()
	sessions := generate(t, root,
		fixtures.SessionSpec{Mouse: "UG-27", Experiment: "S1"},
		fixtures.SessionSpec{Mouse: "UG-27", Experiment: "S2", NoPulses: true},
		fixtures.SessionSpec{Mouse: "UG-27", Experiment: "S3"},
	)
	gen := fixtures.NewTestDataGenerator(root)
	table, err := gen.WriteManifest("sessions.csv", sessions...)
	require.NoError(t, err)
	mice, err := gen.WriteSubjects("mice.csv", "UG-27")
	require.NoError(t, err)
	outDir := filepath.Join(root, "nwb")

	stdout, _, err := execute(t, home, "batch",
		"--table", table, "--subjects", mice, "--dir", root, "--out", outDir,
		"--subject", "UG-27", "--stub", "--output", "json")
	assert.ErrorContains(t, err, "1 of 3 sessions failed")

	var outcomes []model.Outcome
	require.NoError(t, sonic.Unmarshal([]byte(stdout), &outcomes))
	require.Len(t, outcomes, 3)
	assert.Equal(t, model.StatusFailed, outcomes[1].Status)
	assert.Equal(t, "NoSyncPulsesFound", outcomes[1].Reason)
	assert.FileExists(t, filepath.Join(outDir, inspect.ReportName("UG27", "S1")))

	stdout, _, err = execute(t, home, "status", "--output", "json")
	require.NoError(t, err)
	var runs []ledger.Run
	require.NoError(t, sonic.Unmarshal([]byte(stdout), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].Converted)
	assert.Equal(t, 1, runs[0].Failed)
	assert.Contains(t, runs[0].Command, "--subject=[UG-27]")
	assert.False(t, runs[0].FinishedAt.IsZero())

	stdout, _, err = execute(t, home, "status", "--run", runs[0].ID, "--output", "csv")
	require.NoError(t, err)
	assert.Equal(t, 4, strings.Count(stdout, "\n"), "header and three sessions")

	container := filepath.Join(outDir, "stub-UG27_S1.nwb.json")
	stdout, _, err = execute(t, home, "inspect", container)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Inspection report for "+container)
	assert.NotContains(t, stdout, "CRITICAL")
}

func TestInspectCommandWritesReportOnce(t *testing.T) {
	home, root := t.TempDir(), t.TempDir()
	files := generate(t, root, fixtures.SessionSpec{Mouse: "UG27", Experiment: "240214"})[0]
	out := filepath.Join(root, "s.nwb.json")
	_, _, err := execute(t, home, "single",
		"--imaging", files.GreenImaging, "--ttl", files.TTL, "--processed", files.Processed,
		"--indicator", "ACh3.0", "--photometry-field", fixtures.GreenField,
		"--index-field", fixtures.GreenIndex, "--output", out)
	require.NoError(t, err)

	stdout, _, err := execute(t, home, "inspect", "--write", out)
	require.NoError(t, err)
	report := filepath.Join(root, inspect.ReportName("UG27", "240214"))
	assert.Contains(t, stdout, "Report written to "+report)
	first, err := os.ReadFile(report)
	require.NoError(t, err)

	stdout, _, err = execute(t, home, "inspect", "--write", out)
	require.NoError(t, err)
	assert.NotContains(t, stdout, "Report written")
	second, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCommandErrors(t *testing.T) {
	home := t.TempDir()

	_, _, err := execute(t, home, "inspect", filepath.Join(home, "missing.nwb.json"))
	assert.Error(t, err)

	_, _, err = execute(t, home, "status", "--output", "xml")
	assert.ErrorContains(t, err, `unknown output format "xml"`)

	_, _, err = execute(t, home, "status", "--config", filepath.Join(home, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, _, err = execute(t, home, "batch", "--table", "x.csv")
	assert.ErrorContains(t, err, "required flag(s)")
}
