package commands

import (
	"fmt"
	"path/filepath"

	"github.com/penwyp/go-photometry-sync/internal/inspect"
	"github.com/penwyp/go-photometry-sync/internal/output"
	"github.com/spf13/cobra"
)

var inspectWrite bool

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "Check a converted container for problems",
	Long: `Runs the inspection checks on a container and prints the report.

The command fails when a critical issue is found.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().BoolVar(&inspectWrite, "write", false,
		"Also store the report next to the container unless one exists")
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]
	c, err := output.ReadContainer(path)
	if err != nil {
		return err
	}

	findings := inspect.Inspect(c)
	if err := inspect.Render(cmd.OutOrStdout(), path, findings); err != nil {
		return err
	}

	if inspectWrite {
		reportPath := filepath.Join(filepath.Dir(path), inspect.ReportName(c.SubjectID, c.SessionID))
		written, err := inspect.WriteReport(reportPath, path, findings)
		if err != nil {
			return err
		}
		if written {
			fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", reportPath)
		}
	}

	if inspect.HasCritical(findings) {
		return fmt.Errorf("%s has critical issues", path)
	}
	return nil
}
