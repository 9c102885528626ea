package inspect

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ReportName is the report file of one session.
func ReportName(subjectID, sessionID string) string {
	return subjectID + "-" + sessionID + "_inspector_result.txt"
}

// Render writes a human-readable report of findings for containerPath.
func Render(w io.Writer, containerPath string, findings []Finding) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Inspection report for %s\n", containerPath)

	if len(findings) == 0 {
		b.WriteString("No issues found.\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	counts := make(map[Severity]int)
	for _, f := range findings {
		counts[f.Severity]++
	}
	fmt.Fprintf(&b, "Found %d issues:\n", len(findings))
	for _, sev := range []Severity{Critical, Violation, Suggestion} {
		if counts[sev] > 0 {
			fmt.Fprintf(&b, "  %6d - %s\n", counts[sev], sev)
		}
	}

	current := Severity(-1)
	n := 0
	for _, f := range findings {
		if f.Severity != current {
			current = f.Severity
			n = 0
			fmt.Fprintf(&b, "\n%d  %s\n%s\n", int(current), current, strings.Repeat("=", len(current.String())+3))
		}
		fmt.Fprintf(&b, "%d.%d  %s: %s - '%s'\n       Message: %s\n", int(current), n, containerPath, f.Check, f.Location, f.Message)
		n++
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteReport writes the report to path unless a report already exists
// there. It returns whether a file was written.
func WriteReport(path, containerPath string, findings []Finding) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create report: %w", err)
	}

	err = Render(file, containerPath, findings)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return false, fmt.Errorf("failed to write report: %w", err)
	}
	return true, nil
}
