package e2e

import (
	"regexp"
	"strings"
)

// ANSI escape code patterns
var (
	ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]`)
	ansiColor  = regexp.MustCompile(`\x1b\[([0-9;]*)m`)
)

// StripANSI removes all ANSI escape codes from a string
func StripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

// HasColor reports whether s contains a color escape sequence.
func HasColor(s string) bool {
	return ansiColor.MatchString(s)
}

// CleanLines splits terminal output into lines without escape codes or the
// carriage returns a PTY adds.
func CleanLines(s string) []string {
	s = strings.ReplaceAll(StripANSI(s), "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "")
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

// CountText counts the non-overlapping occurrences of text in the output
// once escape codes are removed.
func CountText(output, text string) int {
	return strings.Count(StripANSI(output), text)
}
