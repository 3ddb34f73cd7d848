package report

import (
	"os"
	"regexp"
	"strings"
)

const (
	// rollbackStartMarker is the exact line the tool logs when it aborts and
	// starts rolling its own changes back.
	rollbackStartMarker = "WARNING - Abnormal exit! Performing rollback ..."
	// reportGeneratedMarker bounds the rollback section; everything after it
	// belongs to report generation, not rollback.
	reportGeneratedMarker = "Pre-conversion analysis report"
)

// rollbackErrorPattern is the error vocabulary scanned for inside the
// rollback section. Error-like tokens appear throughout normal logs (error
// handling being exercised successfully), so matches are only meaningful
// within the bounded section.
var rollbackErrorPattern = regexp.MustCompile(`(?i)(error|fail|denied|traceback|couldn't find a backup)`)

// DetectRollbackErrors scans the tool's log for failures that occurred while
// the tool was rolling itself back. It returns the matching lines joined by
// newlines, or an empty string when the log is unreadable or contains no
// rollback section - most runs never roll back.
func DetectRollbackErrors(logPath string) string {
	data, err := os.ReadFile(logPath)
	if err != nil {
		return ""
	}
	return scanRollbackSection(string(data))
}

// scanRollbackSection applies the bounded scan to raw log text.
func scanRollbackSection(text string) string {
	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}

	start := -1
	for i, line := range lines {
		if line == rollbackStartMarker {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}

	end := len(lines)
	for i := start + 1; i < len(lines); i++ {
		if strings.Contains(lines[i], reportGeneratedMarker) {
			end = i
			break
		}
	}

	var matches []string
	for _, line := range lines[start+1 : end] {
		if rollbackErrorPattern.MatchString(line) {
			matches = append(matches, line)
		}
	}
	return strings.Join(matches, "\n")
}
