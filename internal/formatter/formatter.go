// package formatter renders a sync run report as JSON, CSV, Markdown or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/listsync/internal/models"
	"github.com/desertthunder/listsync/internal/shared"
)

// Format names accepted by [Render].
const (
	FormatJSON     = "json"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
	FormatText     = "txt"
)

// FormatForPath picks a format from the file extension, defaulting to JSON.
func FormatForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV
	case ".md", ".markdown":
		return FormatMarkdown
	case ".txt", ".log":
		return FormatText
	default:
		return FormatJSON
	}
}

// Render converts a report to the named format.
func Render(report models.RunReport, format string) ([]byte, error) {
	switch format {
	case FormatJSON, "":
		return shared.MarshalJSON(report, true)
	case FormatCSV:
		return ReportToCSV(report)
	case FormatMarkdown, "md":
		return ReportToMarkdown(report)
	case FormatText, "text":
		return ReportToText(report)
	default:
		return nil, fmt.Errorf("%w: unknown report format '%s'", shared.ErrInvalidArgument, format)
	}
}

// ReportToCSV writes one row per member error with columns: email_address, error, error_code.
//
// A run without member errors produces just the header.
func ReportToCSV(report models.RunReport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"email_address", "error", "error_code"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, e := range report.Errors {
		if err := writer.Write([]string{e.EmailAddress, e.Error, e.ErrorCode}); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ReportToMarkdown renders the totals as a table followed by the failed members.
func ReportToMarkdown(report models.RunReport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# Sync %s\n\n", report.RunID)
	fmt.Fprintf(&buf, "**List**: %s\n", report.ListID)
	if !report.StartedAt.IsZero() {
		fmt.Fprintf(&buf, "**Started**: %s\n", report.StartedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintf(&buf, "**Elapsed**: %s\n\n", report.Elapsed().Round(time.Millisecond))

	buf.WriteString("| Pushed | Created | Updated | Failed | Batches |\n")
	buf.WriteString("|---:|---:|---:|---:|---:|\n")
	fmt.Fprintf(&buf, "| %d | %d | %d | %d | %d |\n", report.TotalBuffered, report.TotalCreated, report.TotalUpdated, report.TotalFailed, report.Batches)

	if len(report.Errors) > 0 {
		buf.WriteString("\n## Failed members\n\n")
		for i, e := range report.Errors {
			code := ""
			if e.ErrorCode != "" {
				code = fmt.Sprintf(" `%s`", e.ErrorCode)
			}
			fmt.Fprintf(&buf, "%d. %s: %s%s\n", i+1, e.EmailAddress, e.Error, code)
		}
	}

	return buf.Bytes(), nil
}

// ReportToText converts a report to plain text format
func ReportToText(report models.RunReport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Run: %s\n", report.RunID)
	fmt.Fprintf(&buf, "List: %s\n", report.ListID)
	fmt.Fprintf(&buf, "Pushed: %d\n", report.TotalBuffered)
	fmt.Fprintf(&buf, "Created: %d\n", report.TotalCreated)
	fmt.Fprintf(&buf, "Updated: %d\n", report.TotalUpdated)
	fmt.Fprintf(&buf, "Failed: %d\n", report.TotalFailed)
	fmt.Fprintf(&buf, "Batches: %s\n", strconv.Itoa(report.Batches))

	if len(report.Errors) > 0 {
		buf.WriteString("\n")
		for i, e := range report.Errors {
			fmt.Fprintf(&buf, "%d. %s - %s\n", i+1, e.EmailAddress, e.Error)
		}
	}

	return buf.Bytes(), nil
}

// WriteReport renders report in the format implied by path and writes it there.
//
// An existing file is replaced.
func WriteReport(report models.RunReport, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s_report.json", report.RunID)
	}

	format := FormatForPath(path)
	data, err := Render(report, format)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s report: %w", format, err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}

	return path, nil
}
