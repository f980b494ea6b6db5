package tasks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/listsync/internal/models"
	"github.com/desertthunder/listsync/internal/shared"
)

// BatchOutcome is the parsed result of one push.
type BatchOutcome struct {
	Created   int
	Updated   int
	Failed    int
	Errors    []models.MemberError // masked
	Recovered bool                 // counts were recovered from a malformed body
}

var recoverCounts = map[string]*regexp.Regexp{
	"total_created": regexp.MustCompile(`"total_created"\s*:\s*(\d+)`),
	"total_updated": regexp.MustCompile(`"total_updated"\s*:\s*(\d+)`),
	"error_count":   regexp.MustCompile(`"error_count"\s*:\s*(\d+)`),
}

// ParseBatchResponse decodes a batch upsert response. When the body is not valid JSON the
// counts and the errors array are recovered by searching for their keys; recovered reports
// whether that path was taken. Recovery needs all three counts. An empty body yields a zero response.
func ParseBatchResponse(raw []byte) (resp models.BatchResponse, recovered bool, err error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return resp, false, nil
	}
	if err := json.Unmarshal(raw, &resp); err == nil {
		return resp, false, nil
	}

	body := string(raw)
	found := 0
	for key, re := range recoverCounts {
		m := re.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		n, convErr := strconv.Atoi(m[1])
		if convErr != nil {
			continue
		}
		found++
		switch key {
		case "total_created":
			resp.TotalCreated = n
		case "total_updated":
			resp.TotalUpdated = n
		case "error_count":
			resp.ErrorCount = n
		}
	}
	if found < len(recoverCounts) {
		return models.BatchResponse{}, false, fmt.Errorf("%w: found %d of %d counts in %d bytes", shared.ErrDataError, found, len(recoverCounts), len(raw))
	}
	resp.Errors = recoverErrors(body)
	return resp, true, nil
}

// recoverErrors extracts the "errors" array by bracket matching. Nil when it cannot be decoded.
func recoverErrors(body string) []models.MemberError {
	i := strings.Index(body, `"errors"`)
	if i < 0 {
		return nil
	}
	start := strings.IndexByte(body[i:], '[')
	if start < 0 {
		return nil
	}
	start += i

	depth, inString, escaped := 0, false, false
	for j := start; j < len(body); j++ {
		c := body[j]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '[':
			depth++
		case c == ']':
			depth--
			if depth == 0 {
				var errs []models.MemberError
				if json.Unmarshal([]byte(body[start:j+1]), &errs) != nil {
					return nil
				}
				return errs
			}
		}
	}
	return nil
}

// ReportAggregator accumulates push outcomes into the run's [models.RunReport].
type ReportAggregator struct {
	report models.RunReport
	atomic bool
	logger *log.Logger
}

// NewReportAggregator starts a report for runID and listID.
func NewReportAggregator(runID, listID string, atomic bool, logger *log.Logger) *ReportAggregator {
	if logger == nil {
		logger = log.Default()
	}
	return &ReportAggregator{
		report: models.RunReport{RunID: runID, ListID: listID, StartedAt: time.Now()},
		atomic: atomic,
		logger: logger,
	}
}

// AddBuffered counts rows accepted from the source.
func (a *ReportAggregator) AddBuffered(n int) {
	a.report.TotalBuffered += int64(n)
}

// Record parses one push response and adds it to the totals. Member errors are logged with
// masked addresses. An unrecoverable body returns [shared.ErrDataError].
func (a *ReportAggregator) Record(raw []byte) (BatchOutcome, error) {
	resp, recovered, err := ParseBatchResponse(raw)
	if err != nil {
		return BatchOutcome{}, err
	}
	if recovered {
		a.logger.Warn("recovered counts from malformed batch response", "bytes", len(raw))
	}

	out := BatchOutcome{
		Created:   resp.TotalCreated,
		Updated:   resp.TotalUpdated,
		Failed:    resp.ErrorCount,
		Recovered: recovered,
	}
	for _, e := range resp.Errors {
		masked := models.MemberError{EmailAddress: shared.MaskEmail(e.EmailAddress), Error: e.Error, ErrorCode: e.ErrorCode}
		a.logger.Warn("member rejected", "email", masked.EmailAddress, "error", masked.Error)
		out.Errors = append(out.Errors, masked)
	}

	a.report.Batches++
	a.report.TotalCreated += int64(out.Created)
	a.report.TotalUpdated += int64(out.Updated)
	a.report.TotalFailed += int64(out.Failed)
	a.report.Errors = append(a.report.Errors, out.Errors...)
	return out, nil
}

// Report returns a snapshot of the running totals.
func (a *ReportAggregator) Report() models.RunReport {
	r := a.report
	r.Errors = append([]models.MemberError(nil), a.report.Errors...)
	return r
}

// Finalize stamps the finish time and returns the report. In atomic mode any failed member
// turns the run into [shared.ErrAtomicFailure]; the report is returned either way.
func (a *ReportAggregator) Finalize() (*models.RunReport, error) {
	a.report.FinishedAt = time.Now()
	r := a.Report()
	if a.atomic && r.TotalFailed > 0 {
		return &r, fmt.Errorf("%w (%d failed)", shared.ErrAtomicFailure, r.TotalFailed)
	}
	return &r, nil
}
