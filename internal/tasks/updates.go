package tasks

import (
	"fmt"

	"github.com/desertthunder/listsync/internal/models"
	"github.com/desertthunder/listsync/internal/services"
)

// ProgressUpdate represents a progress event during a sync run.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase, 0 when unknown
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	ResolveList Phase = iota
	ResolveMetadata
	ValidateSchema
	ReadRows
	PushBatch
	PushDuplicate
	Complete
)

func (p Phase) String() string {
	switch p {
	case ResolveList:
		return "resolve_list"
	case ResolveMetadata:
		return "resolve_metadata"
	case ValidateSchema:
		return "validate_schema"
	case ReadRows:
		return "read_rows"
	case PushBatch:
		return "push_batch"
	case PushDuplicate:
		return "push_duplicate"
	case Complete:
		return "complete"
	default:
		return ""
	}
}

func resolveListUpdate(listID string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveList,
		Step:    1,
		Total:   3,
		Message: fmt.Sprintf("Looking up list %s...", listID),
	}
}

func foundListUpdate(info *services.ListInfo) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveList,
		Step:    1,
		Total:   3,
		Message: fmt.Sprintf("Found list: %s (%d members)", info.Name, info.Stats.MemberCount),
		Data:    info,
	}
}

func validateSchemaUpdate(schema models.Schema) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ValidateSchema,
		Step:    2,
		Total:   3,
		Message: fmt.Sprintf("Validating %d input columns...", len(schema.Columns)),
	}
}

func resolveMetadataUpdate(categories int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ResolveMetadata,
		Step:    3,
		Total:   3,
		Message: fmt.Sprintf("Resolving merge fields and %d interest categories...", categories),
	}
}

func readRowsUpdate(buffered int64) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ReadRows,
		Step:    int(buffered),
		Message: fmt.Sprintf("Read %d rows", buffered),
	}
}

func pushUpdate(ev PushEvent) ProgressUpdate {
	phase, label := PushBatch, "batch"
	if ev.Duplicate {
		phase, label = PushDuplicate, "duplicate"
	}
	return ProgressUpdate{
		Phase: phase,
		Step:  ev.Batch,
		Message: fmt.Sprintf("[%d] pushed %s of %d: %d created, %d updated, %d failed",
			ev.Batch, label, ev.Rows, ev.Outcome.Created, ev.Outcome.Updated, ev.Outcome.Failed),
		Data: ev,
	}
}

func completeUpdate(report *models.RunReport) ProgressUpdate {
	return ProgressUpdate{
		Phase: Complete,
		Step:  report.Batches,
		Total: report.Batches,
		Message: fmt.Sprintf("Done: %d rows, %d created, %d updated, %d failed",
			report.TotalBuffered, report.TotalCreated, report.TotalUpdated, report.TotalFailed),
		Data: report,
	}
}
