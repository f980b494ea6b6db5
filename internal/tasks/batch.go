package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/listsync/internal/models"
	"github.com/desertthunder/listsync/internal/shared"
)

// progressLogEvery is how often (in buffered rows) a progress line is logged.
const progressLogEvery = 1000

// Pusher submits one batch upsert and returns the raw response body.
type Pusher interface {
	PushMembers(ctx context.Context, req models.BatchRequest) ([]byte, error)
}

// MetadataSource resolves list metadata and validates the configured categories.
type MetadataSource interface {
	Resolve(ctx context.Context, groupingColumns []string) (*models.Metadata, error)
}

// AssemblerState is the state of a [BatchAssembler].
type AssemblerState int

const (
	StateFilling AssemblerState = iota
	StateFlushing
	StateDone
)

func (s AssemblerState) String() string {
	switch s {
	case StateFilling:
		return "filling"
	case StateFlushing:
		return "flushing"
	case StateDone:
		return "done"
	default:
		return ""
	}
}

// PushEvent describes one completed push. Used for progress reporting.
type PushEvent struct {
	Batch     int  // flush cycle, starting at 1
	Rows      int  // members in the request
	Duplicate bool // singleton push of a held-back duplicate
	Outcome   BatchOutcome
	Elapsed   time.Duration
	Totals    models.RunReport
}

// AssemblerConfig wires a [BatchAssembler].
type AssemblerConfig struct {
	Schema         models.Schema
	Transform      TransformOptions
	MaxRecords     int
	UpdateExisting bool
	Pusher         Pusher
	Metadata       MetadataSource
	Pacer          *Pacer
	Aggregator     *ReportAggregator
	Logger         *log.Logger
	OnPush         func(PushEvent)
}

// BatchAssembler buffers rows and drives the push cycle: deduplicate, transform, push the
// unique rows as one request, then push each duplicate on its own. Pushes are sequential.
type BatchAssembler struct {
	cfg         AssemblerConfig
	transformer *Transformer
	batch       []models.Row
	state       AssemblerState
	buffered    int64
	cycles      int
	logger      *log.Logger
}

// NewBatchAssembler creates an assembler in the filling state.
func NewBatchAssembler(cfg AssemblerConfig) *BatchAssembler {
	if cfg.MaxRecords <= 0 || cfg.MaxRecords > shared.MaxRecordsPerRequest {
		cfg.MaxRecords = shared.MaxRecordsPerRequest
	}
	if cfg.Pacer == nil {
		cfg.Pacer = NewPacer(0)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Aggregator == nil {
		cfg.Aggregator = NewReportAggregator("", "", false, logger)
	}
	return &BatchAssembler{
		cfg:    cfg,
		batch:  make([]models.Row, 0, cfg.MaxRecords),
		state:  StateFilling,
		logger: logger,
	}
}

// State is the current state.
func (a *BatchAssembler) State() AssemblerState { return a.state }

// Buffered is the number of rows accepted so far.
func (a *BatchAssembler) Buffered() int64 { return a.buffered }

// Prepare resolves metadata and builds the transformer. It runs once; later calls are no-ops.
// Calling it before reading rows surfaces configuration errors before anything is pushed.
func (a *BatchAssembler) Prepare(ctx context.Context) error {
	if a.transformer != nil {
		return nil
	}
	meta, err := a.cfg.Metadata.Resolve(ctx, a.cfg.Transform.GroupingColumns)
	if err != nil {
		return err
	}
	a.transformer = NewTransformer(a.cfg.Schema, meta, a.cfg.Transform, a.logger)
	return nil
}

// Buffer appends row to the current batch and flushes once the batch is full.
func (a *BatchAssembler) Buffer(ctx context.Context, row models.Row) error {
	if a.state == StateDone {
		return fmt.Errorf("%w: assembler already finished", shared.ErrInvalidInput)
	}

	a.batch = append(a.batch, row)
	a.buffered++
	a.cfg.Aggregator.AddBuffered(1)
	if a.buffered%progressLogEvery == 0 {
		a.logger.Infof("Pushed %d records", a.buffered)
	}

	if len(a.batch) >= a.cfg.MaxRecords {
		return a.flush(ctx)
	}
	return nil
}

// Finish flushes the residual batch and finalizes the report.
func (a *BatchAssembler) Finish(ctx context.Context) (*models.RunReport, error) {
	if a.state == StateDone {
		return a.cfg.Aggregator.Finalize()
	}
	if len(a.batch) > 0 {
		if err := a.flush(ctx); err != nil {
			return nil, err
		}
	}
	a.state = StateDone
	a.logger.Infof("Pushed %d records", a.buffered)
	return a.cfg.Aggregator.Finalize()
}

// Partition splits rows by email key: the first occurrence of each key goes to unique and
// every later occurrence to duplicates, both in their original relative order. Keys are
// compared exactly, without case folding.
func Partition(rows []models.Row, key func(models.Row) string) (unique, duplicates []models.Row) {
	seen := make(map[string]struct{}, len(rows))
	unique = make([]models.Row, 0, len(rows))
	for _, r := range rows {
		k := key(r)
		if _, dup := seen[k]; dup {
			duplicates = append(duplicates, r)
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, r)
	}
	return unique, duplicates
}

func (a *BatchAssembler) flush(ctx context.Context) error {
	a.state = StateFlushing
	if err := a.Prepare(ctx); err != nil {
		return err
	}
	a.cycles++

	unique, duplicates := Partition(a.batch, a.transformer.EmailKey)
	a.batch = make([]models.Row, 0, a.cfg.MaxRecords)

	if err := a.push(ctx, unique, false); err != nil {
		return err
	}
	if len(duplicates) > 0 {
		a.logger.Info("pushing duplicate rows individually", "count", len(duplicates))
	}
	for _, row := range duplicates {
		if err := a.push(ctx, []models.Row{row}, true); err != nil {
			return err
		}
	}

	a.state = StateFilling
	return nil
}

func (a *BatchAssembler) push(ctx context.Context, rows []models.Row, duplicate bool) error {
	if len(rows) == 0 {
		return nil
	}

	members := make([]models.Member, 0, len(rows))
	for _, row := range rows {
		m, err := a.transformer.Transform(row)
		if err != nil {
			return err
		}
		members = append(members, m)
	}

	if err := a.cfg.Pacer.Wait(ctx); err != nil {
		return err
	}

	start := time.Now()
	raw, err := a.cfg.Pusher.PushMembers(ctx, models.BatchRequest{Members: members, UpdateExisting: a.cfg.UpdateExisting})
	a.cfg.Pacer.Done()
	if err != nil {
		return fmt.Errorf("failed to push %d members: %w", len(members), err)
	}
	outcome, err := a.cfg.Aggregator.Record(raw)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	a.logger.Info("pushed batch", "rows", len(members), "created", outcome.Created, "updated", outcome.Updated,
		"failed", outcome.Failed, "duplicate", duplicate, "elapsed_ms", elapsed.Milliseconds())

	if a.cfg.OnPush != nil {
		a.cfg.OnPush(PushEvent{
			Batch:     a.cycles,
			Rows:      len(members),
			Duplicate: duplicate,
			Outcome:   outcome,
			Elapsed:   elapsed,
			Totals:    a.cfg.Aggregator.Report(),
		})
	}
	return nil
}
