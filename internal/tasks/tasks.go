// package tasks implements the list sync pipeline.
//
// The core abstraction is SyncEngine, which validates a run, streams rows into a BatchAssembler and returns the run report.
// Operations emit progress updates via channels for non-blocking status reporting to CLI/UI layers.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/listsync/internal/models"
	"github.com/desertthunder/listsync/internal/services"
	"github.com/desertthunder/listsync/internal/shared"
)

const readProgressEvery = 100

// RowReader streams input rows. Next returns [io.EOF] after the last row.
type RowReader interface {
	Schema() models.Schema
	Next() (models.Row, error)
}

// ListAPI is the list-level API the engine needs.
type ListAPI interface {
	Pusher
	FindList(ctx context.Context) (*services.ListInfo, error)
}

// EngineOpts wires a [SyncEngine].
type EngineOpts struct {
	Config   *shared.Config
	RunID    string
	Lists    ListAPI
	Metadata MetadataSource
	Logger   *log.Logger
	DryRun   bool // transform and deduplicate, but never POST
}

// SyncEngine runs one sync: list lookup, schema validation, metadata resolution, then the
// buffered push loop.
type SyncEngine struct {
	cfg      *shared.Config
	runID    string
	lists    ListAPI
	metadata MetadataSource
	logger   *log.Logger
	dryRun   bool
}

// NewSyncEngine creates an engine from explicit dependencies.
func NewSyncEngine(opts EngineOpts) *SyncEngine {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	runID := opts.RunID
	if runID == "" {
		runID = shared.GenerateID()
	}
	return &SyncEngine{
		cfg:      opts.Config,
		runID:    runID,
		lists:    opts.Lists,
		metadata: opts.Metadata,
		logger:   shared.WithLogger(logger, "run_id", runID),
		dryRun:   opts.DryRun,
	}
}

// NewSyncEngineFromRunContext builds the list client and metadata resolver on rc's transport.
func NewSyncEngineFromRunContext(cfg *shared.Config, rc *services.RunContext, logger *log.Logger, dryRun bool) *SyncEngine {
	return NewSyncEngine(EngineOpts{
		Config:   cfg,
		RunID:    rc.RunID,
		Lists:    services.NewListClient(rc.Transport, rc.ListID),
		Metadata: services.NewMetadataResolver(rc.Transport, rc.ListID, logger),
		Logger:   logger,
		DryRun:   dryRun,
	})
}

// RunID identifies the run in logs and the report.
func (e *SyncEngine) RunID() string { return e.runID }

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *SyncEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Run syncs every row of reader into the configured list.
//
// Configuration problems (unknown list, missing columns, unknown categories) are reported
// before the first row is read. A fatal push error aborts the run. In atomic mode the report
// is returned together with [shared.ErrAtomicFailure] when any member failed.
func (e *SyncEngine) Run(ctx context.Context, reader RowReader, progress chan<- ProgressUpdate) (*models.RunReport, error) {
	listID := e.cfg.Mailchimp.ListID

	e.sendProgress(progress, resolveListUpdate(listID))
	info, err := e.lists.FindList(ctx)
	if err != nil {
		return nil, err
	}
	e.logger.Info("found list", "list_id", info.ID, "name", info.Name)
	e.sendProgress(progress, foundListUpdate(info))

	schema := reader.Schema()
	e.sendProgress(progress, validateSchemaUpdate(schema))
	if err := e.cfg.ValidateSchema(schema, e.logger); err != nil {
		return nil, err
	}

	var pusher Pusher = e.lists
	if e.dryRun {
		pusher = &dryRunPusher{logger: e.logger}
	}

	assembler := NewBatchAssembler(AssemblerConfig{
		Schema:         schema,
		Transform:      TransformOptionsFromConfig(e.cfg),
		MaxRecords:     e.cfg.Sync.MaxRecordsPerRequest,
		UpdateExisting: e.cfg.Sync.UpdateExisting,
		Pusher:         pusher,
		Metadata:       e.metadata,
		Pacer:          NewPacer(e.cfg.Sync.SleepDuration()),
		Aggregator:     NewReportAggregator(e.runID, listID, e.cfg.Sync.AtomicUpsert, e.logger),
		Logger:         e.logger,
		OnPush:         func(ev PushEvent) { e.sendProgress(progress, pushUpdate(ev)) },
	})

	e.sendProgress(progress, resolveMetadataUpdate(len(e.cfg.Columns.GroupingColumns)))
	if err := assembler.Prepare(ctx); err != nil {
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", assembler.Buffered()+1, err)
		}
		if err := assembler.Buffer(ctx, row); err != nil {
			return nil, err
		}
		if assembler.Buffered()%readProgressEvery == 0 {
			e.sendProgress(progress, readRowsUpdate(assembler.Buffered()))
		}
	}

	report, err := assembler.Finish(ctx)
	if report != nil {
		e.sendProgress(progress, completeUpdate(report))
	}
	return report, err
}

// dryRunPusher logs the request size instead of sending it.
type dryRunPusher struct {
	logger *log.Logger
}

func (d *dryRunPusher) PushMembers(ctx context.Context, req models.BatchRequest) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch: %w", err)
	}
	d.logger.Info("dry run: skipping push", "members", len(req.Members), "bytes", len(payload))
	return nil, nil
}
