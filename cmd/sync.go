package main

import (
	"context"

	"github.com/desertthunder/listsync/internal/formatter"
	"github.com/desertthunder/listsync/internal/models"
	"github.com/desertthunder/listsync/internal/services"
	"github.com/desertthunder/listsync/internal/shared"
	"github.com/desertthunder/listsync/internal/sources"
	"github.com/desertthunder/listsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// applySyncFlags overrides the source and batch settings from the command line.
func applySyncFlags(cfg *shared.Config, cmd *cli.Command) {
	if v := cmd.String("source-type"); v != "" {
		cfg.Source.Type = v
	}
	if v := cmd.String("path"); v != "" {
		cfg.Source.Path = v
	}
	if v := cmd.String("query"); v != "" {
		cfg.Source.Query = v
	}
	if v := cmd.String("dsn"); v != "" {
		cfg.Source.DSN = v
	}
	if cmd.IsSet("batch-size") {
		cfg.Sync.MaxRecordsPerRequest = int(cmd.Int("batch-size"))
	}
}

func (r *Runner) openSource(ctx context.Context, cfg shared.SourceConfig) (sources.Reader, error) {
	client := r.s3
	if cfg.Type == sources.TypeS3 && client == nil {
		c, err := sources.NewS3Client(ctx)
		if err != nil {
			return nil, err
		}
		client = c
	}
	return sources.Open(ctx, cfg, client)
}

// Sync reads the configured source and upserts every row into the list.
func (r *Runner) Sync(ctx context.Context, cmd *cli.Command) error {
	cfg, err := r.loadConfig(ctx, cmd)
	if err != nil {
		return err
	}
	applySyncFlags(cfg, cmd)

	rc, err := r.resolve(ctx, cfg)
	if err != nil {
		return err
	}
	defer rc.Close()

	reader, err := r.openSource(ctx, cfg.Source)
	if err != nil {
		return err
	}
	defer reader.Close()

	dryRun := cmd.Bool("dry-run")

	var report *models.RunReport
	var runErr error
	if cmd.Bool("tui") {
		report, runErr = r.syncTUI(ctx, cfg, rc, reader, dryRun)
	} else {
		report, runErr = r.syncPlain(ctx, cfg, rc, reader, dryRun)
	}

	if report != nil {
		if path := cmd.String("report"); path != "" {
			written, err := formatter.WriteReport(*report, path)
			if err != nil {
				r.logger.Error("failed to write report", "error", err)
			} else {
				r.logger.Info("report written", "path", written)
			}
		}
		if !cmd.Bool("tui") {
			r.printSummary(report, dryRun)
		}
	}

	return runErr
}

func (r *Runner) syncPlain(ctx context.Context, cfg *shared.Config, rc *services.RunContext, reader sources.Reader, dryRun bool) (*models.RunReport, error) {
	engine := tasks.NewSyncEngineFromRunContext(cfg, rc, r.logger, dryRun)

	r.logger.Info("starting sync", "run_id", engine.RunID(), "list", cfg.Mailchimp.ListID, "source", cfg.Source.Type, "dry_run", dryRun)

	progressCh := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progressCh {
			switch update.Phase {
			case tasks.ResolveList, tasks.ValidateSchema, tasks.ResolveMetadata:
				r.writePlain("› %s\n", update.Message)
			case tasks.PushBatch, tasks.PushDuplicate:
				r.writePlain("  %s\n", update.Message)
			}
		}
	}()

	report, err := engine.Run(ctx, reader, progressCh)
	close(progressCh)
	<-done

	return report, err
}

func (r *Runner) printSummary(report *models.RunReport, dryRun bool) {
	title := "Sync Complete!"
	if dryRun {
		title = "Dry Run Complete (nothing pushed)"
	}

	r.writePlain("\n")
	r.writePlainHeader(title)
	r.writePlain("Run: %s\n", report.RunID)
	r.writePlain("Pushed: %d rows in %d requests\n", report.TotalBuffered, report.Batches)
	r.writePlain("Created: %d  Updated: %d  Failed: %d\n", report.TotalCreated, report.TotalUpdated, report.TotalFailed)

	if len(report.Errors) > 0 {
		r.writePlain("\nRejected %d members:\n", len(report.Errors))
		for _, e := range report.Errors {
			r.writePlain("  - %s: %s\n", e.EmailAddress, e.Error)
		}
	}
	r.writePlain("Elapsed: %s\n", report.Elapsed())
}
