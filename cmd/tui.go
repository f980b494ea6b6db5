package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/listsync/internal/models"
	"github.com/desertthunder/listsync/internal/services"
	"github.com/desertthunder/listsync/internal/shared"
	"github.com/desertthunder/listsync/internal/sources"
	"github.com/desertthunder/listsync/internal/tasks"
	"github.com/desertthunder/listsync/internal/ui"
)

// syncTUI runs the sync behind the interactive progress view.
func (r *Runner) syncTUI(ctx context.Context, cfg *shared.Config, rc *services.RunContext, reader sources.Reader, dryRun bool) (*models.RunReport, error) {
	// Logs go to a file while the TUI owns the terminal
	logPath := filepath.Join(os.TempDir(), "listsync-tui.log")
	fileLogger, closer, err := shared.NewFileLogger(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file logger: %w", err)
	}
	defer closer.Close()
	fileLogger.SetLevel(r.logger.GetLevel())

	previous := r.logger
	r.SetLogger(fileLogger)
	defer r.SetLogger(previous)

	engine := tasks.NewSyncEngineFromRunContext(cfg, rc, fileLogger, dryRun)
	title := fmt.Sprintf("Syncing into list %s", cfg.Mailchimp.ListID)
	if dryRun {
		title += " (dry run)"
	}

	model := ui.NewModel(ctx, title, func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*models.RunReport, error) {
		return engine.Run(ctx, reader, progress)
	})

	final, err := tea.NewProgram(model).Run()
	if err != nil {
		return nil, fmt.Errorf("error running TUI: %w", err)
	}
	previous.Info("tui log written", "path", logPath)

	m := final.(*ui.Model)
	return m.Report(), m.Err()
}
