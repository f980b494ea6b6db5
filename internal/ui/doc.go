// Package ui implements the interactive progress view for `listsync sync --tui` using bubbletea's Elm architecture.
//
// The TUI has two views:
//  1. [SyncView] : a spinner with the current phase, running totals and the latest pushes
//  2. [ResultView] : final totals and a browsable list of failed members (emails masked)
//
// The (view) [Model] starts the sync in a goroutine and receives [tasks.ProgressUpdate] values through a
// channel, one message at a time, so the engine never blocks on rendering.
//
// Keyboard navigation uses vim-style bindings (j/k, f, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
