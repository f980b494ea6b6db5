package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/listsync/internal/models"
	"github.com/desertthunder/listsync/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	SyncView ViewState = iota
	ResultView
)

const recentPushes = 5

// RunFunc performs the sync, reporting progress on the channel. The channel is closed by the model.
type RunFunc func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*models.RunReport, error)

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	cancel       context.CancelFunc
	view         ViewState
	run          RunFunc
	title        string
	width        int
	height       int
	spinner      spinner.Model
	progressChan chan tasks.ProgressUpdate
	doneChan     chan syncResult
	progress     tasks.ProgressUpdate
	totals       models.RunReport
	recent       []string
	report       *models.RunReport
	err          error
	failures     list.Model
	showFailures bool
	help         help.Model
	keys         keyMap
}

// NewModel creates a TUI model that runs fn when started.
func NewModel(ctx context.Context, title string, fn RunFunc) *Model {
	ctx, cancel := context.WithCancel(ctx)
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.title.UnsetMarginBottom()

	return &Model{
		ctx:     ctx,
		cancel:  cancel,
		view:    SyncView,
		run:     fn,
		title:   title,
		spinner: s,
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Report is the final report, available once the sync has finished.
func (m *Model) Report() *models.RunReport { return m.report }

// Err is the error the sync finished with.
func (m *Model) Err() error { return m.err }

// Init starts the spinner and the sync.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.showFailures {
			m.failures.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case SyncView:
			return m.handleSyncKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case spinner.TickMsg:
		if m.view != SyncView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		switch msg.kind {
		case MsgProgressUpdate:
			m.applyProgress(msg.data.(tasks.ProgressUpdate))
			return m, m.waitForProgress()
		case MsgSyncComplete:
			res := msg.data.(syncResult)
			m.finish(res.report, res.err)
			return m, nil
		}
	}

	return m, nil
}

func (m *Model) applyProgress(update tasks.ProgressUpdate) {
	m.progress = update
	switch data := update.Data.(type) {
	case tasks.PushEvent:
		m.totals = data.Totals
		m.recent = append(m.recent, update.Message)
		if len(m.recent) > recentPushes {
			m.recent = m.recent[len(m.recent)-recentPushes:]
		}
	case *models.RunReport:
		if data != nil {
			m.totals = *data
		}
	}
}

func (m *Model) finish(report *models.RunReport, err error) {
	m.view = ResultView
	m.report = report
	m.err = err
	m.progressChan = nil
	m.doneChan = nil
	if report != nil {
		m.totals = *report
		m.failures = list.New(failureItems(report.Errors), list.NewDefaultDelegate(), 0, 0)
		m.failures.Title = fmt.Sprintf("Failed members (%d)", len(report.Errors))
		m.failures.SetShowHelp(false)
	}
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case SyncView:
		return m.renderSync()
	case ResultView:
		if m.showFailures {
			return m.renderFailures()
		}
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handleSyncKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.quit) {
		m.cancel()
		return m, tea.Quit
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.cancel()
		return m, tea.Quit
	case key.Matches(msg, m.keys.failures):
		if m.report == nil || len(m.report.Errors) == 0 {
			return m, nil
		}
		m.showFailures = !m.showFailures
		if m.showFailures {
			m.failures.SetSize(max(m.width-4, 60), max(m.height-8, 12))
		}
		return m, nil
	}

	if !m.showFailures {
		return m, nil
	}
	var cmd tea.Cmd
	m.failures, cmd = m.failures.Update(msg)
	return m, cmd
}

func (m *Model) start() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 64)
	m.doneChan = make(chan syncResult, 1)

	progress, done := m.progressChan, m.doneChan
	go func() {
		report, err := m.run(m.ctx, progress)
		close(progress)
		done <- syncResult{report, err}
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.doneChan
	return func() tea.Msg {
		if progress == nil {
			return nil
		}

		update, ok := <-progress
		if !ok {
			res := <-done
			return syncCompleteMsg(res.report, res.err)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderTotals(r models.RunReport) string {
	rows := []struct {
		label string
		value int64
	}{
		{"Pushed", r.TotalBuffered},
		{"Created", r.TotalCreated},
		{"Updated", r.TotalUpdated},
		{"Failed", r.TotalFailed},
	}
	var b strings.Builder
	for _, row := range rows {
		fmt.Fprintf(&b, "%s  %s\n", styles.stat.Render(row.label), fmt.Sprint(row.value))
	}
	fmt.Fprintf(&b, "%s  %d", styles.stat.Render("Batches"), r.Batches)
	return b.String()
}

func (m *Model) renderSync() string {
	title := styles.title.Render(m.title)

	phase := m.progress.Message
	if phase == "" {
		phase = "Starting..."
	}
	if m.progress.Total > 0 {
		phase = fmt.Sprintf("%s (%d/%d)", phase, m.progress.Step, m.progress.Total)
	}

	var recent string
	if len(m.recent) > 0 {
		recent = "\n\n" + styles.help.Render(strings.Join(m.recent, "\n"))
	}

	helpView := m.help.ShortHelpView([]key.Binding{m.keys.quit})
	return fmt.Sprintf("%s\n%s %s\n\n%s%s\n\n%s", title, m.spinner.View(), phase, m.renderTotals(m.totals), recent, helpView)
}

func (m *Model) renderResult() string {
	helpKeys := []key.Binding{m.keys.quit}

	var title string
	switch {
	case m.err != nil && m.report == nil:
		return styles.err.Render(fmt.Sprintf("Sync failed: %v\n\nPress q to quit", m.err))
	case m.err != nil:
		title = styles.err.Render(fmt.Sprintf("Sync finished with errors: %v", m.err))
	case m.report != nil && m.report.TotalFailed > 0:
		title = styles.warn.Render("Sync complete with rejected members")
	default:
		title = styles.ok.Render("✓ Sync complete")
	}

	var failed string
	if m.report != nil && len(m.report.Errors) > 0 {
		failed = "\n\n" + styles.warn.Render(fmt.Sprintf("%d members were rejected", len(m.report.Errors)))
		helpKeys = []key.Binding{m.keys.failures, m.keys.quit}
	}

	helpView := m.help.ShortHelpView(helpKeys)
	return fmt.Sprintf("%s\n\n%s%s\n\n%s", title, m.renderTotals(m.totals), failed, helpView)
}

func (m *Model) renderFailures() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.up, m.keys.down, m.keys.failures, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", m.failures.View(), helpView)
}
