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

	"github.com/peanuz/playlist-sync/internal/models"
	"github.com/peanuz/playlist-sync/internal/tasks"
)

const (
	maxLogLines = 8
	barWidth    = 40
)

// ViewState is the screen currently rendered by the [Model].
type ViewState int

const (
	ProgressView ViewState = iota
	ResultView
)

// SyncFunc performs one sync pass, reporting on progress. The channel is owned by the [Model].
type SyncFunc func(ctx context.Context, progress chan<- tasks.ProgressUpdate) ([]*models.SyncRun, error)

// Model is the bubbletea model for a single sync pass.
type Model struct {
	ctx    context.Context
	cancel context.CancelFunc
	syncFn SyncFunc

	progressCh chan tasks.ProgressUpdate

	view    ViewState
	spinner spinner.Model
	results list.Model
	help    help.Model
	keys    keyMap

	phase    tasks.Phase
	playlist string
	step     int
	total    int
	logs     []string
	showLog  bool

	runs []*models.SyncRun
	err  error

	width, height int
	quitting      bool
}

// NewModel creates a model that runs fn once when started.
func NewModel(ctx context.Context, fn SyncFunc) *Model {
	ctx, cancel := context.WithCancel(ctx)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.title.UnsetMarginBottom()

	results := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	results.Title = "Sync results"
	results.SetShowHelp(false)
	results.SetFilteringEnabled(false)

	return &Model{
		ctx:        ctx,
		cancel:     cancel,
		syncFn:     fn,
		progressCh: make(chan tasks.ProgressUpdate, 100),
		view:       ProgressView,
		spinner:    s,
		results:    results,
		help:       help.New(),
		keys:       newKeyMap(),
		showLog:    true,
	}
}

// Runs returns the runs of the completed pass.
func (m *Model) Runs() []*models.SyncRun { return m.runs }

// Err returns the error of the completed pass.
func (m *Model) Err() error { return m.err }

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startPass(), m.waitForProgress())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.results.SetSize(msg.Width, max(msg.Height-4, 4))
		return m, nil
	case tea.KeyMsg:
		return m.handleKeys(msg)
	case spinner.TickMsg:
		if m.view != ProgressView {
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
		case MsgPassComplete:
			res := msg.data.(passResult)
			m.runs, m.err = res.runs, res.err
			m.view = ResultView
			items := make([]list.Item, len(res.runs))
			for i, run := range res.runs {
				items[i] = runItem{run: run}
			}
			return m, m.results.SetItems(items)
		}
	}
	return m, nil
}

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	switch m.view {
	case ProgressView:
		b.WriteString(m.renderProgress())
	case ResultView:
		b.WriteString(m.renderResult())
	}
	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.cancel()
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.details):
		m.showLog = !m.showLog
		return m, nil
	}

	if m.view == ResultView {
		var cmd tea.Cmd
		m.results, cmd = m.results.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) applyProgress(update tasks.ProgressUpdate) {
	m.phase = update.Phase
	if update.PlaylistID != "" {
		m.playlist = update.PlaylistID
	}
	if update.Phase == tasks.Downloading || update.Phase == tasks.Exporting {
		m.step, m.total = update.Step, update.Total
	} else if update.Phase == tasks.FetchingMetadata {
		m.step, m.total = 0, 0
	}
	if update.Message != "" {
		m.logs = append(m.logs, update.Message)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
	}
}

// startPass runs the sync function; bubbletea executes commands off the update loop.
func (m *Model) startPass() tea.Cmd {
	ctx, fn, progress := m.ctx, m.syncFn, m.progressCh
	return func() tea.Msg {
		runs, err := fn(ctx, progress)
		return passCompleteMsg(runs, err)
	}
}

func (m *Model) waitForProgress() tea.Cmd {
	ch, ctx := m.progressCh, m.ctx
	return func() tea.Msg {
		select {
		case update := <-ch:
			return progressUpdateMsg(update)
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *Model) renderProgress() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Syncing playlists"))
	b.WriteString("\n")

	label := m.phase.String()
	if m.playlist != "" {
		label = fmt.Sprintf("%s · %s", m.playlist, label)
	}
	fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), label)

	if m.total > 0 {
		fmt.Fprintf(&b, "%s %d/%d\n", styles.bar(barWidth, m.step, m.total), m.step, m.total)
	}

	if m.showLog && len(m.logs) > 0 {
		b.WriteString("\n")
		for _, line := range m.logs {
			b.WriteString(styles.help.Render(line))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (m *Model) renderResult() string {
	var b strings.Builder
	if m.err != nil {
		b.WriteString(styles.err.Render("✗ " + m.err.Error()))
		b.WriteString("\n\n")
	} else {
		b.WriteString(styles.ok.Render(fmt.Sprintf("✓ %d playlist(s) processed", len(m.runs))))
		b.WriteString("\n\n")
	}
	if len(m.runs) > 0 {
		b.WriteString(m.results.View())
	}
	return b.String()
}
