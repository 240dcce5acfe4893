package formatter

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/peanuz/playlist-sync/internal/models"
)

const (
	reportListLimit  = 10
	reportMovedLimit = 10
)

// Styles colors report lines. The zero value renders plain text.
type Styles struct {
	Title   lipgloss.Style
	Added   lipgloss.Style
	Removed lipgloss.Style
	Moved   lipgloss.Style
	Muted   lipgloss.Style
	styled  bool
}

// NewStyles returns colored styles when styled is true and plain ones otherwise.
func NewStyles(styled bool) Styles {
	if !styled {
		return Styles{}
	}
	return Styles{
		Title:   lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true),
		Added:   lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")),
		Removed: lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")),
		Moved:   lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA500")),
		Muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("#626262")),
		styled:  true,
	}
}

// StylesFor enables colors when f is a terminal.
func StylesFor(f *os.File) Styles {
	return NewStyles(term.IsTerminal(int(f.Fd())))
}

// Render applies style to text when colors are enabled.
func (s Styles) Render(style lipgloss.Style, text string) string {
	if !s.styled {
		return text
	}
	return style.Render(text)
}

// DiffReport prints the change summary of a diff: counts, the first added and
// removed tracks, and the moved tracks when there are few of them.
func DiffReport(w io.Writer, d models.DiffResult, s Styles) {
	fmt.Fprintln(w, s.Render(s.Title, "Changes:"))
	fmt.Fprintln(w, s.Render(s.Added, fmt.Sprintf("  + %d new", len(d.Added))))
	fmt.Fprintln(w, s.Render(s.Removed, fmt.Sprintf("  - %d removed", len(d.Removed))))
	fmt.Fprintln(w, s.Render(s.Moved, fmt.Sprintf("  ↕ %d moved", len(d.Moved))))
	fmt.Fprintln(w, s.Render(s.Muted, fmt.Sprintf("  = %d unchanged", d.Unchanged)))

	if len(d.Added) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, s.Render(s.Added, "New tracks:"))
		writeTrackList(w, d.Added, "+", s.Added, s)
	}

	if len(d.Removed) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, s.Render(s.Removed, "Removed tracks:"))
		writeTrackList(w, d.Removed, "-", s.Removed, s)
	}

	if len(d.Moved) > 0 && len(d.Moved) <= reportMovedLimit {
		fmt.Fprintln(w)
		fmt.Fprintln(w, s.Render(s.Moved, "Moved tracks:"))
		for _, m := range d.Moved {
			fmt.Fprintf(w, "  ↕ %s - %s (%d → %d)\n", m.Artists, m.Title, m.From, m.To)
		}
	}
}

func writeTrackList(w io.Writer, tracks []models.Track, marker string, style lipgloss.Style, s Styles) {
	for _, t := range tracks[:min(len(tracks), reportListLimit)] {
		fmt.Fprintf(w, "  %s %s\n", s.Render(style, marker), t.DisplayName())
	}
	if rest := len(tracks) - reportListLimit; rest > 0 {
		fmt.Fprintln(w, s.Render(s.Muted, fmt.Sprintf("  ... and %d more", rest)))
	}
}

// WriteRunSummary prints the outcome counters of a finished run.
func WriteRunSummary(w io.Writer, run *models.SyncRun, s Styles) {
	name := run.PlaylistName
	if name == "" {
		name = run.PlaylistID
	}

	fmt.Fprintln(w, s.Render(s.Title, fmt.Sprintf("%s: %s", name, run.Status)))
	if run.Error != "" {
		fmt.Fprintln(w, s.Render(s.Removed, "  error: "+run.Error))
	}
	if len(run.Results) == 0 && run.Downloaded+run.Skipped+run.NotFound+run.Failed == 0 {
		return
	}
	fmt.Fprintln(w, s.Render(s.Added, fmt.Sprintf("  ✓ downloaded: %d", run.Downloaded)))
	fmt.Fprintln(w, s.Render(s.Muted, fmt.Sprintf("  ⏭ skipped: %d", run.Skipped)))
	fmt.Fprintln(w, s.Render(s.Moved, fmt.Sprintf("  ? not found: %d", run.NotFound)))
	fmt.Fprintln(w, s.Render(s.Removed, fmt.Sprintf("  ✗ failed: %d", run.Failed)))
}

// WriteRunTable prints one line per run, newest first as given.
func WriteRunTable(w io.Writer, runs []*models.SyncRun) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}

	fmt.Fprintf(w, "%-4s  %-20s  %-24s  %-9s  %5s  %5s  %5s  %5s  %s\n",
		"#", "STARTED", "PLAYLIST", "STATUS", "ADDED", "DL", "MISS", "FAIL", "TOOK")
	for _, r := range runs {
		name := r.PlaylistName
		if name == "" {
			name = r.PlaylistID
		}
		fmt.Fprintf(w, "%-4d  %-20s  %-24s  %-9s  %5d  %5d  %5d  %5d  %s\n",
			r.Sequence(),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			truncate(name, 24),
			r.Status,
			r.Added, r.Downloaded, r.NotFound, r.Failed,
			r.Duration().Round(time.Second),
		)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
