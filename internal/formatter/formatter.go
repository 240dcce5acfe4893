// package formatter renders playlist snapshots into consumer formats (JSON, CSV, Markdown, plain text)
// and sync results into human-readable reports
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/peanuz/playlist-sync/internal/models"
	"github.com/peanuz/playlist-sync/internal/shared"
)

// Format is an export format understood by [Render].
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "txt"
)

// ParseFormat validates s. Empty defaults to JSON; "md" is accepted for Markdown.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "", "json":
		return FormatJSON, nil
	case "csv":
		return FormatCSV, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: unknown export format %q", shared.ErrInvalidFlag, s)
	}
}

// Extension returns the file extension (with dot) of f.
func (f Format) Extension() string {
	switch f {
	case FormatCSV:
		return ".csv"
	case FormatMarkdown:
		return ".md"
	case FormatText:
		return ".txt"
	default:
		return ".json"
	}
}

// Render encodes export in format.
func Render(export *models.PlaylistExport, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ExportToCSV(export)
	case FormatMarkdown:
		return ExportToMarkdown(export)
	case FormatText:
		return ExportToText(export)
	default:
		return ExportToJSON(export)
	}
}

// ExportToJSON renders the consumer export file (two-space indent, trailing newline).
func ExportToJSON(export *models.PlaylistExport) ([]byte, error) {
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}
	return append(data, '\n'), nil
}

// ExportToCSV converts a PlaylistExport to CSV with columns: Position, Title, Artists, URL
func ExportToCSV(export *models.PlaylistExport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"Position", "Title", "Artists", "URL"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range export.Tracks {
		record := []string{strconv.Itoa(track.Position), track.Title, track.Artists, track.URL}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown converts a PlaylistExport to Markdown, linking the cached cover when present
func ExportToMarkdown(export *models.PlaylistExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", export.PlaylistName)

	switch {
	case export.PlaylistImagePath != "":
		fmt.Fprintf(&buf, "![Cover](%s)\n\n", filepath.ToSlash(export.PlaylistImagePath))
	case export.PlaylistImage != "":
		fmt.Fprintf(&buf, "![Cover](%s)\n\n", export.PlaylistImage)
	}

	fmt.Fprintf(&buf, "**Tracks**: %d\n", export.TrackCount)
	fmt.Fprintf(&buf, "**Exported**: %s\n\n", export.ExportDate.Format(time.RFC3339))

	buf.WriteString("## Tracks\n\n")
	for _, track := range export.Tracks {
		fmt.Fprintf(&buf, "%d. %s - [%s](%s)\n", track.Position, track.Artists, track.Title, track.URL)
	}

	return buf.Bytes(), nil
}

// ExportToText converts a PlaylistExport to plain text
func ExportToText(export *models.PlaylistExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Playlist: %s\n", export.PlaylistName)
	fmt.Fprintf(&buf, "Tracks: %d\n\n", export.TrackCount)

	for _, track := range export.Tracks {
		fmt.Fprintf(&buf, "%d. %s - %s\n", track.Position, track.Artists, track.Title)
	}

	return buf.Bytes(), nil
}

// ExportPath is <dir>/<playlistID><ext>.
func ExportPath(dir, playlistID string, format Format) string {
	return filepath.Join(dir, playlistID+format.Extension())
}

// WriteExport renders snapshot in format and atomically writes it to [ExportPath].
func WriteExport(dir string, snapshot *models.Snapshot, format Format, at time.Time) (string, error) {
	data, err := Render(models.NewPlaylistExport(snapshot, at), format)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	path := ExportPath(dir, snapshot.PlaylistID, format)
	if err := shared.WriteFileAtomic(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}
