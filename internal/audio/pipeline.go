package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/peanuz/playlist-sync/internal/models"
	"github.com/peanuz/playlist-sync/internal/shared"
)

// FetchRequest describes one track to fetch.
type FetchRequest struct {
	PlaylistID   string
	PlaylistName string
	CoverPath    string
	Track        models.Track
	Match        *models.Match
}

// Artifact is a completed, tagged audio file.
type Artifact struct {
	Path    string
	VideoID string
}

// Pipeline downloads, tags and publishes audio files under OutputDir.
type Pipeline struct {
	outputDir  string
	downloader Downloader
	tagger     Tagger
	logger     *log.Logger
	now        func() time.Time
}

func NewPipeline(outputDir string, downloader Downloader, tagger Tagger, logger *log.Logger) *Pipeline {
	return &Pipeline{
		outputDir:  outputDir,
		downloader: downloader,
		tagger:     tagger,
		logger:     logger,
		now:        time.Now,
	}
}

// OutputDir returns the root directory of the artifacts.
func (p *Pipeline) OutputDir() string { return p.outputDir }

// Exists reports whether the artifact of t in playlistID is already present.
func (p *Pipeline) Exists(playlistID string, t models.Track) bool {
	return ArtifactExists(p.outputDir, playlistID, t)
}

// Fetch downloads and tags req.Track. On any failure the staging files are removed
// and the final path is left untouched.
func (p *Pipeline) Fetch(ctx context.Context, req FetchRequest) (*Artifact, error) {
	if req.Match == nil || req.Match.URL == "" {
		return nil, fmt.Errorf("%w: no media URL for %s", shared.ErrInvalidInput, req.Track.ID)
	}

	dir := PlaylistDir(p.outputDir, req.PlaylistID)
	staging := filepath.Join(dir, stagingDir)
	if err := os.MkdirAll(staging, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	name := BaseName(req.Track)
	final := filepath.Join(dir, name+extension)
	downloaded := filepath.Join(staging, name+extension)
	tagged := filepath.Join(staging, name+".tagged"+extension)

	published := false
	defer func() {
		if !published {
			p.cleanup(staging, name)
		}
	}()

	if err := p.downloader.Download(ctx, req.Match.URL, filepath.Join(staging, name+".%(ext)s")); err != nil {
		return nil, err
	}
	if !shared.FileExists(downloaded) {
		return nil, fmt.Errorf("%w: yt-dlp produced no %s output", shared.ErrDownloadFailed, extension)
	}

	if err := p.tagger.Tag(ctx, TagRequest{
		Input:  downloaded,
		Output: tagged,
		Cover:  req.CoverPath,
		Tags:   p.tags(req),
	}); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.Rename(tagged, final); err != nil {
		return nil, fmt.Errorf("failed to publish %s: %w", final, err)
	}
	published = true
	os.Remove(downloaded)

	return &Artifact{Path: final, VideoID: req.Match.VideoID}, nil
}

func (p *Pipeline) tags(req FetchRequest) []Tag {
	label := strings.TrimSpace(req.PlaylistName)
	if label == "" {
		label = "Playlist"
	}

	original := req.Track.DisplayName()
	comment := "Original: " + original
	if req.Match.URL != "" {
		comment = "Source: " + req.Match.URL + " | " + comment
	}

	return []Tag{
		{Key: "title", Value: original},
		{Key: "artist", Value: label},
		{Key: "album", Value: label},
		{Key: "album_artist", Value: label},
		{Key: "comment", Value: comment},
		{Key: "date", Value: strconv.Itoa(p.now().Year())},
	}
}

// cleanup removes every staging file belonging to name (partial downloads, fragments, tag output).
func (p *Pipeline) cleanup(staging, name string) {
	entries, err := os.ReadDir(staging)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), name+".") {
			continue
		}
		if err := os.Remove(filepath.Join(staging, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("failed to remove staging file", "file", e.Name(), "error", err)
		}
	}
}
