// Package audio turns a matched track into a tagged MP3 on disk.
//
// A [Pipeline] downloads the audio with yt-dlp into a per-playlist staging directory,
// rewrites the tags with ffmpeg into a second staging file and renames the result to
// its final path. The final path is either absent or complete.
package audio

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/peanuz/playlist-sync/internal/models"
	"github.com/peanuz/playlist-sync/internal/shared"
)

const (
	maxNameRunes = 200
	stagingDir   = ".staging"
	extension    = ".mp3"
)

var (
	forbiddenChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespace     = regexp.MustCompile(`\s+`)
)

// Sanitize strips characters that are invalid in file names, collapses whitespace
// and caps the result at 200 runes.
func Sanitize(name string) string {
	name = forbiddenChars.ReplaceAllString(name, "")
	name = strings.TrimSpace(whitespace.ReplaceAllString(name, " "))

	if r := []rune(name); len(r) > maxNameRunes {
		name = strings.TrimSpace(string(r[:maxNameRunes]))
	}
	return name
}

// BaseName is the sanitized "artists - title" file stem of a track.
func BaseName(t models.Track) string {
	return Sanitize(t.DisplayName())
}

// PlaylistDir is <outputDir>/<playlistID>.
func PlaylistDir(outputDir, playlistID string) string {
	return filepath.Join(outputDir, playlistID)
}

// ArtifactPath is the final location of a track: <outputDir>/<playlistID>/<BaseName>.mp3.
func ArtifactPath(outputDir, playlistID string, t models.Track) string {
	return filepath.Join(PlaylistDir(outputDir, playlistID), BaseName(t)+extension)
}

// ArtifactExists reports whether the track has already been fetched.
func ArtifactExists(outputDir, playlistID string, t models.Track) bool {
	return shared.FileExists(ArtifactPath(outputDir, playlistID, t))
}

// ResolveExecutable returns the path of configured, or of fallback looked up on PATH.
func ResolveExecutable(configured, fallback string) (string, error) {
	name := configured
	if name == "" {
		name = fallback
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", shared.ErrMissingExecutable, name)
	}
	return path, nil
}
