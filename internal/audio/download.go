package audio

import (
	"context"
	"fmt"
	"strings"

	"github.com/lrstanley/go-ytdlp"

	"github.com/peanuz/playlist-sync/internal/shared"
)

// Downloader fetches the audio of url into outputTemplate (a yt-dlp output template).
type Downloader interface {
	Download(ctx context.Context, url, outputTemplate string) error
}

// YtdlpDownloader extracts MP3 audio with the yt-dlp executable.
type YtdlpDownloader struct {
	Executable string // yt-dlp path, empty for PATH lookup
	FFmpeg     string // ffmpeg path handed to yt-dlp for post-processing
	Cookies    string // Netscape cookie file, optional
	Quality    string // --audio-quality, "0" is best VBR
}

func (d *YtdlpDownloader) Download(ctx context.Context, url, outputTemplate string) error {
	quality := d.Quality
	if quality == "" {
		quality = "0"
	}

	cmd := ytdlp.New().
		NoProgress().
		Newline().
		NoPlaylist().
		ExtractAudio().
		AudioFormat("mp3").
		AudioQuality(quality).
		Output(outputTemplate)

	if d.Executable != "" {
		cmd.SetExecutable(d.Executable)
	}
	if d.FFmpeg != "" {
		cmd.FFmpegLocation(d.FFmpeg)
	}
	if d.Cookies != "" && shared.FileExists(d.Cookies) {
		cmd.Cookies(d.Cookies)
	}

	res, err := cmd.Run(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: yt-dlp: %v%s", shared.ErrDownloadFailed, err, stderrTail(res))
	}
	return nil
}

func stderrTail(res *ytdlp.Result) string {
	if res == nil {
		return ""
	}
	lines := strings.Split(strings.TrimSpace(res.Stderr), "\n")
	if len(lines) == 0 || lines[len(lines)-1] == "" {
		return ""
	}
	return ": " + lines[len(lines)-1]
}
