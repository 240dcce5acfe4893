package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/peanuz/playlist-sync/internal/shared"
)

// Tag is one ID3 frame written by ffmpeg.
type Tag struct {
	Key   string
	Value string
}

// TagRequest rewrites Input into Output with Tags and, when Cover is set, an attached picture.
type TagRequest struct {
	Input  string
	Output string
	Cover  string
	Tags   []Tag
}

// Tagger writes metadata into an audio file.
type Tagger interface {
	Tag(ctx context.Context, req TagRequest) error
}

// FFmpegTagger tags with the ffmpeg executable. Audio is stream-copied, never re-encoded.
type FFmpegTagger struct {
	Executable string
}

func (f *FFmpegTagger) Tag(ctx context.Context, req TagRequest) error {
	executable := f.Executable
	if executable == "" {
		executable = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, executable, TagArgs(req)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if i := strings.LastIndex(msg, "\n"); i >= 0 {
			msg = msg[i+1:]
		}
		return fmt.Errorf("%w: ffmpeg: %v: %s", shared.ErrTagFailed, err, msg)
	}
	return nil
}

// TagArgs builds the ffmpeg argument list for req.
//
// Existing metadata is dropped (-map_metadata -1) and ID3v2.3 is written.
// Empty tag values are omitted.
func TagArgs(req TagRequest) []string {
	args := []string{"-y", "-i", req.Input}

	if req.Cover != "" && shared.FileExists(req.Cover) {
		args = append(args,
			"-i", req.Cover,
			"-map", "0:a",
			"-map", "1:v",
			"-c:a", "copy",
			"-c:v", "mjpeg",
			"-disposition:v", "attached_pic",
			"-metadata:s:v", "title=Album cover",
			"-metadata:s:v", "comment=Cover (front)",
		)
	} else {
		args = append(args, "-map", "0:a", "-c:a", "copy")
	}

	args = append(args, "-id3v2_version", "3", "-map_metadata", "-1")

	for _, t := range req.Tags {
		if v := cleanTagValue(t.Value); v != "" {
			args = append(args, "-metadata", t.Key+"="+v)
		}
	}

	return append(args, req.Output)
}

func cleanTagValue(v string) string {
	return strings.TrimSpace(strings.ReplaceAll(v, "\x00", ""))
}
