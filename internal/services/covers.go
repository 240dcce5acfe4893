package services

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/peanuz/playlist-sync/internal/shared"
)

// CoverCache stores playlist cover images as <dir>/<playlistID>.<ext>.
type CoverCache struct {
	api *APIClient
	dir string
}

func NewCoverCache(api *APIClient, dir string) *CoverCache {
	return &CoverCache{api: api, dir: dir}
}

// Ensure downloads imageURL and returns the local path.
//
// Covers can change, so the image is fetched on every call. When the download fails
// a previously cached file is returned together with the error.
func (c *CoverCache) Ensure(ctx context.Context, playlistID, imageURL string) (string, error) {
	if imageURL == "" {
		return "", nil
	}

	dest := filepath.Join(c.dir, playlistID+"."+coverExtension(imageURL))
	fallback := func(err error) (string, error) {
		if shared.FileExists(dest) {
			return dest, err
		}
		return "", err
	}

	resp, err := c.api.Get(ctx, imageURL, map[string]string{
		"Accept": "image/avif,image/webp,image/apng,image/*,*/*;q=0.8",
	})
	if err != nil {
		return fallback(err)
	}
	if err := resp.Err("cover"); err != nil {
		return fallback(err)
	}
	if len(resp.Body) == 0 {
		return fallback(fmt.Errorf("%w: empty cover image", shared.ErrMalformedResponse))
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fallback(err)
	}
	if err := shared.WriteFileAtomic(dest, resp.Body, 0644); err != nil {
		return fallback(err)
	}
	return dest, nil
}

// coverExtension derives jpg, png or webp from the URL path, defaulting to jpg.
func coverExtension(imageURL string) string {
	p := imageURL
	if u, err := url.Parse(imageURL); err == nil {
		p = u.Path
	}

	switch ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), ".")); ext {
	case "png", "webp", "jpg":
		return ext
	default:
		return "jpg"
	}
}
