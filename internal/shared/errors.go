package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrMissingCookies     = fmt.Errorf("session cookie file not found")
	ErrMissingExecutable  = fmt.Errorf("required executable not found")
	ErrNoPlaylists        = fmt.Errorf("no playlist IDs configured")

	// Authentication errors
	ErrAuthFailed    = fmt.Errorf("authentication failed")
	ErrRefreshFailed = fmt.Errorf("token refresh failed")
	ErrTimeout       = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrMalformedResponse  = fmt.Errorf("malformed response")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")
	ErrEmptyPlaylist      = fmt.Errorf("no tracks found")
	ErrTrackNotFound      = fmt.Errorf("track not found")

	// State errors
	ErrNoSnapshot      = fmt.Errorf("no saved snapshot")
	ErrCorruptSnapshot = fmt.Errorf("saved snapshot is unreadable")
	ErrRunNotFound     = fmt.Errorf("run not found")

	// Pipeline errors
	ErrDownloadFailed = fmt.Errorf("download failed")
	ErrTagFailed      = fmt.Errorf("tagging failed")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)
