package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Sync       SyncConfig       `toml:"sync"`
	Paths      PathsConfig      `toml:"paths"`
	Spotify    SpotifyConfig    `toml:"spotify"`
	YouTube    YouTubeConfig    `toml:"youtube"`
	Downloader DownloaderConfig `toml:"downloader"`
	HTTP       HTTPConfig       `toml:"http"`
	Database   DatabaseConfig   `toml:"database"`
	Server     ServerConfig     `toml:"server"`
	Logging    LoggingConfig    `toml:"logging"`
	Reporting  ReportingConfig  `toml:"reporting"`
}

// SyncConfig lists the playlists to keep in sync and how often.
type SyncConfig struct {
	PlaylistIDs []string `toml:"playlist_ids"`
	Interval    Duration `toml:"interval"`
}

// PathsConfig contains the on-disk layout.
type PathsConfig struct {
	OutputDir string `toml:"output_dir"`
	StateDir  string `toml:"state_dir"`
	ExportDir string `toml:"export_dir"`
	CoverDir  string `toml:"cover_dir"`
	LogFile   string `toml:"log_file"`
}

// SpotifyConfig selects the catalog backend and holds Web API credentials for the "api" backend.
type SpotifyConfig struct {
	Backend      string `toml:"backend"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// YouTubeConfig contains YouTube Music session settings.
type YouTubeConfig struct {
	CookiesPath       string  `toml:"cookies_path"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// DownloaderConfig contains settings for the yt-dlp and ffmpeg subprocesses.
type DownloaderConfig struct {
	YtdlpPath    string   `toml:"ytdlp_path"`
	FfmpegPath   string   `toml:"ffmpeg_path"`
	AudioQuality string   `toml:"audio_quality"`
	MinDelay     Duration `toml:"min_delay"`
	MaxDelay     Duration `toml:"max_delay"`
	Timeout      Duration `toml:"timeout"`
}

// HTTPConfig contains settings shared by the remote API clients.
type HTTPConfig struct {
	Timeout           Duration `toml:"timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains status server settings. A zero port disables the server.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig controls the log level.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// ReportingConfig contains optional Sentry settings.
type ReportingConfig struct {
	SentryDSN   string `toml:"sentry_dsn"`
	Environment string `toml:"environment"`
}

// Duration is a [time.Duration] that decodes from strings like "6h" or "2.5s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides configuration values with environment variables.
//
// Recognized: PLAYLIST_IDS, SYNC_INTERVAL_HOURS, OUTPUT_DIR, YOUTUBE_MUSIC_COOKIES,
// SPOTIFY_CLIENT_ID, SPOTIFY_CLIENT_SECRET, SENTRY_DSN, LOG_LEVEL.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if v, ok := lookup("PLAYLIST_IDS"); ok {
		c.Sync.PlaylistIDs = SplitList(v)
	}
	if v, ok := lookup("SYNC_INTERVAL_HOURS"); ok && strings.TrimSpace(v) != "" {
		hours, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || hours <= 0 {
			return fmt.Errorf("%w: SYNC_INTERVAL_HOURS=%q", ErrInvalidConfig, v)
		}
		c.Sync.Interval = Duration{time.Duration(hours * float64(time.Hour))}
	}
	if v, ok := lookup("OUTPUT_DIR"); ok && v != "" {
		c.Paths.OutputDir = v
	}
	if v, ok := lookup("YOUTUBE_MUSIC_COOKIES"); ok && v != "" {
		c.YouTube.CookiesPath = v
	}
	if v, ok := lookup("SPOTIFY_CLIENT_ID"); ok && v != "" {
		c.Spotify.ClientID = v
	}
	if v, ok := lookup("SPOTIFY_CLIENT_SECRET"); ok && v != "" {
		c.Spotify.ClientSecret = v
	}
	if v, ok := lookup("SENTRY_DSN"); ok && v != "" {
		c.Reporting.SentryDSN = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate checks values the sync loop cannot run without.
func (c *Config) Validate() error {
	if c.Paths.OutputDir == "" {
		return fmt.Errorf("%w: paths.output_dir is empty", ErrInvalidConfig)
	}
	if c.Paths.StateDir == "" {
		return fmt.Errorf("%w: paths.state_dir is empty", ErrInvalidConfig)
	}
	if c.Sync.Interval.Duration <= 0 {
		return fmt.Errorf("%w: sync.interval must be positive", ErrInvalidConfig)
	}
	if c.Downloader.MaxDelay.Duration < c.Downloader.MinDelay.Duration {
		return fmt.Errorf("%w: downloader.max_delay is smaller than min_delay", ErrInvalidConfig)
	}
	switch c.Spotify.Backend {
	case "web", "":
	case "api":
		if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" {
			return fmt.Errorf("%w: spotify backend \"api\" needs client_id and client_secret", ErrMissingCredentials)
		}
	default:
		return fmt.Errorf("%w: unknown spotify backend %q", ErrInvalidConfig, c.Spotify.Backend)
	}
	return nil
}

// SplitList splits a comma separated list, trimming blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
