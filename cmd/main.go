package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/peanuz/playlist-sync/internal/shared"
)

const version = "0.3.0"

func main() {
	logger := shared.NewLogger(nil)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to load .env", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := NewRunner(RunnerOpts{Logger: logger})
	app := &cli.Command{
		Name:    "playlist-sync",
		Usage:   "Mirror Spotify playlists into tagged MP3 folders",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
		},
		Before:   runner.Before,
		Commands: runner.register(),
	}

	err := app.Run(ctx, os.Args)
	runner.Close()
	if err != nil {
		logger.Error("application error", "error", err)
		os.Exit(1)
	}
}

// Before loads the configuration, applies the environment and sets up logging and reporting.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	config, err := loadConfig(path, r.logger)
	if err != nil {
		return ctx, err
	}
	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return ctx, err
	}
	if err := config.Validate(); err != nil {
		return ctx, err
	}

	r.config = config
	r.configPath = path
	shared.SetLogLevel(r.logger, config.Logging.Level)

	flush, err := shared.InitReporting(config.Reporting, version)
	if err != nil {
		r.logger.Warn("error reporting disabled", "error", err)
	}
	r.closers = append(r.closers, flush)
	return ctx, nil
}

// loadConfig reads path, falling back to the embedded defaults when it does not exist.
func loadConfig(path string, logger *log.Logger) (*shared.Config, error) {
	if !shared.FileExists(path) {
		logger.Debug("config file not found, using defaults", "path", path)
		return shared.DefaultConfig(), nil
	}

	config, err := shared.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", shared.ErrInvalidConfig, path, err)
	}
	return config, nil
}
