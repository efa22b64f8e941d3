package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/viper"

	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/runner"
)

// app bundles what every pipeline command needs.
type app struct {
	cfg    *config.Config
	logger logging.Logger
	runner *runner.Runner
	close  func()
}

// loadConfig loads the configuration, turning failures into errors with
// suggestions.
func loadConfig() (*config.Config, error) {
	path := viper.ConfigFileUsed()
	if path == "" {
		path = ".assetpipe.yml"
	}
	if configReadErr != nil {
		return nil, errors.NewEnhancedError("Failed to read configuration", configReadErr,
			errors.ConfigurationError(configReadErr.Error(), path))
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.NewEnhancedError("Failed to load configuration", err,
			errors.ConfigurationError(err.Error(), path))
	}
	return cfg, nil
}

// newLogger builds the console logger and, with a log directory, tees into a
// daily JSON file.
func newLogger(cfg config.LogConfig) (logging.Logger, func(), error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	console := logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Format,
		Output: os.Stderr,
	})
	if cfg.Dir == "" {
		return console, func() {}, nil
	}

	file, err := logging.NewFileLogger(&logging.LoggerConfig{Level: level}, cfg.Dir)
	if err != nil {
		return nil, nil, err
	}
	return logging.NewMultiLogger(console, file), func() { _ = file.Close() }, nil
}

// newApp loads the configuration and assembles the runner. Serve tasks are
// skipped when once is set.
func newApp(once bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, closeLog, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	r, err := runner.Build(cfg, runner.Options{Logger: logger, Once: once})
	if err != nil {
		closeLog()
		return nil, errors.NewEnhancedError("Invalid pipeline", err,
			errors.ConfigurationError(err.Error(), filepath.Join(cfg.Paths.Root, ".assetpipe.yml")))
	}
	return &app{cfg: cfg, logger: logger, runner: r, close: closeLog}, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// finish turns a failed run into the command error. An interrupt is a
// failure too: the tasks after the interrupted one never ran. The serve task
// returns nil when interrupted, so stopping the dev server never gets here.
func (a *app) finish(ctx context.Context, name string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s interrupted: %w", name, ctx.Err())
	}
	return a.explain(err)
}

// explain attaches suggestions to the failures users can act on.
func (a *app) explain(err error) error {
	pe, ok := errors.AsPipelineError(err)
	if !ok {
		return err
	}
	switch pe.Kind {
	case errors.KindNoMatch:
		t, _ := a.cfg.Task(pe.Task)
		return errors.NewEnhancedError("Task matched no input files", err,
			errors.NoMatchSuggestions(pe.Task, t.Inputs))
	case errors.KindNetwork:
		return errors.NewEnhancedError("Failed to start dev server", err,
			errors.ServerStartError(err, a.cfg.Server.Port))
	}
	return err
}
