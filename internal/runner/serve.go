package runner

import (
	"context"
	"path"
	"path/filepath"

	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/server"
	"github.com/conneroisu/assetpipe/internal/task"
	"github.com/conneroisu/assetpipe/internal/watcher"
)

// Serve starts the dev server on the output directory, registers every
// watch binding and blocks until its context is cancelled.
type Serve struct {
	name   string
	cfg    *config.Config
	runner *Runner
	once   bool
	opts   []server.Option
	logger logging.Logger

	// ready, when set, is called once the server listens and the watcher
	// runs.
	ready func(srv *server.DevServer, w *watcher.FileWatcher)
}

func newServe(name string, cfg *config.Config, r *Runner, opts Options) *Serve {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Serve{
		name:   name,
		cfg:    cfg,
		runner: r,
		once:   opts.Once,
		opts:   opts.ServerOptions,
		logger: logger.WithComponent("serve"),
	}
}

// Name returns the task name.
func (s *Serve) Name() string { return s.name }

// Run serves and watches until ctx is done. Interruption is not an error.
func (s *Serve) Run(ctx context.Context) (task.Written, error) {
	if s.once {
		s.logger.Info(ctx, "Skipping dev server", "task", s.name)
		return nil, nil
	}

	dist := path.Clean(s.cfg.Paths.Dist)
	opts := append([]server.Option{
		server.WithLogger(s.logger),
		server.WithErrors(s.runner.overlay.Collector()),
		server.WithStatus(func() interface{} { return s.runner.metrics.GetSnapshot() }),
	}, s.opts...)

	srv, err := server.New(server.Config{
		Host:           s.cfg.Server.Host,
		Port:           s.cfg.Server.Port,
		Dir:            filepath.Join(s.cfg.Paths.Root, filepath.FromSlash(dist)),
		Base:           dist,
		AllowedOrigins: s.cfg.Server.AllowedOrigins,
		Open:           s.cfg.Server.Open,
	}, opts...)
	if err != nil {
		return nil, errors.NewConfigError(err.Error()).WithTask(s.name)
	}
	if err := srv.Listen(); err != nil {
		pe := &errors.PipelineError{Kind: errors.KindNetwork, Task: s.name, Message: "start dev server", Cause: err}
		return nil, pe
	}

	detachReload := s.runner.reloads.Attach(srv)
	defer detachReload()
	detachOverlay := s.runner.overlay.Attach(srv)
	defer detachOverlay()

	w, err := s.watch(ctx)
	if err != nil {
		_ = srv.Shutdown(context.Background())
		return nil, err
	}
	defer w.Stop()

	if s.ready != nil {
		s.ready(srv, w)
	}

	if err := srv.Start(ctx); err != nil {
		return nil, &errors.PipelineError{Kind: errors.KindNetwork, Task: s.name, Message: "dev server stopped", Cause: err}
	}
	return nil, nil
}

// watch registers the configured bindings and starts the watcher.
func (s *Serve) watch(ctx context.Context) (*watcher.FileWatcher, error) {
	ignore := append([]string{path.Clean(s.cfg.Paths.Dist)}, s.cfg.Watch.Ignore...)
	w, err := watcher.NewFileWatcher(watcher.Config{
		Root:     s.cfg.Paths.Root,
		Debounce: s.cfg.Watch.Debounce,
		Ignore:   ignore,
		Logger:   s.logger,
	})
	if err != nil {
		return nil, errors.NewConfigError(err.Error()).WithTask(s.name)
	}

	for _, b := range s.cfg.Watch.Bindings {
		name := b.Task
		if _, ok := s.runner.Task(name); !ok {
			_ = w.Stop()
			return nil, errors.NewConfigError("watch binding references unknown task " + name).WithTask(s.name)
		}
		if _, err := w.Watch(b.Pattern, name, func(ctx context.Context) error {
			return s.runner.runWatched(ctx, name)
		}); err != nil {
			_ = w.Stop()
			return nil, errors.NewConfigError(err.Error()).WithTask(s.name)
		}
	}

	if err := w.Start(ctx); err != nil {
		_ = w.Stop()
		return nil, errors.NewFilesystemError(s.cfg.Paths.Root, "start watcher", err).WithTask(s.name)
	}
	return w, nil
}
