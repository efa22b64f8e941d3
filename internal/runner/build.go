package runner

import (
	"fmt"

	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/server"
	"github.com/conneroisu/assetpipe/internal/task"
	"github.com/conneroisu/assetpipe/internal/transform"
)

// Options controls how Build assembles a runner.
type Options struct {
	Logger   logging.Logger
	Registry *transform.Registry
	// Once turns serve tasks into no-ops so entry points finish after
	// building.
	Once bool
	// ServerOptions are passed to the dev server started by serve tasks.
	ServerOptions []server.Option
}

// Build creates a runner holding every task and entry point of cfg.
func Build(cfg *config.Config, opts Options) (*Runner, error) {
	if opts.Registry == nil {
		opts.Registry = transform.Default()
	}

	r := New(opts.Logger)
	base := opts.Logger
	if base == nil {
		base = logging.Discard()
	}

	for _, tc := range cfg.Tasks {
		t, err := r.buildTask(cfg, tc, base, opts)
		if err != nil {
			return nil, err
		}
		if err := r.Add(t); err != nil {
			return nil, err
		}
	}
	for _, ep := range cfg.EntryPoints {
		if err := r.AddEntryPoint(ep.Name, ep.Tasks); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Runner) buildTask(cfg *config.Config, tc config.TaskConfig, logger logging.Logger, opts Options) (task.Task, error) {
	logger = logger.WithComponent("task")

	switch tc.TaskKind() {
	case config.KindPipeline:
		policy, err := task.ParsePolicy(tc.OnError)
		if err != nil {
			return nil, errors.NewConfigError(err.Error()).WithTask(tc.Name)
		}
		steps := make([]task.Step, 0, len(tc.Steps))
		for _, s := range tc.Steps {
			steps = append(steps, task.Step{Use: s.Use, Options: transform.Options(s.Options)})
		}
		return task.NewPipeline(task.Config{
			Name:       tc.Name,
			Root:       cfg.Paths.Root,
			Inputs:     tc.Inputs,
			Steps:      steps,
			Dest:       tc.Dest,
			Reload:     tc.Reload,
			AllowEmpty: tc.AllowEmpty,
			OnError:    policy,
		}, opts.Registry,
			task.WithReloader(r.reloads),
			task.WithNotifier(r.notifier),
			task.WithLogger(logger),
		)

	case config.KindClean:
		return task.NewClean(tc.Name, cfg.Paths.Root, tc.Dest, logger)

	case config.KindServe:
		return newServe(tc.Name, cfg, r, opts), nil

	default:
		return nil, errors.NewConfigError(fmt.Sprintf("unknown task kind %q", tc.Kind)).WithTask(tc.Name)
	}
}
