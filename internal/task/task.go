// Package task implements the units an entry point is composed of: pipeline
// tasks that read, transform and write files, and the clean task that resets
// the output directory.
package task

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/fileset"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/transform"
)

// Written lists the slash-separated, root-relative paths a run produced.
type Written []string

// Task is one named unit of work.
type Task interface {
	Name() string
	Run(ctx context.Context) (Written, error)
}

// Reloader is told about freshly written files.
type Reloader interface {
	NotifyReload(paths []string)
}

// Policy decides what a failing task does with its error.
type Policy string

const (
	// PolicyFatal returns the error and aborts the entry point.
	PolicyFatal Policy = "fatal"
	// PolicyNotify reports the error, keeps the previous output and succeeds.
	PolicyNotify Policy = "notify"
)

// ParsePolicy validates a policy name; the empty string means fatal.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(s)) {
	case "", PolicyFatal:
		return PolicyFatal, nil
	case PolicyNotify:
		return PolicyNotify, nil
	default:
		return "", fmt.Errorf("unknown error policy %q (want fatal or notify)", s)
	}
}

// Step names a registered transform and its options.
type Step struct {
	Use     string
	Options transform.Options
}

// Config describes a pipeline task.
type Config struct {
	Name       string
	Root       string
	Inputs     []string
	Steps      []Step
	Dest       string
	Reload     bool
	AllowEmpty bool
	OnError    Policy
}

// Pipeline reads its inputs, runs them through the transform chain and
// writes the result below Dest.
type Pipeline struct {
	cfg      Config
	chain    []transform.Transform
	logger   logging.Logger
	reloader Reloader
	notifier errors.Notifier
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithReloader sets the reloader told about written files.
func WithReloader(r Reloader) Option {
	return func(p *Pipeline) { p.reloader = r }
}

// WithNotifier sets where errors go under PolicyNotify.
func WithNotifier(n errors.Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline validates cfg and builds its transform chain from reg.
func NewPipeline(cfg Config, reg *transform.Registry, opts ...Option) (*Pipeline, error) {
	if cfg.Name == "" {
		return nil, errors.NewConfigError("task has no name")
	}
	if len(cfg.Inputs) == 0 {
		return nil, errors.NewConfigError("task has no inputs").WithTask(cfg.Name)
	}
	for _, pattern := range cfg.Inputs {
		if _, err := fileset.Compile(strings.TrimPrefix(pattern, "!")); err != nil {
			return nil, errors.NewConfigError(err.Error()).WithTask(cfg.Name)
		}
	}
	if err := checkDest(cfg.Dest); err != nil {
		return nil, errors.NewConfigError(err.Error()).WithTask(cfg.Name)
	}
	if cfg.OnError == "" {
		cfg.OnError = PolicyFatal
	}

	p := &Pipeline{cfg: cfg, logger: logging.Discard()}
	for _, s := range cfg.Steps {
		tr, err := reg.New(s.Use, s.Options)
		if err != nil {
			return nil, errors.NewConfigError(err.Error()).WithTask(cfg.Name).WithStep(s.Use)
		}
		p.chain = append(p.chain, tr)
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("task", cfg.Name)
	return p, nil
}

func checkDest(dest string) error {
	if dest == "" {
		return fmt.Errorf("task has no dest")
	}
	clean := path.Clean(filepath.ToSlash(dest))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("dest %q leaves the project root", dest)
	}
	if clean == "." {
		return fmt.Errorf("dest may not be the project root")
	}
	return nil
}

// Name returns the task name.
func (p *Pipeline) Name() string { return p.cfg.Name }

// Config returns the task configuration.
func (p *Pipeline) Config() Config { return p.cfg }

// Run executes the task once.
func (p *Pipeline) Run(ctx context.Context) (Written, error) {
	files, unmatched, err := fileset.ResolveEach(p.cfg.Root, p.cfg.Inputs)
	if err != nil {
		return nil, p.fail(ctx, errors.NewFilesystemError(p.cfg.Root, "resolve inputs", err))
	}
	if missing := p.missing(unmatched); len(missing) > 0 {
		return nil, p.fail(ctx, errors.NewNoMatchError(missing))
	}
	if len(files) == 0 {
		p.logger.Debug(ctx, "No input files, nothing to do", "inputs", p.cfg.Inputs)
		return nil, nil
	}

	for _, step := range p.chain {
		files, err = step.Apply(ctx, files)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			pe, ok := errors.AsPipelineError(err)
			if !ok {
				pe = errors.NewTransformError(step.Name(), "step failed", err)
			}
			if pe.Step == "" {
				pe.WithStep(step.Name())
			}
			return nil, p.fail(ctx, pe)
		}
	}

	written, werr := p.write(files)
	if werr != nil {
		return written, p.fail(ctx, werr)
	}

	if p.notifier != nil {
		p.notifier.Clear(ctx, p.cfg.Name)
	}
	if p.cfg.Reload && p.reloader != nil && len(written) > 0 {
		p.reloader.NotifyReload(written)
	}
	return written, nil
}

// missing returns the unmatched patterns that fail the run. AllowEmpty
// waives glob patterns only; a file named without wildcards must exist.
func (p *Pipeline) missing(unmatched []string) []string {
	if !p.cfg.AllowEmpty {
		return unmatched
	}
	var out []string
	for _, pattern := range unmatched {
		if !fileset.HasMagic(pattern) {
			out = append(out, pattern)
		}
	}
	return out
}

// fail applies the error policy to pe.
func (p *Pipeline) fail(ctx context.Context, pe *errors.PipelineError) error {
	pe.WithTask(p.cfg.Name)
	if p.cfg.OnError != PolicyNotify {
		return pe
	}
	p.logger.Warn(ctx, pe, "Task failed, previous output kept")
	if p.notifier != nil {
		p.notifier.Notify(ctx, pe)
	}
	return nil
}

func (p *Pipeline) write(files []*fileset.File) (Written, *errors.PipelineError) {
	dest := path.Clean(filepath.ToSlash(p.cfg.Dest))
	written := make(Written, 0, len(files))

	for _, f := range files {
		rel := path.Clean(f.Relative)
		if path.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, "../") {
			return written, errors.NewFilesystemError(f.Path, fmt.Sprintf("output %q leaves %s", f.Relative, dest), nil)
		}
		out := path.Join(dest, rel)
		abs := filepath.Join(p.cfg.Root, filepath.FromSlash(out))

		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return written, errors.NewFilesystemError(out, "create directory", err)
		}
		mode := f.Mode
		if mode == 0 {
			mode = 0o644
		}
		if err := os.WriteFile(abs, f.Contents, mode); err != nil {
			return written, errors.NewFilesystemError(out, "write file", err)
		}
		written = append(written, out)
	}

	return written, nil
}

// Broadcaster forwards reload notifications to whichever reloaders are
// attached at the time. Tasks are built before the dev server starts, so
// they hold the broadcaster rather than the server.
type Broadcaster struct {
	mu      sync.RWMutex
	next    int
	targets map[int]Reloader
}

// NewBroadcaster creates a broadcaster with no targets.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{targets: make(map[int]Reloader)}
}

// Attach adds r and returns a function removing it again.
func (b *Broadcaster) Attach(r Reloader) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.targets[id] = r
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.targets, id)
	}
}

// NotifyReload implements Reloader.
func (b *Broadcaster) NotifyReload(paths []string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, r := range b.targets {
		r.NotifyReload(paths)
	}
}
