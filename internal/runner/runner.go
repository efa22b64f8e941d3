// Package runner composes tasks into entry points and runs them the way gulp
// does: strictly one after another, logging when each one starts and
// finishes, and aborting the entry point on the first failure.
package runner

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/notify"
	"github.com/conneroisu/assetpipe/internal/task"
)

// Runner owns the named tasks and entry points of a project.
type Runner struct {
	tasks       map[string]task.Task
	order       []string
	entryPoints map[string][]string
	epOrder     []string

	logger   logging.Logger
	metrics  *Metrics
	notifier errors.Notifier
	reloads  *task.Broadcaster
	overlay  *notify.Overlay
}

// New creates an empty runner. Failures of watch-triggered runs go to the
// console until Build wires the overlay in.
func New(logger logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	overlay := notify.NewOverlay()
	return &Runner{
		tasks:       make(map[string]task.Task),
		entryPoints: make(map[string][]string),
		logger:      logger.WithComponent("runner"),
		metrics:     NewMetrics(),
		notifier:    notify.Multi(notify.NewConsole(logger), overlay),
		reloads:     task.NewBroadcaster(),
		overlay:     overlay,
	}
}

// Add registers t under its name.
func (r *Runner) Add(t task.Task) error {
	name := t.Name()
	if _, dup := r.tasks[name]; dup {
		return errors.NewConfigError(fmt.Sprintf("task %q is defined twice", name)).WithTask(name)
	}
	r.tasks[name] = t
	r.order = append(r.order, name)
	return nil
}

// AddEntryPoint registers an ordered sequence of already added tasks.
func (r *Runner) AddEntryPoint(name string, tasks []string) error {
	if _, dup := r.entryPoints[name]; dup {
		return errors.NewConfigError(fmt.Sprintf("entry point %q is defined twice", name))
	}
	if len(tasks) == 0 {
		return errors.NewConfigError(fmt.Sprintf("entry point %q has no tasks", name))
	}
	for _, t := range tasks {
		if _, ok := r.tasks[t]; !ok {
			return errors.NewConfigError(fmt.Sprintf("entry point %q references unknown task %q", name, t))
		}
	}
	r.entryPoints[name] = append([]string(nil), tasks...)
	r.epOrder = append(r.epOrder, name)
	return nil
}

// Task returns the task called name.
func (r *Runner) Task(name string) (task.Task, bool) {
	t, ok := r.tasks[name]
	return t, ok
}

// Tasks returns the task names in registration order.
func (r *Runner) Tasks() []string {
	return append([]string(nil), r.order...)
}

// EntryPoints returns the entry point names in registration order.
func (r *Runner) EntryPoints() []string {
	return append([]string(nil), r.epOrder...)
}

// EntryPoint returns the task sequence of the entry point called name.
func (r *Runner) EntryPoint(name string) ([]string, bool) {
	tasks, ok := r.entryPoints[name]
	return append([]string(nil), tasks...), ok
}

// Metrics returns the run statistics.
func (r *Runner) Metrics() *Metrics {
	return r.metrics
}

// Overlay returns the notifier holding the current failures.
func (r *Runner) Overlay() *notify.Overlay {
	return r.overlay
}

// Reloads returns the broadcaster tasks report written files to.
func (r *Runner) Reloads() *task.Broadcaster {
	return r.reloads
}

// RunTask runs a single task by name.
func (r *Runner) RunTask(ctx context.Context, name string) (task.Written, error) {
	t, ok := r.tasks[name]
	if !ok {
		return nil, errors.NewConfigError(fmt.Sprintf("unknown task %q", name)).WithTask(name)
	}

	r.logger.Info(ctx, fmt.Sprintf("Starting '%s'...", name), "task", name)
	start := time.Now()
	written, err := t.Run(ctx)
	elapsed := time.Since(start)
	r.metrics.RecordRun(name, elapsed, err)

	if err != nil {
		r.logger.Error(ctx, err, fmt.Sprintf("'%s' errored after %s", name, prettyDuration(elapsed)), "task", name)
		return written, err
	}
	r.logger.Info(ctx, fmt.Sprintf("Finished '%s' after %s", name, prettyDuration(elapsed)),
		"task", name, "files", len(written))
	return written, nil
}

// RunEntryPoint runs every task of the entry point in declared order. The
// first failure stops the sequence; output of earlier tasks is kept.
func (r *Runner) RunEntryPoint(ctx context.Context, name string) error {
	tasks, ok := r.entryPoints[name]
	if !ok {
		return errors.NewConfigError(fmt.Sprintf("unknown entry point %q", name))
	}

	r.logger.Info(ctx, fmt.Sprintf("Starting '%s'...", name), "entry_point", name)
	start := time.Now()
	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := r.RunTask(ctx, t); err != nil {
			r.logger.Error(ctx, err, fmt.Sprintf("'%s' errored after %s", name, prettyDuration(time.Since(start))),
				"entry_point", name, "task", t)
			return err
		}
		// an interrupted dev server ends the entry point normally
		if _, serve := r.tasks[t].(*Serve); serve && ctx.Err() != nil {
			break
		}
	}
	r.logger.Info(ctx, fmt.Sprintf("Finished '%s' after %s", name, prettyDuration(time.Since(start))),
		"entry_point", name)
	return nil
}

// runWatched runs a task on behalf of a watch binding. Failures never stop
// the watcher; they are handed to the notifier instead.
func (r *Runner) runWatched(ctx context.Context, name string) error {
	_, err := r.RunTask(ctx, name)
	if err == nil || ctx.Err() != nil {
		return err
	}
	pe, ok := errors.AsPipelineError(err)
	if !ok {
		pe = &errors.PipelineError{Kind: errors.KindTransform, Message: "task failed", Cause: err}
	}
	if pe.Task == "" {
		pe.WithTask(name)
	}
	r.notifier.Notify(ctx, pe)
	return pe
}

// prettyDuration formats d the way gulp prints task timings.
func prettyDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%d μs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%d ms", d.Milliseconds())
	case d < time.Minute:
		return strconv.FormatFloat(math.Round(d.Seconds()*100)/100, 'f', -1, 64) + " s"
	default:
		return fmt.Sprintf("%d min %d s", int(d.Minutes()), int(d.Seconds())%60)
	}
}
