// Package notify delivers failures that must not stop the process: watch
// triggered rebuilds and tasks running under the notify policy.
package notify

import (
	"context"
	"sync"

	"github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/logging"
)

// Console writes notifications to a logger.
type Console struct {
	logger logging.Logger
}

// NewConsole creates a console notifier.
func NewConsole(logger logging.Logger) *Console {
	return &Console{logger: logger.WithComponent("notify")}
}

// Notify logs err with its location.
func (c *Console) Notify(ctx context.Context, err error) {
	be := errors.FromError(err)
	fields := []interface{}{"task", be.Task}
	if be.File != "" {
		fields = append(fields, "file", be.File)
	}
	if be.Line > 0 {
		fields = append(fields, "line", be.Line, "column", be.Column)
	}
	c.logger.Error(ctx, err, "Build failed", fields...)
}

// Clear is a no-op; successful runs are logged by the runner.
func (c *Console) Clear(context.Context, string) {}

// Sink receives overlay updates, typically the dev server.
type Sink interface {
	BuildFailed(be errors.BuildError)
	BuildRecovered(task string)
}

// Overlay keeps the current failure per task and forwards changes to the
// attached sinks.
type Overlay struct {
	collector *errors.ErrorCollector

	mu    sync.RWMutex
	next  int
	sinks map[int]Sink
}

// NewOverlay creates an overlay notifier with an empty collector.
func NewOverlay() *Overlay {
	return &Overlay{
		collector: errors.NewErrorCollector(),
		sinks:     make(map[int]Sink),
	}
}

// Collector returns the errors currently shown.
func (o *Overlay) Collector() *errors.ErrorCollector {
	return o.collector
}

// Attach adds s and returns a function removing it again.
func (o *Overlay) Attach(s Sink) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.next
	o.next++
	o.sinks[id] = s
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.sinks, id)
	}
}

// Notify records err and pushes it to every sink.
func (o *Overlay) Notify(_ context.Context, err error) {
	be := o.collector.Add(err)
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, s := range o.sinks {
		s.BuildFailed(be)
	}
}

// Clear drops the failure of task, telling sinks only if there was one.
func (o *Overlay) Clear(_ context.Context, task string) {
	if !o.collector.HasTask(task) {
		return
	}
	o.collector.ClearTask(task)
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, s := range o.sinks {
		s.BuildRecovered(task)
	}
}

type multi []errors.Notifier

// Multi fans notifications out to every notifier in order.
func Multi(notifiers ...errors.Notifier) errors.Notifier {
	return multi(notifiers)
}

func (m multi) Notify(ctx context.Context, err error) {
	for _, n := range m {
		n.Notify(ctx, err)
	}
}

func (m multi) Clear(ctx context.Context, task string) {
	for _, n := range m {
		n.Clear(ctx, task)
	}
}
