package watcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/conneroisu/assetpipe/internal/fileset"
)

// RunFunc reruns a bound task.
type RunFunc func(ctx context.Context) error

// Binding ties a glob to a task. A binding never runs concurrently with
// itself; a change arriving mid-run schedules exactly one more run.
type Binding struct {
	Pattern string
	Task    string

	matcher *fileset.Matcher
	run     RunFunc

	mu      sync.Mutex
	running bool
	pending bool
}

// Matches reports whether the root-relative path rel selects the binding.
func (b *Binding) Matches(rel string) bool {
	return rel != "" && b.matcher.Match(rel)
}

// Watch registers a persistent binding; bindings live until the process
// exits.
func (fw *FileWatcher) Watch(pattern, task string, run RunFunc) (*Binding, error) {
	if run == nil {
		return nil, fmt.Errorf("binding %q has no task to run", pattern)
	}
	m, err := fileset.NewMatcher(cleanPattern(pattern))
	if err != nil {
		return nil, err
	}
	b := &Binding{Pattern: pattern, Task: task, matcher: m, run: run}

	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.bindings = append(fw.bindings, b)
	return b, nil
}

// Bindings returns the registered bindings.
func (fw *FileWatcher) Bindings() []*Binding {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()
	return append([]*Binding(nil), fw.bindings...)
}

// dispatch fires every binding matched by the batch, each at most once.
func (fw *FileWatcher) dispatch(ctx context.Context, events []ChangeEvent) {
	for _, b := range fw.Bindings() {
		if matchAny(b, events) {
			fw.logger.Debug(ctx, "Change matched binding", "pattern", b.Pattern, "task", b.Task)
			fw.fire(ctx, b)
		}
	}
}

func (fw *FileWatcher) fire(ctx context.Context, b *Binding) {
	b.mu.Lock()
	if b.running {
		b.pending = true
		b.mu.Unlock()
		return
	}
	fw.mutex.Lock()
	if fw.stopped {
		fw.mutex.Unlock()
		b.mu.Unlock()
		return
	}
	fw.runs.Add(1)
	fw.mutex.Unlock()
	b.running = true
	b.mu.Unlock()

	go func() {
		defer fw.runs.Done()
		for {
			if ctx.Err() == nil {
				if err := b.run(ctx); err != nil {
					fw.logger.Debug(ctx, "Bound task failed", "task", b.Task, "error", err)
				}
			}

			b.mu.Lock()
			if b.pending && ctx.Err() == nil && !fw.isStopped() {
				b.pending = false
				b.mu.Unlock()
				continue
			}
			b.running = false
			b.pending = false
			b.mu.Unlock()
			return
		}
	}()
}

func (fw *FileWatcher) isStopped() bool {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()
	return fw.stopped
}
