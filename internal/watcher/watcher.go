// Package watcher reruns tasks when their source files change. Raw fsnotify
// events are debounced into batches and a single dispatch loop matches every
// batch against the registered bindings.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/assetpipe/internal/fileset"
	"github.com/conneroisu/assetpipe/internal/logging"
)

// DefaultDebounce is the quiet period that closes a batch of changes.
const DefaultDebounce = 200 * time.Millisecond

// FileWatcher watches a project tree and dispatches changes to bindings.
type FileWatcher struct {
	root      string
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	filters   []FileFilter
	bindings  []*Binding
	logger    logging.Logger
	mutex     sync.RWMutex

	// loops tracks the goroutines started by Start, runs the bound task
	// goroutines. No run starts once stopped is set.
	loops    sync.WaitGroup
	runs     sync.WaitGroup
	stopped  bool
	stopOnce sync.Once
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type EventType
	// Path is the absolute path reported by the operating system.
	Path string
	// Rel is Path relative to the watched root, slash separated.
	Rel     string
	ModTime time.Time
	Size    int64
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter reports whether a root-relative path should be watched.
type FileFilter func(rel string) bool

// Config configures a FileWatcher.
type Config struct {
	Root     string
	Debounce time.Duration
	// Ignore lists directory names or glob patterns never watched.
	Ignore []string
	Logger logging.Logger
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(cfg Config) (*FileWatcher, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	ignore, err := IgnoreFilter(cfg.Ignore)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		root:      root,
		watcher:   watcher,
		debouncer: newDebouncer(cfg.Debounce),
		filters:   []FileFilter{ignore},
		logger:    cfg.Logger.WithComponent("watcher"),
	}, nil
}

// AddFilter adds a file filter
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddRecursive adds a directory and all subdirectories to watch
func (fw *FileWatcher) AddRecursive(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != fw.root && !fw.accept(fw.rel(p)) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

// Start watches the root and dispatches changes until ctx is done.
func (fw *FileWatcher) Start(ctx context.Context) error {
	if err := fw.AddRecursive(fw.root); err != nil {
		return err
	}

	fw.loops.Add(3)
	go func() {
		defer fw.loops.Done()
		fw.debouncer.start(ctx)
	}()
	go func() {
		defer fw.loops.Done()
		fw.processEvents(ctx)
	}()
	go func() {
		defer fw.loops.Done()
		fw.watchLoop(ctx)
	}()

	fw.logger.Info(ctx, "Watching for changes", "root", fw.root, "bindings", len(fw.Bindings()))
	return nil
}

// Stop closes the watcher and waits for running bound tasks. No bound task
// starts after Stop returns.
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		fw.debouncer.stop()
		err = fw.watcher.Close()
		fw.loops.Wait()

		fw.mutex.Lock()
		fw.stopped = true
		fw.mutex.Unlock()
		fw.runs.Wait()
	})
	return err
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			// Log error but continue watching
			fw.logger.Warn(ctx, err, "File watcher error")
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	rel := fw.rel(event.Name)
	if rel == "" || !fw.accept(rel) {
		return
	}

	info, err := os.Stat(event.Name)
	var modTime time.Time
	var size int64
	if err == nil {
		modTime = info.ModTime()
		size = info.Size()
	}

	var eventType EventType
	switch {
	case event.Op&fsnotify.Create == fsnotify.Create:
		eventType = EventTypeCreated
	case event.Op&fsnotify.Write == fsnotify.Write:
		eventType = EventTypeModified
	case event.Op&fsnotify.Remove == fsnotify.Remove:
		eventType = EventTypeDeleted
	case event.Op&fsnotify.Rename == fsnotify.Rename:
		eventType = EventTypeRenamed
	default:
		eventType = EventTypeModified
	}

	if eventType == EventTypeCreated && err == nil && info.IsDir() {
		fw.addDirectory(ctx, event.Name)
		return
	}

	fw.debouncer.add(ChangeEvent{
		Type:    eventType,
		Path:    event.Name,
		Rel:     rel,
		ModTime: modTime,
		Size:    size,
	})
}

// addDirectory starts watching a directory created after Start. Files that
// landed in it before the watch was registered are reported as created.
func (fw *FileWatcher) addDirectory(ctx context.Context, dir string) {
	if err := fw.AddRecursive(dir); err != nil {
		fw.logger.Warn(ctx, err, "Failed to watch new directory", "dir", dir)
		return
	}
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel := fw.rel(p)
		if rel == "" || !fw.accept(rel) {
			return nil
		}
		ev := ChangeEvent{Type: EventTypeCreated, Path: p, Rel: rel}
		if info, err := d.Info(); err == nil {
			ev.ModTime = info.ModTime()
			ev.Size = info.Size()
		}
		fw.debouncer.add(ev)
		return nil
	})
}

func (fw *FileWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.debouncer.done:
			return
		case events := <-fw.debouncer.output:
			fw.dispatch(ctx, events)
		}
	}
}

func (fw *FileWatcher) accept(rel string) bool {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()
	for _, filter := range fw.filters {
		if !filter(rel) {
			return false
		}
	}
	return true
}

// rel returns p relative to the root or "" when p lies outside it.
func (fw *FileWatcher) rel(p string) string {
	r, err := filepath.Rel(fw.root, p)
	if err != nil {
		return ""
	}
	r = filepath.ToSlash(r)
	if r == "." || r == ".." || strings.HasPrefix(r, "../") {
		return ""
	}
	return r
}

// IgnoreFilter rejects paths having a segment equal to one of names, or
// matching one of them as a glob.
func IgnoreFilter(names []string) (FileFilter, error) {
	segments := make(map[string]bool)
	var matcher *fileset.Matcher
	var patterns []string
	for _, n := range names {
		n = strings.Trim(filepath.ToSlash(n), "/")
		if n == "" {
			continue
		}
		if fileset.HasMagic(n) || strings.Contains(n, "/") {
			if !strings.Contains(n, "/") {
				n = "**/" + n
			}
			patterns = append(patterns, n, n+"/**")
			continue
		}
		segments[n] = true
	}
	if len(patterns) > 0 {
		m, err := fileset.NewMatcher(patterns...)
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern: %w", err)
		}
		matcher = m
	}

	return func(rel string) bool {
		for _, seg := range strings.Split(rel, "/") {
			if segments[seg] {
				return false
			}
		}
		return matcher == nil || !matcher.Match(rel)
	}, nil
}

// Debouncer groups rapid file changes together
type Debouncer struct {
	delay   time.Duration
	events  chan ChangeEvent
	output  chan []ChangeEvent
	done    chan struct{}
	once    sync.Once
	timer   *time.Timer
	pending []ChangeEvent
	mutex   sync.Mutex
}

func newDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		events:  make(chan ChangeEvent, 256),
		output:  make(chan []ChangeEvent, 10),
		done:    make(chan struct{}),
		pending: make([]ChangeEvent, 0),
	}
}

func (d *Debouncer) add(event ChangeEvent) {
	select {
	case d.events <- event:
	case <-d.done:
	}
}

func (d *Debouncer) start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.stop()
			return
		case <-d.done:
			return
		case event := <-d.events:
			d.addEvent(event)
		}
	}
}

func (d *Debouncer) stop() {
	d.once.Do(func() {
		close(d.done)
		d.mutex.Lock()
		if d.timer != nil {
			d.timer.Stop()
		}
		d.mutex.Unlock()
	})
}

func (d *Debouncer) addEvent(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	d.pending = append(d.pending, event)

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *Debouncer) flush() {
	d.mutex.Lock()
	if len(d.pending) == 0 {
		d.mutex.Unlock()
		return
	}

	// Deduplicate events by path, last one wins
	eventMap := make(map[string]ChangeEvent, len(d.pending))
	for _, event := range d.pending {
		eventMap[event.Path] = event
	}
	d.pending = d.pending[:0]
	d.mutex.Unlock()

	events := make([]ChangeEvent, 0, len(eventMap))
	for _, event := range eventMap {
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	select {
	case d.output <- events:
	case <-d.done:
	}
}

// matchAny reports whether any event of the batch matches b.
func matchAny(b *Binding, events []ChangeEvent) bool {
	for _, ev := range events {
		if b.Matches(ev.Rel) {
			return true
		}
	}
	return false
}

// cleanPattern normalises a binding pattern to a root-relative slash path.
func cleanPattern(pattern string) string {
	p := path.Clean(filepath.ToSlash(pattern))
	return strings.TrimPrefix(p, "./")
}
