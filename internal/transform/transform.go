// Package transform holds the collaborators a task chains together. Every
// transform takes the complete file set produced by the previous step and
// returns a new one; the heavy lifting is delegated to esbuild, x/net/html
// and the image codecs.
package transform

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/cast"

	"github.com/conneroisu/assetpipe/internal/fileset"
)

// Transform applies one concern to a set of files.
type Transform interface {
	Name() string
	Apply(ctx context.Context, files []*fileset.File) ([]*fileset.File, error)
}

// Options configures a transform. Values come straight from viper, so numbers
// may arrive as int, int64 or float64.
type Options map[string]interface{}

// String returns the string option key or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok && v != nil {
		return cast.ToString(v)
	}
	return def
}

// Bool returns the boolean option key or def.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok && v != nil {
		return cast.ToBool(v)
	}
	return def
}

// Int returns the integer option key or def.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok && v != nil {
		return cast.ToInt(v)
	}
	return def
}

// Strings returns the string slice option key or def.
func (o Options) Strings(key string, def []string) []string {
	if v, ok := o[key]; ok && v != nil {
		return cast.ToStringSlice(v)
	}
	return def
}

// Factory builds a configured transform.
type Factory func(opts Options) (Transform, error)

// Registry maps step names used in the pipeline definition to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces a factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns the registered step names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the transform registered under name.
func (r *Registry) New(name string, opts Options) (Transform, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown transform %q", name)
	}
	if opts == nil {
		opts = Options{}
	}
	return f(opts)
}

// Default returns a registry with every built-in transform.
func Default() *Registry {
	r := NewRegistry()
	r.Register("sourcemaps-init", NewSourcemapsInit)
	r.Register("sourcemaps-write", NewSourcemapsWrite)
	r.Register("concat", NewConcat)
	r.Register("autoprefix", NewAutoprefix)
	r.Register("minify-css", NewMinifyCSS)
	r.Register("transpile", NewTranspile)
	r.Register("minify-js", NewMinifyJS)
	r.Register("minify-html", NewMinifyHTML)
	r.Register("compress-image", NewCompressImage)
	r.Register("minify-svg", NewMinifySVG)
	r.Register("svg-sprite", NewSVGSprite)
	return r
}

// Func adapts a function into a Transform.
type Func struct {
	StepName string
	Fn       func(ctx context.Context, files []*fileset.File) ([]*fileset.File, error)
}

// Name returns the step name.
func (f Func) Name() string { return f.StepName }

// Apply calls the wrapped function.
func (f Func) Apply(ctx context.Context, files []*fileset.File) ([]*fileset.File, error) {
	return f.Fn(ctx, files)
}

// eachFile applies fn to every file, honouring cancellation between files.
func eachFile(ctx context.Context, files []*fileset.File, fn func(f *fileset.File) (*fileset.File, error)) ([]*fileset.File, error) {
	out := make([]*fileset.File, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		nf, err := fn(f)
		if err != nil {
			return nil, err
		}
		if nf != nil {
			out = append(out, nf)
		}
	}
	return out, nil
}
