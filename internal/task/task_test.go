package task

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/transform"
)

type recordingNotifier struct {
	mu      sync.Mutex
	errs    []error
	cleared []string
}

func (n *recordingNotifier) Notify(_ context.Context, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errs = append(n.errs, err)
}

func (n *recordingNotifier) Clear(_ context.Context, task string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cleared = append(n.cleared, task)
}

type recordingReloader struct {
	paths [][]string
}

func (r *recordingReloader) NotifyReload(paths []string) {
	r.paths = append(r.paths, paths)
}

func writeFile(t *testing.T, root, rel, contents string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(contents), 0o644))
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyFatal, p)

	p, err = ParsePolicy("Notify")
	require.NoError(t, err)
	assert.Equal(t, PolicyNotify, p)

	_, err = ParsePolicy("ignore")
	assert.Error(t, err)
}

func TestNewPipelineValidation(t *testing.T) {
	reg := transform.Default()
	base := Config{Name: "styles", Root: t.TempDir(), Inputs: []string{"src/**/*.css"}, Dest: "dist"}

	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"no name", func(c *Config) { c.Name = "" }},
		{"no inputs", func(c *Config) { c.Inputs = nil }},
		{"bad glob", func(c *Config) { c.Inputs = []string{"src/[a-"} }},
		{"no dest", func(c *Config) { c.Dest = "" }},
		{"dest escapes", func(c *Config) { c.Dest = "../out" }},
		{"dest is root", func(c *Config) { c.Dest = "./" }},
		{"unknown step", func(c *Config) { c.Steps = []Step{{Use: "uglify"}} }},
		{"bad step options", func(c *Config) { c.Steps = []Step{{Use: "concat"}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.modify(&cfg)
			_, err := NewPipeline(cfg, reg)
			require.Error(t, err)
			assert.True(t, errors.IsConfig(err))
		})
	}
}

func TestPipelineRun(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/styles/a.css", "a {\n  color: red;\n}\n")
	writeFile(t, root, "src/styles/nested/b.css", "b { color: blue; }\n")

	reloader := &recordingReloader{}
	notifier := &recordingNotifier{}
	p, err := NewPipeline(Config{
		Name:   "stylesDev",
		Root:   root,
		Inputs: []string{"src/styles/**/*.css"},
		Steps: []Step{
			{Use: "concat", Options: transform.Options{"file": "main.css"}},
			{Use: "minify-css"},
		},
		Dest:   "dist",
		Reload: true,
	}, transform.Default(), WithReloader(reloader), WithNotifier(notifier))
	require.NoError(t, err)
	assert.Equal(t, "stylesDev", p.Name())

	written, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Written{"dist/main.css"}, written)
	assert.Contains(t, readFile(t, root, "dist/main.css"), "a{color:red}")
	assert.Equal(t, [][]string{{"dist/main.css"}}, reloader.paths)
	assert.Equal(t, []string{"stylesDev"}, notifier.cleared)
}

func TestPipelineKeepsLayoutBelowBase(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/index.html", "<div>  </div>")
	writeFile(t, root, "src/pages/about.html", "<p> x </p>")

	p, err := NewPipeline(Config{
		Name:   "htmlMinify",
		Root:   root,
		Inputs: []string{"src/**/*.html"},
		Steps:  []Step{{Use: "minify-html"}},
		Dest:   "dist",
	}, transform.Default())
	require.NoError(t, err)

	written, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Written{"dist/index.html", "dist/pages/about.html"}, written)
	assert.Equal(t, "<div></div>", readFile(t, root, "dist/index.html"))
	assert.Equal(t, "<p>x</p>", readFile(t, root, "dist/pages/about.html"))
}

func TestPipelineNoMatch(t *testing.T) {
	root := t.TempDir()
	cfg := Config{Name: "styles", Root: root, Inputs: []string{"src/styles/**/*.css"}, Dest: "dist"}

	p, err := NewPipeline(cfg, transform.Default())
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsNoMatch(err))

	pe, ok := errors.AsPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, "styles", pe.Task)

	cfg.AllowEmpty = true
	p, err = NewPipeline(cfg, transform.Default())
	require.NoError(t, err)
	written, err := p.Run(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, written)
}

func TestPipelineNoMatchPerPattern(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/js/components/menu.js", "let menu = 1;\n")

	// allow_empty never hides a missing file named without wildcards
	p, err := NewPipeline(scriptsConfig(root, PolicyFatal), transform.Default())
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsNoMatch(err))
	assert.Contains(t, err.Error(), "src/js/main.js")
	assert.NotContains(t, err.Error(), "components")

	// without allow_empty every pattern must select a file
	require.NoError(t, os.Remove(filepath.Join(root, "src/js/components/menu.js")))
	writeFile(t, root, "src/js/main.js", "let main = 1;\n")
	cfg := scriptsConfig(root, PolicyFatal)
	cfg.AllowEmpty = false
	p, err = NewPipeline(cfg, transform.Default())
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsNoMatch(err))
	assert.Contains(t, err.Error(), "src/js/components/**/*.js")

	cfg.AllowEmpty = true
	p, err = NewPipeline(cfg, transform.Default())
	require.NoError(t, err)
	written, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Written{"dist/app.js"}, written)
}

func scriptsConfig(root string, policy Policy) Config {
	return Config{
		Name:   "scripts",
		Root:   root,
		Inputs: []string{"src/js/components/**/*.js", "src/js/main.js"},
		Steps: []Step{
			{Use: "transpile"},
			{Use: "concat", Options: transform.Options{"file": "app.js"}},
		},
		Dest:       "dist",
		AllowEmpty: true,
		OnError:    policy,
	}
}

func TestPipelineFatalPolicy(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/js/main.js", "function (\n")

	p, err := NewPipeline(scriptsConfig(root, PolicyFatal), transform.Default())
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransform(err))

	pe, _ := errors.AsPipelineError(err)
	assert.Equal(t, "scripts", pe.Task)
	assert.Equal(t, "transpile", pe.Step)
	assert.Equal(t, "src/js/main.js", pe.FilePath)
}

func TestPipelineNotifyPolicyKeepsPreviousOutput(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/js/main.js", "function (\n")
	writeFile(t, root, "dist/app.js", "previous")

	notifier := &recordingNotifier{}
	reloader := &recordingReloader{}
	cfg := scriptsConfig(root, PolicyNotify)
	cfg.Reload = true
	p, err := NewPipeline(cfg, transform.Default(), WithNotifier(notifier), WithReloader(reloader))
	require.NoError(t, err)

	written, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, written)
	assert.Equal(t, "previous", readFile(t, root, "dist/app.js"))
	require.Len(t, notifier.errs, 1)
	assert.True(t, errors.IsTransform(notifier.errs[0]))
	assert.Empty(t, reloader.paths)
}

func TestPipelineCancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/js/main.js", "let a = 1;")

	p, err := NewPipeline(scriptsConfig(root, PolicyNotify), transform.Default())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClean(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "dist/old/stale.css", "x")

	c, err := NewClean("clean", root, "dist", nil)
	require.NoError(t, err)
	assert.Equal(t, "dist", c.Dir())

	written, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, written)

	entries, err := os.ReadDir(filepath.Join(root, "dist"))
	require.NoError(t, err)
	assert.Empty(t, entries)

	// A missing directory is not an error.
	require.NoError(t, os.RemoveAll(filepath.Join(root, "dist")))
	_, err = c.Run(context.Background())
	assert.NoError(t, err)
}

func TestCleanRejectsRoot(t *testing.T) {
	_, err := NewClean("clean", t.TempDir(), ".", nil)
	assert.Error(t, err)
	_, err = NewClean("clean", t.TempDir(), "../elsewhere", nil)
	assert.Error(t, err)
}

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster()
	b.NotifyReload([]string{"dist/ignored.css"})

	r1, r2 := &recordingReloader{}, &recordingReloader{}
	detach := b.Attach(r1)
	b.Attach(r2)

	b.NotifyReload([]string{"dist/main.css"})
	detach()
	b.NotifyReload([]string{"dist/app.js"})

	assert.Equal(t, [][]string{{"dist/main.css"}}, r1.paths)
	assert.Equal(t, [][]string{{"dist/main.css"}, {"dist/app.js"}}, r2.paths)
}
