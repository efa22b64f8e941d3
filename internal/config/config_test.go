package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/assetpipe/internal/errors"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setup       func()
		expectError bool
		check       func(t *testing.T, c *Config)
	}{
		{
			name: "defaults reproduce the built-in pipeline",
			setup: func() {
				viper.Reset()
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 3000, c.Server.Port)
				assert.Equal(t, "localhost", c.Server.Host)
				assert.True(t, c.Server.Open)
				assert.Equal(t, "src", c.Paths.Src)
				assert.Equal(t, "dist", c.Paths.Dist)
				assert.True(t, filepath.IsAbs(c.Paths.Root))
				assert.Equal(t, 200*time.Millisecond, c.Watch.Debounce)
				assert.Len(t, c.Tasks, 10)
				assert.Len(t, c.Watch.Bindings, 6)

				ep, ok := c.EntryPoint(DefaultEntryPoint)
				require.True(t, ok)
				assert.Equal(t, []string{"clean", "resources", "htmlMinify", "scripts", "styles", "images", "svgSprites", "serve"}, ep.Tasks)

				ep, ok = c.EntryPoint(DevelopmentEntryPoint)
				require.True(t, ok)
				assert.Equal(t, []string{"clean", "htmlMinify", "scriptsDev", "stylesDev", "images", "svgSprites", "serve"}, ep.Tasks)
			},
		},
		{
			name: "no-open flag override",
			setup: func() {
				viper.Reset()
				viper.Set("server.open", true)
				viper.Set("server.no-open", true)
			},
			check: func(t *testing.T, c *Config) {
				assert.False(t, c.Server.Open)
			},
		},
		{
			name: "custom layout moves default patterns",
			setup: func() {
				viper.Reset()
				viper.Set("paths.src", "assets")
				viper.Set("paths.dist", "public")
			},
			check: func(t *testing.T, c *Config) {
				styles, ok := c.Task("styles")
				require.True(t, ok)
				assert.Equal(t, []string{"assets/styles/**/*.css"}, styles.Inputs)
				assert.Equal(t, "public", styles.Dest)

				images, _ := c.Task("images")
				assert.Equal(t, "public/images", images.Dest)

				clean, _ := c.Task("clean")
				assert.Equal(t, "public", clean.Dest)
			},
		},
		{
			name: "debounce from string",
			setup: func() {
				viper.Reset()
				viper.Set("watch.debounce", "50ms")
			},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 50*time.Millisecond, c.Watch.Debounce)
			},
		},
		{
			name: "invalid port type",
			setup: func() {
				viper.Reset()
				viper.Set("server.port", "invalid_port")
			},
			expectError: true,
		},
		{
			name: "port out of range",
			setup: func() {
				viper.Reset()
				viper.Set("server.port", 70000)
			},
			expectError: true,
		},
		{
			name: "dist escapes the project",
			setup: func() {
				viper.Reset()
				viper.Set("paths.dist", "../dist")
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer viper.Reset()

			config, err := Load()

			if tt.expectError {
				require.Error(t, err)
				assert.True(t, errors.IsConfig(err))
				assert.Nil(t, config)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, config)
			tt.check(t, config)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".assetpipe.yml")
	yaml := `
server:
  port: 8081
  allowed_origins:
    - http://example.test
tasks:
  - name: clean
    kind: clean
    dest: out
  - name: stylesDev
    inputs: ["web/**/*.css"]
    steps:
      - use: concat
        options:
          file: bundle.css
      - use: minify-css
    dest: out
    on_error: notify
entry_points:
  - name: quick
    tasks: [clean, stylesDev]
watch:
  bindings:
    - pattern: web/**/*.css
      task: stylesDev
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	c, err := LoadFrom(v)
	require.NoError(t, err)

	assert.Equal(t, 8081, c.Server.Port)
	assert.Equal(t, []string{"http://example.test"}, c.Server.AllowedOrigins)
	require.Len(t, c.Tasks, 2)

	styles, ok := c.Task("stylesDev")
	require.True(t, ok, "task names keep their case")
	assert.Equal(t, KindPipeline, styles.TaskKind())
	assert.Equal(t, "notify", styles.OnError)
	require.Len(t, styles.Steps, 2)
	assert.Equal(t, "bundle.css", styles.Steps[0].Options["file"])

	_, ok = c.EntryPoint("quick")
	assert.True(t, ok)
	_, ok = c.EntryPoint(DefaultEntryPoint)
	assert.False(t, ok, "a configured pipeline replaces the built-in one")
	assert.Equal(t, []BindingConfig{{Pattern: "web/**/*.css", Task: "stylesDev"}}, c.Watch.Bindings)
}

func TestLoadWithEnvironment(t *testing.T) {
	t.Setenv("ASSETPIPE_SERVER_PORT", "9999")
	t.Setenv("ASSETPIPE_SERVER_HOST", "0.0.0.0")

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(EnvReplacer())

	c, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, 9999, c.Server.Port)
	assert.Equal(t, "0.0.0.0", c.Server.Host)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		p := PathsConfig{Root: "/project", Src: "src", Dist: "dist"}
		return &Config{
			Server:      ServerConfig{Port: 3000, Host: "localhost"},
			Paths:       p,
			Watch:       WatchConfig{Debounce: 100 * time.Millisecond, Bindings: DefaultBindings(p)},
			Tasks:       DefaultTasks(p),
			EntryPoints: DefaultEntryPoints(),
			Log:         LogConfig{Level: "info", Format: "text"},
		}
	}

	require.False(t, Validate(valid()).HasErrors())

	tests := []struct {
		name   string
		modify func(c *Config)
		field  string
	}{
		{"dangerous host", func(c *Config) { c.Server.Host = "localhost; rm -rf /" }, "server.host"},
		{"bad origin", func(c *Config) { c.Server.AllowedOrigins = []string{"example.com"} }, "server.allowed_origins"},
		{"dist is root", func(c *Config) { c.Paths.Dist = "." }, "paths.dist"},
		{"src equals dist", func(c *Config) { c.Paths.Src = "dist" }, "paths.dist"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"unknown transform", func(c *Config) { c.Tasks[2].Steps[0].Use = "uglify" }, "tasks.styles.steps[0].use"},
		{"bad policy", func(c *Config) { c.Tasks[2].OnError = "ignore" }, "tasks.styles.on_error"},
		{"bad kind", func(c *Config) { c.Tasks[2].Kind = "shell" }, "tasks.styles.kind"},
		{"no inputs", func(c *Config) { c.Tasks[2].Inputs = nil }, "tasks.styles.inputs"},
		{"dest escapes", func(c *Config) { c.Tasks[2].Dest = "../up" }, "tasks.styles.dest"},
		{"duplicate task", func(c *Config) { c.Tasks = append(c.Tasks, TaskConfig{Name: "styles", Kind: KindServe}) }, "tasks.styles"},
		{"unknown task in entry point", func(c *Config) { c.EntryPoints[0].Tasks = append(c.EntryPoints[0].Tasks, "lint") }, "entry_points.default"},
		{"empty entry point", func(c *Config) { c.EntryPoints[1].Tasks = nil }, "entry_points.development"},
		{"binding to unknown task", func(c *Config) { c.Watch.Bindings[0].Task = "lint" }, "watch.bindings[0].task"},
		{"binding to serve", func(c *Config) { c.Watch.Bindings[0].Task = "serve" }, "watch.bindings[0].task"},
		{"bad binding pattern", func(c *Config) { c.Watch.Bindings[1].Pattern = "src/[a-" }, "watch.bindings[1].pattern"},
		{"negative debounce", func(c *Config) { c.Watch.Debounce = -time.Second }, "watch.debounce"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.modify(c)
			result := Validate(c)
			require.True(t, result.HasErrors())

			var fields []string
			for _, e := range result.Errors {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
			assert.Contains(t, result.String(), tt.field)
		})
	}
}

func TestValidateWarnsOnEarlyServe(t *testing.T) {
	p := PathsConfig{Src: "src", Dist: "dist"}
	c := &Config{
		Server: ServerConfig{Port: 3000},
		Paths:  p,
		Tasks:  DefaultTasks(p),
		EntryPoints: []EntryPointConfig{
			{Name: "odd", Tasks: []string{"serve", "styles"}},
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}

	result := Validate(c)
	assert.False(t, result.HasErrors())
	assert.True(t, result.HasWarnings())
}

func TestDecodeSkipsValidation(t *testing.T) {
	v := viper.New()
	v.Set("log.level", "loud")

	c, err := Decode(v)
	require.NoError(t, err)
	assert.Equal(t, "loud", c.Log.Level)
	assert.Len(t, c.Tasks, 10)

	_, err = LoadFrom(v)
	assert.True(t, errors.IsConfig(err))
}
