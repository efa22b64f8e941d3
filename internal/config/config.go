// Package config provides configuration management for assetpipe using Viper
// for loading from files, environment variables, and command-line flags.
//
// The configuration holds the dev server settings, project paths, logging
// options and the pipeline definition itself: tasks, entry points and watch
// bindings. When a project does not define a pipeline the built-in one is
// used, mirroring the classic gulp setup of clean, resources, HTML, scripts,
// styles, images and an SVG sprite followed by a live-reloading server.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/assetpipe/internal/errors"
)

// Task kinds.
const (
	KindPipeline = "pipeline"
	KindClean    = "clean"
	KindServe    = "serve"
)

type Config struct {
	Server      ServerConfig       `mapstructure:"server" yaml:"server"`
	Paths       PathsConfig        `mapstructure:"paths" yaml:"paths"`
	Watch       WatchConfig        `mapstructure:"watch" yaml:"watch"`
	Tasks       []TaskConfig       `mapstructure:"tasks" yaml:"tasks"`
	EntryPoints []EntryPointConfig `mapstructure:"entry_points" yaml:"entry_points"`
	Log         LogConfig          `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port" yaml:"port"`
	Host           string   `mapstructure:"host" yaml:"host"`
	Open           bool     `mapstructure:"open" yaml:"open"`
	NoOpen         bool     `mapstructure:"no-open" yaml:"-"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins,omitempty"`
}

type PathsConfig struct {
	Root string `mapstructure:"root" yaml:"root"`
	Src  string `mapstructure:"src" yaml:"src"`
	Dist string `mapstructure:"dist" yaml:"dist"`
}

type WatchConfig struct {
	Debounce time.Duration   `mapstructure:"debounce" yaml:"debounce"`
	Ignore   []string        `mapstructure:"ignore" yaml:"ignore"`
	Bindings []BindingConfig `mapstructure:"bindings" yaml:"bindings"`
}

// BindingConfig reruns Task whenever a file matching Pattern changes.
type BindingConfig struct {
	Pattern string `mapstructure:"pattern" yaml:"pattern"`
	Task    string `mapstructure:"task" yaml:"task"`
}

// TaskConfig defines one task. Tasks are a list rather than a map because
// viper lower-cases map keys and task names such as stylesDev are mixed case.
type TaskConfig struct {
	Name       string       `mapstructure:"name" yaml:"name"`
	Kind       string       `mapstructure:"kind" yaml:"kind,omitempty"`
	Inputs     []string     `mapstructure:"inputs" yaml:"inputs,omitempty"`
	Steps      []StepConfig `mapstructure:"steps" yaml:"steps,omitempty"`
	Dest       string       `mapstructure:"dest" yaml:"dest,omitempty"`
	Reload     bool         `mapstructure:"reload" yaml:"reload,omitempty"`
	AllowEmpty bool         `mapstructure:"allow_empty" yaml:"allow_empty,omitempty"`
	OnError    string       `mapstructure:"on_error" yaml:"on_error,omitempty"`
}

type StepConfig struct {
	Use     string                 `mapstructure:"use" yaml:"use"`
	Options map[string]interface{} `mapstructure:"options" yaml:"options,omitempty"`
}

type EntryPointConfig struct {
	Name  string   `mapstructure:"name" yaml:"name"`
	Tasks []string `mapstructure:"tasks" yaml:"tasks"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Dir    string `mapstructure:"dir" yaml:"dir,omitempty"`
}

// SetDefaults registers the scalar defaults on v. The pipeline defaults are
// filled in by Load because viper cannot merge lists.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.open", true)
	v.SetDefault("paths.root", ".")
	v.SetDefault("paths.src", "src")
	v.SetDefault("paths.dist", "dist")
	v.SetDefault("watch.debounce", 200*time.Millisecond)
	v.SetDefault("watch.ignore", []string{".git", "node_modules"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// EnvPrefix prefixes every environment variable, e.g. ASSETPIPE_SERVER_PORT.
const EnvPrefix = "ASSETPIPE"

// EnvReplacer maps nested keys such as server.port onto environment names.
func EnvReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_", "-", "_")
}

// Load builds the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom builds the configuration from v, applies defaults and validates.
func LoadFrom(v *viper.Viper) (*Config, error) {
	config, err := Decode(v)
	if err != nil {
		return nil, err
	}
	if result := Validate(config); result.HasErrors() {
		return nil, errors.NewConfigError("invalid configuration:\n" + result.String())
	}
	return config, nil
}

// Decode builds the configuration from v and applies defaults without
// validating it.
func Decode(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.NewConfigError(fmt.Sprintf("decode configuration: %v", err))
	}

	// Override open if explicitly disabled via flag
	if config.Server.NoOpen {
		config.Server.Open = false
	}

	if len(config.Tasks) == 0 {
		config.Tasks = DefaultTasks(config.Paths)
	}
	if len(config.EntryPoints) == 0 {
		config.EntryPoints = DefaultEntryPoints()
	}
	if len(config.Watch.Bindings) == 0 {
		config.Watch.Bindings = DefaultBindings(config.Paths)
	}

	root, err := filepath.Abs(config.Paths.Root)
	if err != nil {
		return nil, errors.NewConfigError(fmt.Sprintf("resolve project root: %v", err))
	}
	config.Paths.Root = root

	return &config, nil
}

// Task returns the task called name.
func (c *Config) Task(name string) (TaskConfig, bool) {
	for _, t := range c.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return TaskConfig{}, false
}

// EntryPoint returns the entry point called name.
func (c *Config) EntryPoint(name string) (EntryPointConfig, bool) {
	for _, ep := range c.EntryPoints {
		if ep.Name == name {
			return ep, true
		}
	}
	return EntryPointConfig{}, false
}

// TaskKind returns the kind of t with the pipeline default applied.
func (t TaskConfig) TaskKind() string {
	if t.Kind == "" {
		return KindPipeline
	}
	return t.Kind
}
