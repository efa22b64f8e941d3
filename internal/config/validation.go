package config

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/conneroisu/assetpipe/internal/fileset"
	"github.com/conneroisu/assetpipe/internal/task"
	"github.com/conneroisu/assetpipe/internal/transform"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

func (vr *ValidationResult) addError(field string, value interface{}, msg string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, msg string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: msg, Suggestions: suggestions})
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("Validation errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("    💡 %s\n", suggestion))
			}
		}
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("Validation warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("    💡 %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

// Validate checks the whole configuration and reports every problem found.
func Validate(config *Config) *ValidationResult {
	result := &ValidationResult{}

	validateServer(&config.Server, result)
	validatePaths(&config.Paths, result)
	validateLog(&config.Log, result)

	tasks := validateTasks(config.Tasks, result)
	validateEntryPoints(config.EntryPoints, tasks, result)
	validateWatch(&config.Watch, tasks, result)

	return result
}

func validateServer(s *ServerConfig, result *ValidationResult) {
	// Allow 0 for system-assigned ports in testing
	if s.Port < 0 || s.Port > 65535 {
		result.addError("server.port", s.Port, fmt.Sprintf("port %d is not in valid range 0-65535", s.Port),
			"Use a port such as 3000 or 8080")
	} else if s.Port > 0 && s.Port < 1024 {
		result.addWarning("server.port", s.Port, "ports below 1024 usually require elevated privileges")
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(s.Host, char) {
			result.addError("server.host", s.Host, fmt.Sprintf("host contains dangerous character: %s", char))
			break
		}
	}

	for _, origin := range s.AllowedOrigins {
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			result.addError("server.allowed_origins", origin, fmt.Sprintf("origin %q must start with http:// or https://", origin))
		}
	}
}

func validatePaths(p *PathsConfig, result *ValidationResult) {
	if err := validateRelative(p.Src); err != nil {
		result.addError("paths.src", p.Src, err.Error())
	}
	if err := validateRelative(p.Dist); err != nil {
		result.addError("paths.dist", p.Dist, err.Error())
	}
	if path.Clean(p.Dist) == "." {
		result.addError("paths.dist", p.Dist, "the output directory may not be the project root",
			"The clean task deletes the output directory; use a dedicated directory such as dist")
	}
	if path.Clean(p.Src) == path.Clean(p.Dist) {
		result.addError("paths.dist", p.Dist, "the output directory may not equal the source directory")
	}
}

// validateRelative rejects absolute paths and paths leaving the project root.
func validateRelative(p string) error {
	if p == "" {
		return fmt.Errorf("empty path")
	}
	clean := path.Clean(filepath.ToSlash(p))
	if path.IsAbs(clean) || filepath.IsAbs(p) {
		return fmt.Errorf("path should be relative to the project root: %s", p)
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("path contains traversal: %s", p)
	}
	return nil
}

func validateLog(l *LogConfig, result *ValidationResult) {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		result.addError("log.level", l.Level, fmt.Sprintf("unknown log level %q", l.Level),
			"Use one of debug, info, warn, error")
	}
	switch l.Format {
	case "text", "json":
	default:
		result.addError("log.format", l.Format, fmt.Sprintf("unknown log format %q", l.Format),
			"Use text or json")
	}
}

func validateTasks(tasks []TaskConfig, result *ValidationResult) map[string]TaskConfig {
	byName := make(map[string]TaskConfig, len(tasks))
	registry := transform.Default()

	for i, t := range tasks {
		field := fmt.Sprintf("tasks[%d]", i)
		if t.Name == "" {
			result.addError(field+".name", t.Name, "task has no name")
			continue
		}
		field = fmt.Sprintf("tasks.%s", t.Name)
		if _, dup := byName[t.Name]; dup {
			result.addError(field, t.Name, fmt.Sprintf("task %q is defined twice", t.Name))
			continue
		}
		byName[t.Name] = t

		switch t.TaskKind() {
		case KindPipeline:
			validatePipelineTask(field, t, registry, result)
		case KindClean:
			if err := validateRelative(t.Dest); err != nil {
				result.addError(field+".dest", t.Dest, err.Error())
			} else if path.Clean(t.Dest) == "." {
				result.addError(field+".dest", t.Dest, "clean may not delete the project root")
			}
		case KindServe:
		default:
			result.addError(field+".kind", t.Kind, fmt.Sprintf("unknown task kind %q", t.Kind),
				"Use pipeline, clean or serve")
		}
	}

	return byName
}

func validatePipelineTask(field string, t TaskConfig, registry *transform.Registry, result *ValidationResult) {
	if len(t.Inputs) == 0 {
		result.addError(field+".inputs", t.Inputs, "pipeline task has no inputs")
	}
	for _, pattern := range t.Inputs {
		if _, err := fileset.Compile(strings.TrimPrefix(pattern, "!")); err != nil {
			result.addError(field+".inputs", pattern, err.Error())
		}
	}
	if err := validateRelative(t.Dest); err != nil {
		result.addError(field+".dest", t.Dest, err.Error())
	} else if path.Clean(t.Dest) == "." {
		result.addError(field+".dest", t.Dest, "dest may not be the project root")
	}
	for j, step := range t.Steps {
		if !registry.Has(step.Use) {
			result.addError(fmt.Sprintf("%s.steps[%d].use", field, j), step.Use,
				fmt.Sprintf("unknown transform %q", step.Use),
				"Available transforms: "+strings.Join(registry.Names(), ", "))
		}
	}
	if _, err := task.ParsePolicy(t.OnError); err != nil {
		result.addError(field+".on_error", t.OnError, err.Error())
	}
}

func validateEntryPoints(eps []EntryPointConfig, tasks map[string]TaskConfig, result *ValidationResult) {
	seen := make(map[string]bool, len(eps))
	for i, ep := range eps {
		if ep.Name == "" {
			result.addError(fmt.Sprintf("entry_points[%d].name", i), ep.Name, "entry point has no name")
			continue
		}
		field := "entry_points." + ep.Name
		if seen[ep.Name] {
			result.addError(field, ep.Name, fmt.Sprintf("entry point %q is defined twice", ep.Name))
			continue
		}
		seen[ep.Name] = true

		if len(ep.Tasks) == 0 {
			result.addError(field, ep.Tasks, "entry point has no tasks")
		}
		for j, name := range ep.Tasks {
			t, ok := tasks[name]
			if !ok {
				result.addError(field, name, fmt.Sprintf("entry point references unknown task %q", name))
				continue
			}
			if t.TaskKind() == KindServe && j != len(ep.Tasks)-1 {
				result.addWarning(field, name,
					fmt.Sprintf("task %q blocks until interrupted, later tasks only run after it stops", name))
			}
		}
	}
}

func validateWatch(w *WatchConfig, tasks map[string]TaskConfig, result *ValidationResult) {
	if w.Debounce < 0 {
		result.addError("watch.debounce", w.Debounce, "debounce may not be negative")
	}
	for i, b := range w.Bindings {
		field := fmt.Sprintf("watch.bindings[%d]", i)
		if _, err := fileset.Compile(b.Pattern); err != nil || b.Pattern == "" {
			result.addError(field+".pattern", b.Pattern, fmt.Sprintf("invalid pattern %q", b.Pattern))
		}
		t, ok := tasks[b.Task]
		switch {
		case !ok:
			result.addError(field+".task", b.Task, fmt.Sprintf("binding references unknown task %q", b.Task))
		case t.TaskKind() == KindServe:
			result.addError(field+".task", b.Task, "a watch binding may not start the dev server")
		}
	}
}
