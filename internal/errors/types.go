package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind represents a category of pipeline failure.
type Kind string

const (
	KindNoMatch    Kind = "no_match"
	KindTransform  Kind = "transform"
	KindFilesystem Kind = "filesystem"
	KindConfig     Kind = "config"
	KindNetwork    Kind = "network"
)

// PipelineError is a structured error raised by tasks and their collaborators.
type PipelineError struct {
	Kind     Kind
	Task     string
	Step     string
	Message  string
	FilePath string
	Line     int
	Column   int
	Cause    error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	var parts []string

	if e.Task != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Task))
	}

	if e.Step != "" {
		parts = append(parts, e.Step+":")
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a PipelineError of the same kind.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}

	return false
}

// WithTask sets the task the error was raised from.
func (e *PipelineError) WithTask(task string) *PipelineError {
	e.Task = task

	return e
}

// WithStep sets the transform step the error was raised from.
func (e *PipelineError) WithStep(step string) *PipelineError {
	e.Step = step

	return e
}

// WithLocation adds file location information.
func (e *PipelineError) WithLocation(filePath string, line, column int) *PipelineError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// Sentinel values for errors.Is comparisons.
var (
	ErrNoMatch    = &PipelineError{Kind: KindNoMatch}
	ErrTransform  = &PipelineError{Kind: KindTransform}
	ErrFilesystem = &PipelineError{Kind: KindFilesystem}
	ErrConfig     = &PipelineError{Kind: KindConfig}
)

// NewNoMatchError reports that an input pattern matched zero files.
func NewNoMatchError(patterns []string) *PipelineError {
	return &PipelineError{
		Kind:    KindNoMatch,
		Message: fmt.Sprintf("no files matched %s", strings.Join(patterns, ", ")),
	}
}

// NewTransformError reports that a collaborator rejected its input.
func NewTransformError(step, message string, cause error) *PipelineError {
	return &PipelineError{
		Kind:    KindTransform,
		Step:    step,
		Message: message,
		Cause:   cause,
	}
}

// NewFilesystemError reports a failure reading, writing or deleting files.
func NewFilesystemError(path, message string, cause error) *PipelineError {
	return &PipelineError{
		Kind:     KindFilesystem,
		FilePath: path,
		Message:  message,
		Cause:    cause,
	}
}

// NewConfigError reports an invalid pipeline definition.
func NewConfigError(message string) *PipelineError {
	return &PipelineError{
		Kind:    KindConfig,
		Message: message,
	}
}

// IsNoMatch checks if an error is a NoMatchError.
func IsNoMatch(err error) bool {
	return errors.Is(err, ErrNoMatch)
}

// IsTransform checks if an error is a TransformError.
func IsTransform(err error) bool {
	return errors.Is(err, ErrTransform)
}

// IsFilesystem checks if an error is a FilesystemError.
func IsFilesystem(err error) bool {
	return errors.Is(err, ErrFilesystem)
}

// IsConfig checks if an error is a ConfigError.
func IsConfig(err error) bool {
	return errors.Is(err, ErrConfig)
}

// AsPipelineError extracts the PipelineError from an error chain.
func AsPipelineError(err error) (*PipelineError, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe, true
	}

	return nil, false
}

// Notifier receives failures that must not abort the running process.
type Notifier interface {
	Notify(ctx context.Context, err error)
	Clear(ctx context.Context, task string)
}
