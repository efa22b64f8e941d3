// Package internal contains the core implementation packages for assetpipe.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules while providing
// all the core functionality for the assetpipe CLI tool.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - config: Configuration loading, the built-in pipeline and validation
//   - errors: Pipeline error kinds, the overlay error collector and suggestions
//   - fileset: Glob matching and input resolution
//   - transform: The named steps a task chains (concat, minify, sourcemaps, ...)
//   - task: Pipeline and clean tasks with their error policies
//   - notify: Console and browser overlay notifications
//   - runner: Task registry, entry points, metrics and the serve task
//   - server: Static file server with live reload over websockets
//   - watcher: File system monitoring with debouncing and task bindings
//   - logging: Structured logging on top of log/slog
//   - version: Build identity
//
// # Inter-Package Communication
//
//   - The runner builds tasks from config and runs entry points in order
//   - Tasks resolve inputs through fileset and pass files through transform
//   - Tasks send reloads through a broadcaster the dev server attaches to
//   - Failures that must not stop the process go to notify
//   - The serve task starts the server and registers watcher bindings that
//     rerun tasks through the runner
//
// # Testing Strategy
//
//   - Unit tests for individual functions and methods
//   - Filesystem fixtures from testutils for end to end pipeline runs
//   - Property tests behind the property build tag
package internal
