package errors

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"sync"
	"time"
)

// BuildError is one failure shown in the dev-server overlay.
type BuildError struct {
	Task      string    `json:"task"`
	File      string    `json:"file,omitempty"`
	Line      int       `json:"line,omitempty"`
	Column    int       `json:"column,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface
func (be *BuildError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", be.File, be.Line, be.Column, be.Message)
}

// FromError converts any error into a BuildError, keeping location
// information when the error is a PipelineError.
func FromError(err error) BuildError {
	be := BuildError{Message: err.Error(), Timestamp: time.Now()}
	if pe, ok := AsPipelineError(err); ok {
		be.Task = pe.Task
		be.File = pe.FilePath
		be.Line = pe.Line
		be.Column = pe.Column
	}
	return be
}

// ErrorCollector keeps the latest failure of every task.
type ErrorCollector struct {
	byTask map[string]BuildError
	mutex  sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		byTask: make(map[string]BuildError),
	}
}

// Add records err as the current failure of its task.
func (ec *ErrorCollector) Add(err error) BuildError {
	be := FromError(err)
	ec.Record(be)
	return be
}

// Record stores be as the current failure of its task.
func (ec *ErrorCollector) Record(be BuildError) {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.byTask[be.Task] = be
}

// ClearTask removes the failure recorded for task.
func (ec *ErrorCollector) ClearTask(task string) {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	delete(ec.byTask, task)
}

// GetErrors returns all collected errors ordered by task name.
func (ec *ErrorCollector) GetErrors() []BuildError {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	result := make([]BuildError, 0, len(ec.byTask))
	for _, be := range ec.byTask {
		result = append(result, be)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Task < result[j].Task })
	return result
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	return len(ec.byTask) > 0
}

// HasTask reports whether a failure is recorded for task.
func (ec *ErrorCollector) HasTask(task string) bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	_, ok := ec.byTask[task]
	return ok
}

// Clear clears all errors
func (ec *ErrorCollector) Clear() {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.byTask = make(map[string]BuildError)
}

// ErrorOverlay generates HTML for the error overlay
func (ec *ErrorCollector) ErrorOverlay() string {
	errs := ec.GetErrors()
	if len(errs) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(`<div id="assetpipe-error-overlay" style="position:fixed;top:0;left:0;width:100%;height:100%;` +
		`background:rgba(0,0,0,0.85);color:#fff;font-family:Menlo,Monaco,monospace;font-size:14px;` +
		`z-index:2147483647;padding:20px;box-sizing:border-box;overflow:auto;">`)
	b.WriteString(`<div style="max-width:1000px;margin:0 auto;">`)
	b.WriteString(`<h2 style="margin:0 0 20px;color:#ff6b6b;">Build Errors</h2>`)

	for _, be := range errs {
		location := be.File
		if be.Line > 0 {
			location = fmt.Sprintf("%s:%d:%d", be.File, be.Line, be.Column)
		}
		fmt.Fprintf(&b, `<div style="background:#2d3748;padding:15px;margin-bottom:15px;border-left:4px solid #ff6b6b;">`+
			`<div style="color:#ff6b6b;font-weight:bold;">%s</div>`+
			`<pre style="white-space:pre-wrap;color:#e2e8f0;">%s</pre>`+
			`<div style="color:#a0aec0;font-size:12px;">%s &middot; %s</div></div>`,
			html.EscapeString(be.Task),
			html.EscapeString(be.Message),
			html.EscapeString(location),
			be.Timestamp.Format("15:04:05"))
	}

	b.WriteString(`</div></div>`)
	return b.String()
}
