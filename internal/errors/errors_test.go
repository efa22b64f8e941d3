package errors

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *PipelineError
		expected string
	}{
		{
			name:     "no match",
			err:      NewNoMatchError([]string{"src/js/*.js", "src/main.js"}).WithTask("scripts"),
			expected: "[scripts] no files matched src/js/*.js, src/main.js",
		},
		{
			name: "transform with location",
			err: NewTransformError("transpile", "Expected identifier but found \"=\"", nil).
				WithTask("scripts").WithLocation("src/js/main.js", 2, 6),
			expected: "[scripts] transpile: src/js/main.js:2:6 Expected identifier but found \"=\"",
		},
		{
			name:     "filesystem with cause",
			err:      NewFilesystemError("dist/app.js", "write file", fmt.Errorf("disk full")),
			expected: "dist/app.js write file: disk full",
		},
		{
			name:     "line without column",
			err:      NewTransformError("minify-css", "bad", nil).WithLocation("a.css", 3, 0),
			expected: "minify-css: a.css:3 bad",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestPipelineErrorKinds(t *testing.T) {
	cause := fmt.Errorf("permission denied")
	wrapped := fmt.Errorf("clean: %w", NewFilesystemError("dist", "remove", cause))

	assert.True(t, IsFilesystem(wrapped))
	assert.False(t, IsTransform(wrapped))
	assert.ErrorIs(t, wrapped, cause)

	pe, ok := AsPipelineError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "dist", pe.FilePath)

	assert.True(t, IsNoMatch(NewNoMatchError(nil)))
	assert.True(t, IsConfig(NewConfigError("bad")))
	assert.True(t, IsTransform(NewTransformError("concat", "x", nil)))

	_, ok = AsPipelineError(fmt.Errorf("plain"))
	assert.False(t, ok)
}

func TestFromError(t *testing.T) {
	pe := NewTransformError("transpile", "unexpected token", nil).
		WithTask("scriptsDev").WithLocation("src/js/main.js", 4, 2)

	be := FromError(fmt.Errorf("watch: %w", pe))
	assert.Equal(t, "scriptsDev", be.Task)
	assert.Equal(t, "src/js/main.js", be.File)
	assert.Equal(t, 4, be.Line)
	assert.Equal(t, 2, be.Column)
	assert.Contains(t, be.Message, "unexpected token")
	assert.False(t, be.Timestamp.IsZero())

	plain := FromError(fmt.Errorf("boom"))
	assert.Empty(t, plain.Task)
	assert.Equal(t, "boom", plain.Message)
}

func TestErrorCollectorKeepsLatestPerTask(t *testing.T) {
	ec := NewErrorCollector()
	assert.False(t, ec.HasErrors())
	assert.Empty(t, ec.ErrorOverlay())

	ec.Add(NewTransformError("transpile", "first", nil).WithTask("scripts"))
	ec.Add(NewTransformError("transpile", "second", nil).WithTask("scripts"))
	ec.Add(NewTransformError("minify-css", "broken", nil).WithTask("styles"))

	errs := ec.GetErrors()
	require.Len(t, errs, 2)
	assert.Equal(t, "scripts", errs[0].Task)
	assert.Contains(t, errs[0].Message, "second")
	assert.Equal(t, "styles", errs[1].Task)
	assert.True(t, ec.HasTask("styles"))

	ec.ClearTask("scripts")
	assert.False(t, ec.HasTask("scripts"))
	assert.True(t, ec.HasErrors())

	ec.Clear()
	assert.False(t, ec.HasErrors())
}

func TestErrorOverlayEscapes(t *testing.T) {
	ec := NewErrorCollector()
	ec.Record(BuildError{Task: "htmlMinify", File: "src/index.html", Line: 1, Column: 5, Message: "<script>alert(1)</script>"})

	overlay := ec.ErrorOverlay()
	assert.Contains(t, overlay, "Build Errors")
	assert.Contains(t, overlay, "htmlMinify")
	assert.Contains(t, overlay, "src/index.html:1:5")
	assert.Contains(t, overlay, "&lt;script&gt;")
	assert.NotContains(t, overlay, "<script>alert")
}

func TestErrorCollectorConcurrency(t *testing.T) {
	ec := NewErrorCollector()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			task := fmt.Sprintf("task-%d", i%5)
			ec.Add(NewTransformError("concat", "x", nil).WithTask(task))
			_ = ec.GetErrors()
			_ = ec.ErrorOverlay()
		}(i)
	}
	wg.Wait()
	assert.Len(t, ec.GetErrors(), 5)
}

func TestEnhancedError(t *testing.T) {
	cause := fmt.Errorf("listen tcp :3000: bind: address already in use")
	err := NewEnhancedError("Failed to start dev server", cause, ServerStartError(cause, 3000))

	assert.ErrorIs(t, err, cause)
	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "Failed to start dev server: listen tcp"))
	assert.Contains(t, msg, "Suggestions:")
	assert.Contains(t, msg, "lsof -i :3000")
	assert.Contains(t, msg, "assetpipe serve --port 3001")

	plain := NewEnhancedError("nothing to add", nil, nil)
	assert.Equal(t, "nothing to add", plain.Error())
}

func TestSuggestions(t *testing.T) {
	s := NoMatchSuggestions("images", []string{"src/images/**/*.png"})
	require.Len(t, s, 2)
	assert.Contains(t, s[0].Description, "src/images/**/*.png")
	assert.Contains(t, s[1].Example, "name: images")

	s = ConfigurationError("watch binding references unknown task lint", ".assetpipe.yml")
	titles := make([]string, 0, len(s))
	for _, sg := range s {
		titles = append(titles, sg.Title)
	}
	assert.Contains(t, titles, "Check task and transform names")
	assert.NotContains(t, titles, "Fix YAML syntax")

	assert.Empty(t, ServerStartError(fmt.Errorf("connection reset"), 3000))
	assert.Len(t, ServerStartError(fmt.Errorf("permission denied"), 80), 1)
}
