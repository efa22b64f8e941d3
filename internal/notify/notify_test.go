package notify

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/logging"
)

type recordingSink struct {
	failed    []errors.BuildError
	recovered []string
}

func (s *recordingSink) BuildFailed(be errors.BuildError) { s.failed = append(s.failed, be) }
func (s *recordingSink) BuildRecovered(task string)      { s.recovered = append(s.recovered, task) }

func transformErr() error {
	return errors.NewTransformError("transpile", "Unexpected \"(\"", nil).
		WithLocation("src/js/main.js", 3, 9).
		WithTask("scripts")
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LevelDebug, Format: "json", Output: &buf})

	NewConsole(logger).Notify(context.Background(), transformErr())

	out := buf.String()
	assert.Contains(t, out, `"msg":"Build failed"`)
	assert.Contains(t, out, `"task":"scripts"`)
	assert.Contains(t, out, `"file":"src/js/main.js"`)
	assert.Contains(t, out, `"line":3`)
	assert.Contains(t, out, `"component":"notify"`)
}

func TestOverlay(t *testing.T) {
	o := NewOverlay()
	sink := &recordingSink{}
	detach := o.Attach(sink)

	ctx := context.Background()
	o.Clear(ctx, "scripts")
	assert.Empty(t, sink.recovered, "clearing a healthy task is silent")

	o.Notify(ctx, transformErr())
	require.Len(t, sink.failed, 1)
	assert.Equal(t, "scripts", sink.failed[0].Task)
	assert.Equal(t, 3, sink.failed[0].Line)
	assert.True(t, o.Collector().HasErrors())
	assert.Contains(t, o.Collector().ErrorOverlay(), "src/js/main.js:3:9")

	o.Clear(ctx, "scripts")
	assert.Equal(t, []string{"scripts"}, sink.recovered)
	assert.False(t, o.Collector().HasErrors())

	detach()
	o.Notify(ctx, transformErr())
	assert.Len(t, sink.failed, 1)
}

func TestMulti(t *testing.T) {
	a, b := NewOverlay(), NewOverlay()
	n := Multi(a, b)

	n.Notify(context.Background(), transformErr())
	assert.True(t, a.Collector().HasTask("scripts"))
	assert.True(t, b.Collector().HasTask("scripts"))

	n.Clear(context.Background(), "scripts")
	assert.False(t, a.Collector().HasErrors())
	assert.False(t, b.Collector().HasErrors())
}
