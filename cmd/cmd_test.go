package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/testutils"
)

// setupProject writes a small source tree and points the configuration at it.
func setupProject(t *testing.T) string {
	t.Helper()
	root := testutils.CreateTempProject(t, map[string]string{
		"src/styles/main.css": "a {\n  color: red;\n}\n",
		"src/index.html":      "<html><body>  <p>hi</p>  </body></html>",
		"src/js/main.js":      "console.log('hi');\n",
	})

	viper.Reset()
	viper.Set("paths.root", root)
	viper.Set("server.open", false)
	viper.Set("log.level", "error")
	configReadErr = nil
	t.Cleanup(func() {
		viper.Reset()
		globals.once = false
		listFormat = "table"
		versionFormat, versionShort, versionDetailed = "text", false, false
	})
	return root
}

func testCommand() (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	return cmd, &out
}

func TestBuildCommandOnce(t *testing.T) {
	root := setupProject(t)
	globals.once = true

	cmd, _ := testCommand()
	require.NoError(t, runBuild(cmd, nil))

	css, err := os.ReadFile(filepath.Join(root, "dist", "main.css"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(css), "a{color:red}"))
	assert.FileExists(t, filepath.Join(root, "dist", "app.js"))
	assert.FileExists(t, filepath.Join(root, "dist", "index.html"))
}

func TestDevCommandOnce(t *testing.T) {
	root := setupProject(t)
	globals.once = true

	cmd, _ := testCommand()
	require.NoError(t, runDev(cmd, nil))

	css, err := os.ReadFile(filepath.Join(root, "dist", "main.css"))
	require.NoError(t, err)
	assert.NotContains(t, string(css), "sourceMappingURL")
}

func TestRunCommandUnknownEntryPoint(t *testing.T) {
	setupProject(t)
	globals.once = true

	cmd, _ := testCommand()
	err := runEntryPointCommand(cmd, []string{"release"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown entry point "release"`)
}

func TestTaskCommand(t *testing.T) {
	root := setupProject(t)

	cmd, out := testCommand()
	require.NoError(t, runTaskCommand(cmd, []string{"htmlMinify"}))
	assert.Equal(t, "dist/index.html\n", out.String())

	html, err := os.ReadFile(filepath.Join(root, "dist", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<html><body><p>hi</p></body></html>", string(html))

	err = runTaskCommand(cmd, []string{"lint"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown task "lint"`)
}

func TestTaskCommandNoMatchSuggestions(t *testing.T) {
	root := setupProject(t)
	require.NoError(t, os.Remove(filepath.Join(root, "src", "styles", "main.css")))

	cmd, _ := testCommand()
	err := runTaskCommand(cmd, []string{"styles"})
	require.Error(t, err)
	assert.True(t, errors.IsNoMatch(err))

	var enhanced *errors.EnhancedError
	require.ErrorAs(t, err, &enhanced)
	assert.Contains(t, err.Error(), "Suggestions:")
	assert.Contains(t, err.Error(), "allow_empty")
}

func TestInvalidPipelineIsReported(t *testing.T) {
	setupProject(t)
	viper.Set("tasks", []map[string]interface{}{
		{"name": "styles", "inputs": []string{"src/**/*.css"}, "dest": "dist",
			"steps": []map[string]interface{}{{"use": "uglify"}}},
	})
	viper.Set("entry_points", []map[string]interface{}{{"name": "default", "tasks": []string{"styles"}}})
	viper.Set("watch.bindings", []map[string]interface{}{{"pattern": "src/**/*.css", "task": "styles"}})

	cmd, out := testCommand()
	err := runBuild(cmd, nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
	assert.Contains(t, err.Error(), "uglify")

	err = runConfigValidate(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, out.String(), "tasks.styles.steps[0].use")
}

func TestInterruptedRunFails(t *testing.T) {
	setupProject(t)
	a, err := newApp(true)
	require.NoError(t, err)
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = a.finish(ctx, "default", context.Canceled)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "default interrupted")

	err = a.finish(context.Background(), "styles", errors.NewNoMatchError([]string{"src/styles/**/*.css"}).WithTask("styles"))
	var enhanced *errors.EnhancedError
	assert.ErrorAs(t, err, &enhanced)
}

func TestListCommand(t *testing.T) {
	setupProject(t)

	cmd, out := testCommand()
	require.NoError(t, runList(cmd, nil))
	table := out.String()
	assert.Contains(t, table, "Tasks")
	assert.Contains(t, table, "Entry Points")
	assert.Contains(t, table, "Watch Bindings")
	assert.Contains(t, table, "sourcemaps-init > concat > autoprefix > minify-css > sourcemaps-write")
	assert.Contains(t, table, "clean > htmlMinify > scriptsDev > stylesDev > images > svgSprites > serve")

	listFormat = "json"
	out.Reset()
	require.NoError(t, runList(cmd, nil))
	var listing pipelineListing
	require.NoError(t, json.Unmarshal(out.Bytes(), &listing))
	require.Len(t, listing.Tasks, 10)
	assert.Equal(t, "clean", listing.Tasks[0].Name)
	assert.Equal(t, config.KindClean, listing.Tasks[0].Kind)
	assert.Equal(t, "notify", listing.Tasks[6].OnError)
	assert.Equal(t, "fatal", listing.Tasks[2].OnError)

	listFormat = "yaml"
	out.Reset()
	require.NoError(t, runList(cmd, nil))
	assert.Contains(t, out.String(), "entry_points:")
}

func TestConfigShowCommand(t *testing.T) {
	root := setupProject(t)
	viper.Set("server.port", 4321)

	cmd, out := testCommand()
	require.NoError(t, runConfigShow(cmd, nil))

	var shown config.Config
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &shown))
	assert.Equal(t, 4321, shown.Server.Port)
	assert.Equal(t, root, shown.Paths.Root)
	assert.Len(t, shown.Tasks, 10)
	assert.Equal(t, "stylesDev", shown.Tasks[3].Name)

	out.Reset()
	require.NoError(t, runConfigValidate(cmd, nil))
	assert.Contains(t, out.String(), "Configuration is valid")
}

func TestBrokenConfigFile(t *testing.T) {
	setupProject(t)
	configReadErr = assert.AnError

	cmd, _ := testCommand()
	err := runList(cmd, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "Failed to read configuration")
}

func TestVersionCommand(t *testing.T) {
	setupProject(t)
	cmd, out := testCommand()

	require.NoError(t, runVersionCommand(cmd, nil))
	assert.True(t, strings.HasPrefix(out.String(), "assetpipe "))

	versionFormat = "json"
	out.Reset()
	require.NoError(t, runVersionCommand(cmd, nil))
	var info map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "go_version")

	versionFormat = "xml"
	assert.Error(t, runVersionCommand(cmd, nil))
}

func TestFlagValidation(t *testing.T) {
	saved := globals
	t.Cleanup(func() { globals = saved })

	cmd := &cobra.Command{Use: "probe"}
	addGlobalFlags(cmd)
	flags := cmd.PersistentFlags()

	assert.NoError(t, flags.Set("log-level", "debug"))
	assert.Error(t, flags.Set("log-level", "loud"))
	assert.NoError(t, flags.Set("log-format", "json"))
	assert.Error(t, flags.Set("log-format", "xml"))
	assert.NoError(t, flags.Set("port", "8080"))
	assert.Error(t, flags.Set("port", "70000"))
	assert.Equal(t, 8080, globals.Port)
}
