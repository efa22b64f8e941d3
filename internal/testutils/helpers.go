// Package testutils holds fixtures shared by the package tests: a small
// project tree and a configuration pointing at it.
package testutils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/assetpipe/internal/config"
)

// SampleSources is a minimal project covering styles, scripts and HTML.
var SampleSources = map[string]string{
	"src/styles/main.css": "a {\n  color: red;\n}\n",
	"src/index.html":      "<div>  </div>",
	"src/js/main.js":      "const answer = 6 * 7;\nconsole.log(answer);\n",
}

// CreateTempProject writes files, keyed by slash separated paths, into a
// fresh temporary directory and returns it.
func CreateTempProject(t testing.TB, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		WriteFile(t, root, rel, content)
	}
	return root
}

// WriteFile creates or replaces root/rel, creating parent directories.
func WriteFile(t testing.TB, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

// ReadFile returns the contents of root/rel.
func ReadFile(t testing.TB, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

// CreateTestConfig returns the built-in pipeline rooted at projectDir, with
// a server on a free loopback port that never opens a browser.
func CreateTestConfig(projectDir string) *config.Config {
	p := config.PathsConfig{Root: projectDir, Src: "src", Dist: "dist"}
	return &config.Config{
		Server: config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Paths:  p,
		Watch: config.WatchConfig{
			Debounce: 50 * time.Millisecond,
			Ignore:   []string{".git", "node_modules"},
			Bindings: config.DefaultBindings(p),
		},
		Tasks:       config.DefaultTasks(p),
		EntryPoints: config.DefaultEntryPoints(),
		Log:         config.LogConfig{Level: "info", Format: "text"},
	}
}

// SnapshotDir maps every file under dir, by slash separated relative path,
// to its contents.
func SnapshotDir(t testing.TB, dir string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		out[filepath.ToSlash(rel)] = string(data)
		return err
	})
	require.NoError(t, err)
	return out
}

// WaitForFileChange waits for a file to be modified (useful for testing file watchers)
func WaitForFileChange(t testing.TB, filePath string, originalModTime time.Time, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		info, err := os.Stat(filePath)
		if err == nil && info.ModTime().After(originalModTime) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("File %s was not modified within %v", filePath, timeout)
}
