package fileset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
}

func TestBase(t *testing.T) {
	testCases := []struct {
		pattern  string
		expected string
	}{
		{"src/styles/**/*.css", "src/styles"},
		{"src/**/*.html", "src"},
		{"src/resources/**/", "src/resources"},
		{"src/js/main.js", "src/js"},
		{"src/images/*.svg", "src/images"},
		{"**/*.js", "."},
		{"./src/images/**/*.{jpg,png}", "src/images"},
		{"!src/js/vendor/**", "src/js/vendor"},
	}

	for _, tc := range testCases {
		t.Run(tc.pattern, func(t *testing.T) {
			assert.Equal(t, tc.expected, Base(tc.pattern))
		})
	}
}

func TestCompile(t *testing.T) {
	testCases := []struct {
		pattern string
		path    string
		match   bool
	}{
		{"src/styles/**/*.css", "src/styles/main.css", true},
		{"src/styles/**/*.css", "src/styles/blocks/header.css", true},
		{"src/styles/**/*.css", "src/styles/blocks/header.scss", false},
		{"src/images/*.svg", "src/images/logo.svg", true},
		{"src/images/*.svg", "src/images/svg/icon.svg", false},
		{"src/images/**/*.{jpg,jpeg,png}", "src/images/a/b/photo.jpeg", true},
		{"src/images/**/*.{jpg,jpeg,png}", "src/images/icon.svg", false},
		{"src/resources/**", "src/resources/fonts/a.woff2", true},
		{"**/*.html", "index.html", true},
		{"src/js/main.js", "src/js/main.js", true},
		{"src/js/main.js", "src/js/other.js", false},
		{"src/**/*.html", "src/index.html", true},
		{"src/**/*.html", "src/pages/a.html", true},
		{"src/**/*.html", "src/pages/deep/a.html", true},
		{"src/**/*.html", "index.html", false},
		{"src/images/**/*.{jpg,jpeg,png}", "src/images/a.png", true},
		{"src/images/svg/**/*.svg", "src/images/svg/icon.svg", true},
		{"src/{js,lib}/**/*.js", "src/lib/a/b.js", true},
		{"src/{js,lib}/**/*.js", "src/vendor/a.js", false},
		{"src/**/x/**/*.js", "src/x/a.js", true},
		{"src/**/x/**/*.js", "src/a/x/b/c.js", true},
	}

	for _, tc := range testCases {
		t.Run(tc.pattern+"|"+tc.path, func(t *testing.T) {
			g, err := Compile(tc.pattern)
			require.NoError(t, err)
			assert.Equal(t, tc.match, g.Match(tc.path))
		})
	}
}

func TestCompileInvalid(t *testing.T) {
	_, err := Compile("src/[a-")
	assert.Error(t, err)
	_, err = Compile("src/{a,b")
	assert.Error(t, err)
}

func TestMatcherExclusion(t *testing.T) {
	m, err := NewMatcher("src/js/**/*.js", "!src/js/vendor/**")
	require.NoError(t, err)

	assert.True(t, m.Match("src/js/main.js"))
	assert.True(t, m.Match("./src/js/components/menu.js"))
	assert.False(t, m.Match("src/js/vendor/jquery.js"))
	assert.False(t, m.Match("src/styles/main.css"))
}

func TestResolveOrderAndBase(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/js/main.js":              "main()",
		"src/js/components/b.js":      "b()",
		"src/js/components/a.js":      "a()",
		"src/js/components/deep/c.js": "c()",
	})

	files, err := Resolve(root, []string{"src/js/components/**/*.js", "src/js/main.js"})
	require.NoError(t, err)

	var paths, relatives []string
	for _, f := range files {
		paths = append(paths, f.Path)
		relatives = append(relatives, f.Relative)
	}

	assert.Equal(t, []string{
		"src/js/components/a.js",
		"src/js/components/b.js",
		"src/js/components/deep/c.js",
		"src/js/main.js",
	}, paths)
	assert.Equal(t, []string{"a.js", "b.js", "deep/c.js", "main.js"}, relatives)
	assert.Equal(t, []byte("a()"), files[0].Contents)
	assert.Equal(t, []string{"src/js/components/a.js"}, files[0].Sources)
}

func TestResolveDeduplicatesAndExcludes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/index.html":        "<p>i</p>",
		"src/about/index.html":  "<p>a</p>",
		"src/drafts/wip.html":   "<p>w</p>",
		"src/styles/unused.css": "a{}",
	})

	files, err := Resolve(root, []string{"src/**/*.html", "src/index.html", "!src/drafts/**"})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "about/index.html", files[0].Relative)
	assert.Equal(t, "index.html", files[1].Relative)
}

func TestResolveEachReportsUnmatchedPatterns(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/js/components/a.js": "a()",
		"src/js/vendor/v.js":     "v()",
	})

	files, unmatched, err := ResolveEach(root, []string{
		"src/js/components/**/*.js",
		"src/js/main.js",
		"src/js/**/*.js",
		"src/js/vendor/*.js",
		"!src/js/vendor/**",
	})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "src/js/components/a.js", files[0].Path)
	assert.Equal(t, []string{"src/js/main.js", "src/js/vendor/*.js"}, unmatched)
}

func TestResolveMissingBase(t *testing.T) {
	files, err := Resolve(t.TempDir(), []string{"src/resources/**"})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestFileClone(t *testing.T) {
	f := &File{Path: "a.css", Relative: "a.css", Contents: []byte("a{}"), Sources: []string{"a.css"}}
	c := f.Clone()
	c.Contents[0] = 'b'
	c.Sources[0] = "b.css"

	assert.Equal(t, "a{}", string(f.Contents))
	assert.Equal(t, "a.css", f.Sources[0])
	assert.Equal(t, ".css", c.Ext())
}
