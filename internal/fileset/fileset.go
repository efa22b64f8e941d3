// Package fileset resolves ordered glob patterns into in-memory files.
//
// Patterns are slash-separated and relative to a project root. `*` and `?`
// never cross a directory separator, `**` does, `{a,b}` selects
// alternatives, and a leading `!` excludes matches of earlier patterns.
// Every file remembers the static prefix of the pattern that selected it
// (its base) so that writers can reproduce the directory layout below it.
package fileset

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// File is one unit of content flowing through a task.
type File struct {
	// Path is the slash-separated source path relative to the project root.
	Path string
	// Relative is the destination path relative to the task's output directory.
	Relative string
	Contents []byte
	Mode     fs.FileMode
	// SourceMap holds a version 3 source map for Contents, if one is tracked.
	SourceMap []byte
	// Sources lists the original inputs that contributed to Contents.
	Sources []string
	// TrackMap asks source-map aware transforms to maintain SourceMap.
	TrackMap bool
}

// Clone returns a deep copy of f.
func (f *File) Clone() *File {
	c := *f
	c.Contents = append([]byte(nil), f.Contents...)
	if f.SourceMap != nil {
		c.SourceMap = append([]byte(nil), f.SourceMap...)
	}
	c.Sources = append([]string(nil), f.Sources...)
	return &c
}

// Ext returns the lower-cased extension of the destination path.
func (f *File) Ext() string {
	return strings.ToLower(path.Ext(f.Relative))
}

const metaChars = "*?[{"

// HasMagic reports whether pattern contains glob metacharacters.
func HasMagic(pattern string) bool {
	return strings.ContainsAny(pattern, metaChars)
}

// Base returns the static directory prefix of pattern. For a pattern without
// metacharacters it is the directory containing the named file.
func Base(pattern string) string {
	pattern = normalize(strings.TrimPrefix(pattern, "!"))
	if !HasMagic(pattern) {
		dir := path.Dir(pattern)
		return dir
	}

	segments := strings.Split(pattern, "/")
	var static []string
	for _, seg := range segments {
		if HasMagic(seg) {
			break
		}
		static = append(static, seg)
	}
	if len(static) == 0 {
		return "."
	}
	return path.Clean(strings.Join(static, "/"))
}

// Pattern is a compiled glob. `**/` also matches zero directories, so a
// pattern is held as the set of its expansions and matches when any does.
type Pattern struct {
	source string
	globs  []glob.Glob
}

// Compile compiles pattern.
func Compile(pattern string) (*Pattern, error) {
	p := normalize(pattern)
	alternatives, err := expandBraces(p)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	compiled := &Pattern{source: pattern}
	seen := make(map[string]bool)
	for _, alt := range alternatives {
		for _, e := range expandGlobstars(alt) {
			if seen[e] {
				continue
			}
			seen[e] = true
			g, err := glob.Compile(e, '/')
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
			}
			compiled.globs = append(compiled.globs, g)
		}
	}
	return compiled, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(pattern string) *Pattern {
	g, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return g
}

// Match reports whether the slash-separated path rel matches.
func (p *Pattern) Match(rel string) bool {
	for _, g := range p.globs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// String returns the pattern as written.
func (p *Pattern) String() string { return p.source }

// expandBraces rewrites `{a,b}` groups into separate patterns.
func expandBraces(p string) ([]string, error) {
	open := -1
	for i := 0; i < len(p); i++ {
		if p[i] == '\\' {
			i++
			continue
		}
		if p[i] == '{' {
			open = i
			break
		}
	}
	if open < 0 {
		return []string{p}, nil
	}

	depth := 0
	start := open + 1
	var parts []string
	for i := open; i < len(p); i++ {
		switch p[i] {
		case '\\':
			i++
		case '{':
			depth++
		case ',':
			if depth == 1 {
				parts = append(parts, p[start:i])
				start = i + 1
			}
		case '}':
			depth--
			if depth == 0 {
				parts = append(parts, p[start:i])
				var out []string
				for _, part := range parts {
					expanded, err := expandBraces(p[:open] + part + p[i+1:])
					if err != nil {
						return nil, err
					}
					out = append(out, expanded...)
				}
				return out, nil
			}
		}
	}
	return nil, fmt.Errorf("unterminated brace group")
}

// expandGlobstars returns p with every `**/` segment either kept or removed.
func expandGlobstars(p string) []string {
	segments := strings.Split(p, "/")
	out := []string{""}
	for i, seg := range segments {
		last := i == len(segments)-1
		var next []string
		for _, prefix := range out {
			joined := seg
			if !last {
				joined += "/"
			}
			next = append(next, prefix+joined)
			if seg == "**" && !last {
				next = append(next, prefix)
			}
		}
		out = next
	}
	return out
}

func normalize(pattern string) string {
	p := filepath.ToSlash(strings.TrimSpace(pattern))
	p = strings.TrimPrefix(p, "./")
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// Matcher tests slash-separated root-relative paths against a pattern list.
type Matcher struct {
	include []*Pattern
	exclude []*Pattern
}

// NewMatcher compiles patterns; entries starting with "!" exclude.
func NewMatcher(patterns ...string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range patterns {
		negated := strings.HasPrefix(p, "!")
		g, err := Compile(strings.TrimPrefix(p, "!"))
		if err != nil {
			return nil, err
		}
		if negated {
			m.exclude = append(m.exclude, g)
		} else {
			m.include = append(m.include, g)
		}
	}
	return m, nil
}

// Match reports whether rel is selected by the pattern list.
func (m *Matcher) Match(rel string) bool {
	rel = normalize(rel)
	for _, g := range m.exclude {
		if g.Match(rel) {
			return false
		}
	}
	for _, g := range m.include {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// Resolve reads every file under root matched by patterns. Files come back in
// pattern order, lexical within a pattern, each path at most once.
func Resolve(root string, patterns []string) ([]*File, error) {
	files, _, err := ResolveEach(root, patterns)
	return files, err
}

// ResolveEach is Resolve that also reports the include patterns that
// selected no file. A file already taken by an earlier pattern still counts
// as a match for the later one.
func ResolveEach(root string, patterns []string) ([]*File, []string, error) {
	var excludes []*Pattern
	for _, p := range patterns {
		if strings.HasPrefix(p, "!") {
			g, err := Compile(strings.TrimPrefix(p, "!"))
			if err != nil {
				return nil, nil, err
			}
			excludes = append(excludes, g)
		}
	}

	seen := make(map[string]bool)
	var files []*File
	var unmatched []string

	for _, pattern := range patterns {
		if strings.HasPrefix(pattern, "!") {
			continue
		}
		g, err := Compile(pattern)
		if err != nil {
			return nil, nil, err
		}
		base := Base(pattern)

		matches, err := walk(root, base, g)
		if err != nil {
			return nil, nil, err
		}

		matched := false
		for _, rel := range matches {
			if excluded(excludes, rel) {
				continue
			}
			matched = true
			if seen[rel] {
				continue
			}
			seen[rel] = true

			abs := filepath.Join(root, filepath.FromSlash(rel))
			info, err := os.Stat(abs)
			if err != nil {
				return nil, nil, fmt.Errorf("stat %s: %w", rel, err)
			}
			data, err := os.ReadFile(abs)
			if err != nil {
				return nil, nil, fmt.Errorf("read %s: %w", rel, err)
			}

			relative := rel
			if base != "." {
				relative = strings.TrimPrefix(rel, base+"/")
			}

			files = append(files, &File{
				Path:     rel,
				Relative: relative,
				Contents: data,
				Mode:     info.Mode().Perm(),
				Sources:  []string{rel},
			})
		}
		if !matched {
			unmatched = append(unmatched, pattern)
		}
	}

	return files, unmatched, nil
}

func excluded(excludes []*Pattern, rel string) bool {
	for _, g := range excludes {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

func walk(root, base string, g *Pattern) ([]string, error) {
	start := filepath.Join(root, filepath.FromSlash(base))
	if _, err := os.Stat(start); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var matches []string
	err := filepath.WalkDir(start, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if g.Match(rel) {
			matches = append(matches, rel)
		}
		return nil
	})
	return matches, err
}
