package transform

import (
	"bytes"
	"context"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/fileset"
)

// Text inside these elements is kept byte for byte.
var rawTextElements = map[string]bool{
	"pre":      true,
	"textarea": true,
	"script":   true,
	"style":    true,
}

// Whitespace next to these elements is significant.
var inlineElements = map[string]bool{
	"a": true, "abbr": true, "b": true, "bdi": true, "bdo": true, "br": true,
	"button": true, "cite": true, "code": true, "data": true, "dfn": true,
	"em": true, "i": true, "img": true, "input": true, "kbd": true,
	"label": true, "mark": true, "q": true, "s": true, "samp": true,
	"select": true, "small": true, "span": true, "strong": true, "sub": true,
	"sup": true, "time": true, "u": true, "var": true, "wbr": true,
}

type htmlItem struct {
	kind html.TokenType
	name string
	raw  string
}

// NewMinifyHTML collapses insignificant whitespace and strips comments.
//
// Options:
//
//	keep_comments  keep ordinary comments (default false); conditional
//	               comments are always kept
func NewMinifyHTML(opts Options) (Transform, error) {
	keepComments := opts.Bool("keep_comments", false)
	return Func{StepName: "minify-html", Fn: func(ctx context.Context, files []*fileset.File) ([]*fileset.File, error) {
		return eachFile(ctx, files, func(f *fileset.File) (*fileset.File, error) {
			out, err := MinifyHTML(f.Contents, keepComments)
			if err != nil {
				return nil, errors.NewTransformError("minify-html", err.Error(), nil).WithLocation(f.Path, 0, 0)
			}
			nf := f.Clone()
			nf.Contents = out
			return nf, nil
		})
	}}, nil
}

// MinifyHTML rewrites an HTML document without changing how it renders.
func MinifyHTML(src []byte, keepComments bool) ([]byte, error) {
	items, err := tokenize(src, keepComments)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(src))
	var raw []string

	for i, it := range items {
		switch it.kind {
		case html.StartTagToken:
			if rawTextElements[it.name] {
				raw = append(raw, it.name)
			}
			buf.WriteString(it.raw)
		case html.EndTagToken:
			if n := len(raw); n > 0 && raw[n-1] == it.name {
				raw = raw[:n-1]
			}
			buf.WriteString(it.raw)
		case html.TextToken:
			if len(raw) > 0 {
				buf.WriteString(it.raw)
				continue
			}
			buf.WriteString(collapseText(it.raw, items, i))
		default:
			buf.WriteString(it.raw)
		}
	}

	return buf.Bytes(), nil
}

// tokenize splits src into items. Dropped comments are removed here so that
// the text around them merges into a single item.
func tokenize(src []byte, keepComments bool) ([]htmlItem, error) {
	z := html.NewTokenizer(bytes.NewReader(src))
	var items []htmlItem
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != io.EOF {
				return nil, err
			}
			return items, nil
		}

		// Raw must be read before Token, which consumes the buffer.
		raw := string(z.Raw())

		switch tt {
		case html.TextToken:
			if n := len(items); n > 0 && items[n-1].kind == html.TextToken {
				items[n-1].raw += raw
				continue
			}
			items = append(items, htmlItem{kind: tt, raw: raw})
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			items = append(items, htmlItem{kind: tt, name: tok.Data, raw: tok.String()})
		case html.CommentToken:
			if keepComments || isConditionalComment(raw) {
				items = append(items, htmlItem{kind: tt, raw: raw})
			}
		default:
			items = append(items, htmlItem{kind: tt, raw: raw})
		}
	}
}

func collapseText(text string, items []htmlItem, i int) string {
	var b strings.Builder
	space := false
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f' {
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	if space {
		b.WriteByte(' ')
	}
	s := b.String()

	if !inlineNeighbour(items, i, -1) {
		s = strings.TrimLeft(s, " ")
	}
	if !inlineNeighbour(items, i, 1) {
		s = strings.TrimRight(s, " ")
	}
	return s
}

// inlineNeighbour reports whether the tag next to items[i] in direction dir
// keeps surrounding whitespace significant.
func inlineNeighbour(items []htmlItem, i, dir int) bool {
	for j := i + dir; j >= 0 && j < len(items); j += dir {
		it := items[j]
		switch it.kind {
		case html.CommentToken:
			return true
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			return inlineElements[it.name]
		case html.TextToken:
			return true
		default:
			return false
		}
	}
	return false
}

func isConditionalComment(raw string) bool {
	return strings.HasPrefix(raw, "<!--[if") || strings.HasPrefix(raw, "<![endif]") ||
		strings.Contains(raw, "<![endif]-->")
}
