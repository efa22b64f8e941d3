package transform

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/fileset"
)

// Editor namespaces that carry nothing a browser renders.
var editorPrefixes = map[string]bool{
	"sodipodi": true,
	"inkscape": true,
	"sketch":   true,
}

const svgNamespace = "http://www.w3.org/2000/svg"

// NewMinifySVG strips comments, editor metadata and formatting whitespace
// from SVG documents.
func NewMinifySVG(_ Options) (Transform, error) {
	return Func{StepName: "minify-svg", Fn: func(ctx context.Context, files []*fileset.File) ([]*fileset.File, error) {
		return eachFile(ctx, files, func(f *fileset.File) (*fileset.File, error) {
			out, err := MinifySVG(f.Contents)
			if err != nil {
				return nil, svgError("minify-svg", f, err)
			}
			nf := f.Clone()
			nf.Contents = out
			return nf, nil
		})
	}}, nil
}

func svgError(step string, f *fileset.File, err error) error {
	if syntax, ok := err.(*xml.SyntaxError); ok {
		return errors.NewTransformError(step, syntax.Msg, nil).WithLocation(f.Path, syntax.Line, 0)
	}
	return errors.NewTransformError(step, err.Error(), nil).WithLocation(f.Path, 0, 0)
}

type svgWriter struct {
	buf     bytes.Buffer
	pending *xml.StartElement
}

func (w *svgWriter) flush() {
	if w.pending == nil {
		return
	}
	w.openTag(*w.pending, false)
	w.pending = nil
}

func (w *svgWriter) openTag(se xml.StartElement, selfClose bool) {
	w.buf.WriteByte('<')
	w.buf.WriteString(qualified(se.Name))
	for _, a := range se.Attr {
		w.buf.WriteByte(' ')
		w.buf.WriteString(qualified(a.Name))
		w.buf.WriteString(`="`)
		w.buf.WriteString(escapeAttr(a.Value))
		w.buf.WriteByte('"')
	}
	if selfClose {
		w.buf.WriteByte('/')
	}
	w.buf.WriteByte('>')
}

func (w *svgWriter) start(se xml.StartElement) {
	w.flush()
	c := se.Copy()
	w.pending = &c
}

func (w *svgWriter) end(ee xml.EndElement) {
	if w.pending != nil {
		w.openTag(*w.pending, true)
		w.pending = nil
		return
	}
	w.buf.WriteString("</")
	w.buf.WriteString(qualified(ee.Name))
	w.buf.WriteByte('>')
}

func (w *svgWriter) text(data []byte) {
	w.flush()
	_ = xml.EscapeText(&w.buf, data)
}

func qualified(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

var attrEscaper = strings.NewReplacer(`&`, "&amp;", `<`, "&lt;", `"`, "&quot;", "\n", "&#xA;", "\t", "&#x9;")

func escapeAttr(s string) string {
	return attrEscaper.Replace(s)
}

func editorName(n xml.Name) bool {
	if editorPrefixes[n.Space] {
		return true
	}
	return n.Space == "xmlns" && editorPrefixes[n.Local]
}

// MinifySVG rewrites an SVG document in its most compact equivalent form.
// Namespace prefixes are kept as written.
func MinifySVG(src []byte) ([]byte, error) {
	d := xml.NewDecoder(bytes.NewReader(src))
	d.Entity = xml.HTMLEntity

	var w svgWriter
	var open []xml.Name
	skip := 0

	for {
		tok, err := d.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			open = append(open, t.Name)
			if skip > 0 || t.Name.Local == "metadata" || editorName(t.Name) {
				skip++
				continue
			}
			attrs := t.Attr[:0:0]
			for _, a := range t.Attr {
				if !editorName(a.Name) {
					attrs = append(attrs, a)
				}
			}
			t.Attr = attrs
			w.start(t)
		case xml.EndElement:
			// RawToken leaves tag matching to the caller.
			if len(open) == 0 || open[len(open)-1] != t.Name {
				line, _ := d.InputPos()
				return nil, &xml.SyntaxError{Msg: "unexpected end element </" + qualified(t.Name) + ">", Line: line}
			}
			open = open[:len(open)-1]
			if skip > 0 {
				skip--
				continue
			}
			w.end(t)
		case xml.CharData:
			if skip > 0 || len(bytes.TrimSpace(t)) == 0 {
				continue
			}
			w.text(t)
		}
		// Comments, processing instructions and directives are dropped.
	}

	if len(open) > 0 {
		line, _ := d.InputPos()
		return nil, &xml.SyntaxError{Msg: "unclosed element <" + qualified(open[len(open)-1]) + ">", Line: line}
	}

	w.flush()
	return w.buf.Bytes(), nil
}

type spriteSymbol struct {
	id      string
	viewBox string
	xmlns   []xml.Attr
	inner   []byte
}

// NewSVGSprite merges SVG files into a single stack sprite: every input
// becomes a nested <svg> addressable as sprite.svg#name and only the
// :target one is displayed.
//
// Options:
//
//	dir     directory the sprite name is relative to (default "stack")
//	sprite  sprite file name (default "../sprite.svg")
func NewSVGSprite(opts Options) (Transform, error) {
	name := path.Clean(path.Join(opts.String("dir", "stack"), opts.String("sprite", "../sprite.svg")))
	if name == "." || path.IsAbs(name) || strings.HasPrefix(name, "../") || name == ".." {
		return nil, fmt.Errorf("svg-sprite: sprite path %q leaves the destination", name)
	}

	return Func{StepName: "svg-sprite", Fn: func(ctx context.Context, files []*fileset.File) ([]*fileset.File, error) {
		if len(files) == 0 {
			return nil, nil
		}

		symbols := make([]spriteSymbol, 0, len(files))
		seen := make(map[string]string, len(files))
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			sym, err := parseSymbol(f)
			if err != nil {
				return nil, svgError("svg-sprite", f, err)
			}
			if prev, ok := seen[sym.id]; ok {
				return nil, errors.NewTransformError("svg-sprite",
					fmt.Sprintf("duplicate sprite id %q (also defined by %s)", sym.id, prev), nil).WithLocation(f.Path, 0, 0)
			}
			seen[sym.id] = f.Path
			symbols = append(symbols, sym)
		}

		sort.Slice(symbols, func(i, j int) bool { return symbols[i].id < symbols[j].id })

		var sources []string
		for _, f := range files {
			sources = append(sources, f.Sources...)
		}

		return []*fileset.File{{
			Path:     name,
			Relative: name,
			Contents: renderSprite(symbols),
			Mode:     files[0].Mode,
			Sources:  sources,
		}}, nil
	}}, nil
}

func parseSymbol(f *fileset.File) (spriteSymbol, error) {
	minified, err := MinifySVG(f.Contents)
	if err != nil {
		return spriteSymbol{}, err
	}

	sym := spriteSymbol{id: strings.TrimSuffix(path.Base(f.Relative), path.Ext(f.Relative))}

	d := xml.NewDecoder(bytes.NewReader(minified))
	d.Entity = xml.HTMLEntity

	depth := 0
	var innerStart int64
	var width, height string
	for {
		before := d.InputOffset()
		tok, err := d.RawToken()
		if err == io.EOF {
			return spriteSymbol{}, fmt.Errorf("no root <svg> element")
		}
		if err != nil {
			return spriteSymbol{}, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				if t.Name.Local != "svg" {
					return spriteSymbol{}, fmt.Errorf("root element is <%s>, want <svg>", t.Name.Local)
				}
				for _, a := range t.Attr {
					switch {
					case a.Name.Space == "" && a.Name.Local == "viewBox":
						sym.viewBox = a.Value
					case a.Name.Space == "" && a.Name.Local == "width":
						width = a.Value
					case a.Name.Space == "" && a.Name.Local == "height":
						height = a.Value
					case a.Name.Space == "xmlns":
						sym.xmlns = append(sym.xmlns, a)
					}
				}
				innerStart = d.InputOffset()
			}
			depth++
		case xml.EndElement:
			depth--
			if depth == 0 {
				if innerStart <= before {
					sym.inner = append([]byte(nil), minified[innerStart:before]...)
				}
				if sym.viewBox == "" {
					sym.viewBox = viewBoxFromSize(width, height)
				}
				return sym, nil
			}
		}
	}
}

func viewBoxFromSize(width, height string) string {
	w, errW := strconv.ParseFloat(strings.TrimSuffix(width, "px"), 64)
	h, errH := strconv.ParseFloat(strings.TrimSuffix(height, "px"), 64)
	if errW != nil || errH != nil {
		return ""
	}
	return "0 0 " + strconv.FormatFloat(w, 'f', -1, 64) + " " + strconv.FormatFloat(h, 'f', -1, 64)
}

func renderSprite(symbols []spriteSymbol) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	buf.WriteString(`<svg xmlns="` + svgNamespace + `"`)

	// Hoist prefixed namespace declarations to the root, first one wins.
	declared := make(map[string]bool)
	var hoisted []xml.Attr
	for _, s := range symbols {
		for _, a := range s.xmlns {
			if !declared[a.Name.Local] {
				declared[a.Name.Local] = true
				hoisted = append(hoisted, a)
			}
		}
	}
	sort.Slice(hoisted, func(i, j int) bool { return hoisted[i].Name.Local < hoisted[j].Name.Local })
	for _, a := range hoisted {
		buf.WriteString(` xmlns:` + a.Name.Local + `="` + escapeAttr(a.Value) + `"`)
	}
	buf.WriteString(`><style>:root>svg{display:none}:root>svg:target{display:block}</style>`)

	for _, s := range symbols {
		buf.WriteString(`<svg id="` + escapeAttr(s.id) + `"`)
		if s.viewBox != "" {
			buf.WriteString(` viewBox="` + escapeAttr(s.viewBox) + `"`)
		}
		if len(s.inner) == 0 {
			buf.WriteString(`/>`)
			continue
		}
		buf.WriteByte('>')
		buf.Write(s.inner)
		buf.WriteString(`</svg>`)
	}

	buf.WriteString(`</svg>`)
	return buf.Bytes()
}
