package transform

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/fileset"
)

type sourceMap struct {
	Version        int      `json:"version"`
	File           string   `json:"file,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// NewSourcemapsInit marks files so that later steps keep a source map.
func NewSourcemapsInit(_ Options) (Transform, error) {
	return Func{StepName: "sourcemaps-init", Fn: func(ctx context.Context, files []*fileset.File) ([]*fileset.File, error) {
		return eachFile(ctx, files, func(f *fileset.File) (*fileset.File, error) {
			nf := f.Clone()
			nf.TrackMap = true
			return nf, nil
		})
	}}, nil
}

// NewSourcemapsWrite embeds the tracked source map as an inline data URL.
//
// Options:
//
//	source_root  value for the map's sourceRoot field (default "/source/")
func NewSourcemapsWrite(opts Options) (Transform, error) {
	sourceRoot := opts.String("source_root", "/source/")
	return Func{StepName: "sourcemaps-write", Fn: func(ctx context.Context, files []*fileset.File) ([]*fileset.File, error) {
		return eachFile(ctx, files, func(f *fileset.File) (*fileset.File, error) {
			if !f.TrackMap || len(f.SourceMap) == 0 {
				return f, nil
			}
			return writeInlineMap(f, sourceRoot)
		})
	}}, nil
}

func writeInlineMap(f *fileset.File, sourceRoot string) (*fileset.File, error) {
	if v := gjson.GetBytes(f.SourceMap, "version"); v.Int() != 3 {
		return nil, errors.NewTransformError("sourcemaps-write",
			fmt.Sprintf("unsupported source map version %q", v.Raw), nil).WithLocation(f.Path, 0, 0)
	}

	m, err := sjson.SetBytes(f.SourceMap, "file", path.Base(f.Relative))
	if err != nil {
		return nil, errors.NewTransformError("sourcemaps-write", "patch source map", err)
	}
	if m, err = sjson.SetBytes(m, "sourceRoot", sourceRoot); err != nil {
		return nil, errors.NewTransformError("sourcemaps-write", "patch source map", err)
	}

	encoded := base64.StdEncoding.EncodeToString(m)
	url := "data:application/json;charset=utf8;base64," + encoded

	nf := f.Clone()
	nf.Contents = bytes.TrimRight(nf.Contents, "\n")
	if f.Ext() == ".css" {
		nf.Contents = append(nf.Contents, []byte("\n/*# sourceMappingURL="+url+" */\n")...)
	} else {
		nf.Contents = append(nf.Contents, []byte("\n//# sourceMappingURL="+url+"\n")...)
	}
	nf.SourceMap = m
	return nf, nil
}

// concatMap builds the source map of a plain concatenation: every generated
// line maps to column zero of the same line in its original file.
func concatMap(file string, parts []*fileset.File, newline string) ([]byte, error) {
	sm := sourceMap{Version: 3, File: file, Names: []string{}}
	var mappings strings.Builder

	lineBreaks := strings.Count(newline, "\n")
	prevSource, prevLine := 0, 0
	generatedLines := 0

	for idx, part := range parts {
		sm.Sources = append(sm.Sources, part.Path)
		sm.SourcesContent = append(sm.SourcesContent, string(part.Contents))

		lines := strings.Count(string(part.Contents), "\n") + 1
		for line := 0; line < lines; line++ {
			if generatedLines > 0 {
				mappings.WriteByte(';')
			}
			generatedLines++

			// Segment: generated column, source index, original line, original column.
			mappings.WriteString(vlq(0))
			mappings.WriteString(vlq(idx - prevSource))
			mappings.WriteString(vlq(line - prevLine))
			mappings.WriteString(vlq(0))
			prevSource, prevLine = idx, line
		}
		if idx < len(parts)-1 {
			for i := 1; i < lineBreaks; i++ {
				mappings.WriteByte(';')
				generatedLines++
			}
		}
	}

	sm.Mappings = mappings.String()
	return json.Marshal(sm)
}

const base64Digits = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// vlq encodes n as a base64 VLQ value as used by source map mappings.
func vlq(n int) string {
	v := n << 1
	if n < 0 {
		v = (-n << 1) | 1
	}
	var b strings.Builder
	for {
		digit := v & 31
		v >>= 5
		if v > 0 {
			digit |= 32
		}
		b.WriteByte(base64Digits[digit])
		if v == 0 {
			break
		}
	}
	return b.String()
}
