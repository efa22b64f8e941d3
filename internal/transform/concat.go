package transform

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/fileset"
)

type concat struct {
	file    string
	newline string
}

// NewConcat joins every file into one.
//
// Options:
//
//	file     output name, required (e.g. "main.css")
//	newline  separator placed between files (default "\n")
func NewConcat(opts Options) (Transform, error) {
	file := opts.String("file", "")
	if file == "" {
		return nil, fmt.Errorf("concat: option \"file\" is required")
	}
	if path.IsAbs(file) || path.Clean(file) != file || file == ".." || strings.HasPrefix(file, "../") {
		return nil, fmt.Errorf("concat: invalid output name %q", file)
	}
	return &concat{file: file, newline: opts.String("newline", "\n")}, nil
}

func (c *concat) Name() string { return "concat" }

func (c *concat) Apply(ctx context.Context, files []*fileset.File) ([]*fileset.File, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	var sources []string
	trackMap := false
	for i, f := range files {
		if i > 0 {
			buf.WriteString(c.newline)
		}
		buf.Write(f.Contents)
		sources = append(sources, f.Sources...)
		trackMap = trackMap || f.TrackMap
	}

	out := &fileset.File{
		Path:     c.file,
		Relative: c.file,
		Contents: buf.Bytes(),
		Mode:     files[0].Mode,
		Sources:  sources,
		TrackMap: trackMap,
	}

	if trackMap {
		m, err := concatMap(c.file, files, c.newline)
		if err != nil {
			return nil, errors.NewTransformError("concat", "build source map", err)
		}
		out.SourceMap = m
	}

	return []*fileset.File{out}, nil
}
