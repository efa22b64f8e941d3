package transform

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"image/png"

	"github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/fileset"
)

// NewCompressImage re-encodes raster images and minifies SVG. A result is
// kept only when it is smaller than the input; unknown formats pass through.
//
// Options:
//
//	quality  JPEG quality, 1 to 100 (default 85)
//	svg      also minify .svg files (default true)
func NewCompressImage(opts Options) (Transform, error) {
	quality := opts.Int("quality", 85)
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("compress-image: quality must be within 1..100, got %d", quality)
	}
	doSVG := opts.Bool("svg", true)

	return Func{StepName: "compress-image", Fn: func(ctx context.Context, files []*fileset.File) ([]*fileset.File, error) {
		return eachFile(ctx, files, func(f *fileset.File) (*fileset.File, error) {
			var (
				out []byte
				err error
			)
			switch f.Ext() {
			case ".jpg", ".jpeg":
				out, err = recompressJPEG(f.Contents, quality)
			case ".png":
				out, err = recompressPNG(f.Contents)
			case ".svg":
				if !doSVG {
					return f, nil
				}
				out, err = MinifySVG(f.Contents)
			default:
				return f, nil
			}
			if err != nil {
				return nil, errors.NewTransformError("compress-image", err.Error(), nil).WithLocation(f.Path, 0, 0)
			}
			if len(out) >= len(f.Contents) {
				return f, nil
			}
			nf := f.Clone()
			nf.Contents = out
			return nf, nil
		})
	}}, nil
}

func recompressJPEG(src []byte, quality int) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode jpeg: %w", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func recompressPNG(src []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

