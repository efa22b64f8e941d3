package transform

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/fileset"
)

// DefaultBrowsers mirrors the browserslist "defaults" query closely enough
// for prefixing and syntax lowering.
const DefaultBrowsers = "chrome87,edge88,firefox78,safari14,ios14"

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"node":    api.EngineNode,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

var engineRe = regexp.MustCompile(`^([a-z]+)([0-9][0-9.]*)$`)

// ParseEngines turns "chrome58,safari11" into esbuild engine targets.
func ParseEngines(spec string) ([]api.Engine, error) {
	var engines []api.Engine
	for _, part := range strings.Split(spec, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		m := engineRe.FindStringSubmatch(part)
		if m == nil {
			return nil, fmt.Errorf("invalid browser target %q", part)
		}
		name, ok := engineNames[m[1]]
		if !ok {
			return nil, fmt.Errorf("unknown browser %q", m[1])
		}
		engines = append(engines, api.Engine{Name: name, Version: m[2]})
	}
	return engines, nil
}

// ParseTarget maps "es2015" style names onto esbuild's language targets.
func ParseTarget(s string) (api.Target, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "es2015", "es6":
		return api.ES2015, nil
	case "es5":
		return api.ES5, nil
	case "es2016":
		return api.ES2016, nil
	case "es2017":
		return api.ES2017, nil
	case "es2018":
		return api.ES2018, nil
	case "es2019":
		return api.ES2019, nil
	case "es2020":
		return api.ES2020, nil
	case "es2021":
		return api.ES2021, nil
	case "es2022":
		return api.ES2022, nil
	case "esnext":
		return api.ESNext, nil
	default:
		return api.DefaultTarget, fmt.Errorf("unknown language target %q", s)
	}
}

type esbuildTransform struct {
	step   string
	loader api.Loader
	base   api.TransformOptions
}

func (t *esbuildTransform) Name() string { return t.step }

func (t *esbuildTransform) Apply(ctx context.Context, files []*fileset.File) ([]*fileset.File, error) {
	return eachFile(ctx, files, t.transformFile)
}

func (t *esbuildTransform) transformFile(f *fileset.File) (*fileset.File, error) {
	opts := t.base
	opts.Loader = t.loader
	opts.Sourcefile = f.Relative
	opts.LegalComments = api.LegalCommentsNone
	opts.LogLevel = api.LogLevelSilent

	input := string(f.Contents)
	if f.TrackMap {
		opts.Sourcemap = api.SourceMapExternal
		opts.SourcesContent = api.SourcesContentInclude
		if len(f.SourceMap) > 0 {
			input += inlineMapComment(t.loader, f.SourceMap)
		}
	}

	result := api.Transform(input, opts)
	if len(result.Errors) > 0 {
		return nil, messageError(t.step, f, result.Errors)
	}

	nf := f.Clone()
	nf.Contents = result.Code
	if f.TrackMap {
		nf.SourceMap = result.Map
	}
	return nf, nil
}

func inlineMapComment(loader api.Loader, m []byte) string {
	url := "data:application/json;base64," + base64.StdEncoding.EncodeToString(m)
	if loader == api.LoaderCSS {
		return "\n/*# sourceMappingURL=" + url + " */\n"
	}
	return "\n//# sourceMappingURL=" + url + "\n"
}

func messageError(step string, f *fileset.File, msgs []api.Message) error {
	first := msgs[0]
	err := errors.NewTransformError(step, first.Text, nil)
	file := f.Path
	if first.Location != nil {
		if len(f.Sources) == 1 {
			file = f.Sources[0]
		}
		err = err.WithLocation(file, first.Location.Line, first.Location.Column)
	} else {
		err = err.WithLocation(file, 0, 0)
	}
	if len(msgs) > 1 {
		err.Message = fmt.Sprintf("%s (and %d more)", first.Text, len(msgs)-1)
	}
	return err
}

// NewAutoprefix adds vendor-prefixed declarations for the target browsers.
//
// Options:
//
//	browsers  comma separated targets (default DefaultBrowsers)
func NewAutoprefix(opts Options) (Transform, error) {
	engines, err := ParseEngines(opts.String("browsers", DefaultBrowsers))
	if err != nil {
		return nil, fmt.Errorf("autoprefix: %w", err)
	}
	return &esbuildTransform{
		step:   "autoprefix",
		loader: api.LoaderCSS,
		base:   api.TransformOptions{Engines: engines},
	}, nil
}

// NewMinifyCSS removes whitespace and shortens CSS syntax.
//
// Options:
//
//	level  1 strips whitespace only, 2 also rewrites syntax (default 2)
func NewMinifyCSS(opts Options) (Transform, error) {
	level := opts.Int("level", 2)
	if level < 1 || level > 2 {
		return nil, fmt.Errorf("minify-css: level must be 1 or 2, got %d", level)
	}
	return &esbuildTransform{
		step:   "minify-css",
		loader: api.LoaderCSS,
		base: api.TransformOptions{
			MinifyWhitespace: true,
			MinifySyntax:     level >= 2,
		},
	}, nil
}

// NewTranspile lowers modern JavaScript syntax to the configured target.
//
// Options:
//
//	target    language level (default "es2015")
//	browsers  optional comma separated browser targets
func NewTranspile(opts Options) (Transform, error) {
	target, err := ParseTarget(opts.String("target", "es2015"))
	if err != nil {
		return nil, fmt.Errorf("transpile: %w", err)
	}
	var engines []api.Engine
	if b := opts.String("browsers", ""); b != "" {
		if engines, err = ParseEngines(b); err != nil {
			return nil, fmt.Errorf("transpile: %w", err)
		}
	}
	return &esbuildTransform{
		step:   "transpile",
		loader: api.LoaderJS,
		base:   api.TransformOptions{Target: target, Engines: engines},
	}, nil
}

// NewMinifyJS minifies JavaScript.
//
// Options:
//
//	toplevel  also mangle top-level names by wrapping the file in an IIFE
//	          (default false)
func NewMinifyJS(opts Options) (Transform, error) {
	base := api.TransformOptions{
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
	}
	if opts.Bool("toplevel", false) {
		base.Format = api.FormatIIFE
	}
	return &esbuildTransform{
		step:   "minify-js",
		loader: api.LoaderJS,
		base:   base,
	}, nil
}
