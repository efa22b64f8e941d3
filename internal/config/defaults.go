package config

import "path"

// Names of the built-in entry points.
const (
	DefaultEntryPoint     = "default"
	DevelopmentEntryPoint = "development"
)

// DefaultTasks returns the built-in task set for the given layout.
func DefaultTasks(p PathsConfig) []TaskConfig {
	src := func(pattern string) string { return path.Join(p.Src, pattern) }
	images := path.Join(p.Dist, "images")

	scriptInputs := []string{src("js/components/**/*.js"), src("js/main.js")}
	styleInputs := []string{src("styles/**/*.css")}

	return []TaskConfig{
		{Name: "clean", Kind: KindClean, Dest: p.Dist},
		{
			Name:       "resources",
			Inputs:     []string{src("resources/**")},
			Dest:       p.Dist,
			Reload:     true,
			AllowEmpty: true,
		},
		{
			Name:   "styles",
			Inputs: styleInputs,
			Steps: []StepConfig{
				{Use: "sourcemaps-init"},
				{Use: "concat", Options: map[string]interface{}{"file": "main.css"}},
				{Use: "autoprefix"},
				{Use: "minify-css", Options: map[string]interface{}{"level": 2}},
				{Use: "sourcemaps-write"},
			},
			Dest:   p.Dist,
			Reload: true,
		},
		{
			Name:   "stylesDev",
			Inputs: styleInputs,
			Steps: []StepConfig{
				{Use: "concat", Options: map[string]interface{}{"file": "main.css"}},
				{Use: "autoprefix"},
				{Use: "minify-css", Options: map[string]interface{}{"level": 2}},
			},
			Dest:   p.Dist,
			Reload: true,
		},
		{
			Name:   "htmlMinify",
			Inputs: []string{src("**/*.html")},
			Steps:  []StepConfig{{Use: "minify-html"}},
			Dest:   p.Dist,
			Reload: true,
		},
		{
			Name:   "scripts",
			Inputs: scriptInputs,
			Steps: []StepConfig{
				{Use: "sourcemaps-init"},
				{Use: "transpile", Options: map[string]interface{}{"target": "es2015"}},
				{Use: "concat", Options: map[string]interface{}{"file": "app.js"}},
				{Use: "minify-js", Options: map[string]interface{}{"toplevel": true}},
				{Use: "sourcemaps-write"},
			},
			Dest:       p.Dist,
			Reload:     true,
			AllowEmpty: true,
			OnError:    "fatal",
		},
		{
			Name:   "scriptsDev",
			Inputs: scriptInputs,
			Steps: []StepConfig{
				{Use: "transpile", Options: map[string]interface{}{"target": "es2015"}},
				{Use: "concat", Options: map[string]interface{}{"file": "app.js"}},
			},
			Dest:       p.Dist,
			Reload:     true,
			AllowEmpty: true,
			OnError:    "notify",
		},
		{
			Name: "images",
			Inputs: []string{
				src("images/**/*.jpg"),
				src("images/**/*.jpeg"),
				src("images/**/*.png"),
				src("images/*.svg"),
			},
			Steps:      []StepConfig{{Use: "compress-image"}},
			Dest:       images,
			Reload:     true,
			AllowEmpty: true,
		},
		{
			Name:       "svgSprites",
			Inputs:     []string{src("images/svg/**/*.svg")},
			Steps:      []StepConfig{{Use: "svg-sprite", Options: map[string]interface{}{"sprite": "../sprite.svg"}}},
			Dest:       images,
			Reload:     true,
			AllowEmpty: true,
		},
		{Name: "serve", Kind: KindServe},
	}
}

// DefaultEntryPoints returns the built-in entry points.
func DefaultEntryPoints() []EntryPointConfig {
	return []EntryPointConfig{
		{
			Name:  DefaultEntryPoint,
			Tasks: []string{"clean", "resources", "htmlMinify", "scripts", "styles", "images", "svgSprites", "serve"},
		},
		{
			Name:  DevelopmentEntryPoint,
			Tasks: []string{"clean", "htmlMinify", "scriptsDev", "stylesDev", "images", "svgSprites", "serve"},
		},
	}
}

// DefaultBindings returns the built-in watch bindings.
func DefaultBindings(p PathsConfig) []BindingConfig {
	src := func(pattern string) string { return path.Join(p.Src, pattern) }
	return []BindingConfig{
		{Pattern: src("**/*.html"), Task: "htmlMinify"},
		{Pattern: src("styles/**/*.css"), Task: "styles"},
		{Pattern: src("images/svg/**/*.svg"), Task: "svgSprites"},
		{Pattern: src("js/**/*.js"), Task: "scripts"},
		{Pattern: src("resources/**"), Task: "resources"},
		{Pattern: src("images/**/*.{jpg,jpeg,png}"), Task: "images"},
	}
}
