//go:build property

package errors

import (
	"fmt"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestErrorCollectorProperties validates per-task error bookkeeping
func TestErrorCollectorProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(2468)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("one entry per distinct task", prop.ForAll(
		func(tasks []string) bool {
			ec := NewErrorCollector()
			distinct := make(map[string]bool)
			for _, task := range tasks {
				ec.Add(NewTransformError("concat", "x", nil).WithTask(task))
				distinct[task] = true
			}
			return len(ec.GetErrors()) == len(distinct)
		},
		gen.SliceOf(gen.OneConstOf("styles", "scripts", "htmlMinify", "images", "svgSprites")),
	))

	properties.Property("errors are ordered by task", prop.ForAll(
		func(tasks []string) bool {
			ec := NewErrorCollector()
			for _, task := range tasks {
				ec.Add(NewConfigError("bad").WithTask(task))
			}
			errs := ec.GetErrors()
			for i := 1; i < len(errs); i++ {
				if errs[i-1].Task > errs[i].Task {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("clearing a task leaves the others", prop.ForAll(
		func(n int, cleared int) bool {
			ec := NewErrorCollector()
			for i := 0; i < n; i++ {
				ec.Add(NewConfigError("bad").WithTask(fmt.Sprintf("t%d", i)))
			}
			ec.ClearTask(fmt.Sprintf("t%d", cleared))
			want := n
			if cleared < n {
				want--
			}
			return len(ec.GetErrors()) == want && !ec.HasTask(fmt.Sprintf("t%d", cleared))
		},
		gen.IntRange(0, 20),
		gen.IntRange(0, 25),
	))

	properties.Property("concurrent addition is thread-safe", prop.ForAll(
		func(goroutines int, perGoroutine int) bool {
			ec := NewErrorCollector()
			var wg sync.WaitGroup
			for g := 0; g < goroutines; g++ {
				wg.Add(1)
				go func(g int) {
					defer wg.Done()
					for e := 0; e < perGoroutine; e++ {
						ec.Add(NewTransformError("minify-js", "x", nil).WithTask(fmt.Sprintf("task_%d_%d", g, e)))
					}
				}(g)
			}
			wg.Wait()
			return len(ec.GetErrors()) == goroutines*perGoroutine
		},
		gen.IntRange(1, 10),
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}
