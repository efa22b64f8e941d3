package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/assetpipe/internal/config"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Serve the output directory with live reload",
	Long: `Start the development server on the existing output directory and rerun the
bound task whenever a source file changes. Nothing is built up front.

Examples:
  assetpipe serve                  # Serve dist/ on the configured port
  assetpipe serve --port 8080      # Serve on another port
  assetpipe serve --no-open        # Don't open the browser`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	name := ""
	for _, t := range a.cfg.Tasks {
		if t.TaskKind() == config.KindServe {
			name = t.Name
			break
		}
	}
	if name == "" {
		return fmt.Errorf("no task of kind %q is configured", config.KindServe)
	}

	ctx, stop := signalContext()
	defer stop()
	return runSingleTask(ctx, cmd, a, name)
}
