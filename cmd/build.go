package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/logging"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Run the default entry point",
	Long: `Run the default entry point: clean, resources, htmlMinify, scripts, styles,
images, svgSprites and finally the dev server.

Any failing task stops the build and the command exits non-zero.

Examples:
  assetpipe build                 # Build everything and serve dist/
  assetpipe build --once          # Build everything and exit`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

var devCmd = &cobra.Command{
	Use:     "dev",
	Aliases: []string{"d"},
	Short:   "Run the development entry point",
	Long: `Run the development entry point: unminified styles and scripts without source
maps. Script errors are reported in the browser overlay instead of stopping
the build.

Examples:
  assetpipe dev
  assetpipe dev --port 8080 --no-open`,
	Args: cobra.NoArgs,
	RunE: runDev,
}

var runCmd = &cobra.Command{
	Use:   "run <entry-point>",
	Short: "Run a configured entry point",
	Long: `Run any entry point defined in the configuration.

Examples:
  assetpipe run default
  assetpipe run development --once`,
	Args: cobra.ExactArgs(1),
	RunE: runEntryPointCommand,
}

var taskCmd = &cobra.Command{
	Use:   "task <name>",
	Short: "Run a single task",
	Long: `Run one task on its own, e.g. to rebuild the styles after editing them.

Examples:
  assetpipe task styles
  assetpipe task htmlMinify`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskCommand,
}

func init() {
	rootCmd.AddCommand(buildCmd, devCmd, runCmd, taskCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	return runEntryPoint(cmd, config.DefaultEntryPoint)
}

func runDev(cmd *cobra.Command, args []string) error {
	return runEntryPoint(cmd, config.DevelopmentEntryPoint)
}

func runEntryPointCommand(cmd *cobra.Command, args []string) error {
	return runEntryPoint(cmd, args[0])
}

func runEntryPoint(cmd *cobra.Command, name string) error {
	a, err := newApp(globals.once)
	if err != nil {
		return err
	}
	defer a.close()

	if _, ok := a.runner.EntryPoint(name); !ok {
		return fmt.Errorf("unknown entry point %q (available: %v)", name, a.runner.EntryPoints())
	}

	ctx, stop := signalContext()
	defer stop()

	op := logging.StartOperation(a.logger, name)
	if err := a.runner.RunEntryPoint(ctx, name); err != nil {
		op.EndWithError(ctx, err)
		return a.finish(ctx, name, err)
	}
	op.End(ctx)
	return nil
}

func runTaskCommand(cmd *cobra.Command, args []string) error {
	a, err := newApp(globals.once)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext()
	defer stop()
	return runSingleTask(ctx, cmd, a, args[0])
}

func runSingleTask(ctx context.Context, cmd *cobra.Command, a *app, name string) error {
	if _, ok := a.runner.Task(name); !ok {
		return fmt.Errorf("unknown task %q (available: %v)", name, a.runner.Tasks())
	}

	written, err := a.runner.RunTask(ctx, name)
	if err != nil {
		return a.finish(ctx, name, err)
	}
	for _, p := range written {
		fmt.Fprintln(cmd.OutOrStdout(), p)
	}
	return nil
}
