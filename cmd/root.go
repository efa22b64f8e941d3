// Package cmd provides the command-line interface for assetpipe with
// configuration management supporting multiple configuration sources.
//
// Configuration System:
//
//	The CLI supports flexible configuration through multiple sources with clear precedence:
//	1. Command-line flags (--config, --port, etc.) - highest priority
//	2. ASSETPIPE_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (ASSETPIPE_SERVER_PORT, etc.)
//	4. Configuration files (.assetpipe.yml) - lowest priority
//
// Environment Variables:
//
//	ASSETPIPE_CONFIG_FILE: Path to custom configuration file
//	ASSETPIPE_SERVER_PORT: Override server port
//	ASSETPIPE_SERVER_HOST: Override server host
//	ASSETPIPE_PATHS_DIST: Override the output directory
//	And many more following the ASSETPIPE_<SECTION>_<OPTION> pattern
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/assetpipe/internal/config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "assetpipe",
	Short: "Build front-end assets and serve them with live reload",
	Long: `assetpipe builds the static assets of a web project (styles, scripts, HTML,
images and SVG sprites) from src/ into dist/ and serves the result with live
reload while watching the sources for changes.

Quick Start:
  assetpipe                       Run the default entry point
  assetpipe dev                   Run the development entry point
  assetpipe task styles           Run a single task
  assetpipe list                  List tasks, entry points and watch bindings
  assetpipe config                Print the effective configuration

Command Aliases (for faster typing):
  build (b), dev (d), serve (s), list (l)`,
	SilenceUsage: true,
	RunE:         runBuild,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)
	addGlobalFlags(rootCmd)
}

// initConfig initializes the configuration system with support for multiple config sources.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag: Explicitly specified config file path
//  2. ASSETPIPE_CONFIG_FILE environment variable: Custom config file path
//  3. Default: .assetpipe.yml in the project root
//
// The function also enables automatic environment variable binding for all
// configuration values with the ASSETPIPE_ prefix (e.g., ASSETPIPE_SERVER_PORT=8080).
func initConfig() {
	bindGlobalFlags(rootCmd)

	if globals.configFile != "" {
		viper.SetConfigFile(globals.configFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		root := globals.root
		if root == "" {
			root = "."
		}
		viper.AddConfigPath(root)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".assetpipe")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(config.EnvReplacer())
	viper.AutomaticEnv()

	// A missing file falls back to the built-in pipeline; a broken one is
	// reported when the configuration is loaded.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
		configReadErr = err
	}
}

// configReadErr holds a config file that exists but could not be parsed.
var configReadErr error
