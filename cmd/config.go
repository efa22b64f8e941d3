package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/errors"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or validate the configuration",
	Long: `Print the effective configuration as YAML: the configuration file merged with
environment variables, flags and the built-in pipeline.

Examples:
  assetpipe config                      # Show the effective configuration
  assetpipe config validate             # Report errors and warnings
  assetpipe config > .assetpipe.yml     # Start a config file from the defaults`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Check the configuration for unknown transforms, entry points or bindings that
reference missing tasks, destinations outside the project root and similar
mistakes. Warnings do not fail the command.`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(cfg)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if configReadErr != nil {
		return errors.NewEnhancedError("Failed to read configuration", configReadErr,
			errors.ConfigurationError(configReadErr.Error(), viper.ConfigFileUsed()))
	}
	cfg, err := config.Decode(viper.GetViper())
	if err != nil {
		return err
	}

	result := config.Validate(cfg)
	out := cmd.OutOrStdout()
	if result.HasWarnings() || result.HasErrors() {
		fmt.Fprint(out, result.String())
	}
	if result.HasErrors() {
		return fmt.Errorf("configuration has %d error(s)", len(result.Errors))
	}
	fmt.Fprintln(out, "Configuration is valid")
	return nil
}
