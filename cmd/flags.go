package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/conneroisu/assetpipe/internal/logging"
)

// GlobalFlags holds the flags shared by every command.
type GlobalFlags struct {
	configFile string
	root       string
	once       bool

	LogLevel  string
	LogFormat string
	LogDir    string
	Port      int
	Host      string
	NoOpen    bool
}

var globals GlobalFlags

// flagBindings maps persistent flags onto configuration keys.
var flagBindings = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
	"log-dir":    "log.dir",
	"root":       "paths.root",
	"port":       "server.port",
	"host":       "server.host",
	"no-open":    "server.no-open",
}

func addGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&globals.configFile, "config", "",
		"config file (default is .assetpipe.yml, can also use ASSETPIPE_CONFIG_FILE env var)")
	flags.StringVar(&globals.root, "root", "", "project root containing src/ and dist/")
	flags.BoolVar(&globals.once, "once", false, "build and exit instead of serving")

	flags.StringVarP(&globals.LogLevel, "log-level", "l", "info", "log level (debug, info, warn, error)")
	flags.StringVar(&globals.LogFormat, "log-format", "text", "log format (text, json)")
	flags.StringVar(&globals.LogDir, "log-dir", "", "also write JSON logs to a daily file in this directory")
	flags.IntVarP(&globals.Port, "port", "p", 3000, "dev server port")
	flags.StringVar(&globals.Host, "host", "localhost", "dev server host")
	flags.BoolVar(&globals.NoOpen, "no-open", false, "don't open the browser when the dev server starts")

	addFlagValidation(flags, "log-level", func(v string) error {
		_, err := logging.ParseLevel(v)
		return err
	})
	addFlagValidation(flags, "log-format", func(v string) error {
		return validateChoice(v, []string{"text", "json"})
	})
	addFlagValidation(flags, "port", func(v string) error {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err != nil || port < 0 || port > 65535 {
			return fmt.Errorf("port must be between 0 and 65535, got %s", v)
		}
		return nil
	})
}

// bindGlobalFlags lets flags override the file and environment. Only flags
// set on the command line take precedence; defaults come from config.
func bindGlobalFlags(cmd *cobra.Command) {
	for name, key := range flagBindings {
		if f := cmd.PersistentFlags().Lookup(name); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}
}

// addFlagValidation rejects bad values as soon as the flag is parsed.
func addFlagValidation(flags *pflag.FlagSet, name string, validator func(string) error) {
	flag := flags.Lookup(name)
	if flag == nil {
		return
	}
	flag.Value = &validatingValue{Value: flag.Value, validator: validator}
}

type validatingValue struct {
	pflag.Value
	validator func(string) error
}

func (v *validatingValue) Set(s string) error {
	if err := v.validator(s); err != nil {
		return err
	}
	return v.Value.Set(s)
}

func validateChoice(value string, choices []string) error {
	for _, c := range choices {
		if value == c {
			return nil
		}
	}
	return fmt.Errorf("invalid value %q, must be one of: %s", value, strings.Join(choices, ", "))
}
