package cmd

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for inspecting proofreel configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the configuration proofreel would run with, after defaults, the
config file, environment variables and flags are applied.

Redirect the output to create a configuration template:

  proofreel config dump > config.yaml

Environment variables use the PROOFREEL_ prefix and underscores for nesting.
Example: allocator.threads -> PROOFREEL_ALLOCATOR_THREADS`,
	RunE: runConfigDump,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if _, _, err := loadConfig(); err != nil {
			return err
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd, configValidateCmd)
}

// toMap converts a config struct to a map keyed by mapstructure tags, with
// durations in their string form so the dump can be loaded back. Tokens are
// redacted.
func toMap(v any) map[string]any {
	result := make(map[string]any)
	val := reflect.ValueOf(v)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}
	typ := val.Type()

	for i := range val.NumField() {
		field := val.Field(i)
		fieldType := typ.Field(i)

		key := fieldType.Tag.Get("mapstructure")
		if key == "" {
			key = strings.ToLower(fieldType.Name)
		}

		switch fv := field.Interface().(type) {
		case time.Duration:
			result[key] = fv.String()
		case string:
			if key == "token" && fv != "" {
				fv = "<redacted>"
			}
			result[key] = fv
		default:
			if field.Kind() == reflect.Struct {
				result[key] = toMap(fv)
			} else {
				result[key] = fv
			}
		}
	}
	return result
}

func runConfigDump(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	yamlData, err := yaml.Marshal(toMap(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "# proofreel configuration")
	fmt.Fprintln(out, "#")
	fmt.Fprintln(out, "# Duration format: 30s, 5m, 1h")
	fmt.Fprintln(out, "# Cron fields accept standard expressions and descriptors such as @every 1h")
	fmt.Fprintln(out, "#")
	fmt.Fprintln(out, "# Environment variable overrides:")
	fmt.Fprintln(out, "#   PROOFREEL_BUILD_PHASE")
	fmt.Fprintln(out, "#   PROOFREEL_DATABASE_DRIVER, PROOFREEL_DATABASE_DSN")
	fmt.Fprintln(out, "#   PROOFREEL_ALLOCATOR_THREADS")
	fmt.Fprintln(out, "#   PROOFREEL_NOTIFY_APPRISE_URL")
	fmt.Fprintln(out, "#   etc.")
	fmt.Fprintln(out)
	_, err = out.Write(yamlData)
	return err
}
