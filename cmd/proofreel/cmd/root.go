// Package cmd implements the CLI commands for proofreel.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jmylchreest/proofreel/internal/config"
	"github.com/jmylchreest/proofreel/internal/observability"
	"github.com/jmylchreest/proofreel/internal/queue"
	"github.com/jmylchreest/proofreel/internal/supervisor"
	"github.com/jmylchreest/proofreel/internal/version"
)

var (
	// cfgFile holds the config file path from CLI flag.
	cfgFile string

	// v collects flag bindings; config.LoadFrom layers env and file under them.
	v = viper.New()
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "proofreel",
	Short:   "Media processing pipeline for video review",
	Version: version.Short(),
	Long: `proofreel runs the background media pipeline behind a video review tool.

Uploaded videos are transcoded into watermarked review previews, approved
videos get clean previews, assets are categorised and thumbnailed, and
notifications are fanned out to webhook and Apprise destinations. All work
flows through a durable job queue with retries.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./config.yaml, ./configs, /etc/proofreel)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
	rootCmd.PersistentFlags().String("threads", "", "override detected CPU thread count")

	mustBindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	mustBindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	mustBindPFlag("allocator.threads", rootCmd.PersistentFlags().Lookup("threads"))
}

// loadConfig reads the configuration and installs the configured logger as
// the slog default. Flags only win when set explicitly.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadFrom(v, cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	if cfg.Logging.Level == "warning" {
		cfg.Logging.Level = "warn"
	}

	logger := observability.NewLoggerWithWriter(cfg.Logging, os.Stderr)
	logger = logger.With(slog.String("app", version.ApplicationName))
	slog.SetDefault(logger)

	return cfg, logger, nil
}

// withConnection connects to the queue store for the duration of fn.
func withConnection(ctx context.Context, fn func(*config.Config, *slog.Logger, *queue.Connection) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	factory := queue.NewFactory(cfg, logger)
	conn, err := factory.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connecting to queue: %w", err)
	}
	defer func() { _ = factory.Close() }()

	return fn(cfg, logger, conn)
}

// withServices hands the enqueue side to fn. Commands that only produce
// jobs use it; the pools run under serve.
func withServices(ctx context.Context, fn func(*supervisor.Services) error) error {
	return withConnection(ctx, func(cfg *config.Config, logger *slog.Logger, conn *queue.Connection) error {
		return fn(supervisor.NewServices(cfg, conn, logger))
	})
}

// printJSON writes v to w as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}

// mustBindPFlag binds a viper key to a cobra flag and panics if binding fails.
func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("failed to bind flag %q to key %q: %v", flag.Name, key, err))
	}
}
