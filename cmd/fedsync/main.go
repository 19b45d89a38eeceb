package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/fedsync/internal/app"
	"github.com/dokzlo13/fedsync/internal/config"
)

var (
	configPath string
	envFile    string
	logLevel   string
	output     string
)

func main() {
	if err := rootCmd().ExecuteContext(app.SignalContext()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fedsync",
		Short:         "fedsync - federation membership reconciler",
		Long:          "fedsync converges the member list of a dashboard federation to a desired set of clusters.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			switch output {
			case "text", "json":
			default:
				return fmt.Errorf("--output must be text or json, got %q", output)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a .env file loaded before the configuration")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	cmd.PersistentFlags().StringVarP(&output, "output", "o", "text", "Output format (text, json)")

	// Add subcommands
	cmd.AddCommand(applyCmd())
	cmd.AddCommand(removeCmd())
	cmd.AddCommand(queryCmd())
	cmd.AddCommand(stateCmd())
	cmd.AddCommand(runCmd())
	cmd.AddCommand(historyCmd())

	return cmd
}

// loadConfig reads the env file and configuration and sets up logging.
func loadConfig() (*config.Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("load %s: %w", envFile, err)
			}
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	setupLogging(cfg.Log.Level, cfg.Log.Format == "json", cfg.Log.Colors)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setupLogging(level string, useJSON bool, colors bool) {
	// ISO 8601 format with timezone
	zerolog.TimeFieldFormat = time.RFC3339

	if useJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !colors,
		})
	}

	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
