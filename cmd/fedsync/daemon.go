package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dokzlo13/fedsync/internal/app"
	"github.com/dokzlo13/fedsync/internal/db"
	"github.com/dokzlo13/fedsync/internal/ledger"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Keep the federation converged on an interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			services, err := app.NewServices(cfg)
			if err != nil {
				return err
			}
			defer services.Close()

			log.Info().Str("config", configPath).Str("api", services.Client.Address()).Msg("Starting fedsync")

			return app.New(cfg, services).Run(cmd.Context())
		},
	}
}

func historyCmd() *cobra.Command {
	var (
		limit     int
		eventType string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent reconciliation events from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.Path == "" {
				return errors.New("ledger is disabled: set database.path")
			}

			database, err := db.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer database.Close()

			entries, err := readHistory(ledger.New(database.DB), eventType, limit)
			if err != nil {
				return err
			}
			return writeHistory(os.Stdout, output, entries)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	cmd.Flags().StringVarP(&eventType, "type", "t", "", "Only show events of this type (e.g. operation_failed)")
	return cmd
}

var eventTypes = []ledger.EventType{
	ledger.EventReconcileStarted,
	ledger.EventOperationApplied,
	ledger.EventOperationFailed,
	ledger.EventReconcileCompleted,
	ledger.EventReconcileFailed,
}

// readHistory returns the newest entries, optionally of one event type.
func readHistory(l *ledger.Ledger, eventType string, limit int) ([]*ledger.Entry, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("--limit must be positive, got %d", limit)
	}
	if eventType == "" {
		return l.Recent(limit)
	}
	for _, t := range eventTypes {
		if string(t) == eventType {
			return l.GetByType(t, limit)
		}
	}
	return nil, fmt.Errorf("unknown event type %q", eventType)
}
