package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/fedsync/internal/ledger"
)

// CleanupService periodically drops ledger entries past retention.
type CleanupService struct {
	ledger    *ledger.Ledger
	retention time.Duration
	interval  time.Duration
}

// NewCleanupService creates a new CleanupService.
func NewCleanupService(l *ledger.Ledger, retention, interval time.Duration) *CleanupService {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &CleanupService{ledger: l, retention: retention, interval: interval}
}

// Run cleans up once per interval until ctx is done.
func (s *CleanupService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *CleanupService) cleanup() {
	deleted, err := s.ledger.DeleteOlderThan(s.retention)
	if err != nil {
		log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
	} else if deleted > 0 {
		log.Info().Int64("deleted", deleted).Dur("retention", s.retention).Msg("Cleaned up old ledger entries")
	}
}
