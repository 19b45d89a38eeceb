package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/fedsync/internal/federation"
	"github.com/dokzlo13/fedsync/internal/lock"
)

// Reconciler runs one reconciliation on behalf of a named source.
type Reconciler interface {
	Reconcile(ctx context.Context, req federation.Request, source string) (*federation.Result, error)
}

// DesiredSource returns the current desired member list.
type DesiredSource func(ctx context.Context) ([]federation.DesiredMember, error)

// Status is the outcome of the latest daemon run.
type Status struct {
	LastRun    time.Time          `json:"last_run"`
	LastResult *federation.Result `json:"last_result,omitempty"`
	LastError  string             `json:"last_error,omitempty"`
	Runs       int                `json:"runs"`
	Failures   int                `json:"failures"`
}

// ReconcileService converges the federation on a ticker and on demand.
type ReconcileService struct {
	reconciler Reconciler
	source     DesiredSource
	interval   time.Duration
	limiter    *rate.Limiter
	trigger    chan struct{}

	mu     sync.Mutex
	status Status
	ok     bool
}

// NewReconcileService creates a new reconcile service. minGap is the
// shortest time between two runs, however often Trigger is called.
func NewReconcileService(reconciler Reconciler, source DesiredSource, interval, minGap time.Duration) *ReconcileService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ReconcileService{
		reconciler: reconciler,
		source:     source,
		interval:   interval,
		limiter:    rate.NewLimiter(rate.Every(minGap), 1),
		trigger:    make(chan struct{}, 1),
	}
}

// Trigger requests a run as soon as the rate limit allows.
func (s *ReconcileService) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
		// Already triggered
	}
}

// Status returns a copy of the latest status.
func (s *ReconcileService) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Ready reports whether the latest run succeeded.
func (s *ReconcileService) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ok
}

// Run starts the reconciliation loop. It runs once immediately.
func (s *ReconcileService) Run(ctx context.Context) error {
	log.Info().Dur("interval", s.interval).Msg("Reconcile loop started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Trigger()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Reconcile loop stopping")
			return nil

		case <-s.trigger:
			s.runOnce(ctx)

		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *ReconcileService) runOnce(ctx context.Context) {
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}

	members, err := s.source(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load desired members")
		s.record(nil, err)
		return
	}

	result, err := s.reconciler.Reconcile(ctx, federation.Request{
		Desired: members,
		Mode:    federation.ModePresent,
	}, "daemon")

	switch {
	case errors.Is(err, lock.ErrLocked):
		log.Info().Msg("Another reconciler holds the lock, skipping run")
		return
	case ctx.Err() != nil:
		return
	case err != nil:
		log.Error().Err(err).Msg("Reconciliation failed")
	case result.Changed:
		log.Info().
			Int("members", len(result.Current)).
			Int("added", len(result.Proposed.AddMember)).
			Int("removed", len(result.Proposed.RemoveMember)).
			Msg("Federation reconciled")
	default:
		log.Debug().Int("members", len(result.Current)).Msg("Federation in sync")
	}
	s.record(result, err)
}

func (s *ReconcileService) record(result *federation.Result, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.LastRun = time.Now()
	s.status.LastResult = result
	s.status.Runs++
	s.ok = err == nil
	if err != nil {
		s.status.LastError = err.Error()
		s.status.Failures++
	} else {
		s.status.LastError = ""
	}
}
