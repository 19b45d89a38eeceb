package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dokzlo13/fedsync/internal/config"
)

// App is the daemon: a reconcile loop plus its HTTP surface and housekeeping.
type App struct {
	cfg       *config.Config
	services  *Services
	Reconcile *ReconcileService
	Health    *HealthService  // nil when the healthcheck server is disabled
	Cleanup   *CleanupService // nil when the ledger is disabled
}

// New creates a new App instance with all services initialized but not started.
func New(cfg *config.Config, services *Services) *App {
	a := &App{
		cfg:      cfg,
		services: services,
	}

	a.Reconcile = NewReconcileService(services, services.DesiredMembers, cfg.Daemon.Interval.Duration(), cfg.Daemon.MinGap.Duration())

	if cfg.Healthcheck.Enabled {
		addr := fmt.Sprintf("%s:%d", cfg.Healthcheck.Host, cfg.Healthcheck.Port)
		a.Health = NewHealthService(addr, cfg.ShutdownTimeout.Duration(), a.Reconcile, services.Ledger, services.Registry)
	}

	if services.Ledger != nil {
		retention := time.Duration(cfg.Ledger.RetentionDays) * 24 * time.Hour
		a.Cleanup = NewCleanupService(services.Ledger, retention, cfg.Ledger.CleanupInterval.Duration())
	}

	return a
}

// Run starts all services and blocks until ctx is cancelled or one fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.Reconcile.Run(ctx) })
	if a.Health != nil {
		g.Go(func() error { return a.Health.Run(ctx) })
	}
	if a.Cleanup != nil {
		g.Go(func() error { return a.Cleanup.Run(ctx) })
	}

	log.Info().Msg("fedsync daemon started")
	err := g.Wait()
	log.Info().Msg("Shutting down...")
	return err
}

// SignalContext creates a context that is cancelled when SIGINT or SIGTERM is received.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
