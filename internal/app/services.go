package app

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/fedsync/internal/config"
	"github.com/dokzlo13/fedsync/internal/db"
	"github.com/dokzlo13/fedsync/internal/desired"
	"github.com/dokzlo13/fedsync/internal/federation"
	"github.com/dokzlo13/fedsync/internal/ledger"
	"github.com/dokzlo13/fedsync/internal/lock"
	"github.com/dokzlo13/fedsync/internal/metrics"
	"github.com/dokzlo13/fedsync/internal/nd"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB         // nil when the ledger is disabled
	Ledger *ledger.Ledger // nil when the ledger is disabled

	// Remote side
	Client  *nd.Client
	Gateway federation.Gateway

	// Coordination and observability
	Locker   lock.Locker
	Metrics  *metrics.Metrics
	Registry *prometheus.Registry
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	// Initialize database and ledger
	if cfg.Database.Path != "" {
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		s.DB = database
		s.Ledger = ledger.New(database.DB)
	}

	// Initialize API client
	s.Client = nd.NewClient(nd.Options{
		Host:         cfg.ND.Host,
		Username:     cfg.ND.Username,
		Password:     cfg.ND.Password,
		LoginDomain:  cfg.ND.LoginDomain,
		Timeout:      cfg.ND.Timeout.Duration(),
		Insecure:     cfg.ND.Insecure,
		RateLimitRPS: cfg.ND.RateLimitRPS,
	})
	s.Gateway = federation.NewNDGateway(s.Client)

	// Initialize lock
	if cfg.Lock.Enabled() {
		s.Locker = lock.NewRedis(lock.RedisOptions{
			Addr:     cfg.Lock.RedisAddr,
			Password: cfg.Lock.RedisPassword.Reveal(),
			DB:       cfg.Lock.RedisDB,
			Key:      cfg.Lock.Key,
			TTL:      cfg.Lock.TTL.Duration(),
		})
	} else {
		s.Locker = lock.Nop{}
	}

	// Initialize metrics on a private registry
	s.Registry = prometheus.NewRegistry()
	s.Metrics = metrics.New()
	if err := s.Metrics.Register(s.Registry); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// Engine returns a reconciliation engine whose runs are recorded under source.
func (s *Services) Engine(source string) *federation.Engine {
	recorders := federation.MultiRecorder{metrics.NewRecorder(s.Metrics)}
	if s.Ledger != nil {
		recorders = append(recorders, ledger.NewRecorder(s.Ledger, source))
	}
	return federation.NewEngine(s.Gateway, federation.WithRecorder(recorders))
}

// Reconcile runs one reconciliation. Writing runs hold the single-writer lock.
func (s *Services) Reconcile(ctx context.Context, req federation.Request, source string) (*federation.Result, error) {
	engine := s.Engine(source)
	if !req.Mode.Mutating() || req.DryRun {
		return engine.Reconcile(ctx, req)
	}

	var result *federation.Result
	err := lock.Do(ctx, s.Locker, func(ctx context.Context) error {
		var err error
		result, err = engine.Reconcile(ctx, req)
		return err
	})
	return result, err
}

// DesiredMembers returns the configured desired members.
func (s *Services) DesiredMembers(ctx context.Context) ([]federation.DesiredMember, error) {
	if s.cfg.MembersFile != "" {
		return desired.Load(ctx, config.ExpandEnvString(s.cfg.MembersFile))
	}
	return desired.Members(s.cfg.Members)
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Client != nil {
		s.Client.Close()
	}
	if c, ok := s.Locker.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close lock client")
		}
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
