package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dd0wney/cluso-petasos/pkg/archive"
	"github.com/dd0wney/cluso-petasos/pkg/cache"
	"github.com/dd0wney/cluso-petasos/pkg/health"
	"github.com/dd0wney/cluso-petasos/pkg/logging"
	"github.com/dd0wney/cluso-petasos/pkg/metrics"
	"github.com/dd0wney/cluso-petasos/pkg/pubsub"
	"github.com/dd0wney/cluso-petasos/pkg/repository"
	"github.com/dd0wney/cluso-petasos/pkg/rpc"
	"github.com/dd0wney/cluso-petasos/pkg/watchdog"
)

// storePingTimeout bounds the health check's store ping
const storePingTimeout = 2 * time.Second

// Repository is the authoritative task repository process: the repository
// service behind an RPC server, with a task watchdog that archives and
// forgets retired tasks.
type Repository struct {
	config  RepositoryConfig
	logger  logging.Logger
	metrics *metrics.Registry
	bus     *pubsub.PubSub
	rpc     *endpoint
	store   repository.Store

	Service *repository.Service
	Health  *health.HealthChecker

	watchdog *watchdog.Watchdog

	running   bool
	runningMu sync.Mutex
}

// NewRepository opens the configured store, restores pending tasks from it
// and builds the RPC server. reg may be nil.
func NewRepository(ctx context.Context, cfg RepositoryConfig, reg *metrics.Registry, logger logging.Logger) (*Repository, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	logger = logging.OrDefault(logger).With(logging.String("repository", cfg.Name))

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	ep, err := newEndpoint(cfg.RPC, cfg.Name, cfg.ListenAddress, reg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	r := &Repository{
		config:  cfg,
		logger:  logger.With(logging.Component("repository-node")),
		metrics: reg,
		bus:     pubsub.NewPubSub(),
		rpc:     ep,
		store:   store,
		Health:  health.NewHealthChecker(),
	}
	r.Service = repository.NewService(store, reg, r.bus, logger)
	if err := r.Service.Load(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	chain := archive.Chain{}
	if cfg.Archive.Bucket != "" {
		s3, err := archive.NewS3Archiver(ctx, cfg.Archive)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("archive: %w", err)
		}
		chain = append(chain, s3)
	}
	// The service drops the durable copy once the task is archived
	chain = append(chain, r.Service)
	r.watchdog = watchdog.New(cfg.Watchdog, cache.Set{Tasks: r.Service.Grid()}, chain, reg, logger)

	rpc.RegisterRepository(ep.server, cfg.Name, r.Service)

	storeCheck := health.StoreCheck(r.Service.Ping, storePingTimeout)
	r.Health.RegisterCheck("store", storeCheck)
	r.Health.RegisterCheck("memory", health.MemoryCheck(memoryUsage))
	r.Health.RegisterReadinessCheck("store", storeCheck)
	r.Health.RegisterLivenessCheck("running", r.runningCheck)
	return r, nil
}

func openStore(ctx context.Context, cfg StoreConfig) (repository.Store, error) {
	switch cfg.Driver {
	case StorePostgres:
		store, err := repository.NewPGStore(ctx, cfg.DatabaseURL, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("store: %w", err)
		}
		return store, nil
	default:
		return repository.NewMemoryStore(), nil
	}
}

func (r *Repository) runningCheck() health.Check {
	check := health.Check{Name: "repository"}
	if r.Running() {
		check.Status = health.StatusHealthy
	} else {
		check.Status = health.StatusUnhealthy
		check.Message = "Repository not started"
	}
	return check
}

// Start serves RPCs and schedules the task watchdog
func (r *Repository) Start() error {
	r.runningMu.Lock()
	defer r.runningMu.Unlock()
	if r.running {
		return fmt.Errorf("repository: %w", ErrAlreadyRunning)
	}
	if err := r.rpc.server.Start(); err != nil {
		return fmt.Errorf("repository: rpc server: %w", err)
	}
	if err := r.watchdog.Start(); err != nil {
		_ = r.rpc.server.Stop()
		return fmt.Errorf("repository: %w", err)
	}
	r.running = true
	r.logger.Info("repository started",
		logging.Address(r.config.ListenAddress),
		logging.String("store", r.config.Store.Driver))
	return nil
}

// Stop shuts down the RPC server and watchdog, then closes the store
func (r *Repository) Stop() error {
	r.runningMu.Lock()
	defer r.runningMu.Unlock()
	if !r.running {
		return fmt.Errorf("repository: %w", ErrNotRunning)
	}
	errs := []error{r.rpc.server.Stop(), r.watchdog.Stop(), r.rpc.client.Close()}
	r.bus.Shutdown()
	errs = append(errs, r.store.Close())
	r.running = false
	r.logger.Info("repository stopped")
	return errors.Join(errs...)
}

// Running reports whether Start has completed
func (r *Repository) Running() bool {
	r.runningMu.Lock()
	defer r.runningMu.Unlock()
	return r.running
}

// Status is the repository's /status snapshot
func (r *Repository) Status() repository.Stats { return r.Service.Stats() }

// Metrics is the registry the repository reports to
func (r *Repository) Metrics() *metrics.Registry { return r.metrics }
