// Package node wires the petasos components of one process: a processing
// plant node or the task repository.
package node

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/dd0wney/cluso-petasos/pkg/archive"
	"github.com/dd0wney/cluso-petasos/pkg/cache"
	"github.com/dd0wney/cluso-petasos/pkg/cluster"
	"github.com/dd0wney/cluso-petasos/pkg/health"
	"github.com/dd0wney/cluso-petasos/pkg/logging"
	"github.com/dd0wney/cluso-petasos/pkg/metrics"
	"github.com/dd0wney/cluso-petasos/pkg/participant"
	"github.com/dd0wney/cluso-petasos/pkg/proxy"
	"github.com/dd0wney/cluso-petasos/pkg/pubsub"
	"github.com/dd0wney/cluso-petasos/pkg/rpc"
	"github.com/dd0wney/cluso-petasos/pkg/subscription"
	"github.com/dd0wney/cluso-petasos/pkg/watchdog"
)

var (
	ErrAlreadyRunning = errors.New("node already running")
	ErrNotRunning     = errors.New("node not running")
)

// Node is one processing plant. It owns the node-local caches, the task
// grid proxy, the cleanup watchdogs, the endpoint registry with its watcher
// and discovery, the participant registry, the subscription daemon and the
// peer RPC server.
//
// Concurrent Safety:
// 1. Start/Stop guarded by runningMu
// 2. Components are created once in New and never replaced
type Node struct {
	config  Config
	logger  logging.Logger
	metrics *metrics.Registry
	bus     *pubsub.PubSub
	rpc     *endpoint

	Caches       cache.Set
	Proxy        *proxy.TaskGridProxy
	Repository   *rpc.RepositoryClient
	Participants *participant.Registry
	Endpoints    *cluster.EndpointRegistry
	Health       *health.HealthChecker

	watchdog      *watchdog.Watchdog
	watcher       *cluster.EndpointWatcher
	discovery     *cluster.Discovery
	subscriptions *subscription.Manager
	daemon        *subscription.Daemon

	cancel    context.CancelFunc
	running   bool
	runningMu sync.Mutex
}

// New builds a node from cfg. reg may be nil, in which case a private
// registry is created.
func New(ctx context.Context, cfg Config, reg *metrics.Registry, logger logging.Logger) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	logger = logging.OrDefault(logger).With(logging.String("plant", cfg.Plant))

	ep, err := newEndpoint(cfg.RPC, cfg.Plant, cfg.ListenAddress, reg, logger)
	if err != nil {
		return nil, err
	}

	n := &Node{
		config:  cfg,
		logger:  logger.With(logging.Component("node")),
		metrics: reg,
		bus:     pubsub.NewPubSub(),
		rpc:     ep,
		Caches:  cache.NewSet(),
		Health:  health.NewHealthChecker(),
	}

	n.Repository = rpc.NewRepositoryClient(ep.client, cfg.RepositoryAddress)
	n.Proxy = proxy.New(cfg.proxyConfig(), n.Caches, n.Repository, n.bus, reg, logger)

	var archiver archive.Archiver
	if cfg.Archive.Bucket != "" {
		s3, err := archive.NewS3Archiver(ctx, cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("archive: %w", err)
		}
		archiver = s3
	}
	n.watchdog = watchdog.New(cfg.Watchdog, n.Caches, archiver, reg, logger)

	peers := rpc.NewPeerClient(ep.client)
	n.Endpoints = cluster.NewEndpointRegistry(cfg.Cluster, n.bus, logger)
	n.watcher = cluster.NewEndpointWatcher(n.Endpoints, peers, cfg.Cluster, reg, logger)
	n.discovery = cluster.NewDiscovery(n.Endpoints, registrationSource{n.Repository}, cfg.Plant, cfg.Cluster, logger)

	n.Participants = participant.NewRegistry(participant.Config{
		Plant:   cfg.Plant,
		Address: cfg.Advertised(),
	}, n.Repository, n.bus, logger)
	n.subscriptions = subscription.NewManager(subscription.Identity{
		Plant:   cfg.Plant,
		Address: cfg.Advertised(),
	}, peers, n.Endpoints, cfg.Subscription, reg, logger)
	n.Participants.SetSubscriptionHandoff(n.subscriptions)
	n.daemon = subscription.NewDaemon(n.subscriptions, cfg.Subscription, logger)

	rpc.RegisterPeer(ep.server, cfg.Plant, peerService{n.Participants})
	n.registerChecks()
	return n, nil
}

func (n *Node) registerChecks() {
	proxyCheck := health.ProxyCheck(
		func() string { return string(n.Proxy.Mode()) },
		func() bool { return n.Proxy.Mode() == proxy.ModeDegraded })
	subscriptionCheck := health.SubscriptionCheck(func() (int, int) {
		return n.subscriptions.Pending(), len(n.subscriptions.Services())
	})

	n.Health.RegisterCheck("task_grid_proxy", proxyCheck)
	n.Health.RegisterCheck("subscriptions", subscriptionCheck)
	n.Health.RegisterCheck("endpoints", health.EndpointCheck(n.Endpoints.Counts))
	n.Health.RegisterCheck("memory", health.MemoryCheck(memoryUsage))
	n.Health.RegisterReadinessCheck("running", n.runningCheck)
	n.Health.RegisterLivenessCheck("running", n.runningCheck)
}

func (n *Node) runningCheck() health.Check {
	check := health.Check{Name: "node"}
	if n.Running() {
		check.Status = health.StatusHealthy
	} else {
		check.Status = health.StatusUnhealthy
		check.Message = "Node not started"
	}
	return check
}

// Start brings the node up: the peer RPC server first, then the daemons,
// then the plant registers itself with the repository.
func (n *Node) Start(ctx context.Context) error {
	n.runningMu.Lock()
	defer n.runningMu.Unlock()
	if n.running {
		return fmt.Errorf("node: %w", ErrAlreadyRunning)
	}

	if err := n.rpc.server.Start(); err != nil {
		return fmt.Errorf("node: rpc server: %w", err)
	}
	for _, d := range []daemon{n.watcher, n.discovery, n.daemon, n.watchdog} {
		if err := d.Start(); err != nil {
			n.stopDaemons()
			_ = n.rpc.server.Stop()
			return fmt.Errorf("node: %w", err)
		}
	}

	lctx, cancel := context.WithCancel(context.Background())
	if err := n.daemon.ListenForLiveness(lctx, n.bus); err != nil {
		n.logger.Warn("liveness listener not started", logging.Error(err))
	}
	n.cancel = cancel

	n.Participants.RegisterParticipant(ctx, n.config.Plant, participant.KindProcessingPlant, nil, nil)
	n.running = true
	n.logger.Info("node started",
		logging.Address(n.config.Advertised()),
		logging.String("repository", n.config.RepositoryAddress))
	return nil
}

// Stop deregisters the plant and shuts every component down
func (n *Node) Stop(ctx context.Context) error {
	n.runningMu.Lock()
	defer n.runningMu.Unlock()
	if !n.running {
		return fmt.Errorf("node: %w", ErrNotRunning)
	}

	n.Participants.DeregisterParticipant(ctx, n.config.Plant)

	n.cancel()
	errs := []error{n.stopDaemons(), n.rpc.server.Stop(), n.rpc.client.Close()}
	n.bus.Shutdown()
	n.running = false
	n.logger.Info("node stopped")
	return errors.Join(errs...)
}

// Running reports whether Start has completed
func (n *Node) Running() bool {
	n.runningMu.Lock()
	defer n.runningMu.Unlock()
	return n.running
}

type daemon interface {
	Start() error
	Stop() error
}

// stopDaemons stops every daemon, ignoring those that never started
func (n *Node) stopDaemons() error {
	var errs []error
	for _, d := range []daemon{n.watchdog, n.daemon, n.discovery, n.watcher} {
		if err := d.Stop(); err != nil && !isNotRunning(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func isNotRunning(err error) bool {
	return errors.Is(err, watchdog.ErrNotRunning) ||
		errors.Is(err, subscription.ErrNotRunning) ||
		errors.Is(err, cluster.ErrNotRunning)
}

// Status is the JSON snapshot served on /status
type Status struct {
	Plant         string                             `json:"plant"`
	Address       string                             `json:"address"`
	Mode          proxy.Mode                         `json:"mode"`
	Tasks         int                                `json:"tasks"`
	JobCards      int                                `json:"jobCards"`
	Fulfillments  int                                `json:"fulfillments"`
	Participants  int                                `json:"participants"`
	Endpoints     []cluster.EndpointSummary          `json:"endpoints"`
	Subscriptions []subscription.ServiceRegistration `json:"subscriptions"`
}

func (n *Node) Status() Status {
	return Status{
		Plant:         n.config.Plant,
		Address:       n.config.Advertised(),
		Mode:          n.Proxy.Mode(),
		Tasks:         n.Caches.Tasks.Size(),
		JobCards:      n.Caches.JobCards.Size(),
		Fulfillments:  n.Caches.Fulfillments.Size(),
		Participants:  n.Participants.Size(),
		Endpoints:     n.Endpoints.Endpoints(),
		Subscriptions: n.subscriptions.Services(),
	}
}

// Metrics is the registry the node reports to
func (n *Node) Metrics() *metrics.Registry { return n.metrics }

func memoryUsage() (alloc, sys uint64) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Alloc, m.Sys
}
