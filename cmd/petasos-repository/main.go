// petasos-repository runs the authoritative task repository with its
// durable store, retirement watchdog and HTTP status server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dd0wney/cluso-petasos/pkg/logging"
	"github.com/dd0wney/cluso-petasos/pkg/metrics"
	"github.com/dd0wney/cluso-petasos/pkg/node"
	"github.com/dd0wney/cluso-petasos/pkg/server"
	petasostls "github.com/dd0wney/cluso-petasos/pkg/tls"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	listen := flag.String("listen", "", "RPC listen address (overrides config)")
	httpAddr := flag.String("http", "", "HTTP status address (overrides config)")
	databaseURL := flag.String("database-url", "", "Postgres URL; selects the postgres store")
	flag.Parse()

	cfg, err := node.LoadRepositoryConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "petasos-repository: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.ListenAddress = *listen
	}
	if *httpAddr != "" {
		cfg.HTTPAddress = *httpAddr
	}
	if *databaseURL != "" {
		cfg.Store.Driver = node.StorePostgres
		cfg.Store.DatabaseURL = *databaseURL
	}

	logger, closer := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.Log)
	defer closer.Close()
	logging.SetDefaultLogger(logger)

	if err := run(cfg, *configPath, logger); err != nil {
		logger.Error("repository failed", logging.Error(err))
		closer.Close()
		os.Exit(1)
	}
}

func run(cfg node.RepositoryConfig, configPath string, logger *logging.JSONLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tlsConfig, err := petasostls.Load(cfg.TLS)
	if err != nil {
		return fmt.Errorf("status server TLS: %w", err)
	}

	reg := metrics.NewRegistry()
	repo, err := node.NewRepository(ctx, cfg, reg, logger)
	if err != nil {
		return err
	}
	if err := repo.Start(); err != nil {
		return err
	}
	defer func() {
		if err := repo.Stop(); err != nil {
			logger.Warn("repository stop reported errors", logging.Error(err))
		}
	}()

	errCh := make(chan error, 1)
	var status *server.GracefulServer
	if cfg.HTTPAddress != "" {
		status = server.NewGracefulServer(cfg.HTTPAddress, server.NewRouter(server.Routes{
			Health:  repo.Health,
			Metrics: metricsHandler(reg),
			Status:  func() any { return repo.Status() },
			Logger:  logger,
			Record:  reg,
		}), logger)
		status.SetTLSConfig(tlsConfig)
		status.SetConfigReloadFunc(func() error {
			reloaded, err := node.LoadRepositoryConfig(configPath)
			if err != nil {
				return err
			}
			logger.SetLevel(logging.ParseLevel(reloaded.LogLevel))
			return nil
		})
		go func() { errCh <- status.Start() }()
		defer func() {
			if err := status.Shutdown(shutdownTimeout); err != nil {
				logger.Warn("HTTP shutdown failed", logging.Error(err))
			}
		}()
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	logger.Info("petasos repository running",
		logging.Address(cfg.ListenAddress),
		logging.String("store", cfg.Store.Driver),
		logging.String("http", cfg.HTTPAddress))

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return nil
		case <-hup:
			if status == nil {
				continue
			}
			if err := status.ReloadConfig(); err != nil {
				logger.Warn("config reload failed", logging.Error(err))
			}
		case err := <-errCh:
			return err
		}
	}
}

func metricsHandler(reg *metrics.Registry) http.Handler {
	inner := reg.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reg.UpdateSystemMetrics()
		inner.ServeHTTP(w, r)
	})
}
