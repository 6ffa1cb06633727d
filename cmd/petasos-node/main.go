// petasos-node runs one processing plant: the task grid proxy, the node-local
// caches and watchdogs, endpoint discovery, the participant registry and the
// subscription daemon, plus an HTTP status server.
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
	plant := flag.String("plant", "", "Processing plant name (overrides config)")
	listen := flag.String("listen", "", "RPC listen address (overrides config)")
	repository := flag.String("repository", "", "Task repository RPC address (overrides config)")
	httpAddr := flag.String("http", "", "HTTP status address (overrides config)")
	flag.Parse()

	cfg, err := node.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "petasos-node: %v\n", err)
		os.Exit(1)
	}
	override(&cfg.Plant, *plant)
	override(&cfg.ListenAddress, *listen)
	override(&cfg.RepositoryAddress, *repository)
	override(&cfg.HTTPAddress, *httpAddr)

	logger, closer := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.Log)
	defer closer.Close()
	logging.SetDefaultLogger(logger)

	if err := run(cfg, *configPath, logger); err != nil {
		logger.Error("node failed", logging.Error(err))
		closer.Close()
		os.Exit(1)
	}
}

func override(field *string, value string) {
	if value != "" {
		*field = value
	}
}

func run(cfg node.Config, configPath string, logger *logging.JSONLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tlsConfig, err := petasostls.Load(cfg.TLS)
	if err != nil {
		return fmt.Errorf("status server TLS: %w", err)
	}

	reg := metrics.NewRegistry()
	n, err := node.New(ctx, cfg, reg, logger)
	if err != nil {
		return err
	}
	if err := n.Start(ctx); err != nil {
		return err
	}

	var status *server.GracefulServer
	errCh := make(chan error, 1)
	if cfg.HTTPAddress != "" {
		status = server.NewGracefulServer(cfg.HTTPAddress, server.NewRouter(server.Routes{
			Health:  n.Health,
			Metrics: metricsHandler(reg),
			Status:  func() any { return n.Status() },
			Logger:  logger,
			Record:  reg,
		}), logger)
		status.SetTLSConfig(tlsConfig)
		status.SetConfigReloadFunc(func() error {
			reloaded, err := node.LoadConfig(configPath)
			if err != nil {
				return err
			}
			logger.SetLevel(logging.ParseLevel(reloaded.LogLevel))
			logger.Info("log level reloaded", logging.String("level", reloaded.LogLevel))
			return nil
		})
		go func() { errCh <- status.Start() }()
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	logger.Info("petasos node running",
		logging.String("plant", cfg.Plant),
		logging.Address(cfg.Advertised()),
		logging.String("http", cfg.HTTPAddress))

	var serveErr error
wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case <-hup:
			if status != nil {
				if err := status.ReloadConfig(); err != nil {
					logger.Warn("config reload failed", logging.Error(err))
				}
			}
		case serveErr = <-errCh:
			break wait
		}
	}

	logger.Info("shutting down")
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if status != nil {
		if err := status.Shutdown(shutdownTimeout); err != nil {
			logger.Warn("HTTP shutdown failed", logging.Error(err))
		}
	}
	if err := n.Stop(stopCtx); err != nil {
		logger.Warn("node stop reported errors", logging.Error(err))
	}
	return serveErr
}

func metricsHandler(reg *metrics.Registry) http.Handler {
	inner := reg.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reg.UpdateSystemMetrics()
		inner.ServeHTTP(w, r)
	})
}
