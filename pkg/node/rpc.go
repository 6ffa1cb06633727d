package node

import (
	"fmt"

	"github.com/dd0wney/cluso-petasos/pkg/logging"
	"github.com/dd0wney/cluso-petasos/pkg/metrics"
	"github.com/dd0wney/cluso-petasos/pkg/rpc"
)

// endpoint bundles the RPC pieces a process owns
type endpoint struct {
	factory rpc.SocketFactory
	auth    *rpc.Authenticator
	client  *rpc.Client
	server  *rpc.Server
}

func newEndpoint(cfg RPCConfig, self, listen string, reg *metrics.Registry, logger logging.Logger) (*endpoint, error) {
	factory, err := rpc.NewSocketFactory(cfg.Transport)
	if err != nil {
		return nil, err
	}

	var auth *rpc.Authenticator
	if cfg.ClusterSecret != "" {
		if auth, err = rpc.NewAuthenticator(cfg.ClusterSecret, cfg.ClusterName, cfg.TokenTTL); err != nil {
			return nil, fmt.Errorf("rpc authenticator: %w", err)
		}
	}

	clientConfig := rpc.DefaultClientConfig(self)
	clientConfig.Timeout = cfg.CallTimeout
	clientConfig.Compression = cfg.Compression

	serverConfig := rpc.DefaultServerConfig(listen)
	serverConfig.HandlerTimeout = cfg.HandlerTimeout
	serverConfig.Compression = cfg.Compression

	return &endpoint{
		factory: factory,
		auth:    auth,
		client:  rpc.NewClient(factory, clientConfig, auth, reg, logger),
		server:  rpc.NewServer(factory, serverConfig, auth, reg, logger),
	}, nil
}
