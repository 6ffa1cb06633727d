package node

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-petasos/pkg/archive"
	"github.com/dd0wney/cluso-petasos/pkg/cluster"
	"github.com/dd0wney/cluso-petasos/pkg/logging"
	"github.com/dd0wney/cluso-petasos/pkg/proxy"
	"github.com/dd0wney/cluso-petasos/pkg/repository"
	"github.com/dd0wney/cluso-petasos/pkg/rpc"
	"github.com/dd0wney/cluso-petasos/pkg/subscription"
	petasostls "github.com/dd0wney/cluso-petasos/pkg/tls"
	"github.com/dd0wney/cluso-petasos/pkg/validation"
	"github.com/dd0wney/cluso-petasos/pkg/watchdog"
)

// LogLevelEnv overrides the configured log level
const LogLevelEnv = "LOG_LEVEL"

// Store drivers
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// RPCConfig is shared by nodes and the repository
type RPCConfig struct {
	Transport      string        `yaml:"transport"`       // mangos (default) or zmq
	ClusterSecret  string        `yaml:"cluster_secret"`  // Enables request tokens when set (min 32 chars)
	ClusterName    string        `yaml:"cluster_name"`    // Salt for the signing key
	TokenTTL       time.Duration `yaml:"token_ttl"`       // Lifetime of a request token (default: 1m)
	CallTimeout    time.Duration `yaml:"call_timeout"`    // Unicast timeout per call (default: 5s)
	HandlerTimeout time.Duration `yaml:"handler_timeout"` // Deadline given to served handlers (default: 10s)
	Compression    int           `yaml:"compression"`     // Frame compression threshold in bytes (default: 1024)
}

func defaultRPCConfig() RPCConfig {
	return RPCConfig{
		Transport:      rpc.TransportMangos,
		ClusterName:    "petasos",
		TokenTTL:       time.Minute,
		CallTimeout:    5 * time.Second,
		HandlerTimeout: 10 * time.Second,
		Compression:    rpc.DefaultCompressionThreshold,
	}
}

func (c *RPCConfig) validate(v *validation.ConfigValidator) {
	v.OneOf("RPC.Transport", c.Transport, rpc.Transports()).
		RangeDuration("RPC.CallTimeout", c.CallTimeout, 10*time.Millisecond, 5*time.Minute).
		RangeDuration("RPC.HandlerTimeout", c.HandlerTimeout, 10*time.Millisecond, 5*time.Minute).
		When(c.ClusterSecret != "", func(v *validation.ConfigValidator) {
			v.Custom("RPC.ClusterSecret", func() error {
				if len(c.ClusterSecret) < 32 {
					return rpc.ErrShortSecret
				}
				return nil
			})
			v.Required("RPC.ClusterName", c.ClusterName)
		})
}

// Config is the configuration of a processing plant node
type Config struct {
	Plant             string `yaml:"plant"`              // service.component name of this plant
	ListenAddress     string `yaml:"listen_address"`     // RPC bind address, e.g. tcp://0.0.0.0:7100
	Address           string `yaml:"address"`            // RPC address advertised to peers (default: ListenAddress)
	RepositoryAddress string `yaml:"repository_address"` // RPC address of the task repository
	HTTPAddress       string `yaml:"http_address"`       // Status server address (empty disables it)
	LogLevel          string `yaml:"log_level"`

	Log          logging.FileConfig     `yaml:"log"`
	TLS          petasostls.Config      `yaml:"tls"` // Status server TLS
	RPC          RPCConfig              `yaml:"rpc"`
	Proxy        proxy.Config           `yaml:"proxy"`
	Watchdog     watchdog.Config        `yaml:"watchdog"`
	Cluster      cluster.RegistryConfig `yaml:"cluster"`
	Subscription subscription.Config    `yaml:"subscription"`
	Archive      archive.S3Config       `yaml:"archive"` // Retired tasks go to S3 when a bucket is set
}

// DefaultConfig returns the default node configuration
func DefaultConfig() Config {
	return Config{
		ListenAddress:     "tcp://0.0.0.0:7100",
		RepositoryAddress: "tcp://127.0.0.1:7000",
		HTTPAddress:       ":8180",
		LogLevel:          "info",
		TLS:               petasostls.DefaultConfig(),
		RPC:               defaultRPCConfig(),
		Proxy:             proxy.DefaultConfig(""),
		Watchdog:          watchdog.DefaultConfig(),
		Cluster:           cluster.DefaultRegistryConfig(),
		Subscription:      subscription.DefaultConfig(),
	}
}

// Advertised is the address peers dial
func (c *Config) Advertised() string {
	return validation.DefaultOr(c.Address, c.ListenAddress)
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	v := validation.NewConfigValidator("NodeConfig").
		Custom("Plant", func() error { return validation.ValidateName("plant", c.Plant) }).
		SocketAddress("ListenAddress", c.ListenAddress).
		SocketAddress("RepositoryAddress", c.RepositoryAddress).
		When(c.Address != "", func(v *validation.ConfigValidator) {
			v.SocketAddress("Address", c.Address)
		})
	c.RPC.validate(v)

	proxyConfig := c.proxyConfig()
	return errors.Join(v.Validate(),
		proxyConfig.Validate(),
		c.Watchdog.Validate(),
		c.Cluster.Validate(),
		c.Subscription.Validate(),
		c.TLS.Validate())
}

func (c *Config) proxyConfig() proxy.Config {
	pc := c.Proxy
	pc.Plant = validation.DefaultOr(pc.Plant, c.Plant)
	return pc
}

// RepositoryConfig is the configuration of the task repository process
type RepositoryConfig struct {
	Name          string `yaml:"name"`           // Reported by ping
	ListenAddress string `yaml:"listen_address"` // RPC bind address
	HTTPAddress   string `yaml:"http_address"`
	LogLevel      string `yaml:"log_level"`

	Log      logging.FileConfig `yaml:"log"`
	TLS      petasostls.Config  `yaml:"tls"`
	RPC      RPCConfig          `yaml:"rpc"`
	Store    StoreConfig        `yaml:"store"`
	Watchdog watchdog.Config    `yaml:"watchdog"`
	Archive  archive.S3Config   `yaml:"archive"`
}

// StoreConfig selects the durable store behind the repository
type StoreConfig struct {
	Driver      string              `yaml:"driver"` // memory (default) or postgres
	DatabaseURL string              `yaml:"database_url"`
	Postgres    repository.PGConfig `yaml:"postgres"`
}

// DefaultRepositoryConfig returns the default repository configuration
func DefaultRepositoryConfig() RepositoryConfig {
	return RepositoryConfig{
		Name:          "repository",
		ListenAddress: "tcp://0.0.0.0:7000",
		HTTPAddress:   ":8100",
		LogLevel:      "info",
		TLS:           petasostls.DefaultConfig(),
		RPC:           defaultRPCConfig(),
		Store: StoreConfig{
			Driver:   StoreMemory,
			Postgres: repository.DefaultPGConfig(),
		},
		Watchdog: watchdog.DefaultConfig(),
	}
}

// Validate checks if configuration is valid
func (c *RepositoryConfig) Validate() error {
	v := validation.NewConfigValidator("RepositoryConfig").
		Required("Name", c.Name).
		SocketAddress("ListenAddress", c.ListenAddress).
		OneOf("Store.Driver", c.Store.Driver, []string{StoreMemory, StorePostgres}).
		When(c.Store.Driver == StorePostgres, func(v *validation.ConfigValidator) {
			v.Required("Store.DatabaseURL", c.Store.DatabaseURL)
		})
	c.RPC.validate(v)
	return errors.Join(v.Validate(), c.Watchdog.Validate(), c.TLS.Validate())
}

// LoadConfig reads a node configuration file over the defaults. An empty
// path yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if err := decodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	cfg.LogLevel = validation.DefaultOr(os.Getenv(LogLevelEnv), cfg.LogLevel)
	return cfg, nil
}

// LoadRepositoryConfig reads a repository configuration file over the
// defaults.
func LoadRepositoryConfig(path string) (RepositoryConfig, error) {
	cfg := DefaultRepositoryConfig()
	if err := decodeFile(path, &cfg); err != nil {
		return RepositoryConfig{}, err
	}
	cfg.LogLevel = validation.DefaultOr(os.Getenv(LogLevelEnv), cfg.LogLevel)
	return cfg, nil
}

func decodeFile(path string, out any) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return decode(f, out)
}

func decode(r io.Reader, out any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}
