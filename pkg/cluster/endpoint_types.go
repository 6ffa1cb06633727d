// Package cluster tracks the remote integration points a node knows about:
// which service each endpoint belongs to, whether it is live, and when it is
// due for a reachability re-check.
package cluster

import (
	"sync"
	"time"

	"github.com/dd0wney/cluso-petasos/pkg/logging"
	"github.com/dd0wney/cluso-petasos/pkg/pubsub"
)

// EndpointSummary describes one addressable remote peer
type EndpointSummary struct {
	Name        string    `json:"name"`
	Address     string    `json:"address"`
	ServiceName string    `json:"serviceName"`
	Live        bool      `json:"live"`
	LastRefresh time.Time `json:"lastRefresh"`
	LastChecked time.Time `json:"lastChecked"`
}

// CheckEntry is a pending reachability re-check
type CheckEntry struct {
	Identifier string
	Removed    bool
	Added      bool
	RetryCount int
	TargetTime time.Time
}

// EndpointRegistry tracks endpoints, their service membership and the check
// schedule.
//
// Concurrent Safety:
// 1. mu guards endpoints, membership and the lock table
// 2. scheduleMu guards the check schedule independently
// 3. Per-endpoint locks serialise probe-and-update sequences and outlive
//    the endpoint they guard
// 4. Query methods return copies
type EndpointRegistry struct {
	endpoints  map[string]*EndpointSummary // endpoint name -> summary
	locks      map[string]*sync.Mutex      // endpoint name -> lock
	members    map[string][]string         // service name -> ordered endpoint names
	serviceOf  map[string]string           // endpoint name -> service name
	mu         sync.RWMutex
	schedule   map[string]*CheckEntry
	scheduleMu sync.Mutex
	checkDelay time.Duration
	now        func() time.Time
	events     pubsub.Publisher
	logger     logging.Logger
}

// NewEndpointRegistry creates an empty registry. A nil publisher or logger
// is replaced with a no-op.
func NewEndpointRegistry(config RegistryConfig, events pubsub.Publisher, logger logging.Logger) *EndpointRegistry {
	return &EndpointRegistry{
		endpoints:  make(map[string]*EndpointSummary),
		locks:      make(map[string]*sync.Mutex),
		members:    make(map[string][]string),
		serviceOf:  make(map[string]string),
		schedule:   make(map[string]*CheckEntry),
		checkDelay: config.CheckDelay,
		now:        time.Now,
		events:     pubsub.OrNop(events),
		logger:     logging.OrDefault(logger).With(logging.Component("endpoint-registry")),
	}
}
