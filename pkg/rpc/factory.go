package rpc

import (
	"fmt"
	"sort"
	"sync"
)

// TransportMangos is the default transport
const TransportMangos = "mangos"

var (
	factoriesMu sync.RWMutex
	factories   = map[string]func() SocketFactory{
		TransportMangos: func() SocketFactory { return NewMangosSocketFactory() },
	}
)

func registerFactory(name string, fn func() SocketFactory) {
	factoriesMu.Lock()
	factories[name] = fn
	factoriesMu.Unlock()
}

// NewSocketFactory returns the factory registered under name. "zmq" is
// available only in binaries built with the zmq tag.
func NewSocketFactory(name string) (SocketFactory, error) {
	if name == "" {
		name = TransportMangos
	}
	factoriesMu.RLock()
	fn, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("rpc: unknown transport %q (available: %v)", name, Transports())
	}
	return fn(), nil
}

// Transports lists the registered transport names
func Transports() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
