package metrics

import "time"

// Agent is the narrow metrics surface the coordination components report through.
type Agent interface {
	IncrementRemoteProcedureCallCount(method string)
	IncrementRemoteProcedureCallFailureCount(method string)
	UpdateLocalCacheStatus(name string, size int)
	TouchWatchDogActivityIndicator(name string)
}

// NopAgent discards everything.
type NopAgent struct{}

func (NopAgent) IncrementRemoteProcedureCallCount(string)        {}
func (NopAgent) IncrementRemoteProcedureCallFailureCount(string) {}
func (NopAgent) UpdateLocalCacheStatus(string, int)              {}
func (NopAgent) TouchWatchDogActivityIndicator(string)           {}

// OrNop returns agent, or a NopAgent when agent is nil.
func OrNop(agent Agent) Agent {
	if agent == nil {
		return NopAgent{}
	}
	return agent
}

// IncrementRemoteProcedureCallCount implements Agent
func (r *Registry) IncrementRemoteProcedureCallCount(method string) {
	r.RPCCallsTotal.WithLabelValues(method).Inc()
}

// IncrementRemoteProcedureCallFailureCount implements Agent
func (r *Registry) IncrementRemoteProcedureCallFailureCount(method string) {
	r.RPCFailuresTotal.WithLabelValues(method).Inc()
}

// UpdateLocalCacheStatus implements Agent
func (r *Registry) UpdateLocalCacheStatus(name string, size int) {
	r.CacheEntries.WithLabelValues(name).Set(float64(size))
}

// TouchWatchDogActivityIndicator implements Agent
func (r *Registry) TouchWatchDogActivityIndicator(name string) {
	r.WatchdogLastActivity.WithLabelValues(name).Set(float64(time.Now().Unix()))
}
