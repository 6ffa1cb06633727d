package subscription

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dd0wney/cluso-petasos/pkg/cluster"
	"github.com/dd0wney/cluso-petasos/pkg/logging"
	"github.com/dd0wney/cluso-petasos/pkg/parcel"
	"github.com/dd0wney/cluso-petasos/pkg/participant"
)

// Peers reaches publisher instances
type Peers interface {
	GetParticipantRegistration(ctx context.Context, address, name string) (*participant.Registration, error)
	RequestSubscription(ctx context.Context, address string, req participant.SubscriptionRequest) (*participant.SubscriptionResponse, error)
}

// Membership lists the live endpoints of a service
type Membership interface {
	GetLiveServiceMembers(service string) []cluster.EndpointSummary
}

// Recorder receives subscription metrics
type Recorder interface {
	UpdateSubscriptionStatus(counts map[string]int)
	RecordSubscriptionRequest(result string)
}

// Identity is the subscribing plant
type Identity struct {
	Plant   string
	Service string
	Address string
}

// Manager holds this plant's subscriptions to publisher services and
// reconciles them against the live membership of each service.
//
// Concurrent Safety:
// 1. mu guards services; RPCs are issued with mu released
// 2. Results are applied by instance name, so a pass tolerates concurrent
//    AddSubscription and MarkUnreachable calls
type Manager struct {
	self     Identity
	services map[string]*ServiceRegistration
	mu       sync.Mutex

	peers    Peers
	members  Membership
	timeout  time.Duration
	recorder Recorder
	logger   logging.Logger
	now      func() time.Time

	onChange func()
}

// NewManager creates a manager. recorder may be nil.
func NewManager(self Identity, peers Peers, members Membership, config Config, recorder Recorder, logger logging.Logger) *Manager {
	if self.Service == "" {
		self.Service = parcel.ServiceOf(self.Plant)
	}
	return &Manager{
		self:     self,
		services: make(map[string]*ServiceRegistration),
		peers:    peers,
		members:  members,
		timeout:  config.RequestTimeout,
		recorder: recorder,
		logger:   logging.OrDefault(logger).With(logging.Component("subscription-manager")),
		now:      time.Now,
	}
}

// OnChange sets a callback run after subscriptions are added or an instance
// becomes unreachable.
func (m *Manager) OnChange(fn func()) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// AddSubscription records masks for subscriber, grouped by the publisher
// service each mask names. Masks without a remote source are ignored.
func (m *Manager) AddSubscription(subscriber string, masks []parcel.Mask) {
	byService := make(map[string][]parcel.Mask)
	for _, k := range masks {
		svc := k.SourceService()
		if svc == "" || svc == m.self.Service {
			m.logger.Debug("ignoring mask without a remote publisher", logging.Participant(subscriber))
			continue
		}
		byService[svc] = append(byService[svc], k)
	}
	if len(byService) == 0 {
		return
	}

	now := m.now()
	m.mu.Lock()
	for svc, ks := range byService {
		reg, ok := m.services[svc]
		if !ok {
			reg = &ServiceRegistration{
				PublisherService: svc,
				Subscriber:       m.self.Plant,
				Status:           StatusPendingNoProviders,
			}
			m.services[svc] = reg
		}
		var changed bool
		reg.Masks, changed = parcel.UnionMasks(reg.Masks, ks)
		if !slices.Contains(reg.Participants, subscriber) {
			reg.Participants = append(reg.Participants, subscriber)
		}
		if changed {
			// Active instances must learn the new masks
			for i := range reg.Instances {
				if reg.Instances[i].Status == InstanceActive {
					reg.Instances[i].Status = InstanceRegistered
				}
			}
		}
		reg.UpdateInstant = now
	}
	fn := m.onChange
	m.mu.Unlock()

	m.logger.Info("subscriptions added",
		logging.Participant(subscriber), logging.Int("services", len(byService)))
	if fn != nil {
		fn()
	}
}

// MarkUnreachable flags every instance with the given endpoint name. It
// reports whether any subscription was affected.
func (m *Manager) MarkUnreachable(name string) bool {
	affected := false
	m.mu.Lock()
	for _, reg := range m.services {
		if inst := reg.instance(name); inst != nil && inst.Status != InstanceUnreachable {
			inst.Status = InstanceUnreachable
			inst.Commentary = "endpoint down"
			reg.deriveStatus()
			affected = true
		}
	}
	fn := m.onChange
	m.mu.Unlock()

	if affected {
		m.logger.Info("publisher instance unreachable", logging.Endpoint(name))
		if fn != nil {
			fn()
		}
	}
	return affected
}

// HasService reports whether a subscription to service exists
func (m *Manager) HasService(service string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.services[service]
	return ok
}

// Get returns a copy of the registration for service
func (m *Manager) Get(service string) (ServiceRegistration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.services[service]
	if !ok {
		return ServiceRegistration{}, false
	}
	return reg.Clone(), true
}

// Services returns copies of every registration, sorted by service
func (m *Manager) Services() []ServiceRegistration {
	m.mu.Lock()
	out := make([]ServiceRegistration, 0, len(m.services))
	for _, reg := range m.services {
		out = append(out, reg.Clone())
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].PublisherService < out[j].PublisherService })
	return out
}

// Pending returns the number of services without an active provider
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, reg := range m.services {
		if reg.Status != StatusActive {
			n++
		}
	}
	return n
}

type request struct {
	service string
	inst    InstanceRegistration
	req     participant.SubscriptionRequest
}

// Reconcile runs one full pass over every publisher service and returns the
// number of services still without an active provider.
func (m *Manager) Reconcile(ctx context.Context) int {
	m.discoverInstances(ctx)

	for _, r := range m.pendingRequests() {
		resp, err := m.request(ctx, r)
		m.applyResult(r, resp, err)
	}

	pending := m.Pending()
	m.report()
	return pending
}

// discoverInstances adds live members of each service that are not yet
// known, fetching their identity from the instance itself.
func (m *Manager) discoverInstances(ctx context.Context) {
	if m.members == nil {
		return
	}

	for _, svc := range m.serviceNames() {
		for _, ep := range m.members.GetLiveServiceMembers(svc) {
			if m.knowsInstance(svc, ep.Name) {
				continue
			}
			inst := InstanceRegistration{Name: ep.Name, Address: ep.Address, Status: InstanceRegistered}

			callCtx, cancel := context.WithTimeout(ctx, m.timeout)
			reg, err := m.peers.GetParticipantRegistration(callCtx, ep.Address, ep.Name)
			cancel()
			if err != nil {
				m.logger.Warn("failed to fetch publisher identity",
					logging.Service(svc), logging.Endpoint(ep.Name), logging.Error(err))
				continue
			}
			if reg != nil && reg.Participant.Address != "" {
				inst.Address = reg.Participant.Address
			}

			m.mu.Lock()
			if sr, ok := m.services[svc]; ok && sr.instance(inst.Name) == nil {
				sr.Instances = append(sr.Instances, inst)
				m.logger.Info("publisher instance registered",
					logging.Service(svc), logging.Endpoint(inst.Name), logging.Address(inst.Address))
			}
			m.mu.Unlock()
		}
	}
}

func (m *Manager) pendingRequests() []request {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []request
	for svc, reg := range m.services {
		for _, inst := range reg.Instances {
			if !inst.NeedsRequest() {
				continue
			}
			out = append(out, request{
				service: svc,
				inst:    inst,
				req: participant.SubscriptionRequest{
					Subscriber:        m.self.Plant,
					SubscriberPlant:   m.self.Plant,
					SubscriberService: m.self.Service,
					SubscriberAddress: m.self.Address,
					PublisherService:  svc,
					Masks:             append([]parcel.Mask(nil), reg.Masks...),
					Instant:           now,
				},
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].service == out[j].service {
			return out[i].inst.Name < out[j].inst.Name
		}
		return out[i].service < out[j].service
	})
	return out
}

func (m *Manager) request(ctx context.Context, r request) (*participant.SubscriptionResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.peers.RequestSubscription(callCtx, r.inst.Address, r.req)
}

func (m *Manager) applyResult(r request, resp *participant.SubscriptionResponse, err error) {
	result := "accepted"
	status := InstanceActive
	commentary := ""
	switch {
	case err != nil:
		result, status, commentary = "failed", InstanceUnreachable, err.Error()
	case resp == nil:
		result, status, commentary = "failed", InstanceUnreachable, "no response"
	case !resp.Successful:
		result, status, commentary = "refused", InstanceUnreachable, resp.Commentary
	default:
		commentary = resp.Commentary
	}
	if m.recorder != nil {
		m.recorder.RecordSubscriptionRequest(result)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.services[r.service]
	if !ok {
		return
	}
	inst := reg.instance(r.inst.Name)
	if inst == nil {
		return
	}
	inst.Status = status
	inst.Commentary = commentary
	inst.LastRequestInstant = m.now()
	prev := reg.Status
	reg.deriveStatus()
	reg.UpdateInstant = inst.LastRequestInstant

	if status == InstanceActive {
		if prev != StatusActive {
			m.logger.Info("subscription active",
				logging.Service(r.service), logging.Endpoint(inst.Name))
		}
		return
	}
	m.logger.Warn("subscription request unsuccessful",
		logging.Service(r.service), logging.Endpoint(inst.Name), logging.String("commentary", commentary))
}

func (m *Manager) report() {
	if m.recorder == nil {
		return
	}
	counts := map[string]int{
		string(StatusActive):             0,
		string(StatusPendingNoProviders): 0,
	}
	m.mu.Lock()
	for _, reg := range m.services {
		counts[string(reg.Status)]++
	}
	m.mu.Unlock()
	m.recorder.UpdateSubscriptionStatus(counts)
}

func (m *Manager) serviceNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.services))
	for svc := range m.services {
		out = append(out, svc)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) knowsInstance(service, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	reg, ok := m.services[service]
	return ok && reg.instance(name) != nil
}
