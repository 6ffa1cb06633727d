package participant

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-petasos/pkg/logging"
	"github.com/dd0wney/cluso-petasos/pkg/parcel"
)

type fakeRepo struct {
	mu           sync.Mutex
	registered   []Registration
	updated      []Registration
	deregistered []Registration
	statuses     []map[string]Status
	sets         [][]Registration
	setAnswer    []Registration
	err          error
}

func (f *fakeRepo) RegisterParticipant(_ context.Context, reg Registration) (*Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, reg)
	return &reg, f.err
}

func (f *fakeRepo) UpdateParticipant(_ context.Context, reg Registration) (*Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, reg)
	return &reg, f.err
}

func (f *fakeRepo) DeregisterParticipant(_ context.Context, reg Registration) (*Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deregistered = append(f.deregistered, reg)
	return &reg, f.err
}

func (f *fakeRepo) UpdateParticipantRegistrationSet(_ context.Context, _ string, set []Registration) ([]Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append(f.sets, set)
	if f.err != nil {
		return nil, f.err
	}
	return f.setAnswer, nil
}

func (f *fakeRepo) UpdateParticipantStatusSet(_ context.Context, _ string, set map[string]Status) (map[string]Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, set)
	return set, f.err
}

type recordingHandoff struct {
	mu    sync.Mutex
	calls map[string][]parcel.Mask
}

func (h *recordingHandoff) AddSubscription(subscriber string, masks []parcel.Mask) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.calls == nil {
		h.calls = make(map[string][]parcel.Mask)
	}
	h.calls[subscriber] = append(h.calls[subscriber], masks...)
}

var (
	labResult = parcel.TypeDescriptor{Domain: "clinical", Category: "lab", Resource: "Observation"}
	admission = parcel.TypeDescriptor{Domain: "admin", Resource: "Encounter"}
)

func newTestRegistry(repo RepositoryClient) *Registry {
	return NewRegistry(Config{Plant: "lab.plant-1", Address: "tcp://10.0.0.1:7000"}, repo, nil, logging.NewNopLogger())
}

func TestRegisterParticipant_SplitsLocalAndRemoteMasks(t *testing.T) {
	repo := &fakeRepo{}
	h := &recordingHandoff{}
	r := newTestRegistry(repo)
	r.SetSubscriptionHandoff(h)

	p := r.RegisterParticipant(context.Background(), "lab.results", KindWorkUnitProcessor,
		[]parcel.Manifest{{Descriptor: labResult, Source: "lab.results"}},
		[]parcel.Mask{
			{Descriptor: admission},                          // wildcard source
			{Descriptor: admission, Source: "lab.intake"},    // own service
			{Descriptor: admission, Source: "pas.encounter"}, // another service
		})

	require.NotNil(t, p)
	assert.Equal(t, "lab", p.Service)
	assert.Equal(t, "lab.plant-1", p.ProcessingPlant)
	assert.Len(t, p.Subscriptions, 2)
	assert.Len(t, p.RemoteSubscriptions, 1)
	assert.Equal(t, []parcel.Mask{{Descriptor: admission, Source: "pas.encounter"}}, h.calls["lab.results"])

	require.Len(t, repo.registered, 1)
	assert.Equal(t, "lab.results", repo.registered[0].Name())
	assert.Equal(t, StatusRegistered, repo.registered[0].Status)
}

func TestRegisterParticipant_InvalidName(t *testing.T) {
	r := newTestRegistry(nil)
	assert.Nil(t, r.RegisterParticipant(context.Background(), "", KindWorkUnitProcessor, nil, nil))
	assert.Nil(t, r.RegisterParticipant(context.Background(), "bad name", KindWorkUnitProcessor, nil, nil))
	assert.Equal(t, 0, r.Size())
}

func TestRegisterParticipant_MasksAreAdditive(t *testing.T) {
	repo := &fakeRepo{}
	r := newTestRegistry(repo)
	ctx := context.Background()

	r.RegisterParticipant(ctx, "lab.results", KindWorkUnitProcessor, nil, []parcel.Mask{{Descriptor: admission}})
	p := r.RegisterParticipant(ctx, "lab.results", KindWorkUnitProcessor, nil, []parcel.Mask{{Descriptor: admission}, {Descriptor: labResult}})

	assert.Len(t, p.Subscriptions, 2)
	assert.Len(t, repo.registered, 1)
	assert.Len(t, repo.updated, 1)
}

func TestGetSubscriberSet_RegistrationOrder(t *testing.T) {
	r := newTestRegistry(nil)
	ctx := context.Background()

	r.RegisterParticipant(ctx, "lab.zeta", KindWorkUnitProcessor, nil, []parcel.Mask{{Descriptor: parcel.TypeDescriptor{Domain: "clinical"}}})
	r.RegisterParticipant(ctx, "lab.alpha", KindWorkUnitProcessor, nil, []parcel.Mask{{Descriptor: labResult}})
	r.RegisterParticipant(ctx, "lab.other", KindWorkUnitProcessor, nil, []parcel.Mask{{Descriptor: admission}})
	r.RegisterParticipant(ctx, "lab.results", KindWorkUnitProcessor, nil, []parcel.Mask{{Descriptor: labResult}})

	m := parcel.Manifest{Descriptor: labResult, Source: "lab.results"}
	subs := r.GetSubscriberSet(m)

	names := make([]string, len(subs))
	for i, p := range subs {
		names[i] = p.Name
	}
	assert.Equal(t, []string{"lab.zeta", "lab.alpha"}, names, "publisher must not subscribe to itself")
}

func TestGetSubscriberSet_SourceScoped(t *testing.T) {
	r := newTestRegistry(nil)
	ctx := context.Background()
	r.RegisterParticipant(ctx, "lab.consumer", KindWorkUnitProcessor, nil,
		[]parcel.Mask{{Descriptor: labResult, Source: "lab.analyser"}})

	assert.Len(t, r.GetSubscriberSet(parcel.Manifest{Descriptor: labResult, Source: "lab.analyser"}), 1)
	assert.Empty(t, r.GetSubscriberSet(parcel.Manifest{Descriptor: labResult, Source: "lab.other"}))
}

func TestGetSubscriberSet_ReturnsCopies(t *testing.T) {
	r := newTestRegistry(nil)
	r.RegisterParticipant(context.Background(), "lab.consumer", KindWorkUnitProcessor, nil, []parcel.Mask{{Descriptor: labResult}})

	subs := r.GetSubscriberSet(parcel.Manifest{Descriptor: labResult})
	require.Len(t, subs, 1)
	subs[0].Subscriptions = nil

	assert.Len(t, r.Get("lab.consumer").Subscriptions, 1)
}

func TestUpdateProducedWorkItems_Union(t *testing.T) {
	repo := &fakeRepo{}
	r := newTestRegistry(repo)
	ctx := context.Background()
	r.RegisterParticipant(ctx, "lab.results", KindWorkUnitProcessor,
		[]parcel.Manifest{{Descriptor: labResult}}, nil)

	assert.False(t, r.UpdateProducedWorkItems(ctx, "lab.results", []parcel.Manifest{{Descriptor: labResult}}))
	assert.Empty(t, repo.updated)

	assert.True(t, r.UpdateProducedWorkItems(ctx, "lab.results", []parcel.Manifest{{Descriptor: labResult}, {Descriptor: admission}}))
	assert.Len(t, r.Get("lab.results").Published, 2)
	require.Len(t, repo.updated, 1)
	assert.Len(t, repo.updated[0].Participant.Published, 2)

	assert.False(t, r.UpdateProducedWorkItems(ctx, "lab.unknown", []parcel.Manifest{{Descriptor: admission}}))
}

func TestDeregisterParticipant_RemovesMasks(t *testing.T) {
	repo := &fakeRepo{}
	r := newTestRegistry(repo)
	ctx := context.Background()
	r.RegisterParticipant(ctx, "lab.consumer", KindWorkUnitProcessor, nil, []parcel.Mask{{Descriptor: labResult}})

	removed := r.DeregisterParticipant(ctx, "lab.consumer")
	require.NotNil(t, removed)
	assert.Equal(t, StatusDeregistered, removed.Status)
	assert.Empty(t, r.GetSubscriberSet(parcel.Manifest{Descriptor: labResult}))
	assert.Nil(t, r.DeregisterParticipant(ctx, "lab.consumer"))
	assert.Len(t, repo.deregistered, 1)
}

func TestAddRemoteSubscriber(t *testing.T) {
	r := newTestRegistry(nil)

	resp := r.AddRemoteSubscriber(SubscriptionRequest{
		Subscriber:        "pas.encounter",
		SubscriberPlant:   "pas.plant-2",
		SubscriberService: "pas",
		SubscriberAddress: "tcp://10.0.0.2:7000",
		PublisherService:  "lab",
		Masks:             []parcel.Mask{{Descriptor: labResult, Source: "lab"}},
	})
	require.True(t, resp.Successful, resp.Commentary)
	assert.Equal(t, string(StatusActive), resp.NetworkStatus)

	subs := r.GetSubscriberSet(parcel.Manifest{Descriptor: labResult, Source: "lab.results"})
	require.Len(t, subs, 1)
	assert.Equal(t, KindRemoteSubscriber, subs[0].Kind)
	assert.Equal(t, "tcp://10.0.0.2:7000", subs[0].Address)

	// Remote subscribers are not pushed as local registrations
	assert.Empty(t, r.Registrations())
}

func TestAddRemoteSubscriber_Rejections(t *testing.T) {
	r := newTestRegistry(nil)

	resp := r.AddRemoteSubscriber(SubscriptionRequest{
		Subscriber:        "pas.encounter",
		SubscriberService: "pas",
		PublisherService:  "pharmacy",
		Masks:             []parcel.Mask{{Descriptor: labResult}},
	})
	assert.False(t, resp.Successful)
	assert.Contains(t, resp.Commentary, "pharmacy")

	resp = r.AddRemoteSubscriber(SubscriptionRequest{Subscriber: "pas.encounter", PublisherService: "lab"})
	assert.False(t, resp.Successful)
	assert.Equal(t, 0, r.Size())
}

func TestSetStatusAndSynchronise(t *testing.T) {
	repo := &fakeRepo{}
	r := newTestRegistry(repo)
	ctx := context.Background()
	r.RegisterParticipant(ctx, "lab.results", KindWorkUnitProcessor, nil, nil)

	require.NoError(t, r.SetStatus(ctx, "lab.results", StatusIdle))
	assert.Equal(t, StatusIdle, r.Get("lab.results").Status)
	require.Len(t, repo.statuses, 1)
	assert.Equal(t, StatusIdle, repo.statuses[0]["lab.results"])
	assert.ErrorIs(t, r.SetStatus(ctx, "lab.unknown", StatusIdle), ErrUnknownParticipant)

	repo.setAnswer = []Registration{{Participant: Participant{Name: "lab.results"}, Status: StatusActive}}
	require.NoError(t, r.Synchronise(ctx))
	assert.Equal(t, StatusActive, r.Get("lab.results").Status)

	repo.err = errors.New("unreachable")
	assert.Error(t, r.Synchronise(ctx))
}

func TestEndpoints(t *testing.T) {
	regs := []Registration{
		{Participant: Participant{Name: "lab.results", Kind: KindWorkUnitProcessor, ProcessingPlant: "lab.plant-1", Service: "lab", Address: "tcp://a:1"}},
		{Participant: Participant{Name: "lab.intake", Kind: KindWorkUnitProcessor, ProcessingPlant: "lab.plant-1", Service: "lab", Address: "tcp://a:1"}},
		{Participant: Participant{Name: "pas.plant-2", Kind: KindProcessingPlant, Address: "tcp://b:1"}},
		{Participant: Participant{Name: "pas.remote", Kind: KindRemoteSubscriber, Address: "tcp://c:1"}},
		{Participant: Participant{Name: "x.gone", Kind: KindProcessingPlant, Address: "tcp://d:1"}, Status: StatusDeregistered},
	}

	eps := Endpoints(regs)
	require.Len(t, eps, 2)
	assert.Equal(t, "lab.plant-1", eps[0].Name)
	assert.Equal(t, "lab", eps[0].ServiceName)
	assert.Equal(t, "pas.plant-2", eps[1].Name)
	assert.Equal(t, "pas", eps[1].ServiceName)
}
