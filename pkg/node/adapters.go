package node

import (
	"context"

	"github.com/dd0wney/cluso-petasos/pkg/cluster"
	"github.com/dd0wney/cluso-petasos/pkg/participant"
)

// registrationSource lists peer endpoints from the repository's
// participant registrations
type registrationSource struct {
	repo interface {
		GetAllRegistrations(ctx context.Context) ([]participant.Registration, error)
	}
}

func (s registrationSource) ListEndpoints(ctx context.Context) ([]cluster.EndpointSummary, error) {
	regs, err := s.repo.GetAllRegistrations(ctx)
	if err != nil {
		return nil, err
	}
	return participant.Endpoints(regs), nil
}

// peerService answers peer RPCs from the local participant registry
type peerService struct {
	participants *participant.Registry
}

func (p peerService) GetParticipantRegistration(_ context.Context, name string) (*participant.Registration, error) {
	return p.participants.Registration(name), nil
}

func (p peerService) RequestSubscription(_ context.Context, req participant.SubscriptionRequest) (*participant.SubscriptionResponse, error) {
	resp := p.participants.AddRemoteSubscriber(req)
	return &resp, nil
}
