package rpc

import (
	"context"

	"github.com/dd0wney/cluso-petasos/pkg/participant"
	"github.com/dd0wney/cluso-petasos/pkg/task"
)

// RepositoryClient is the typed client of the authoritative repository
type RepositoryClient struct {
	client  *Client
	address string
}

// NewRepositoryClient creates a stub calling the repository at address
func NewRepositoryClient(client *Client, address string) *RepositoryClient {
	return &RepositoryClient{client: client, address: address}
}

// Address returns the repository address
func (r *RepositoryClient) Address() string { return r.address }

func (r *RepositoryClient) taskCall(ctx context.Context, method Method, in any) (*task.ActionableTask, error) {
	var out *task.ActionableTask
	if err := r.client.Call(ctx, r.address, method, in, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RepositoryClient) RegisterActionableTask(ctx context.Context, t *task.ActionableTask) (*task.ActionableTask, error) {
	return r.taskCall(ctx, MethodRegisterActionableTask, t)
}

func (r *RepositoryClient) FulfillActionableTask(ctx context.Context, t *task.ActionableTask) (*task.ActionableTask, error) {
	return r.taskCall(ctx, MethodFulfillActionableTask, t)
}

func (r *RepositoryClient) UpdateActionableTask(ctx context.Context, t *task.ActionableTask) (*task.ActionableTask, error) {
	return r.taskCall(ctx, MethodUpdateActionableTask, t)
}

func (r *RepositoryClient) CancelActionableTask(ctx context.Context, id task.TaskID) (*task.ActionableTask, error) {
	return r.taskCall(ctx, MethodCancelActionableTask, TaskIDRequest{TaskID: id})
}

func (r *RepositoryClient) QueueTask(ctx context.Context, t *task.ActionableTask) (*task.TaskID, error) {
	var out *task.TaskID
	if err := r.client.Call(ctx, r.address, MethodQueueTask, t, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RepositoryClient) RetrieveNextPendingTask(ctx context.Context, performer string) (*task.ActionableTask, error) {
	return r.taskCall(ctx, MethodRetrieveNextPendingTask, PerformerRequest{Performer: performer})
}

func (r *RepositoryClient) registrationCall(ctx context.Context, method Method, in any) (*participant.Registration, error) {
	var out *participant.Registration
	if err := r.client.Call(ctx, r.address, method, in, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RepositoryClient) RegisterParticipant(ctx context.Context, reg participant.Registration) (*participant.Registration, error) {
	return r.registrationCall(ctx, MethodRegisterPetasosParticipant, reg)
}

func (r *RepositoryClient) UpdateParticipant(ctx context.Context, reg participant.Registration) (*participant.Registration, error) {
	return r.registrationCall(ctx, MethodUpdatePetasosParticipant, reg)
}

func (r *RepositoryClient) DeregisterParticipant(ctx context.Context, reg participant.Registration) (*participant.Registration, error) {
	return r.registrationCall(ctx, MethodDeregisterPetasosParticipant, reg)
}

func (r *RepositoryClient) GetParticipantRegistration(ctx context.Context, name string) (*participant.Registration, error) {
	return r.registrationCall(ctx, MethodGetPetasosParticipantRegistration, NameRequest{Name: name})
}

func (r *RepositoryClient) UpdateParticipantRegistrationSet(ctx context.Context, plant string, set []participant.Registration) ([]participant.Registration, error) {
	var out []participant.Registration
	err := r.client.Call(ctx, r.address, MethodUpdateParticipantRegistrationSet, RegistrationSetRequest{Plant: plant, Set: set}, &out)
	return out, err
}

func (r *RepositoryClient) UpdateParticipantStatusSet(ctx context.Context, plant string, set map[string]participant.Status) (map[string]participant.Status, error) {
	var out map[string]participant.Status
	err := r.client.Call(ctx, r.address, MethodUpdateParticipantStatusSet, StatusSetRequest{Plant: plant, Set: set}, &out)
	return out, err
}

func (r *RepositoryClient) GetAllRegistrations(ctx context.Context) ([]participant.Registration, error) {
	var out []participant.Registration
	err := r.client.Call(ctx, r.address, MethodGetAllRegistrations, Empty{}, &out)
	return out, err
}

// Ping checks the repository is answering
func (r *RepositoryClient) Ping(ctx context.Context) (*PingReply, error) {
	var out PingReply
	if err := r.client.Call(ctx, r.address, MethodPing, Empty{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

var (
	_ participant.RepositoryClient = (*RepositoryClient)(nil)
	_ RepositoryService            = (*RepositoryClient)(nil)
)

// PeerClient calls other processing plants
type PeerClient struct {
	client *Client
}

// NewPeerClient creates a peer stub
func NewPeerClient(client *Client) *PeerClient {
	return &PeerClient{client: client}
}

// Ping probes the node at address
func (p *PeerClient) Ping(ctx context.Context, address string) error {
	return p.client.Call(ctx, address, MethodPing, Empty{}, nil)
}

func (p *PeerClient) GetParticipantRegistration(ctx context.Context, address, name string) (*participant.Registration, error) {
	var out *participant.Registration
	if err := p.client.Call(ctx, address, MethodGetPetasosParticipantRegistration, NameRequest{Name: name}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *PeerClient) RequestSubscription(ctx context.Context, address string, req participant.SubscriptionRequest) (*participant.SubscriptionResponse, error) {
	var out participant.SubscriptionResponse
	if err := p.client.Call(ctx, address, MethodRequestSubscription, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
