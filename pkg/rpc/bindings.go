package rpc

import (
	"context"
	"time"

	"github.com/dd0wney/cluso-petasos/pkg/parcel"
	"github.com/dd0wney/cluso-petasos/pkg/participant"
	"github.com/dd0wney/cluso-petasos/pkg/task"
)

// RepositoryService is the server side of the repository methods
type RepositoryService interface {
	RegisterActionableTask(ctx context.Context, t *task.ActionableTask) (*task.ActionableTask, error)
	FulfillActionableTask(ctx context.Context, t *task.ActionableTask) (*task.ActionableTask, error)
	UpdateActionableTask(ctx context.Context, t *task.ActionableTask) (*task.ActionableTask, error)
	CancelActionableTask(ctx context.Context, id task.TaskID) (*task.ActionableTask, error)
	QueueTask(ctx context.Context, t *task.ActionableTask) (*task.TaskID, error)
	RetrieveNextPendingTask(ctx context.Context, performer string) (*task.ActionableTask, error)
	RegisterParticipant(ctx context.Context, reg participant.Registration) (*participant.Registration, error)
	UpdateParticipant(ctx context.Context, reg participant.Registration) (*participant.Registration, error)
	DeregisterParticipant(ctx context.Context, reg participant.Registration) (*participant.Registration, error)
	GetParticipantRegistration(ctx context.Context, name string) (*participant.Registration, error)
	UpdateParticipantRegistrationSet(ctx context.Context, plant string, set []participant.Registration) ([]participant.Registration, error)
	UpdateParticipantStatusSet(ctx context.Context, plant string, set map[string]participant.Status) (map[string]participant.Status, error)
	GetAllRegistrations(ctx context.Context) ([]participant.Registration, error)
}

// PeerService is the server side of the peer methods
type PeerService interface {
	GetParticipantRegistration(ctx context.Context, name string) (*participant.Registration, error)
	RequestSubscription(ctx context.Context, req participant.SubscriptionRequest) (*participant.SubscriptionResponse, error)
}

// RegisterRepository binds svc's methods on s. name is reported by ping.
func RegisterRepository(s *Server, name string, svc RepositoryService) {
	Handle(s, MethodRegisterActionableTask, svc.RegisterActionableTask)
	Handle(s, MethodFulfillActionableTask, svc.FulfillActionableTask)
	Handle(s, MethodUpdateActionableTask, svc.UpdateActionableTask)
	Handle(s, MethodQueueTask, svc.QueueTask)
	Handle(s, MethodCancelActionableTask, func(ctx context.Context, req TaskIDRequest) (*task.ActionableTask, error) {
		if req.TaskID.IsZero() {
			return nil, Invalid(task.ErrMissingTaskID)
		}
		return svc.CancelActionableTask(ctx, req.TaskID)
	})
	Handle(s, MethodRetrieveNextPendingTask, func(ctx context.Context, req PerformerRequest) (*task.ActionableTask, error) {
		return svc.RetrieveNextPendingTask(ctx, req.Performer)
	})
	Handle(s, MethodRegisterPetasosParticipant, svc.RegisterParticipant)
	Handle(s, MethodUpdatePetasosParticipant, svc.UpdateParticipant)
	Handle(s, MethodDeregisterPetasosParticipant, svc.DeregisterParticipant)
	Handle(s, MethodGetPetasosParticipantRegistration, func(ctx context.Context, req NameRequest) (*participant.Registration, error) {
		return svc.GetParticipantRegistration(ctx, req.Name)
	})
	Handle(s, MethodUpdateParticipantRegistrationSet, func(ctx context.Context, req RegistrationSetRequest) ([]participant.Registration, error) {
		return svc.UpdateParticipantRegistrationSet(ctx, req.Plant, req.Set)
	})
	Handle(s, MethodUpdateParticipantStatusSet, func(ctx context.Context, req StatusSetRequest) (map[string]participant.Status, error) {
		return svc.UpdateParticipantStatusSet(ctx, req.Plant, req.Set)
	})
	Handle(s, MethodGetAllRegistrations, func(ctx context.Context, _ Empty) ([]participant.Registration, error) {
		return svc.GetAllRegistrations(ctx)
	})
	handlePing(s, name)
}

// RegisterPeer binds the peer methods on s
func RegisterPeer(s *Server, name string, svc PeerService) {
	Handle(s, MethodGetPetasosParticipantRegistration, func(ctx context.Context, req NameRequest) (*participant.Registration, error) {
		return svc.GetParticipantRegistration(ctx, req.Name)
	})
	Handle(s, MethodRequestSubscription, svc.RequestSubscription)
	handlePing(s, name)
}

func handlePing(s *Server, name string) {
	Handle(s, MethodPing, func(context.Context, Empty) (PingReply, error) {
		return PingReply{Name: name, Service: parcel.ServiceOf(name), Instant: time.Now()}, nil
	})
}
