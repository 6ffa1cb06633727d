// Package repository is the authoritative task and participant repository:
// the cluster-wide task grid, per-performer work queues and the participant
// registration set, backed by a durable Store.
package repository

import (
	"context"

	"github.com/dd0wney/cluso-petasos/pkg/participant"
	"github.com/dd0wney/cluso-petasos/pkg/task"
)

// Store defines the interface for repository persistence
type Store interface {
	SaveTask(ctx context.Context, t *task.ActionableTask) error
	DeleteTask(ctx context.Context, id task.TaskID) error
	ListTasks(ctx context.Context) ([]*task.ActionableTask, error)
	SaveRegistration(ctx context.Context, reg participant.Registration) error
	DeleteRegistration(ctx context.Context, name string) error
	ListRegistrations(ctx context.Context) ([]participant.Registration, error)
	Ping(ctx context.Context) error
	Close() error
}
