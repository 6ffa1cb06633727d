package rpc

import (
	"time"

	"github.com/dd0wney/cluso-petasos/pkg/participant"
	"github.com/dd0wney/cluso-petasos/pkg/task"
)

// TaskIDRequest names a task
type TaskIDRequest struct {
	TaskID task.TaskID `json:"taskId"`
}

// PerformerRequest names the performer whose next task is wanted
type PerformerRequest struct {
	Performer string `json:"performer" validate:"required"`
}

// NameRequest names a participant
type NameRequest struct {
	Name string `json:"name" validate:"required,pname"`
}

// RegistrationSetRequest carries every registration of one plant
type RegistrationSetRequest struct {
	Plant string                     `json:"plant" validate:"required,pname"`
	Set   []participant.Registration `json:"set" validate:"dive"`
}

// StatusSetRequest carries participant statuses of one plant
type StatusSetRequest struct {
	Plant string                        `json:"plant" validate:"required,pname"`
	Set   map[string]participant.Status `json:"set"`
}

// Empty is the payload of methods without arguments
type Empty struct{}

// PingReply identifies the answering node
type PingReply struct {
	Name    string    `json:"name"`
	Service string    `json:"service"`
	Instant time.Time `json:"instant"`
}
