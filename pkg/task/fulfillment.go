package task

import (
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-petasos/pkg/parcel"
)

// FulfillmentTask is one execution attempt against an ActionableTask.
type FulfillmentTask struct {
	ID                  string            `json:"id" validate:"required"`
	ActionableTaskID    TaskID            `json:"actionableTaskId"`
	Fulfiller           Fulfiller         `json:"fulfiller"`
	Status              FulfillmentStatus `json:"status,omitempty"`
	RegistrationInstant time.Time         `json:"registrationInstant"`
	StartInstant        time.Time         `json:"startInstant"`
	FinishInstant       time.Time         `json:"finishInstant"`
	UpdateInstant       time.Time         `json:"updateInstant"`
	Retry               bool              `json:"retry,omitempty"`
	Egress              []parcel.Manifest `json:"egress,omitempty"`
}

// NewFulfillmentTask registers a new attempt for the given task.
func NewFulfillmentTask(taskID TaskID, fulfiller Fulfiller, now time.Time) *FulfillmentTask {
	return &FulfillmentTask{
		ID:                  uuid.NewString(),
		ActionableTaskID:    taskID,
		Fulfiller:           fulfiller,
		Status:              FulfillmentRegistered,
		RegistrationInstant: now,
		UpdateInstant:       now,
	}
}

func (f *FulfillmentTask) Clone() *FulfillmentTask {
	if f == nil {
		return nil
	}
	c := *f
	c.Egress = parcel.CloneAll(f.Egress)
	return &c
}

func (f *FulfillmentTask) IsTerminal() bool { return f.Status.IsTerminal() }

// Age is the time since the attempt was last updated.
func (f *FulfillmentTask) Age(now time.Time) time.Duration {
	return now.Sub(f.UpdateInstant)
}
