// Package task holds the task coordination data model: actionable tasks,
// their fulfillment attempts, the job card lease and the execution state
// machine.
package task

import "github.com/google/uuid"

// TaskID identifies an ActionableTask. ID is the cache key everywhere;
// BusinessID is an optional stable identifier supplied by the submitter.
type TaskID struct {
	ID         string `json:"id" validate:"required"`
	BusinessID string `json:"businessId,omitempty"`
}

// NewTaskID allocates a fresh random identifier.
func NewTaskID(businessID string) TaskID {
	return TaskID{ID: uuid.NewString(), BusinessID: businessID}
}

func (id TaskID) IsZero() bool { return id.ID == "" }

func (id TaskID) String() string {
	if id.BusinessID == "" {
		return id.ID
	}
	return id.ID + " (" + id.BusinessID + ")"
}
