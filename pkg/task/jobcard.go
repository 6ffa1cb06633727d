package task

import "time"

// JobCard is the lease granting execution rights over an ActionableTask.
type JobCard struct {
	ActionableTaskID           TaskID          `json:"actionableTaskId"`
	ExecutingFulfillmentTaskID string          `json:"executingFulfillmentTaskId,omitempty"`
	CurrentStatus              ExecutionStatus `json:"currentStatus,omitempty"`
	RequestedStatus            ExecutionStatus `json:"requestedStatus,omitempty"`
	GrantedStatus              ExecutionStatus `json:"grantedStatus,omitempty"`
	ProcessingPlant            string          `json:"processingPlant,omitempty"`
	WorkUnitProcessor          string          `json:"workUnitProcessor,omitempty"`
	CreationInstant            time.Time       `json:"creationInstant"`
	UpdateInstant              time.Time       `json:"updateInstant"`
	LastActivityCheckInstant   time.Time       `json:"lastActivityCheckInstant"`
}

// NewJobCard builds a card for taskID held by the given plant and processor.
func NewJobCard(taskID TaskID, plant, processor string, now time.Time) *JobCard {
	return &JobCard{
		ActionableTaskID:         taskID,
		CurrentStatus:            StatusWaiting,
		ProcessingPlant:          plant,
		WorkUnitProcessor:        processor,
		CreationInstant:          now,
		UpdateInstant:            now,
		LastActivityCheckInstant: now,
	}
}

// SetStatus records the current status. The executing fulfillment id is
// cleared whenever the status no longer holds the lease.
func (c *JobCard) SetStatus(status ExecutionStatus) {
	c.CurrentStatus = status
	if !status.HoldsLease() {
		c.ExecutingFulfillmentTaskID = ""
	}
}

// Assign attaches a fulfillment and moves the card to status. The id is
// only kept when status holds the lease.
func (c *JobCard) Assign(fulfillmentID string, status ExecutionStatus) {
	c.ExecutingFulfillmentTaskID = fulfillmentID
	c.SetStatus(status)
}

func (c *JobCard) Clone() *JobCard {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// Idle is the time since the card's last activity check.
func (c *JobCard) Idle(now time.Time) time.Duration {
	return now.Sub(c.LastActivityCheckInstant)
}
