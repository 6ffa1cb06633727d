package task

// ExecutionStatus is the state of an ActionableTask or the status recorded
// on its JobCard.
type ExecutionStatus string

const (
	StatusWaiting   ExecutionStatus = "WAITING"
	StatusAssigned  ExecutionStatus = "ASSIGNED"
	StatusExecuting ExecutionStatus = "EXECUTING"
	StatusFinished  ExecutionStatus = "FINISHED"
	StatusFailed    ExecutionStatus = "FAILED"
	StatusCancelled ExecutionStatus = "CANCELLED"
	StatusFinalised ExecutionStatus = "FINALISED"
)

// IsTerminal reports whether no further execution will happen.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusCancelled, StatusFinalised:
		return true
	}
	return false
}

// HoldsLease reports whether a job card in this status has an executing
// fulfillment attached.
func (s ExecutionStatus) HoldsLease() bool {
	return s == StatusAssigned || s == StatusExecuting
}

// FulfillmentStatus tracks one execution attempt.
type FulfillmentStatus string

const (
	FulfillmentUnregistered FulfillmentStatus = "UNREGISTERED"
	FulfillmentRegistered   FulfillmentStatus = "REGISTERED"
	FulfillmentInitiated    FulfillmentStatus = "INITIATED"
	FulfillmentActive       FulfillmentStatus = "ACTIVE"
	FulfillmentFinished     FulfillmentStatus = "FINISHED"
	FulfillmentFailed       FulfillmentStatus = "FAILED"
	FulfillmentCancelled    FulfillmentStatus = "CANCELLED"
	FulfillmentFinalised    FulfillmentStatus = "FINALISED"
)

func (s FulfillmentStatus) IsTerminal() bool {
	switch s {
	case FulfillmentFinished, FulfillmentFailed, FulfillmentCancelled, FulfillmentFinalised:
		return true
	}
	return false
}

// OutcomeStatus is the externally reported result of a task.
type OutcomeStatus string

const (
	OutcomeUnknown   OutcomeStatus = "UNKNOWN"
	OutcomeWaiting   OutcomeStatus = "WAITING"
	OutcomeActive    OutcomeStatus = "ACTIVE"
	OutcomeFinished  OutcomeStatus = "FINISHED"
	OutcomeFailed    OutcomeStatus = "FAILED"
	OutcomeCancelled OutcomeStatus = "CANCELLED"
)

// ExecutionCommand is the directive an executor must obey.
type ExecutionCommand string

const (
	CommandExecute  ExecutionCommand = "EXECUTE"
	CommandWait     ExecutionCommand = "WAIT"
	CommandCancel   ExecutionCommand = "CANCEL"
	CommandFinalise ExecutionCommand = "FINALISE"
	CommandNoAction ExecutionCommand = "NO_ACTION"
)

// QueueOutcome is the result of queueing a task.
type QueueOutcome string

const (
	QueueQueued           QueueOutcome = "QUEUED"
	QueueQueuedAutonomous QueueOutcome = "QUEUED_AUTONOMOUS"
	QueueRejected         QueueOutcome = "REJECTED"
)
