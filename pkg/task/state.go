package task

var transitions = map[ExecutionStatus][]ExecutionStatus{
	StatusWaiting:   {StatusAssigned, StatusExecuting, StatusCancelled, StatusFailed},
	StatusAssigned:  {StatusExecuting, StatusWaiting, StatusCancelled, StatusFailed},
	StatusExecuting: {StatusFinished, StatusFailed, StatusCancelled, StatusWaiting},
	StatusFinished:  {StatusFinalised},
	StatusFailed:    {StatusFinalised},
	StatusCancelled: {StatusFinalised},
	StatusFinalised: nil,
}

// CanTransition reports whether a task may move from one status to another.
// Staying in the same status is always allowed.
func CanTransition(from, to ExecutionStatus) bool {
	if from == to {
		_, known := transitions[to]
		return known
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// DirectiveFor maps a task status to the command its executor should obey.
func DirectiveFor(status ExecutionStatus) ExecutionCommand {
	switch status {
	case StatusWaiting:
		return CommandWait
	case StatusAssigned, StatusExecuting:
		return CommandExecute
	case StatusFinished, StatusFailed, StatusCancelled:
		return CommandFinalise
	default:
		return CommandNoAction
	}
}

// FulfillmentStatusFor is the fulfillment status recorded when a task
// enters the given execution status.
func FulfillmentStatusFor(status ExecutionStatus) FulfillmentStatus {
	switch status {
	case StatusWaiting:
		return FulfillmentRegistered
	case StatusAssigned:
		return FulfillmentInitiated
	case StatusExecuting:
		return FulfillmentActive
	case StatusFinished:
		return FulfillmentFinished
	case StatusFailed:
		return FulfillmentFailed
	case StatusCancelled:
		return FulfillmentCancelled
	case StatusFinalised:
		return FulfillmentFinalised
	}
	return FulfillmentUnregistered
}

// OutcomeFor is the outcome recorded when a task enters the given status.
// Finalisation keeps whatever outcome the task finished with.
func OutcomeFor(status ExecutionStatus) OutcomeStatus {
	switch status {
	case StatusWaiting, StatusAssigned:
		return OutcomeWaiting
	case StatusExecuting:
		return OutcomeActive
	case StatusFinished:
		return OutcomeFinished
	case StatusFailed:
		return OutcomeFailed
	case StatusCancelled:
		return OutcomeCancelled
	}
	return OutcomeUnknown
}
