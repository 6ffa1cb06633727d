package participant

import "errors"

var (
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrWrongPublisher     = errors.New("subscription request addressed to another service")
)
