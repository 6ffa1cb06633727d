// Package rpc is the typed request/reply layer between processing plants
// and the authoritative task and participant repository.
package rpc

// Method names an RPC operation
type Method string

// Repository methods
const (
	MethodRegisterActionableTask            Method = "registerActionableTask"
	MethodFulfillActionableTask             Method = "fulfillActionableTask"
	MethodUpdateActionableTask              Method = "updateActionableTask"
	MethodCancelActionableTask              Method = "cancelActionableTask"
	MethodQueueTask                         Method = "queueTask"
	MethodRetrieveNextPendingTask           Method = "retrieveNextPendingTask"
	MethodRegisterPetasosParticipant        Method = "registerPetasosParticipant"
	MethodUpdatePetasosParticipant          Method = "updatePetasosParticipant"
	MethodDeregisterPetasosParticipant      Method = "deregisterPetasosParticipant"
	MethodGetPetasosParticipantRegistration Method = "getPetasosParticipantRegistration"
	MethodUpdateParticipantRegistrationSet  Method = "updateParticipantRegistrationSet"
	MethodUpdateParticipantStatusSet        Method = "updateParticipantStatusSet"
	MethodGetAllRegistrations               Method = "getAllRegistrations"
)

// Peer methods
const (
	MethodRequestSubscription Method = "requestSubscription"
	MethodPing                Method = "ping"
)

var knownMethods = map[Method]struct{}{
	MethodRegisterActionableTask:            {},
	MethodFulfillActionableTask:             {},
	MethodUpdateActionableTask:              {},
	MethodCancelActionableTask:              {},
	MethodQueueTask:                         {},
	MethodRetrieveNextPendingTask:           {},
	MethodRegisterPetasosParticipant:        {},
	MethodUpdatePetasosParticipant:          {},
	MethodDeregisterPetasosParticipant:      {},
	MethodGetPetasosParticipantRegistration: {},
	MethodUpdateParticipantRegistrationSet:  {},
	MethodUpdateParticipantStatusSet:        {},
	MethodGetAllRegistrations:               {},
	MethodRequestSubscription:               {},
	MethodPing:                              {},
}

// Known reports whether m is part of the protocol
func (m Method) Known() bool {
	_, ok := knownMethods[m]
	return ok
}

func (m Method) String() string { return string(m) }
