package mempool

import (
	"github.com/looplab/fsm"
)

// Admission states of a single transaction.
const (
	StateReceived       = "Received"
	StateSyntaxChecked  = "SyntaxChecked"
	StateInputsResolved = "InputsResolved"
	StatePolicyChecked  = "PolicyChecked"
	StateScriptsChecked = "ScriptsChecked"
	StateAccepted       = "Accepted"
	StateRejected       = "Rejected"
)

// Admission events. Each stage fires its event once its checks passed.
const (
	EventSyntaxChecked  = "syntaxChecked"
	EventInputsResolved = "inputsResolved"
	EventPolicyChecked  = "policyChecked"
	EventScriptsChecked = "scriptsChecked"
	EventAccept         = "accept"
	EventReject         = "reject"
)

// NewAcceptStateMachine creates the state machine one transaction walks through on
// its way into the pool:
// Received -> SyntaxChecked -> InputsResolved -> PolicyChecked -> ScriptsChecked -> Accepted
// Any state before Accepted can move to Rejected.
func NewAcceptStateMachine(opts ...func(*fsm.FSM)) *fsm.FSM {
	acceptFSM := fsm.NewFSM(
		StateReceived,
		fsm.Events{
			{Name: EventSyntaxChecked, Src: []string{StateReceived}, Dst: StateSyntaxChecked},
			{Name: EventInputsResolved, Src: []string{StateSyntaxChecked}, Dst: StateInputsResolved},
			{Name: EventPolicyChecked, Src: []string{StateInputsResolved}, Dst: StatePolicyChecked},
			{Name: EventScriptsChecked, Src: []string{StatePolicyChecked}, Dst: StateScriptsChecked},
			{Name: EventAccept, Src: []string{StateScriptsChecked}, Dst: StateAccepted},
			{
				Name: EventReject,
				Src: []string{
					StateReceived,
					StateSyntaxChecked,
					StateInputsResolved,
					StatePolicyChecked,
					StateScriptsChecked,
				},
				Dst: StateRejected,
			},
		},
		fsm.Callbacks{},
	)

	// apply options
	for _, opt := range opts {
		opt(acceptFSM)
	}

	return acceptFSM
}
