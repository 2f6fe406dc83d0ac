package blockchain

import (
	"github.com/looplab/fsm"
)

// Lifecycle states of the chain state.
const (
	StateLoading         = "Loading"
	StateInitialDownload = "InitialDownload"
	StateRunning         = "Running"
	StateVerifying       = "Verifying"
	StateAborted         = "Aborted"
	StateStopped         = "Stopped"
)

// Lifecycle events.
const (
	EventLoaded   = "loaded"
	EventCaughtUp = "caughtUp"
	EventAbort    = "abort"
	EventStop     = "stop"
)

// NewFiniteStateMachine creates the lifecycle state machine of the chain state.
// The finite state machine has the following states:
// - Loading: the block index is being read
// - InitialDownload: the tip is too old or has too little work
// - Running: the tip is recent, IBD has latched off
// - Aborted: a write failed and the state on disk can no longer be trusted to
// match memory, no further blocks or transactions are processed
// - Stopped
// Verifying is entered and left by VerifyDB directly, it has no events.
func NewFiniteStateMachine(opts ...func(*fsm.FSM)) *fsm.FSM {
	finiteStateMachine := fsm.NewFSM(
		StateLoading,
		fsm.Events{
			{Name: EventLoaded, Src: []string{StateLoading}, Dst: StateInitialDownload},
			{Name: EventCaughtUp, Src: []string{StateInitialDownload}, Dst: StateRunning},
			{
				Name: EventAbort,
				Src: []string{
					StateLoading,
					StateInitialDownload,
					StateRunning,
					StateVerifying,
				},
				Dst: StateAborted,
			},
			{
				Name: EventStop,
				Src: []string{
					StateLoading,
					StateInitialDownload,
					StateRunning,
				},
				Dst: StateStopped,
			},
		},
		fsm.Callbacks{},
	)

	// apply options
	for _, opt := range opts {
		opt(finiteStateMachine)
	}

	return finiteStateMachine
}
