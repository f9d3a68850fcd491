// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package camera

import "fmt"

// EventKind is a controller lifecycle event.
type EventKind int

const (
	EvUnknown EventKind = iota
	EvAcquire
	EvFirstFrame
	EvAcquireFailed
	EvTimeout
	EvCaptureStart
	EvCaptureDone
	EvCaptureFailed
	EvStop
)

var eventNames = map[EventKind]string{
	EvUnknown:       "unknown",
	EvAcquire:       "acquire",
	EvFirstFrame:    "first_frame",
	EvAcquireFailed: "acquire_failed",
	EvTimeout:       "timeout",
	EvCaptureStart:  "capture_start",
	EvCaptureDone:   "capture_done",
	EvCaptureFailed: "capture_failed",
	EvStop:          "stop",
}

func (e EventKind) String() string {
	if n, ok := eventNames[e]; ok {
		return n
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// Transition is a single allowed edge in the controller state machine.
type Transition struct {
	From  State
	To    State
	Event EventKind
}

// Decision records whether an event is allowed in a state and why not.
type Decision struct {
	Allowed bool
	Reason  string
}

var transitionsTable = []Transition{
	// Acquire path; acquiring+acquire restarts, ready+acquire is a switch, failed+acquire a retry
	{From: StateIdle, To: StateAcquiring, Event: EvAcquire},
	{From: StateAcquiring, To: StateAcquiring, Event: EvAcquire},
	{From: StateReady, To: StateAcquiring, Event: EvAcquire},
	{From: StateFailed, To: StateAcquiring, Event: EvAcquire},
	{From: StateAcquiring, To: StateReady, Event: EvFirstFrame},
	{From: StateAcquiring, To: StateFailed, Event: EvAcquireFailed},
	{From: StateAcquiring, To: StateFailed, Event: EvTimeout},

	// Capture path
	{From: StateReady, To: StateCapturing, Event: EvCaptureStart},
	{From: StateCapturing, To: StateIdle, Event: EvCaptureDone},
	{From: StateCapturing, To: StateReady, Event: EvCaptureFailed},

	// Stop is accepted everywhere and always lands in idle
	{From: StateIdle, To: StateIdle, Event: EvStop},
	{From: StateAcquiring, To: StateIdle, Event: EvStop},
	{From: StateReady, To: StateIdle, Event: EvStop},
	{From: StateCapturing, To: StateIdle, Event: EvStop},
	{From: StateFailed, To: StateIdle, Event: EvStop},
}

const (
	ForbiddenOutOfOrder        = "out_of_order"
	ForbiddenAlreadyInState    = "already_in_state"
	ForbiddenRequiresReady     = "requires_ready"
	ForbiddenRequiresAcquiring = "requires_acquiring"
	ForbiddenBusyCapturing     = "busy_capturing"
)

func allowed() Decision        { return Decision{Allowed: true} }
func forbid(r string) Decision { return Decision{Allowed: false, Reason: r} }

// decisionTable defines an explicit decision for every State×Event combination.
var decisionTable = map[State]map[EventKind]Decision{
	StateIdle: {
		EvAcquire:       allowed(),
		EvFirstFrame:    forbid(ForbiddenRequiresAcquiring),
		EvAcquireFailed: forbid(ForbiddenRequiresAcquiring),
		EvTimeout:       forbid(ForbiddenRequiresAcquiring),
		EvCaptureStart:  forbid(ForbiddenRequiresReady),
		EvCaptureDone:   forbid(ForbiddenOutOfOrder),
		EvCaptureFailed: forbid(ForbiddenOutOfOrder),
		EvStop:          allowed(),
	},
	StateAcquiring: {
		EvAcquire:       allowed(),
		EvFirstFrame:    allowed(),
		EvAcquireFailed: allowed(),
		EvTimeout:       allowed(),
		EvCaptureStart:  forbid(ForbiddenRequiresReady),
		EvCaptureDone:   forbid(ForbiddenOutOfOrder),
		EvCaptureFailed: forbid(ForbiddenOutOfOrder),
		EvStop:          allowed(),
	},
	StateReady: {
		EvAcquire:       allowed(),
		EvFirstFrame:    forbid(ForbiddenAlreadyInState),
		EvAcquireFailed: forbid(ForbiddenRequiresAcquiring),
		EvTimeout:       forbid(ForbiddenRequiresAcquiring),
		EvCaptureStart:  allowed(),
		EvCaptureDone:   forbid(ForbiddenOutOfOrder),
		EvCaptureFailed: forbid(ForbiddenOutOfOrder),
		EvStop:          allowed(),
	},
	StateCapturing: {
		EvAcquire:       forbid(ForbiddenBusyCapturing),
		EvFirstFrame:    forbid(ForbiddenOutOfOrder),
		EvAcquireFailed: forbid(ForbiddenRequiresAcquiring),
		EvTimeout:       forbid(ForbiddenRequiresAcquiring),
		EvCaptureStart:  forbid(ForbiddenAlreadyInState),
		EvCaptureDone:   allowed(),
		EvCaptureFailed: allowed(),
		EvStop:          allowed(),
	},
	StateFailed: {
		EvAcquire:       allowed(),
		EvFirstFrame:    forbid(ForbiddenRequiresAcquiring),
		EvAcquireFailed: forbid(ForbiddenAlreadyInState),
		EvTimeout:       forbid(ForbiddenAlreadyInState),
		EvCaptureStart:  forbid(ForbiddenRequiresReady),
		EvCaptureDone:   forbid(ForbiddenOutOfOrder),
		EvCaptureFailed: forbid(ForbiddenOutOfOrder),
		EvStop:          allowed(),
	},
}

// DecisionFor returns the explicit decision for a state and event.
func DecisionFor(state State, ev EventKind) (Decision, bool) {
	events, ok := decisionTable[state]
	if !ok {
		return Decision{}, false
	}
	d, ok := events[ev]
	return d, ok
}

// TransitionFor returns the edge leaving from on ev.
func TransitionFor(from State, ev EventKind) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}

// Next resolves the target state for ev, or an error wrapping
// ErrIllegalTransition. Nothing is applied on error.
func Next(from State, ev EventKind) (State, error) {
	decision, ok := DecisionFor(from, ev)
	if !ok {
		return from, fmt.Errorf("%w: %s + %s: no decision", ErrIllegalTransition, from, ev)
	}
	if !decision.Allowed {
		return from, fmt.Errorf("%w: %s + %s: %s", ErrIllegalTransition, from, ev, decision.Reason)
	}
	tr, ok := TransitionFor(from, ev)
	if !ok {
		return from, fmt.Errorf("%w: %s + %s: no edge", ErrIllegalTransition, from, ev)
	}
	return tr.To, nil
}
