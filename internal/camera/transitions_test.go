// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package camera

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allEvents = []EventKind{
	EvAcquire,
	EvFirstFrame,
	EvAcquireFailed,
	EvTimeout,
	EvCaptureStart,
	EvCaptureDone,
	EvCaptureFailed,
	EvStop,
}

func TestTransitionTable_Coverage(t *testing.T) {
	allowedEdges := map[State]map[EventKind]struct{}{}
	for _, tr := range transitionsTable {
		if _, ok := allowedEdges[tr.From]; !ok {
			allowedEdges[tr.From] = map[EventKind]struct{}{}
		}
		if _, exists := allowedEdges[tr.From][tr.Event]; exists {
			t.Fatalf("duplicate transition: %s + %v", tr.From, tr.Event)
		}
		allowedEdges[tr.From][tr.Event] = struct{}{}
	}

	for _, state := range States {
		for _, ev := range allEvents {
			decision, ok := DecisionFor(state, ev)
			require.True(t, ok, "missing decision for %s + %v", state, ev)
			if _, ok := allowedEdges[state][ev]; ok {
				require.True(t, decision.Allowed, "allowed transition must be marked allowed for %s + %v", state, ev)
				continue
			}
			require.False(t, decision.Allowed, "forbidden transition must be marked forbidden for %s + %v", state, ev)
			require.NotEmpty(t, decision.Reason, "forbidden transition must have reason for %s + %v", state, ev)
		}
	}
}

func TestTransitionTable_StopAlwaysLandsIdle(t *testing.T) {
	for _, state := range States {
		next, err := Next(state, EvStop)
		require.NoError(t, err)
		assert.Equal(t, StateIdle, next, "stop from %s", state)
	}
}

func TestNext_RejectsIllegalEdges(t *testing.T) {
	tests := []struct {
		from State
		ev   EventKind
	}{
		{StateIdle, EvCaptureStart},
		{StateAcquiring, EvCaptureStart},
		{StateCapturing, EvAcquire},
		{StateFailed, EvFirstFrame},
		{StateReady, EvTimeout},
		{StateIdle, EvUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"+"+tt.ev.String(), func(t *testing.T) {
			next, err := Next(tt.from, tt.ev)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrIllegalTransition))
			assert.Equal(t, tt.from, next)
		})
	}
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "first_frame", EvFirstFrame.String())
	assert.Equal(t, "event(42)", EventKind(42).String())
}
