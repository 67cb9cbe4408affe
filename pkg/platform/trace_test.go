package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStateTrace(t *testing.T) {
	trace, err := ParseStateTrace("PERIODICITY 1000\n100 0\n500 1\n")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, trace.Periodicity)
	require.Len(t, trace.Transitions, 2)
	assert.Equal(t, StateTransition{Time: 100, On: false}, trace.Transitions[0])
	assert.Equal(t, StateTransition{Time: 500, On: true}, trace.Transitions[1])
}

func TestParseStateTraceRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing periodicity", "100 0\n"},
		{"bad state value", "PERIODICITY 10\n5 2\n"},
		{"bad timestamp", "PERIODICITY 10\nabc 1\n"},
		{"transition past period", "PERIODICITY 10\n20 1\n"},
		{"extra fields", "PERIODICITY 10\n1 0 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseStateTrace(tt.content)
			assert.Error(t, err)
		})
	}
}

func TestStateTraceScheduleRepeatsPeriodically(t *testing.T) {
	trace, err := ParseStateTrace("PERIODICITY 100\n10 0\n50 1\n")
	require.NoError(t, err)
	out := trace.Schedule(2)
	require.Len(t, out, 4)
	assert.Equal(t, 10.0, out[0].Time)
	assert.Equal(t, 50.0, out[1].Time)
	assert.Equal(t, 110.0, out[2].Time)
	assert.Equal(t, 150.0, out[3].Time)
}
