package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassificationState_CanFollow(t *testing.T) {
	tests := []struct {
		name string
		prev ClassificationState
		next ClassificationState
		want bool
	}{
		// The single valid run sequence
		{"pending to running", ClassificationPending, ClassificationRunning, true},
		{"running to completed", ClassificationRunning, ClassificationCompleted, true},
		{"running to failed", ClassificationRunning, ClassificationFailed, true},

		// A terminal entry may be followed by a fresh run
		{"completed to pending", ClassificationCompleted, ClassificationPending, true},
		{"failed to pending", ClassificationFailed, ClassificationPending, true},

		// Everything else is invalid
		{"pending to completed", ClassificationPending, ClassificationCompleted, false},
		{"pending to failed", ClassificationPending, ClassificationFailed, false},
		{"pending to pending", ClassificationPending, ClassificationPending, false},
		{"running to pending", ClassificationRunning, ClassificationPending, false},
		{"running to running", ClassificationRunning, ClassificationRunning, false},
		{"completed to running", ClassificationCompleted, ClassificationRunning, false},
		{"failed to completed", ClassificationFailed, ClassificationCompleted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.next.CanFollow(tt.prev))
		})
	}
}

func TestClassificationState_IsTerminal(t *testing.T) {
	assert.False(t, ClassificationPending.IsTerminal())
	assert.False(t, ClassificationRunning.IsTerminal())
	assert.True(t, ClassificationCompleted.IsTerminal())
	assert.True(t, ClassificationFailed.IsTerminal())
}

func TestClassificationState_IsValid(t *testing.T) {
	for _, s := range []ClassificationState{
		ClassificationPending, ClassificationRunning,
		ClassificationCompleted, ClassificationFailed,
	} {
		assert.True(t, s.IsValid(), s)
	}
	assert.False(t, ClassificationState("queued").IsValid())
	assert.False(t, ClassificationState("").IsValid())
}
