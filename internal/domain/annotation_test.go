package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func machineAnnotation(confirmed bool) Annotation {
	return Annotation{
		ID:                 uuid.New(),
		PointID:            uuid.New(),
		ClassifierID:       uuid.NullUUID{UUID: uuid.New(), Valid: true},
		BenthicAttributeID: uuid.New(),
		Score:              64,
		IsConfirmed:        confirmed,
		IsMachineCreated:   true,
	}
}

func humanAnnotation(confirmed bool) Annotation {
	return Annotation{
		ID:                 uuid.New(),
		PointID:            uuid.New(),
		BenthicAttributeID: uuid.New(),
		Score:              100,
		IsConfirmed:        confirmed,
		IsMachineCreated:   false,
	}
}

func TestValidateNewAnnotation(t *testing.T) {
	tests := []struct {
		name      string
		existing  []Annotation
		candidate Annotation
		wantCode  string // empty means no error
	}{
		{
			name:      "first machine annotation on empty point",
			existing:  nil,
			candidate: machineAnnotation(false),
		},
		{
			name:      "first human annotation on empty point",
			existing:  nil,
			candidate: humanAnnotation(false),
		},
		{
			name:      "human annotation alongside machine annotations",
			existing:  []Annotation{machineAnnotation(false), machineAnnotation(false)},
			candidate: humanAnnotation(false),
		},
		{
			name:      "second human annotation rejected",
			existing:  []Annotation{humanAnnotation(false)},
			candidate: humanAnnotation(false),
			wantCode:  ECONFLICT,
		},
		{
			name:      "second confirmed annotation rejected",
			existing:  []Annotation{machineAnnotation(true)},
			candidate: humanAnnotation(true),
			wantCode:  ECONFLICT,
		},
		{
			name:      "confirmed human next to unconfirmed machine is fine",
			existing:  []Annotation{machineAnnotation(false)},
			candidate: humanAnnotation(true),
		},
		{
			name:      "score above 100 rejected",
			existing:  nil,
			candidate: Annotation{Score: 101, IsMachineCreated: true},
			wantCode:  EINVALID,
		},
		{
			name:      "negative score rejected",
			existing:  nil,
			candidate: Annotation{Score: -1, IsMachineCreated: true},
			wantCode:  EINVALID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNewAnnotation(tt.existing, tt.candidate)
			if tt.wantCode == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Equal(t, tt.wantCode, ErrorCode(err))
			}
		})
	}
}

func TestValidateConfirm(t *testing.T) {
	confirmed := machineAnnotation(true)
	other := machineAnnotation(false)

	// Confirming the already-confirmed annotation is idempotent.
	assert.NoError(t, ValidateConfirm([]Annotation{confirmed, other}, confirmed.ID))

	// Confirming a second annotation on the same point is rejected.
	err := ValidateConfirm([]Annotation{confirmed, other}, other.ID)
	assert.Error(t, err)
	assert.Equal(t, ECONFLICT, ErrorCode(err))

	// No confirmed annotation yet.
	assert.NoError(t, ValidateConfirm([]Annotation{other}, other.ID))
}
