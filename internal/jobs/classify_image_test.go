package jobs

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidalbase/quadrat/internal/infer"
	"github.com/tidalbase/quadrat/internal/repository"
)

func testLabel(labelID int32, benthic bool) repository.Label {
	l := repository.Label{ID: uuid.New(), LabelID: labelID}
	if benthic {
		l.BenthicAttributeID = uuid.NullUUID{UUID: uuid.New(), Valid: true}
	}
	return l
}

func TestRankLabels(t *testing.T) {
	labels := map[int64]repository.Label{
		1: testLabel(1, true),
		2: testLabel(2, true),
		3: testLabel(3, true),
		4: testLabel(4, true),
		9: testLabel(9, false), // unmapped: no benthic attribute
	}

	t.Run("orders by score and cuts at max", func(t *testing.T) {
		ranked := rankLabels(infer.PointScores{
			LabelIDs: []int64{1, 2, 3, 4},
			Scores:   []float64{0.1, 0.6, 0.25, 0.05},
		}, labels, 3)

		require.Len(t, ranked, 3)
		assert.Equal(t, labels[2].ID, ranked[0].Label.ID)
		assert.Equal(t, labels[3].ID, ranked[1].Label.ID)
		assert.Equal(t, labels[1].ID, ranked[2].Label.ID)
		assert.InDelta(t, 0.6, ranked[0].Probability, 1e-9)
	})

	t.Run("skips labels without a benthic attribute", func(t *testing.T) {
		ranked := rankLabels(infer.PointScores{
			LabelIDs: []int64{9, 1, 2},
			Scores:   []float64{0.9, 0.07, 0.03},
		}, labels, 3)

		require.Len(t, ranked, 2)
		assert.Equal(t, labels[1].ID, ranked[0].Label.ID)
		assert.Equal(t, labels[2].ID, ranked[1].Label.ID)
	})

	t.Run("skips unknown label ids", func(t *testing.T) {
		ranked := rankLabels(infer.PointScores{
			LabelIDs: []int64{77, 1},
			Scores:   []float64{0.8, 0.2},
		}, labels, 3)

		require.Len(t, ranked, 1)
		assert.Equal(t, labels[1].ID, ranked[0].Label.ID)
	})

	t.Run("fewer candidates than max", func(t *testing.T) {
		ranked := rankLabels(infer.PointScores{
			LabelIDs: []int64{1},
			Scores:   []float64{1},
		}, labels, 3)
		assert.Len(t, ranked, 1)
	})

	t.Run("empty scores", func(t *testing.T) {
		ranked := rankLabels(infer.PointScores{}, labels, 3)
		assert.Empty(t, ranked)
	})
}
