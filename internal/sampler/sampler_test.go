package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidalbase/quadrat/internal/domain"
)

func TestGeneratePoints(t *testing.T) {
	t.Run("25 points on a landscape image", func(t *testing.T) {
		points, err := GeneratePoints(1920, 1080, 25, Margin{})
		require.NoError(t, err)

		assert.Len(t, points, 25, "ceil(sqrt(25)) gives a 5x5 grid")

		for _, p := range points {
			assert.GreaterOrEqual(t, p.Row, 0)
			assert.Less(t, p.Row, 1080)
			assert.GreaterOrEqual(t, p.Column, 0)
			assert.Less(t, p.Column, 1920)
		}

		// Row-major: rows are non-decreasing, columns cycle.
		for i := 1; i < len(points); i++ {
			assert.GreaterOrEqual(t, points[i].Row, points[i-1].Row)
		}
	})

	t.Run("non-square counts round up to the next grid", func(t *testing.T) {
		points, err := GeneratePoints(1000, 1000, 10, Margin{})
		require.NoError(t, err)
		assert.Len(t, points, 16, "ceil(sqrt(10)) gives a 4x4 grid")
	})

	t.Run("deterministic across calls", func(t *testing.T) {
		a, err := GeneratePoints(1024, 768, 25, Margin{X: 10, Y: 20})
		require.NoError(t, err)
		b, err := GeneratePoints(1024, 768, 25, Margin{X: 10, Y: 20})
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("margin bounds the sampled region", func(t *testing.T) {
		margin := Margin{X: 100, Y: 50}
		points, err := GeneratePoints(800, 600, 25, margin)
		require.NoError(t, err)

		for _, p := range points {
			assert.GreaterOrEqual(t, p.Row, margin.Y)
			assert.Less(t, p.Row, 600-margin.Y)
			assert.GreaterOrEqual(t, p.Column, margin.X)
			assert.Less(t, p.Column, 800-margin.X)
		}
	})

	t.Run("single point lands mid-image", func(t *testing.T) {
		points, err := GeneratePoints(100, 100, 1, Margin{})
		require.NoError(t, err)
		require.Len(t, points, 1)
		assert.Equal(t, Coordinate{Row: 50, Column: 50}, points[0])
	})

	t.Run("rejects invalid inputs", func(t *testing.T) {
		_, err := GeneratePoints(1920, 1080, 0, Margin{})
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

		_, err = GeneratePoints(1920, 1080, 25, Margin{X: -1})
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

		_, err = GeneratePoints(5, 5, 25, Margin{})
		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err), "grid cells would collapse")
	})
}
