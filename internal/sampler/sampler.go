// Package sampler generates the pixel coordinates submitted for
// classification. Sampling depends only on image dimensions and the
// requested count, never on pixel content, so a rerun over the same
// image always lands on the same coordinates.
package sampler

import (
	"fmt"
	"math"

	"github.com/tidalbase/quadrat/internal/domain"
)

// Coordinate is one sampled pixel position, in row/column order.
type Coordinate struct {
	Row    int
	Column int
}

// Margin excludes a border strip from sampling on each axis, in pixels.
type Margin struct {
	X int
	Y int
}

// GeneratePoints lays a near-uniform grid over the image interior and
// returns its coordinates in row-major order.
//
// The grid side is derived from numPoints as ceil(sqrt(n)), so the
// returned count is side squared and may differ from numPoints when n
// is not a perfect square. Uniform coverage is the contract here, not
// an exact count.
func GeneratePoints(width, height, numPoints int, margin Margin) ([]Coordinate, error) {
	const op = "sampler.generate_points"

	if numPoints < 1 {
		return nil, domain.Invalid(op, "Number of points must be positive")
	}
	if margin.X < 0 || margin.Y < 0 {
		return nil, domain.Invalid(op, "Margins cannot be negative")
	}

	side := int(math.Ceil(math.Sqrt(float64(numPoints)))) + 1
	shiftX := float64(width-2*margin.X) / float64(side)
	shiftY := float64(height-2*margin.Y) / float64(side)
	side--

	if shiftX < 1 || shiftY < 1 {
		return nil, domain.Invalid(op,
			fmt.Sprintf("Image of %dx%d is too small to sample %d points", width, height, numPoints))
	}

	startX := float64(margin.X) + shiftX
	startY := float64(margin.Y) + shiftY

	points := make([]Coordinate, 0, side*side)
	for i := 0; i < side; i++ {
		for j := 0; j < side; j++ {
			points = append(points, Coordinate{
				Row:    int(math.Floor(startY + shiftY*float64(i))),
				Column: int(math.Floor(startX + shiftX*float64(j))),
			})
		}
	}
	return points, nil
}
