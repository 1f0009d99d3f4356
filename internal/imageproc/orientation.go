package imageproc

import (
	"image"

	"github.com/disintegration/imaging"
)

// CorrectOrientation rotates the raster upright according to the EXIF
// orientation tag. Only the pure-rotation codes are handled; the mirrored
// codes never show up on underwater camera rigs, and an absent or unknown
// code leaves the image untouched. The second return reports whether a
// rotation was applied.
func CorrectOrientation(img image.Image, tags map[string]any) (image.Image, bool) {
	switch Orientation(tags) {
	case 3:
		return imaging.Rotate180(img), true
	case 6:
		return imaging.Rotate270(img), true
	case 8:
		return imaging.Rotate90(img), true
	default:
		return img, false
	}
}
