package imageproc

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"

	"github.com/tidalbase/quadrat/internal/domain"
)

// GenerateThumbnail scales a stored image blob down to fit within the
// thumbnail bounding box, preserving aspect ratio. Images already inside
// the box are re-encoded as-is rather than upscaled.
func GenerateThumbnail(blob []byte) ([]byte, error) {
	const op = "imageproc.generate_thumbnail"

	img, format, err := decode(blob)
	if err != nil {
		return nil, domain.Invalid(op, fmt.Sprintf("Not a decodable image: %v", err))
	}

	thumb := imaging.Fit(img, domain.ThumbnailMaxDimension, domain.ThumbnailMaxDimension, imaging.Lanczos)

	var buf bytes.Buffer
	var opts []imaging.EncodeOption
	if format == imaging.JPEG {
		opts = append(opts, imaging.JPEGQuality(domain.ThumbnailJPEGQuality))
	}
	if err := imaging.Encode(&buf, thumb, format, opts...); err != nil {
		return nil, domain.Internal(err, op, "failed to encode thumbnail")
	}
	return buf.Bytes(), nil
}
