// Package imageproc prepares uploaded photo-quadrats for classification.
//
// Preprocessing runs synchronously at upload time, before the image record
// is first persisted: it validates that the blob is a decodable raster,
// pulls EXIF metadata (geolocation, capture timestamp, orientation),
// normalizes the raster to upright, and computes the content checksum that
// gates thumbnail regeneration.
package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"

	"github.com/tidalbase/quadrat/internal/domain"
)

// Result is the outcome of preprocessing one uploaded blob.
type Result struct {
	// Blob is the image as it should be persisted: the original bytes when
	// the upload was already upright, or a re-encode in the original format
	// after orientation correction.
	Blob []byte

	Format   imaging.Format
	Width    int
	Height   int
	Checksum string // SHA-256 of Blob

	EXIF      map[string]any    // Normalized tag map; nil when no EXIF block
	Location  *domain.GeoPoint  // From GPS tags; nil when absent
	Timestamp *time.Time        // UTC capture instant; nil when absent
}

// Preprocess validates and normalizes an uploaded image blob.
//
// A non-decodable blob returns a domain EINVALID error. A missing or
// unreadable EXIF block is not an error: the image is treated as upright
// with no location or timestamp.
func Preprocess(data []byte) (*Result, error) {
	const op = "imageproc.preprocess"

	img, format, err := decode(data)
	if err != nil {
		return nil, domain.Invalid(op, fmt.Sprintf("Not a decodable image: %v", err))
	}

	exifMap := ParseEXIF(bytes.NewReader(data))

	img, rotated := CorrectOrientation(img, exifMap)

	// Only rewrite the blob when a rotation was actually applied;
	// an already-upright upload is stored byte for byte.
	blob := data
	if rotated {
		blob, err = encode(img, format)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to re-encode corrected image")
		}
	}

	sum, err := Checksum(bytes.NewReader(blob))
	if err != nil {
		return nil, domain.Internal(err, op, "failed to hash image")
	}

	bounds := img.Bounds()
	res := &Result{
		Blob:     blob,
		Format:   format,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Checksum: sum,
		EXIF:     exifMap,
	}
	if exifMap != nil {
		res.Location = ExtractGeolocation(exifMap)
		res.Timestamp = ExtractTimestamp(exifMap)
	}
	return res, nil
}

// decode parses the blob and identifies its encoding.
func decode(data []byte) (image.Image, imaging.Format, error) {
	img, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	format, err := imaging.FormatFromExtension(name)
	if err != nil {
		return nil, 0, fmt.Errorf("unsupported format %q", name)
	}
	return img, format, nil
}

// encode serializes the raster back to its original format.
func encode(img image.Image, format imaging.Format) ([]byte, error) {
	var buf bytes.Buffer
	var opts []imaging.EncodeOption
	if format == imaging.JPEG {
		opts = append(opts, imaging.JPEGQuality(95))
	}
	if err := imaging.Encode(&buf, img, format, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
