// Package domain contains core business types and interfaces.
//
// This file defines the Image domain type for uploaded photo-quadrats and
// the constraints applied to them at upload time.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Image Constants
// =============================================================================

// SupportedImageTypes maps MIME types to their human-readable names.
// Only JPEG and PNG are supported (HEIC requires CGO).
var SupportedImageTypes = map[string]string{
	"image/jpeg": "JPEG",
	"image/png":  "PNG",
}

const (
	// MaxImageSize is the maximum allowed size for uploaded images (30MB).
	MaxImageSize = 30 * 1024 * 1024

	// ThumbnailMaxDimension bounds both edges of generated thumbnails.
	ThumbnailMaxDimension = 500

	// ThumbnailJPEGQuality is the JPEG quality for thumbnail generation (0-100).
	ThumbnailJPEGQuality = 85

	// ChecksumChunkSize is the read size used when hashing image blobs.
	// Blobs can exceed available memory, so hashing always streams.
	ChecksumChunkSize = 64 * 1024
)

// =============================================================================
// Image Domain Type
// =============================================================================

// GeoPoint is a decimal-degree coordinate pair extracted from EXIF GPS tags.
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// Image represents one uploaded photo-quadrat tied to a collect record.
//
// Preprocessing mutates Data, Location, PhotoTimestamp, Width and Height once
// before the record is first persisted. Checksum and ThumbnailKey change only
// when the underlying blob content changes.
type Image struct {
	ID               uuid.UUID      // Unique identifier
	CollectRecordID  uuid.UUID      // Owning data-collection record
	SiteID           uuid.UUID      // Site the quadrat was photographed at
	StorageKey       string         // Key in the blob store for the original image
	ThumbnailKey     string         // Key in the blob store for the thumbnail
	OriginalName     string         // Original filename from upload
	Checksum         string         // SHA-256 of the blob the thumbnail was built from
	ContentType      string         // MIME type (e.g., "image/jpeg")
	SizeBytes        int64          // File size in bytes
	Width            int32          // Pixel width after orientation correction
	Height           int32          // Pixel height after orientation correction
	Data             map[string]any // Free-form metadata; parsed EXIF lives under "exif"
	Location         *GeoPoint      // Optional EXIF-derived geolocation
	PhotoTimestamp   *time.Time     // Optional EXIF-derived capture instant (UTC)
	Bucket           string         // Storage bucket identifier
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasThumbnail reports whether a thumbnail has been generated for the
// current blob content.
func (i *Image) HasThumbnail() bool {
	return i.ThumbnailKey != "" && i.Checksum != ""
}

// =============================================================================
// Validation Helpers
// =============================================================================

// IsValidImageContentType checks if the content type is supported.
func IsValidImageContentType(contentType string) bool {
	_, ok := SupportedImageTypes[contentType]
	return ok
}

// ValidateImageSize checks if the file size is within limits.
func ValidateImageSize(size int64) error {
	if size > MaxImageSize {
		return Errorf(ETOOLARGE, "image.validate", "Image size %d bytes exceeds maximum of %d bytes", size, MaxImageSize)
	}
	if size == 0 {
		return Invalid("image.validate", "Image file is empty")
	}
	return nil
}
