// Package storage provides the blob-store abstraction for uploaded images,
// thumbnails, feature caches, classifier artifacts and export files.
//
// Two implementations exist:
// - LocalStorage: filesystem storage for development
// - S3Storage: any S3-compatible object store for production
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Storage defines the interface for blob operations.
//
// All methods are context-aware for timeout and cancellation support.
type Storage interface {
	// Put stores data at the specified key with the given options.
	// Returns ErrKeyExists if the key exists and overwrite is disabled.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get retrieves the data at the specified key.
	// Returns the data as an io.ReadCloser (caller must close), object
	// metadata, and an error. Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Delete removes the object at the specified key.
	// Idempotent - no error is returned if the key doesn't exist.
	Delete(ctx context.Context, key string) error

	// List returns the keys of every object below the given prefix,
	// recursively. Used by the artifact cache to fetch whole version trees.
	List(ctx context.Context, prefix string) ([]string, error)

	// URL returns a URL for accessing the object at the specified key.
	// For private objects this is a presigned URL valid for the duration.
	URL(ctx context.Context, key string, expires time.Duration) (string, error)

	// Exists checks if an object exists at the specified key.
	Exists(ctx context.Context, key string) (bool, error)
}

// =============================================================================
// Data Types
// =============================================================================

// PutOptions configures how an object is stored.
type PutOptions struct {
	// ContentType specifies the MIME type of the object.
	// If empty, it will be auto-detected from the file extension or content.
	ContentType string

	// MaxSize specifies the maximum allowed size in bytes.
	// If the data exceeds this size, ErrTooLarge is returned.
	// A value of 0 means no limit.
	MaxSize int64

	// Overwrite allows replacing an existing object at the same key.
	// If false and the key exists, ErrKeyExists is returned.
	Overwrite bool

	// Public determines if the object should be publicly accessible.
	Public bool
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string    // Object key/path
	Size         int64     // Size in bytes
	ContentType  string    // MIME type
	LastModified time.Time // Last modification time
	ETag         string    // Entity tag (if available)
}

// =============================================================================
// Configuration Types
// =============================================================================

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	// BasePath is the root directory where files are stored.
	BasePath string

	// BaseURL is the public URL prefix for accessing files.
	BaseURL string
}

// S3Config holds configuration for S3-compatible storage.
type S3Config struct {
	// Endpoint overrides the service endpoint. Leave empty for AWS S3;
	// set for MinIO, R2 and other S3-compatible stores.
	Endpoint string

	// Region is the bucket's region.
	Region string

	// AccessKeyID and SecretAccessKey are the API credentials.
	AccessKeyID     string
	SecretAccessKey string

	// BucketName is the bucket to use.
	BucketName string

	// PublicURL is the public URL for the bucket (if using a custom domain).
	// If empty, presigned URLs are used for all access.
	PublicURL string
}

// =============================================================================
// Provider Constants
// =============================================================================

const (
	// ProviderLocal identifies the local filesystem storage provider.
	ProviderLocal = "local"

	// ProviderS3 identifies the S3-compatible storage provider.
	ProviderS3 = "s3"
)

// =============================================================================
// Key Layout
// =============================================================================

// ImageKey returns the storage key for an uploaded quadrat image. The name
// is the image's obfuscated storage name including extension.
//
// Format: collect_records/{recordID}/images/{name}
func ImageKey(collectRecordID uuid.UUID, name string) string {
	return fmt.Sprintf("collect_records/%s/images/%s", collectRecordID, name)
}

// ThumbnailKeyFor derives the thumbnail key from an image's storage key:
// the same path with "_thumbnail" inserted before the extension.
func ThumbnailKeyFor(imageKey string) string {
	ext := path.Ext(imageKey)
	return strings.TrimSuffix(imageKey, ext) + "_thumbnail" + ext
}

// FeatureKeyFor derives the feature-cache key from an image's storage key:
// the same path with the extension replaced.
func FeatureKeyFor(imageKey string) string {
	ext := path.Ext(imageKey)
	return strings.TrimSuffix(imageKey, ext) + ".feats"
}

// AnnotationsExportKey returns the key of a collect record's materialized
// annotations export.
func AnnotationsExportKey(collectRecordID uuid.UUID) string {
	return fmt.Sprintf("collect_records/%s/annotations.csv", collectRecordID)
}

// ArtifactKey returns the remote key of one model file for a classifier
// version below the configured remote prefix.
func ArtifactKey(remotePrefix, version, filename string) string {
	return path.Join(remotePrefix, version, filename)
}
