// Package artifacts maintains the local cache of versioned classifier
// files. Model artifacts live in the blob store under one directory per
// classifier version; jobs need them on local disk, and a version is
// fetched at most once per host.
package artifacts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidalbase/quadrat/internal/domain"
	"github.com/tidalbase/quadrat/internal/metrics"
	"github.com/tidalbase/quadrat/internal/storage"
)

// Fixed file names inside each version directory, local and remote.
const (
	ClassifierFileName = "classifier.bin"
	WeightsFileName    = "weights.bin"
)

// Files points at the locally cached artifacts for one classifier version.
type Files struct {
	ClassifierPath string
	WeightsPath    string
}

// Cache fetches remote artifact directories into a local root, one
// subdirectory per version. Concurrent callers for the same version are
// safe: downloads land in a temp directory and are renamed into place,
// so a reader either sees a complete version directory or none at all.
type Cache struct {
	root         string
	remotePrefix string
	store        storage.Storage
	logger       *slog.Logger
}

func NewCache(root, remotePrefix string, store storage.Storage, logger *slog.Logger) *Cache {
	return &Cache{
		root:         root,
		remotePrefix: remotePrefix,
		store:        store,
		logger:       logger,
	}
}

// GetArtifacts returns local paths to the classifier and weights files
// for a version, downloading the remote version directory on first use.
func (c *Cache) GetArtifacts(ctx context.Context, version string) (*Files, error) {
	const op = "artifacts.get_artifacts"

	if version == "" || strings.ContainsAny(version, "/\\") {
		return nil, domain.Invalid(op, "Classifier version is not a valid cache key")
	}

	files := c.localFiles(version)
	if filesExist(files) {
		metrics.ArtifactCacheLookups.WithLabelValues("hit").Inc()
		return files, nil
	}
	metrics.ArtifactCacheLookups.WithLabelValues("miss").Inc()

	if err := c.fetchVersion(ctx, version); err != nil {
		return nil, err
	}
	return c.localFiles(version), nil
}

func (c *Cache) localFiles(version string) *Files {
	dir := filepath.Join(c.root, version)
	return &Files{
		ClassifierPath: filepath.Join(dir, ClassifierFileName),
		WeightsPath:    filepath.Join(dir, WeightsFileName),
	}
}

func filesExist(f *Files) bool {
	for _, path := range []string{f.ClassifierPath, f.WeightsPath} {
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}
	return true
}

// fetchVersion downloads the whole remote directory tree for a version
// into a temp directory under the cache root, then renames it into place.
func (c *Cache) fetchVersion(ctx context.Context, version string) error {
	const op = "artifacts.fetch_version"

	remoteDir := storage.ArtifactKey(c.remotePrefix, version, "") + "/"
	keys, err := c.store.List(ctx, remoteDir)
	if err != nil {
		return domain.Internal(err, op, "failed to list remote artifacts")
	}
	if len(keys) == 0 {
		return domain.NotFound(op, "artifacts for classifier version", version)
	}

	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return domain.Internal(err, op, "failed to create artifact cache root")
	}
	tmp, err := os.MkdirTemp(c.root, version+".partial-")
	if err != nil {
		return domain.Internal(err, op, "failed to create download directory")
	}
	defer os.RemoveAll(tmp)

	for _, key := range keys {
		rel := strings.TrimPrefix(key, remoteDir)
		if rel == "" {
			continue
		}
		if err := c.download(ctx, key, filepath.Join(tmp, filepath.FromSlash(rel))); err != nil {
			return domain.Internal(err, op, fmt.Sprintf("failed to download artifact %s", key))
		}
	}

	// Validate before publishing so the cache never holds a version
	// directory that is missing one of the fixed-name files.
	for _, name := range []string{ClassifierFileName, WeightsFileName} {
		if _, err := os.Stat(filepath.Join(tmp, name)); err != nil {
			return domain.Internal(
				fmt.Errorf("version %s is missing %s", version, name),
				op, "Remote artifact directory is incomplete")
		}
	}

	dest := filepath.Join(c.root, version)
	if err := os.Rename(tmp, dest); err != nil {
		// A concurrent job won the rename. Its copy is complete, keep it.
		if _, statErr := os.Stat(dest); statErr == nil {
			c.logger.Debug("artifact version cached concurrently", slog.String("version", version))
			return nil
		}
		return domain.Internal(err, op, "failed to move artifacts into cache")
	}

	c.logger.Info("cached classifier artifacts",
		slog.String("version", version),
		slog.Int("files", len(keys)))
	return nil
}

func (c *Cache) download(ctx context.Context, key, dest string) error {
	body, _, err := c.store.Get(ctx, key)
	if err != nil {
		return err
	}
	defer body.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
