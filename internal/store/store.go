// Package store persists extraction metadata and content on a shared
// filesystem volume. Every extraction is two files under the same version
// directory: a meta.json record and, once extraction has finished, one blob
// per content format. Metadata may exist without content (the extraction is
// in progress, or failed); content never exists without metadata.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"arxiv-fulltext-service/internal/logger"
	"arxiv-fulltext-service/models"
)

var (
	// ErrDoesNotExist indicates that no metadata record exists for the
	// requested extraction.
	ErrDoesNotExist = errors.New("extraction does not exist")
	// ErrStorageFailed indicates a write-path I/O error; retriable from the
	// caller's point of view.
	ErrStorageFailed = errors.New("could not store content")
	// ErrConfigurationError indicates the volume is unreachable or
	// unwritable at construction time.
	ErrConfigurationError = errors.New("storage volume misconfigured")
)

// Store provides filesystem-backed persistence for extractions.
type Store struct {
	volume string
}

// New checks and prepares the storage volume.
func New(volume string) (*Store, error) {
	if volume == "" {
		return nil, fmt.Errorf("%w: empty volume path", ErrConfigurationError)
	}
	if err := os.MkdirAll(volume, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigurationError, err)
	}
	return &Store{volume: volume}, nil
}

// Volume returns the root path of the storage volume.
func (s *Store) Volume() string {
	return s.volume
}

// Store persists the metadata record for an extraction, and additionally the
// content blob when format names one of the supported formats and the
// extraction carries content. Parent directories are created as needed.
func (s *Store) Store(extraction *models.Extraction, format string) error {
	if format != "" && extraction.Content != "" {
		path := s.contentPath(extraction.Identifier, extraction.Version, format, extraction.Bucket)
		if err := s.write(path, []byte(extraction.Content)); err != nil {
			return err
		}
	}

	meta, err := json.Marshal(extraction)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	path := s.metaPath(extraction.Identifier, extraction.Version, extraction.Bucket)
	logger.Debug("storing extraction metadata",
		"identifier", extraction.Identifier, "path", path)
	return s.write(path, meta)
}

// Retrieve loads an extraction. When version is empty, the latest version is
// resolved. A missing content blob is not an error: the returned extraction
// simply carries no content, which is how an in-progress extraction is
// observable to readers.
func (s *Store) Retrieve(identifier, version, format, bucket string, metaOnly bool) (*models.Extraction, error) {
	if version == "" {
		var err error
		if version, err = s.latestVersion(identifier, bucket); err != nil {
			return nil, err
		}
	}

	raw, err := os.ReadFile(s.metaPath(identifier, version, bucket))
	if err != nil {
		return nil, ErrDoesNotExist
	}
	var extraction models.Extraction
	if err := json.Unmarshal(raw, &extraction); err != nil {
		return nil, fmt.Errorf("%w: corrupt metadata: %v", ErrStorageFailed, err)
	}
	if extraction.Bucket != bucket {
		return nil, ErrDoesNotExist
	}

	if !metaOnly {
		content, err := os.ReadFile(s.contentPath(identifier, version, format, bucket))
		if err == nil {
			extraction.Content = string(content)
		} else {
			logger.Debug("no content blob found; extraction may be in progress",
				"identifier", identifier, "version", version, "format", format)
		}
	}
	return &extraction, nil
}

// IsAvailable probes the volume by writing and removing a transient file.
func (s *Store) IsAvailable() bool {
	probe := filepath.Join(s.volume, ".probe", uuid.NewString())
	if err := s.write(probe, []byte("test")); err != nil {
		logger.Error("storage probe failed", "error", err)
		return false
	}
	os.Remove(probe)
	return true
}

// write creates any missing parent directories, then writes the file whole:
// content goes to a temp file in the target directory and is renamed into
// place, so readers on the shared volume never observe a partial file.
func (s *Store) write(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrStorageFailed, err)
	}
	return nil
}
