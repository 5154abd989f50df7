// Copyright (c) 2025-2026 Jordan Beaumont
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"errors"
	"os"

	"github.com/jbeaumont/floret/internal/util"
)

// ErrNoSnapshot is returned by a backend when no snapshot has been
// persisted yet.
var ErrNoSnapshot = errors.New("no snapshot")

// Backend persists the serialized conversation snapshot under a single key.
type Backend interface {
	// Load returns the last saved snapshot, or ErrNoSnapshot.
	Load() ([]byte, error)

	// Save replaces the snapshot.
	Save(data []byte) error

	// Close releases backend resources.
	Close() error
}

// =============================================================================
// FILE BACKEND
// =============================================================================

// FileBackend stores the snapshot as a single JSON file with atomic
// replacement on every save.
type FileBackend struct {
	path string
}

// NewFileBackend creates a file backend at the given path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Load reads the snapshot file.
func (b *FileBackend) Load() ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSnapshot
		}
		return nil, err
	}
	return data, nil
}

// Save writes the snapshot atomically.
func (b *FileBackend) Save(data []byte) error {
	return util.AtomicWriteFile(b.path, data, 0644)
}

// Close is a no-op for the file backend.
func (b *FileBackend) Close() error {
	return nil
}
