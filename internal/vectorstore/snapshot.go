package vectorstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// snapshotVersion is written into every snapshot so the format can evolve
// without guessing. Loading a snapshot with a higher version fails loudly.
const snapshotVersion = 1

// snapshot is the on-disk layout: the full record set plus a save timestamp
// and count, written as one file.
type snapshot struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"savedAt"`
	Count   int       `json:"count"`
	Vectors []Record  `json:"vectors"`
}

// snapshotHeader decodes only the envelope fields, for Stats.
type snapshotHeader struct {
	Version int       `json:"version"`
	SavedAt time.Time `json:"savedAt"`
	Count   int       `json:"count"`
}

// Load reads the snapshot into memory. Idempotent: once the store is loaded
// (from disk or via Rebuild), repeated calls return without touching disk.
// A missing snapshot file yields an empty loaded store. A snapshot that
// exists but cannot be parsed is a *StorageError.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.loaded = true
		return nil
	}
	if err != nil {
		return &StorageError{Path: s.path, Err: err}
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return &StorageError{Path: s.path, Err: fmt.Errorf("parsing snapshot: %w", err)}
	}
	if snap.Version > snapshotVersion {
		return &StorageError{Path: s.path, Err: fmt.Errorf("snapshot version %d is newer than supported %d", snap.Version, snapshotVersion)}
	}

	dim := 0
	for _, r := range snap.Vectors {
		if dim == 0 {
			dim = len(r.Embedding)
		}
		if len(r.Embedding) != dim {
			return &StorageError{Path: s.path, Err: fmt.Errorf("mixed embedding dimensions %d and %d", dim, len(r.Embedding))}
		}
	}

	s.records = snap.Vectors
	s.dim = dim
	s.loaded = true
	return nil
}

// Save serializes the full in-memory collection to the snapshot path as one
// atomic write: the snapshot is written to a temp file in the same directory
// and renamed over the target. Creates the parent directory if absent.
func (s *Store) Save() error {
	s.mu.RLock()
	snap := snapshot{
		Version: snapshotVersion,
		SavedAt: time.Now().UTC(),
		Count:   len(s.records),
		Vectors: s.records,
	}
	data, err := json.Marshal(snap)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

// Stats reports whether a persisted snapshot exists and its record count.
// When the store is already loaded the answer comes from memory; otherwise
// only the snapshot envelope is decoded, so no record set is retained.
func (s *Store) Stats() (Stats, error) {
	s.mu.RLock()
	if s.loaded {
		st := Stats{Exists: len(s.records) > 0, Count: len(s.records)}
		s.mu.RUnlock()
		if _, err := os.Stat(s.path); err == nil {
			st.Exists = true
		}
		return st, nil
	}
	s.mu.RUnlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Stats{}, nil
	}
	if err != nil {
		return Stats{}, &StorageError{Path: s.path, Err: err}
	}

	var hdr snapshotHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		return Stats{}, &StorageError{Path: s.path, Err: fmt.Errorf("parsing snapshot: %w", err)}
	}
	return Stats{Exists: true, Count: hdr.Count, SavedAt: hdr.SavedAt}, nil
}
