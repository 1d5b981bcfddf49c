// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package contentstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/monovault/lib/clock"
	"github.com/bureau-foundation/monovault/lib/codec"
	"github.com/bureau-foundation/monovault/lib/vault"
)

const (
	tmpDir     = "tmp"
	headerSize = 9
)

// DefaultSweepGrace protects blobs that were just written but whose
// metadata has not been committed yet.
const DefaultSweepGrace = 10 * time.Minute

// Config holds the parameters for opening a store.
type Config struct {
	// Root is the directory holding blob shards. Created if missing.
	Root string

	// SweepGrace is the minimum age of a blob before Sweep may
	// remove it. Zero uses DefaultSweepGrace.
	SweepGrace time.Duration

	// Clock dates blobs for SweepGrace. Nil uses the real clock.
	Clock clock.Clock

	Logger *slog.Logger
}

// Store is a directory of immutable blobs. It is safe for concurrent
// use: writes land by atomic rename, and two writers of the same
// content produce the same file.
type Store struct {
	root   string
	grace  time.Duration
	clock  clock.Clock
	logger *slog.Logger
}

// Open creates the store directories and returns the store.
func Open(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("contentstore: Root is required")
	}
	for _, dir := range []string{cfg.Root, filepath.Join(cfg.Root, tmpDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("contentstore: creating %s: %w", dir, err)
		}
	}
	store := &Store{
		root:   cfg.Root,
		grace:  cfg.SweepGrace,
		clock:  cfg.Clock,
		logger: cfg.Logger,
	}
	if store.grace <= 0 {
		store.grace = DefaultSweepGrace
	}
	if store.clock == nil {
		store.clock = clock.Real()
	}
	if store.logger == nil {
		store.logger = slog.New(slog.DiscardHandler)
	}
	return store, nil
}

// Write stores data and returns its ref. Writing content that is
// already present only refreshes the blob's sweep age, so a blob a
// new entry is about to reference cannot be swept under it.
func (s *Store) Write(data []byte) (Ref, error) {
	if len(data) > codec.MaxPayloadBytes {
		return "", fmt.Errorf("contentstore: blob of %d bytes exceeds the %d byte limit: %w", len(data), codec.MaxPayloadBytes, vault.ErrFileTooLarge)
	}
	ref := Hash(data)
	finalPath := s.path(ref)
	if s.date(finalPath) == nil {
		return ref, nil
	}

	payload, tag := compress(data)

	tmpFile, err := os.CreateTemp(filepath.Join(s.root, tmpDir), "blob-*")
	if err != nil {
		return "", fmt.Errorf("contentstore: creating temp blob: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	var header [headerSize]byte
	header[0] = byte(tag)
	binary.BigEndian.PutUint64(header[1:], uint64(len(data)))
	if _, err := tmpFile.Write(header[:]); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("contentstore: writing blob header: %w", err)
	}
	if _, err := tmpFile.Write(payload); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("contentstore: writing blob payload: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("contentstore: syncing blob: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("contentstore: closing blob: %w", err)
	}
	if err := s.date(tmpPath); err != nil {
		return "", fmt.Errorf("contentstore: dating blob: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return "", fmt.Errorf("contentstore: creating shard directory: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("contentstore: renaming blob into place: %w", err)
	}
	success = true

	s.logger.Debug("blob written",
		"ref", ref,
		"size", len(data),
		"stored", len(payload)+headerSize,
		"compression", tag.String(),
	)
	return ref, nil
}

// Read returns the bytes of ref. A missing blob is vault.ErrNotFound;
// a blob whose bytes no longer hash to ref is an error.
func (s *Store) Read(ref Ref) ([]byte, error) {
	if err := ValidateRef(ref); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.path(ref))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("blob %s: %w", ref, vault.ErrNotFound)
		}
		return nil, fmt.Errorf("contentstore: reading blob %s: %w", ref, err)
	}
	if len(raw) < headerSize {
		return nil, fmt.Errorf("contentstore: blob %s truncated to %d bytes", ref, len(raw))
	}
	size := binary.BigEndian.Uint64(raw[1:headerSize])
	if size > uint64(codec.MaxPayloadBytes) {
		return nil, fmt.Errorf("contentstore: blob %s claims %d bytes", ref, size)
	}
	data, err := decompress(raw[headerSize:], CompressionTag(raw[0]), int(size))
	if err != nil {
		return nil, fmt.Errorf("contentstore: decoding blob %s: %w", ref, err)
	}
	if computed := Hash(data); computed != ref {
		return nil, fmt.Errorf("contentstore: blob %s failed verification (content hashes to %s)", ref, computed)
	}
	return data, nil
}

// Has reports whether ref is stored.
func (s *Store) Has(ref Ref) bool {
	if ValidateRef(ref) != nil {
		return false
	}
	_, err := os.Stat(s.path(ref))
	return err == nil
}

// Touch reports whether ref is stored and, if so, resets its sweep
// age. Callers that skip a Write because the blob already exists use
// Touch instead of Has.
func (s *Store) Touch(ref Ref) bool {
	if ValidateRef(ref) != nil {
		return false
	}
	return s.date(s.path(ref)) == nil
}

// date sets path's modification time, which Sweep reads as the blob's
// age, to the store clock's now.
func (s *Store) date(path string) error {
	now := s.clock.Now()
	return os.Chtimes(path, now, now)
}

// Delete removes ref. Deleting a missing blob is not an error.
func (s *Store) Delete(ref Ref) error {
	if err := ValidateRef(ref); err != nil {
		return err
	}
	if err := os.Remove(s.path(ref)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("contentstore: deleting blob %s: %w", ref, err)
	}
	return nil
}

// Sweep deletes every blob not in live that is older than the sweep
// grace period, along with stale temp files. It returns the number of
// blobs removed.
func (s *Store) Sweep(ctx context.Context, live map[string]struct{}) (int, error) {
	cutoff := s.clock.Now().Add(-s.grace)
	removed := 0

	err := filepath.WalkDir(s.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if entry.IsDir() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}

		name := entry.Name()
		if filepath.Base(filepath.Dir(path)) == tmpDir {
			os.Remove(path)
			return nil
		}
		if ValidateRef(name) != nil {
			return nil
		}
		if _, ok := live[name]; ok {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("removing %s: %w", name, err)
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("contentstore: sweep: %w", err)
	}
	if removed > 0 {
		s.logger.Info("swept unreferenced blobs", "removed", removed, "live", len(live))
	}
	return removed, nil
}

// Usage returns the number of blobs and their total on-disk size.
func (s *Store) Usage() (count int, bytes int64, err error) {
	err = filepath.WalkDir(s.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || ValidateRef(entry.Name()) != nil {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		count++
		bytes += info.Size()
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("contentstore: usage: %w", err)
	}
	return count, bytes, nil
}

func (s *Store) path(ref Ref) string {
	return filepath.Join(s.root, ref[:2], ref[2:4], ref)
}
