// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package localvault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/monovault/lib/clock"
	"github.com/bureau-foundation/monovault/lib/codec"
	"github.com/bureau-foundation/monovault/lib/contentstore"
	"github.com/bureau-foundation/monovault/lib/metastore"
	"github.com/bureau-foundation/monovault/lib/vault"
)

// Config holds the collaborators of a Manager.
type Config struct {
	// Vault is the local vault name.
	Vault string

	Metadata *metastore.Store
	Content  *contentstore.Store

	// Notify is called after every successful commit. It must not
	// block; the sync engine passes its push wake-up here.
	Notify func()

	Clock  clock.Clock
	Logger *slog.Logger
}

// Manager applies local mutations to the local vault.
type Manager struct {
	vault    string
	metadata *metastore.Store
	content  *contentstore.Store
	notify   func()
	clock    clock.Clock
	logger   *slog.Logger
}

// New returns a Manager for cfg.Vault.
func New(cfg Config) (*Manager, error) {
	if cfg.Vault == "" {
		return nil, fmt.Errorf("localvault: Vault is required")
	}
	if cfg.Metadata == nil || cfg.Content == nil {
		return nil, fmt.Errorf("localvault: Metadata and Content are required")
	}
	manager := &Manager{
		vault:    cfg.Vault,
		metadata: cfg.Metadata,
		content:  cfg.Content,
		notify:   cfg.Notify,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}
	if manager.notify == nil {
		manager.notify = func() {}
	}
	if manager.clock == nil {
		manager.clock = clock.Real()
	}
	if manager.logger == nil {
		manager.logger = slog.New(slog.DiscardHandler)
	}
	return manager, nil
}

// Vault returns the local vault name.
func (m *Manager) Vault() string { return m.vault }

// Stat returns the live entry at path. The vault root is a
// synthesized directory.
func (m *Manager) Stat(ctx context.Context, path string) (vault.Entry, error) {
	if path == "" {
		return vault.Entry{Vault: m.vault, Kind: vault.KindDirectory}, nil
	}
	return m.metadata.Get(ctx, m.vault, path)
}

// Read returns up to size bytes of the file at path starting at
// offset. Reading at or past the end returns no bytes.
func (m *Manager) Read(ctx context.Context, path string, offset int64, size int) ([]byte, error) {
	entry, err := m.Stat(ctx, path)
	if err != nil {
		return nil, err
	}
	if entry.IsDir() {
		return nil, fmt.Errorf("%s: %w", vault.Join(m.vault, path), vault.ErrIsDirectory)
	}
	data, err := m.readContent(&entry)
	if err != nil {
		return nil, err
	}
	return Slice(data, offset, size), nil
}

// List returns the live children of the directory at dir.
func (m *Manager) List(ctx context.Context, dir string) ([]vault.Entry, error) {
	entry, err := m.Stat(ctx, dir)
	if err != nil {
		return nil, err
	}
	if !entry.IsDir() {
		return nil, fmt.Errorf("%s: %w", vault.Join(m.vault, dir), vault.ErrNotDirectory)
	}
	var children []vault.Entry
	for child, err := range m.metadata.ListChildren(ctx, m.vault, dir) {
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

// Create makes an empty file. An existing live entry is
// vault.ErrAlreadyExists.
func (m *Manager) Create(ctx context.Context, path string) (vault.Entry, error) {
	return m.createEntry(ctx, path, vault.KindFile)
}

// Mkdir makes an empty directory.
func (m *Manager) Mkdir(ctx context.Context, path string) (vault.Entry, error) {
	return m.createEntry(ctx, path, vault.KindDirectory)
}

func (m *Manager) createEntry(ctx context.Context, path string, kind vault.Kind) (vault.Entry, error) {
	if path == "" {
		return vault.Entry{}, fmt.Errorf("%s: %w", vault.Join(m.vault, path), vault.ErrAlreadyExists)
	}
	if err := m.checkParent(ctx, path); err != nil {
		return vault.Entry{}, err
	}
	current, err := m.record(ctx, path)
	if err != nil {
		return vault.Entry{}, err
	}
	if current != nil && !current.Deleted {
		return vault.Entry{}, fmt.Errorf("%s: %w", vault.Join(m.vault, path), vault.ErrAlreadyExists)
	}
	mutation := metastore.Mutation{
		Path:     path,
		Expected: versionOf(current),
		Kind:     kind,
		Modified: m.clock.Now(),
	}
	if kind == vault.KindFile {
		ref, err := m.content.Write(nil)
		if err != nil {
			return vault.Entry{}, err
		}
		mutation.Content = ref
	}
	return m.commitOne(ctx, mutation)
}

// Write stores data at offset in an existing file, extending it with
// zeros when offset is past the end.
func (m *Manager) Write(ctx context.Context, path string, offset int64, data []byte) (vault.Entry, error) {
	if offset < 0 {
		return vault.Entry{}, fmt.Errorf("%s: negative offset %d: %w", vault.Join(m.vault, path), offset, vault.ErrInvalidPath)
	}
	if offset > codec.MaxPayloadBytes-int64(len(data)) {
		return vault.Entry{}, fmt.Errorf("%s: write of %d bytes at offset %d: %w", vault.Join(m.vault, path), len(data), offset, vault.ErrFileTooLarge)
	}
	current, existing, err := m.liveFile(ctx, path)
	if err != nil {
		return vault.Entry{}, err
	}
	end := offset + int64(len(data))
	updated := make([]byte, max(int64(len(existing)), end))
	copy(updated, existing)
	copy(updated[offset:], data)
	return m.replaceContent(ctx, current, updated)
}

// Replace sets the whole content of the file at path, creating it
// when absent.
func (m *Manager) Replace(ctx context.Context, path string, data []byte) (vault.Entry, error) {
	if path == "" {
		return vault.Entry{}, fmt.Errorf("%s: %w", vault.Join(m.vault, path), vault.ErrIsDirectory)
	}
	if err := m.checkParent(ctx, path); err != nil {
		return vault.Entry{}, err
	}
	current, err := m.record(ctx, path)
	if err != nil {
		return vault.Entry{}, err
	}
	if current == nil || current.Deleted {
		current = &vault.Entry{Vault: m.vault, Path: path, Version: versionOf(current)}
	} else if current.IsDir() {
		return vault.Entry{}, fmt.Errorf("%s: %w", vault.Join(m.vault, path), vault.ErrIsDirectory)
	}
	return m.replaceContent(ctx, current, data)
}

// Truncate sets the size of the file at path, zero-filling growth.
func (m *Manager) Truncate(ctx context.Context, path string, size int64) (vault.Entry, error) {
	if size < 0 {
		return vault.Entry{}, fmt.Errorf("%s: negative size %d: %w", vault.Join(m.vault, path), size, vault.ErrInvalidPath)
	}
	if size > codec.MaxPayloadBytes {
		return vault.Entry{}, fmt.Errorf("%s: size %d: %w", vault.Join(m.vault, path), size, vault.ErrFileTooLarge)
	}
	current, existing, err := m.liveFile(ctx, path)
	if err != nil {
		return vault.Entry{}, err
	}
	if int64(len(existing)) == size {
		return *current, nil
	}
	updated := make([]byte, size)
	copy(updated, existing)
	return m.replaceContent(ctx, current, updated)
}

// Delete removes a file or an empty directory, leaving a tombstone.
func (m *Manager) Delete(ctx context.Context, path string) error {
	if path == "" {
		return fmt.Errorf("%s: %w", vault.Join(m.vault, path), vault.ErrPermissionDenied)
	}
	current, err := m.metadata.Get(ctx, m.vault, path)
	if err != nil {
		return err
	}
	if current.IsDir() {
		hasChildren, err := m.metadata.HasChildren(ctx, m.vault, path)
		if err != nil {
			return err
		}
		if hasChildren {
			return fmt.Errorf("%s: %w", vault.Join(m.vault, path), vault.ErrNotEmpty)
		}
	}
	_, err = m.commitOne(ctx, tombstone(&current, m.clock))
	return err
}

// Rename moves a file or a whole directory subtree in one atomic
// commit. Content refs move with the entries; no data is copied. An
// existing destination file is replaced; an existing destination
// directory must be empty.
func (m *Manager) Rename(ctx context.Context, from, to string) error {
	if from == "" || to == "" {
		return fmt.Errorf("renaming vault root: %w", vault.ErrPermissionDenied)
	}
	if from == to {
		_, err := m.metadata.Get(ctx, m.vault, from)
		return err
	}
	if vault.IsWithin(to, from) {
		return fmt.Errorf("renaming %s into itself: %w", vault.Join(m.vault, from), vault.ErrInvalidPath)
	}
	source, err := m.metadata.Get(ctx, m.vault, from)
	if err != nil {
		return err
	}
	if err := m.checkParent(ctx, to); err != nil {
		return err
	}
	target, err := m.record(ctx, to)
	if err != nil {
		return err
	}
	if target != nil && !target.Deleted {
		switch {
		case source.IsDir() && !target.IsDir():
			return fmt.Errorf("%s: %w", vault.Join(m.vault, to), vault.ErrNotDirectory)
		case !source.IsDir() && target.IsDir():
			return fmt.Errorf("%s: %w", vault.Join(m.vault, to), vault.ErrIsDirectory)
		case target.IsDir():
			hasChildren, err := m.metadata.HasChildren(ctx, m.vault, to)
			if err != nil {
				return err
			}
			if hasChildren {
				return fmt.Errorf("%s: %w", vault.Join(m.vault, to), vault.ErrNotEmpty)
			}
		}
	}

	mutations := []metastore.Mutation{
		tombstone(&source, m.clock),
		moved(&source, to, versionOf(target)),
	}
	if source.IsDir() {
		descendants, err := m.metadata.Descendants(ctx, m.vault, from)
		if err != nil {
			return err
		}
		for index := range descendants {
			descendant := &descendants[index]
			if descendant.Deleted {
				continue
			}
			destination := to + descendant.Path[len(from):]
			existing, err := m.record(ctx, destination)
			if err != nil {
				return err
			}
			mutations = append(mutations,
				tombstone(descendant, m.clock),
				moved(descendant, destination, versionOf(existing)),
			)
		}
	}

	committed, err := m.commit(ctx, mutations)
	if err != nil {
		return err
	}
	m.logger.Debug("renamed",
		"vault", m.vault,
		"from", from,
		"to", to,
		"entries", len(committed)/2,
	)
	return nil
}

// liveFile loads the live file at path and its bytes.
func (m *Manager) liveFile(ctx context.Context, path string) (*vault.Entry, []byte, error) {
	if path == "" {
		return nil, nil, fmt.Errorf("%s: %w", vault.Join(m.vault, path), vault.ErrIsDirectory)
	}
	current, err := m.metadata.Get(ctx, m.vault, path)
	if err != nil {
		return nil, nil, err
	}
	if current.IsDir() {
		return nil, nil, fmt.Errorf("%s: %w", vault.Join(m.vault, path), vault.ErrIsDirectory)
	}
	data, err := m.readContent(&current)
	if err != nil {
		return nil, nil, err
	}
	return &current, data, nil
}

func (m *Manager) replaceContent(ctx context.Context, current *vault.Entry, data []byte) (vault.Entry, error) {
	ref, err := m.content.Write(data)
	if err != nil {
		return vault.Entry{}, err
	}
	return m.commitOne(ctx, metastore.Mutation{
		Path:     current.Path,
		Expected: current.Version,
		Kind:     vault.KindFile,
		Size:     int64(len(data)),
		Content:  ref,
		Modified: m.clock.Now(),
	})
}

func (m *Manager) readContent(entry *vault.Entry) ([]byte, error) {
	if entry.Content == "" {
		return nil, nil
	}
	data, err := m.content.Read(entry.Content)
	if err != nil {
		// A live entry whose blob is gone is storage damage, not a
		// missing path.
		if errors.Is(err, vault.ErrNotFound) {
			return nil, fmt.Errorf("localvault: content of %s missing: %s", vault.Join(m.vault, entry.Path), err)
		}
		return nil, err
	}
	return data, nil
}

// checkParent requires the parent of path to be a live directory.
func (m *Manager) checkParent(ctx context.Context, path string) error {
	parent := vault.Parent(path)
	if parent == "" {
		return nil
	}
	entry, err := m.metadata.Get(ctx, m.vault, parent)
	if err != nil {
		return err
	}
	if !entry.IsDir() {
		return fmt.Errorf("%s: %w", vault.Join(m.vault, parent), vault.ErrNotDirectory)
	}
	return nil
}

// record returns the entry at path including tombstones, or nil.
func (m *Manager) record(ctx context.Context, path string) (*vault.Entry, error) {
	entry, err := m.metadata.Record(ctx, m.vault, path)
	if errors.Is(err, vault.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (m *Manager) commitOne(ctx context.Context, mutation metastore.Mutation) (vault.Entry, error) {
	committed, err := m.commit(ctx, []metastore.Mutation{mutation})
	if err != nil {
		return vault.Entry{}, err
	}
	return committed[0], nil
}

func (m *Manager) commit(ctx context.Context, mutations []metastore.Mutation) ([]vault.Entry, error) {
	committed, err := m.metadata.Commit(ctx, m.vault, mutations)
	if err != nil {
		return nil, err
	}
	for _, entry := range committed {
		m.logger.Debug("local commit",
			"vault", m.vault,
			"path", entry.Path,
			"version", entry.Version,
			"sequence", entry.Sequence,
			"deleted", entry.Deleted,
		)
	}
	m.notify()
	return committed, nil
}

func tombstone(entry *vault.Entry, source clock.Clock) metastore.Mutation {
	return metastore.Mutation{
		Path:     entry.Path,
		Expected: entry.Version,
		Kind:     entry.Kind,
		Modified: source.Now(),
		Deleted:  true,
	}
}

// moved re-homes entry at destination. The modification time is kept,
// as rename(2) does.
func moved(entry *vault.Entry, destination string, expected uint64) metastore.Mutation {
	return metastore.Mutation{
		Path:     destination,
		Expected: expected,
		Kind:     entry.Kind,
		Size:     entry.Size,
		Content:  entry.Content,
		Modified: entry.Modified,
	}
}

func versionOf(entry *vault.Entry) uint64 {
	if entry == nil {
		return 0
	}
	return entry.Version
}

// Slice returns the window [offset, offset+size) of data, clipped to
// its bounds.
func Slice(data []byte, offset int64, size int) []byte {
	if offset < 0 || offset >= int64(len(data)) || size <= 0 {
		return nil
	}
	end := offset + int64(size)
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return data[offset:end]
}
