// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vaultfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/monovault/lib/localvault"
	"github.com/bureau-foundation/monovault/lib/replica"
	"github.com/bureau-foundation/monovault/lib/vault"
)

// DefaultMaxAttempts is the number of tries a local mutation gets
// before a persistent version conflict becomes an I/O error.
const DefaultMaxAttempts = 5

// ErrContended is returned when a local mutation kept losing version
// races. It matches no vault sentinel, so callers see an I/O error.
var ErrContended = errors.New("vaultfs: path kept changing under concurrent writers")

// Remotes is the view of the sync engine the dispatcher needs.
type Remotes interface {
	// Vaults returns every known vault name, local included.
	Vaults() []string

	// IsRemote reports whether name is a configured peer vault.
	IsRemote(name string) bool

	// FetchRemote asks the owner for a path missing from the cache.
	FetchRemote(ctx context.Context, vaultName, path string) (vault.Entry, replica.Freshness, error)
}

// Config holds the collaborators of an FS.
type Config struct {
	Local   *localvault.Manager
	Replica *replica.Cache
	Remotes Remotes

	// MaxAttempts bounds conflict retries of local mutations. Zero
	// uses DefaultMaxAttempts.
	MaxAttempts int

	Logger *slog.Logger
}

// FS is the merged namespace. It is safe for concurrent use.
type FS struct {
	local       *localvault.Manager
	replica     *replica.Cache
	remotes     Remotes
	maxAttempts int
	logger      *slog.Logger
}

// Node is a resolved path: its entry and, for remote vaults, how
// current the cached entry is. Local entries are always Fresh.
type Node struct {
	Entry     vault.Entry
	Freshness replica.Freshness
}

// DirEntry is one name in a directory listing.
type DirEntry struct {
	Name string
	Kind vault.Kind
}

// New returns an FS.
func New(cfg Config) (*FS, error) {
	if cfg.Local == nil || cfg.Replica == nil || cfg.Remotes == nil {
		return nil, fmt.Errorf("vaultfs: Local, Replica and Remotes are required")
	}
	fs := &FS{
		local:       cfg.Local,
		replica:     cfg.Replica,
		remotes:     cfg.Remotes,
		maxAttempts: cfg.MaxAttempts,
		logger:      cfg.Logger,
	}
	if fs.maxAttempts <= 0 {
		fs.maxAttempts = DefaultMaxAttempts
	}
	if fs.logger == nil {
		fs.logger = slog.New(slog.DiscardHandler)
	}
	return fs, nil
}

// LocalVault returns the name of the local vault.
func (fs *FS) LocalVault() string { return fs.local.Vault() }

type owner int

const (
	ownerRoot owner = iota
	ownerLocal
	ownerRemote
)

// resolve splits a mount path and classifies the vault. Unknown vaults
// are vault.ErrNotFound.
func (fs *FS) resolve(mountPath string) (owner, string, string, error) {
	vaultName, rest, err := vault.Split(mountPath)
	if err != nil {
		return 0, "", "", err
	}
	switch {
	case vaultName == "":
		return ownerRoot, "", "", nil
	case vaultName == fs.local.Vault():
		return ownerLocal, vaultName, rest, nil
	case fs.remotes.IsRemote(vaultName):
		return ownerRemote, vaultName, rest, nil
	default:
		return 0, "", "", fmt.Errorf("vault %q: %w", vaultName, vault.ErrNotFound)
	}
}

// resolveLocal resolves a path that is about to be mutated. Anything
// outside the local vault, including the mount root and unknown
// vaults, is vault.ErrPermissionDenied.
// Ownership is decided on the raw first component, before the rest of
// the path is cleaned, so a malformed foreign path is still denied.
func (fs *FS) resolveLocal(mountPath string) (string, error) {
	owner, _, _ := strings.Cut(strings.Trim(mountPath, "/"), "/")
	if owner != fs.local.Vault() {
		return "", fmt.Errorf("%s: writes are only accepted by the owning node: %w", mountPath, vault.ErrPermissionDenied)
	}
	_, rest, err := vault.Split(mountPath)
	if err != nil {
		return "", err
	}
	return rest, nil
}

// Lookup resolves a mount path.
func (fs *FS) Lookup(ctx context.Context, mountPath string) (Node, error) {
	kind, vaultName, path, err := fs.resolve(mountPath)
	if err != nil {
		return Node{}, err
	}
	switch kind {
	case ownerRoot:
		return Node{Entry: vault.Entry{Kind: vault.KindDirectory}}, nil
	case ownerLocal:
		entry, err := fs.local.Stat(ctx, path)
		return Node{Entry: entry}, err
	default:
		return fs.lookupRemote(ctx, vaultName, path)
	}
}

// lookupRemote serves from the cache and falls back to the owner on a
// miss. A stale hit is returned as is; an unreachable owner never
// fails a read the cache can answer.
func (fs *FS) lookupRemote(ctx context.Context, vaultName, path string) (Node, error) {
	entry, freshness, err := fs.replica.GetCached(ctx, vaultName, path)
	if errors.Is(err, vault.ErrNotFound) {
		entry, freshness, err = fs.remotes.FetchRemote(ctx, vaultName, path)
	}
	if err != nil {
		return Node{}, err
	}
	return Node{Entry: entry, Freshness: freshness}, nil
}

// Read returns up to size bytes at offset of the file at mountPath.
func (fs *FS) Read(ctx context.Context, mountPath string, offset int64, size int) ([]byte, error) {
	kind, vaultName, path, err := fs.resolve(mountPath)
	if err != nil {
		return nil, err
	}
	switch kind {
	case ownerRoot:
		return nil, fmt.Errorf("%s: %w", mountPath, vault.ErrIsDirectory)
	case ownerLocal:
		return fs.local.Read(ctx, path, offset, size)
	}
	node, err := fs.lookupRemote(ctx, vaultName, path)
	if err != nil {
		return nil, err
	}
	data, err := fs.replica.ReadContent(&node.Entry)
	if err != nil {
		return nil, err
	}
	return localvault.Slice(data, offset, size), nil
}

// Readdir lists the directory at mountPath. The mount root lists every
// vault; other directories list their live children in name order.
func (fs *FS) Readdir(ctx context.Context, mountPath string) ([]DirEntry, error) {
	kind, vaultName, path, err := fs.resolve(mountPath)
	if err != nil {
		return nil, err
	}
	switch kind {
	case ownerRoot:
		names := fs.remotes.Vaults()
		listing := make([]DirEntry, 0, len(names))
		for _, name := range names {
			listing = append(listing, DirEntry{Name: name, Kind: vault.KindDirectory})
		}
		return listing, nil
	case ownerLocal:
		children, err := fs.local.List(ctx, path)
		if err != nil {
			return nil, err
		}
		return dirEntries(children), nil
	}

	node, err := fs.lookupRemote(ctx, vaultName, path)
	if err != nil {
		return nil, err
	}
	if !node.Entry.IsDir() {
		return nil, fmt.Errorf("%s: %w", mountPath, vault.ErrNotDirectory)
	}
	var children []vault.Entry
	for child, err := range fs.replica.ListChildren(ctx, vaultName, path) {
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return dirEntries(children), nil
}

func dirEntries(children []vault.Entry) []DirEntry {
	listing := make([]DirEntry, 0, len(children))
	for _, child := range children {
		listing = append(listing, DirEntry{Name: child.Name(), Kind: child.Kind})
	}
	return listing
}

// Create makes an empty file in the local vault.
func (fs *FS) Create(ctx context.Context, mountPath string) (Node, error) {
	return fs.mutate(ctx, "create", mountPath, func(path string) (vault.Entry, error) {
		return fs.local.Create(ctx, path)
	})
}

// Mkdir makes a directory in the local vault.
func (fs *FS) Mkdir(ctx context.Context, mountPath string) (Node, error) {
	return fs.mutate(ctx, "mkdir", mountPath, func(path string) (vault.Entry, error) {
		return fs.local.Mkdir(ctx, path)
	})
}

// Write stores data at offset in a local file.
func (fs *FS) Write(ctx context.Context, mountPath string, offset int64, data []byte) (Node, error) {
	return fs.mutate(ctx, "write", mountPath, func(path string) (vault.Entry, error) {
		return fs.local.Write(ctx, path, offset, data)
	})
}

// Replace sets the whole content of a local file, creating it when
// absent. Kernel bindings that buffer writes until close use it.
func (fs *FS) Replace(ctx context.Context, mountPath string, data []byte) (Node, error) {
	return fs.mutate(ctx, "replace", mountPath, func(path string) (vault.Entry, error) {
		return fs.local.Replace(ctx, path, data)
	})
}

// Truncate sets the size of a local file.
func (fs *FS) Truncate(ctx context.Context, mountPath string, size int64) (Node, error) {
	return fs.mutate(ctx, "truncate", mountPath, func(path string) (vault.Entry, error) {
		return fs.local.Truncate(ctx, path, size)
	})
}

// Delete removes a local file or empty directory.
func (fs *FS) Delete(ctx context.Context, mountPath string) error {
	_, err := fs.mutate(ctx, "delete", mountPath, func(path string) (vault.Entry, error) {
		return vault.Entry{}, fs.local.Delete(ctx, path)
	})
	return err
}

// Rename moves a path within the local vault. Renames across vaults
// are denied.
func (fs *FS) Rename(ctx context.Context, fromMountPath, toMountPath string) error {
	from, err := fs.resolveLocal(fromMountPath)
	if err != nil {
		return err
	}
	to, err := fs.resolveLocal(toMountPath)
	if err != nil {
		return err
	}
	_, err = retry(ctx, fs, "rename", fromMountPath, func() (vault.Entry, error) {
		return vault.Entry{}, fs.local.Rename(ctx, from, to)
	})
	return err
}

func (fs *FS) mutate(ctx context.Context, operation, mountPath string, apply func(path string) (vault.Entry, error)) (Node, error) {
	path, err := fs.resolveLocal(mountPath)
	if err != nil {
		return Node{}, err
	}
	entry, err := retry(ctx, fs, operation, mountPath, func() (vault.Entry, error) {
		return apply(path)
	})
	if err != nil {
		return Node{}, err
	}
	return Node{Entry: entry}, nil
}

// retry runs attempt until it returns something other than a version
// conflict, at most fs.maxAttempts times. Every attempt re-reads the
// current version, so a retry is a fresh read-then-write.
func retry[T any](ctx context.Context, fs *FS, operation, mountPath string, attempt func() (T, error)) (T, error) {
	var zero T
	for tries := 1; ; tries++ {
		result, err := attempt()
		if !errors.Is(err, vault.ErrConflict) {
			return result, err
		}
		if tries >= fs.maxAttempts {
			fs.logger.Warn("giving up on contended path",
				"operation", operation,
				"path", mountPath,
				"attempts", tries,
			)
			return zero, fmt.Errorf("%s %s after %d attempts: %w", operation, mountPath, tries, ErrContended)
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		fs.logger.Debug("retrying after version conflict", "operation", operation, "path", mountPath, "attempt", tries)
	}
}
