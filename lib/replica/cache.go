// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replica

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/bureau-foundation/monovault/lib/clock"
	"github.com/bureau-foundation/monovault/lib/contentstore"
	"github.com/bureau-foundation/monovault/lib/metastore"
	"github.com/bureau-foundation/monovault/lib/vault"
)

// Freshness tells whether a cached entry reflects the owner's state as
// of the last successful sync.
type Freshness uint8

const (
	Fresh Freshness = iota
	Stale
)

func (f Freshness) String() string {
	if f == Stale {
		return "stale"
	}
	return "fresh"
}

// Outcome is the result of applying one replicated entry.
type Outcome uint8

const (
	// Applied means the entry replaced the cached version (or there
	// was none).
	Applied Outcome = iota
	// Duplicate means the cache already held this exact version.
	Duplicate
	// Discarded means the cached version wins and the incoming one was
	// dropped.
	Discarded
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Duplicate:
		return "duplicate"
	case Discarded:
		return "discarded"
	default:
		return fmt.Sprintf("unknown(%d)", o)
	}
}

// Config holds the collaborators of a Cache.
type Config struct {
	// LocalVault is the name of the local vault, which the cache must
	// never write.
	LocalVault string

	Metadata *metastore.Store
	Content  *contentstore.Store
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Cache is the replica cache. It is safe for concurrent use.
type Cache struct {
	localVault string
	metadata   *metastore.Store
	content    *contentstore.Store
	clock      clock.Clock
	logger     *slog.Logger
}

// New returns a Cache.
func New(cfg Config) (*Cache, error) {
	if cfg.LocalVault == "" {
		return nil, fmt.Errorf("replica: LocalVault is required")
	}
	if cfg.Metadata == nil || cfg.Content == nil {
		return nil, fmt.Errorf("replica: Metadata and Content are required")
	}
	cache := &Cache{
		localVault: cfg.LocalVault,
		metadata:   cfg.Metadata,
		content:    cfg.Content,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
	}
	if cache.clock == nil {
		cache.clock = clock.Real()
	}
	if cache.logger == nil {
		cache.logger = slog.New(slog.DiscardHandler)
	}
	return cache, nil
}

// GetCached returns the cached live entry and its freshness. The
// vault root is always present. A path with no cached entry is
// vault.ErrNotFound.
func (c *Cache) GetCached(ctx context.Context, vaultName, path string) (vault.Entry, Freshness, error) {
	if path == "" {
		freshness, err := c.Freshness(ctx, vaultName)
		if err != nil {
			return vault.Entry{}, Fresh, err
		}
		return vault.Entry{Vault: vaultName, Kind: vault.KindDirectory}, freshness, nil
	}
	entry, stale, err := c.metadata.Lookup(ctx, vaultName, path)
	if err != nil {
		return vault.Entry{}, Fresh, err
	}
	if stale {
		return entry, Stale, nil
	}
	return entry, Fresh, nil
}

// Upsert applies a replicated entry. content must hold the file bytes
// when the entry references a blob this node does not have yet; it is
// ignored otherwise. The blob is stored before the entry so a visible
// entry always has its content.
func (c *Cache) Upsert(ctx context.Context, entry vault.Entry, content []byte) (Outcome, error) {
	if entry.Vault == c.localVault {
		return Discarded, fmt.Errorf("replicating into local vault %s: %w", entry.Vault, vault.ErrPermissionDenied)
	}
	if entry.Path == "" {
		return Discarded, fmt.Errorf("replicating root of %s: %w", entry.Vault, vault.ErrInvalidPath)
	}
	if !entry.Deleted && entry.Content != "" && !c.content.Touch(entry.Content) {
		if content == nil {
			return Discarded, fmt.Errorf("replica: content %s of %s not supplied", entry.Content, vault.Join(entry.Vault, entry.Path))
		}
		ref, err := c.content.Write(content)
		if err != nil {
			return Discarded, err
		}
		if ref != entry.Content {
			return Discarded, fmt.Errorf("replica: content of %s hashes to %s, entry says %s",
				vault.Join(entry.Vault, entry.Path), ref, entry.Content)
		}
	}

	outcome := Discarded
	var loser *vault.Entry
	var winner vault.Entry
	_, err := c.metadata.Upsert(ctx, entry, func(existing *vault.Entry) bool {
		if existing == nil {
			outcome = Applied
			return true
		}
		switch order := vault.Compare(&entry, existing); {
		case order > 0:
			outcome = Applied
			if diverged(existing, &entry) {
				lost := *existing
				loser, winner = &lost, entry
			}
			return true
		case order == 0:
			outcome = Duplicate
			return false
		default:
			outcome = Discarded
			if diverged(&entry, existing) {
				lost := entry
				loser, winner = &lost, *existing
			}
			return false
		}
	})
	if err != nil {
		return Discarded, err
	}

	if loser != nil {
		c.logger.Info("replica conflict resolved",
			"vault", entry.Vault,
			"path", entry.Path,
			"winner_version", winner.Version,
			"loser_version", loser.Version,
		)
		if err := c.metadata.RecordConflict(ctx, metastore.Conflict{
			Vault:    entry.Vault,
			Path:     entry.Path,
			Winner:   winner,
			Loser:    *loser,
			Recorded: c.clock.Now(),
		}); err != nil {
			c.logger.Warn("recording conflict failed", "vault", entry.Vault, "path", entry.Path, "error", err)
		}
	}
	return outcome, nil
}

// diverged reports whether loser is a genuinely different version at
// the winner's version, rather than an older entry superseded in
// normal history.
func diverged(loser, winner *vault.Entry) bool {
	return loser.Version == winner.Version
}

// Forget drops everything cached for vaultName along with its sync
// cursor. Used when the owner's history restarted under a new epoch.
func (c *Cache) Forget(ctx context.Context, vaultName string) error {
	if vaultName == c.localVault {
		return fmt.Errorf("forgetting local vault %s: %w", vaultName, vault.ErrPermissionDenied)
	}
	c.logger.Warn("discarding replica of vault", "vault", vaultName)
	return c.metadata.ForgetVault(ctx, vaultName)
}

// MarkStale flags every cached entry of vaultName as stale. Nothing is
// deleted.
func (c *Cache) MarkStale(ctx context.Context, vaultName string) error {
	if vaultName == c.localVault {
		return nil
	}
	return c.metadata.MarkStale(ctx, vaultName)
}

// MarkFresh clears the stale flag of vaultName.
func (c *Cache) MarkFresh(ctx context.Context, vaultName string) error {
	if vaultName == c.localVault {
		return nil
	}
	return c.metadata.MarkFresh(ctx, vaultName)
}

// Freshness reports Stale when any cached entry of vaultName is stale.
func (c *Cache) Freshness(ctx context.Context, vaultName string) (Freshness, error) {
	stale, err := c.metadata.HasStale(ctx, vaultName)
	if err != nil {
		return Fresh, err
	}
	if stale {
		return Stale, nil
	}
	return Fresh, nil
}

// ListChildren yields the cached live children of dir.
func (c *Cache) ListChildren(ctx context.Context, vaultName, dir string) iter.Seq2[vault.Entry, error] {
	return c.metadata.ListChildren(ctx, vaultName, dir)
}

// ReadContent returns the bytes of a cached file entry.
func (c *Cache) ReadContent(entry *vault.Entry) ([]byte, error) {
	if entry.IsDir() {
		return nil, fmt.Errorf("%s: %w", vault.Join(entry.Vault, entry.Path), vault.ErrIsDirectory)
	}
	if entry.Content == "" {
		return nil, nil
	}
	data, err := c.content.Read(entry.Content)
	if errors.Is(err, vault.ErrNotFound) {
		return nil, fmt.Errorf("replica: content of %s missing: %s", vault.Join(entry.Vault, entry.Path), err)
	}
	return data, err
}

// HasContent reports whether the blob ref is already stored.
func (c *Cache) HasContent(ref string) bool {
	return c.content.Has(ref)
}

// TouchContent reports whether the blob ref is already stored and
// resets its sweep age, so a blob an incoming entry is about to
// reference survives a concurrent garbage collection.
func (c *Cache) TouchContent(ref string) bool {
	return c.content.Touch(ref)
}

// References returns every content ref held by a live entry, local or
// replicated.
func (c *Cache) References(ctx context.Context) (map[string]struct{}, error) {
	return c.metadata.References(ctx)
}
