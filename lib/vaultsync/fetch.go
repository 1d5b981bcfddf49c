// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vaultsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/jellydator/ttlcache/v3"

	"github.com/bureau-foundation/monovault/lib/peerrpc"
	"github.com/bureau-foundation/monovault/lib/replica"
	"github.com/bureau-foundation/monovault/lib/vault"
)

// FetchRemote asks the owner of vaultName for path when the cache has
// no entry for it, stores the answer in the cache and returns it. Any
// failure, including an unreachable owner, is reported as
// vault.ErrNotFound and remembered for the negative TTL so a lookup
// storm does not hammer a dead peer.
func (e *Engine) FetchRemote(ctx context.Context, vaultName, path string) (vault.Entry, replica.Freshness, error) {
	peer, ok := e.peers[vaultName]
	if !ok {
		return vault.Entry{}, replica.Fresh, fmt.Errorf("vault %s: %w", vaultName, vault.ErrNotFound)
	}
	key := vaultName + "/" + path
	if item := e.misses.Get(key); item != nil {
		e.metrics.FetchesTotal.WithLabelValues("cached_miss").Inc()
		return vault.Entry{}, replica.Fresh, fmt.Errorf("%s: %w", vault.Join(vaultName, path), item.Value())
	}

	entry, freshness, err := e.fetch(ctx, peer, vaultName, path)
	if err != nil {
		result := "error"
		if errors.Is(err, vault.ErrNotFound) {
			result = "miss"
		} else {
			e.logger.Debug("on-demand fetch failed", "vault", vaultName, "path", path, "error", err)
		}
		e.metrics.FetchesTotal.WithLabelValues(result).Inc()
		e.misses.Set(key, vault.ErrNotFound, ttlcache.DefaultTTL)
		return vault.Entry{}, replica.Fresh, fmt.Errorf("%s: %w", vault.Join(vaultName, path), vault.ErrNotFound)
	}
	e.metrics.FetchesTotal.WithLabelValues("hit").Inc()
	return entry, freshness, nil
}

func (e *Engine) fetch(ctx context.Context, peer *peer, vaultName, path string) (vault.Entry, replica.Freshness, error) {
	fetchContext, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()

	response, err := peer.service.Fetch(fetchContext, &peerrpc.FetchRequest{Vault: vaultName, Path: path})
	if err != nil {
		return vault.Entry{}, replica.Fresh, err
	}
	entry := response.Entry
	if entry.Vault != vaultName || entry.Path != path {
		return vault.Entry{}, replica.Fresh, fmt.Errorf("fetch of %s answered with %s",
			vault.Join(vaultName, path), vault.Join(entry.Vault, entry.Path))
	}
	content, err := e.contentFor(fetchContext, peer, &entry, response.Data, response.Inline)
	if err != nil {
		return vault.Entry{}, replica.Fresh, err
	}
	if _, err := e.replica.Upsert(ctx, entry, content); err != nil {
		return vault.Entry{}, replica.Fresh, err
	}
	return e.replica.GetCached(ctx, vaultName, path)
}
