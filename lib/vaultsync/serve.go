// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vaultsync

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/monovault/lib/peerrpc"
	"github.com/bureau-foundation/monovault/lib/vault"
)

// Pull answers a peer's pull. The local vault is served when shared;
// replicated vaults are served only with relaying enabled, and only up
// to this node's own cursor so a caller never skips changes this node
// has not seen.
func (e *Engine) Pull(ctx context.Context, request *peerrpc.PullRequest) (*peerrpc.PullResponse, error) {
	e.metrics.ServedTotal.WithLabelValues("pull").Inc()

	epoch, ceiling, err := e.servedHead(ctx, request.Vault)
	if err != nil {
		return nil, err
	}
	since := request.Since
	if request.Epoch != "" && request.Epoch != epoch {
		since = 0
	}
	limit := request.Limit
	if limit <= 0 {
		limit = DefaultBatchSize
	}
	limit = min(limit, maxBatchSize)

	changes, err := e.metadata.Changes(ctx, request.Vault, since, limit+1)
	if err != nil {
		return nil, err
	}
	for index, entry := range changes {
		if entry.Sequence > ceiling {
			changes = changes[:index]
			break
		}
	}
	more := len(changes) > limit
	if more {
		changes = changes[:limit]
	}

	response := &peerrpc.PullResponse{
		Vault:   request.Vault,
		Epoch:   epoch,
		Entries: make([]peerrpc.PulledEntry, 0, len(changes)),
	}
	inlined := 0
	for _, entry := range changes {
		pulled := peerrpc.PulledEntry{Entry: entry}
		if !entry.Deleted && !entry.IsDir() && entry.Content != "" &&
			entry.Size <= peerrpc.InlineLimit && inlined+int(entry.Size) <= maxInlineBytes {
			data, err := e.content.Read(entry.Content)
			if err != nil {
				return nil, fmt.Errorf("reading content of %s: %w", vault.Join(entry.Vault, entry.Path), err)
			}
			pulled.Data = data
			pulled.Inline = true
			inlined += len(data)
		}
		response.Entries = append(response.Entries, pulled)
	}

	if more {
		response.Through = changes[len(changes)-1].Sequence
		response.More = true
	} else {
		response.Through = max(since, ceiling)
	}
	return response, nil
}

// servedHead returns the epoch and the highest sequence this node can
// serve for vaultName, or the error a caller should see.
func (e *Engine) servedHead(ctx context.Context, vaultName string) (string, uint64, error) {
	if vaultName == e.localVault {
		if !e.shareLocal {
			return "", 0, fmt.Errorf("vault %s is not shared: %w", vaultName, vault.ErrPermissionDenied)
		}
		epoch, err := e.metadata.Epoch(ctx, vaultName)
		if err != nil {
			return "", 0, err
		}
		sequence, err := e.metadata.Sequence(ctx, vaultName)
		if err != nil {
			return "", 0, err
		}
		return epoch, sequence, nil
	}
	if !e.relay || !e.IsRemote(vaultName) {
		return "", 0, fmt.Errorf("vault %s: %w", vaultName, vault.ErrNotFound)
	}
	cursor, err := e.metadata.Cursor(ctx, vaultName)
	if err != nil {
		return "", 0, err
	}
	if cursor.Epoch == "" {
		return "", 0, fmt.Errorf("vault %s has not been replicated here: %w", vaultName, vault.ErrNotFound)
	}
	return cursor.Epoch, cursor.Sequence, nil
}

// Notify schedules an early pull of the notifying peer's vault. Bursts
// beyond the rate limit are dropped; the next periodic round picks the
// changes up.
func (e *Engine) Notify(ctx context.Context, request *peerrpc.NotifyRequest) error {
	e.metrics.ServedTotal.WithLabelValues("notify").Inc()
	peer, ok := e.peers[request.Vault]
	if !ok {
		return fmt.Errorf("vault %s: %w", request.Vault, vault.ErrNotFound)
	}
	if !peer.requestKick() {
		e.logger.Debug("notify rate limited", "peer", peer.name, "sequence", request.Sequence)
	}
	return nil
}

// Fetch answers a single-path lookup. Tombstones are reported as
// vault.ErrNotFound.
func (e *Engine) Fetch(ctx context.Context, request *peerrpc.FetchRequest) (*peerrpc.FetchResponse, error) {
	e.metrics.ServedTotal.WithLabelValues("fetch").Inc()
	if _, _, err := e.servedHead(ctx, request.Vault); err != nil {
		return nil, err
	}
	path, err := vault.Clean(request.Path)
	if err != nil {
		return nil, err
	}
	entry, err := e.metadata.Get(ctx, request.Vault, path)
	if err != nil {
		return nil, err
	}
	response := &peerrpc.FetchResponse{Entry: entry}
	if !entry.IsDir() && entry.Content != "" && entry.Size <= peerrpc.InlineLimit {
		data, err := e.content.Read(entry.Content)
		if err != nil {
			return nil, fmt.Errorf("reading content of %s: %w", vault.Join(entry.Vault, entry.Path), err)
		}
		response.Data = data
		response.Inline = true
	}
	return response, nil
}

// Blob serves content by ref. Refs are not scoped to a vault, but a
// node only holds blobs of vaults it may serve or has replicated.
func (e *Engine) Blob(ctx context.Context, request *peerrpc.BlobRequest) (*peerrpc.BlobResponse, error) {
	e.metrics.ServedTotal.WithLabelValues("blob").Inc()
	data, err := e.content.Read(request.Ref)
	if err != nil {
		return nil, err
	}
	return &peerrpc.BlobResponse{Data: data}, nil
}
