// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vaultsync

import (
	"context"
	"fmt"
	"time"

	"github.com/bureau-foundation/monovault/lib/metastore"
	"github.com/bureau-foundation/monovault/lib/peerrpc"
	"github.com/bureau-foundation/monovault/lib/replica"
	"github.com/bureau-foundation/monovault/lib/vault"
)

// pullVault pulls vaultName through via until via reports no more
// changes. Each batch is applied before the cursor moves past it, so
// an interrupted pull resumes where the last stored cursor points.
func (e *Engine) pullVault(ctx context.Context, via *peer, vaultName string) error {
	start := e.clock.Now()
	err := e.pullBatches(ctx, via, vaultName)
	result := "ok"
	if err != nil {
		result = "error"
	}
	e.metrics.PullsTotal.WithLabelValues(via.name, result).Inc()
	e.metrics.PullDuration.WithLabelValues(via.name).Observe(e.clock.Now().Sub(start).Seconds())
	return err
}

func (e *Engine) pullBatches(ctx context.Context, via *peer, vaultName string) error {
	relayed := via.name != vaultName
	for {
		cursor, err := e.metadata.Cursor(ctx, vaultName)
		if err != nil {
			return err
		}
		response, err := via.service.Pull(ctx, &peerrpc.PullRequest{
			Vault: vaultName,
			Since: cursor.Sequence,
			Epoch: cursor.Epoch,
			Limit: e.batchSize,
		})
		if err != nil {
			return fmt.Errorf("pulling %s from %s: %w", vaultName, via.name, err)
		}
		if response.Vault != vaultName {
			return fmt.Errorf("pulling %s from %s: response is for vault %q", vaultName, via.name, response.Vault)
		}

		if cursor.Epoch != "" && response.Epoch != cursor.Epoch {
			// The owner's history restarted. Everything cached under
			// the old epoch may refer to sequences that no longer
			// exist, so start over from what this response carries.
			e.logger.Warn("vault epoch changed, resynchronizing",
				"vault", vaultName,
				"via", via.name,
				"old_epoch", cursor.Epoch,
				"new_epoch", response.Epoch,
			)
			if err := e.replica.Forget(ctx, vaultName); err != nil {
				return err
			}
			cursor = metastore.Cursor{}
		}

		applied := 0
		for index := range response.Entries {
			outcome, err := e.applyPulled(ctx, via, &response.Entries[index])
			if err != nil {
				return err
			}
			e.metrics.EntriesTotal.WithLabelValues(vaultName, outcome.String()).Inc()
			if outcome == replica.Applied {
				applied++
			}
		}

		next := metastore.Cursor{Epoch: response.Epoch, Sequence: max(cursor.Sequence, response.Through)}
		if err := e.metadata.SetCursor(ctx, vaultName, next); err != nil {
			return err
		}
		e.metrics.CursorSequence.WithLabelValues(vaultName).Set(float64(next.Sequence))
		if len(response.Entries) > 0 {
			e.logger.Debug("pulled changes",
				"vault", vaultName,
				"via", via.name,
				"entries", len(response.Entries),
				"applied", applied,
				"through", next.Sequence,
			)
		}
		if relayed && applied > 0 {
			// Relayed data is only as fresh as the relay's copy.
			if err := e.replica.MarkStale(ctx, vaultName); err != nil {
				return err
			}
		}
		if !response.More {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// applyPulled stores one pulled entry, fetching its blob through via
// when it was not sent inline and is not already present.
func (e *Engine) applyPulled(ctx context.Context, via *peer, pulled *peerrpc.PulledEntry) (replica.Outcome, error) {
	content, err := e.contentFor(ctx, via, &pulled.Entry, pulled.Data, pulled.Inline)
	if err != nil {
		return replica.Discarded, err
	}
	return e.replica.Upsert(ctx, pulled.Entry, content)
}

// contentFor returns the bytes replica.Upsert needs for entry: the
// inline data, nil when nothing is needed, or the blob fetched from
// via.
func (e *Engine) contentFor(ctx context.Context, via *peer, entry *vault.Entry, data []byte, inline bool) ([]byte, error) {
	if entry.Deleted || entry.IsDir() || entry.Content == "" {
		return nil, nil
	}
	if inline {
		if data == nil {
			// Empty files encode their data as absent.
			data = []byte{}
		}
		return data, nil
	}
	if e.replica.TouchContent(entry.Content) {
		return nil, nil
	}
	blobContext, cancel := context.WithTimeout(ctx, blobTimeout)
	defer cancel()
	response, err := via.service.Blob(blobContext, &peerrpc.BlobRequest{Ref: entry.Content})
	if err != nil {
		return nil, fmt.Errorf("fetching content of %s from %s: %w", vault.Join(entry.Vault, entry.Path), via.name, err)
	}
	return response.Data, nil
}

// blobTimeout bounds one Blob call.
const blobTimeout = 30 * time.Second
