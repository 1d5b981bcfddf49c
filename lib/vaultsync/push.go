// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vaultsync

import (
	"context"
	"errors"

	"github.com/bureau-foundation/monovault/lib/peerrpc"
	"github.com/bureau-foundation/monovault/lib/vault"
)

// pushLoop notifies reachable peers of local commits, on every wake
// and every interval, until ctx is done.
func (e *Engine) pushLoop(ctx context.Context) error {
	ticker := e.clock.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-e.pushWake:
		}
		e.PushRound(ctx)
	}
}

// PushRound sends one batch of pending outbox rows to every reachable
// peer, then prunes rows every peer has been told about. A peer's
// delivery mark only moves after it acknowledged the notification.
func (e *Engine) PushRound(ctx context.Context) {
	if !e.shareLocal {
		return
	}
	for _, name := range e.peerNames {
		peer := e.peers[name]
		if peer.current() != StateReachable {
			continue
		}
		if err := e.pushTo(ctx, peer); err != nil {
			if ctx.Err() != nil {
				return
			}
			e.metrics.PushesTotal.WithLabelValues(peer.name, "error").Inc()
			e.markUnreachable(ctx, peer, err)
		}
	}

	removed, err := e.metadata.PruneOutbox(ctx, e.localVault, e.peerNames)
	if err != nil {
		e.logger.Warn("pruning outbox failed", "error", err)
		return
	}
	if removed > 0 {
		e.metrics.OutboxPrunedRows.Add(float64(removed))
		e.logger.Debug("pruned outbox", "rows", removed)
	}
}

func (e *Engine) pushTo(ctx context.Context, peer *peer) error {
	for {
		changes, err := e.metadata.Pending(ctx, peer.name, e.localVault, e.batchSize)
		if err != nil || len(changes) == 0 {
			return err
		}
		request := &peerrpc.NotifyRequest{
			Vault:    e.localVault,
			Sequence: changes[len(changes)-1].Sequence,
			Paths:    make([]string, 0, len(changes)),
		}
		for _, change := range changes {
			request.Paths = append(request.Paths, change.Path)
		}
		notifyContext, cancel := context.WithTimeout(ctx, e.fetchTimeout)
		err = peer.service.Notify(notifyContext, request)
		cancel()
		switch {
		case err == nil:
			e.metrics.PushesTotal.WithLabelValues(peer.name, "ok").Inc()
		case errors.Is(err, vault.ErrNotFound):
			// The peer does not replicate this vault. Treat the rows
			// as delivered so they do not pin the outbox.
			e.metrics.PushesTotal.WithLabelValues(peer.name, "ignored").Inc()
		default:
			return err
		}
		if err := e.metadata.MarkDelivered(ctx, peer.name, e.localVault, request.Sequence); err != nil {
			return err
		}
		if len(changes) < e.batchSize {
			return nil
		}
	}
}
