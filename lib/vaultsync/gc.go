// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vaultsync

import (
	"context"
	"fmt"
)

// gcLoop runs CollectGarbage every gcInterval until ctx is done.
// Failures are logged and retried on the next tick.
func (e *Engine) gcLoop(ctx context.Context) error {
	ticker := e.clock.NewTicker(e.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if _, err := e.CollectGarbage(ctx); err != nil && ctx.Err() == nil {
			e.logger.Warn("content garbage collection failed", "error", err)
		}
	}
}

// CollectGarbage removes blobs that no live entry references. Blobs
// younger than the content store's sweep grace survive, which covers
// content written but not yet committed.
func (e *Engine) CollectGarbage(ctx context.Context) (int, error) {
	live, err := e.replica.References(ctx)
	if err != nil {
		return 0, fmt.Errorf("vaultsync: collecting garbage: %w", err)
	}
	removed, err := e.content.Sweep(ctx, live)
	if removed > 0 {
		e.metrics.BlobsSwept.Add(float64(removed))
		e.logger.Info("swept unreferenced blobs", "removed", removed, "live", len(live))
	}
	if err != nil {
		return removed, fmt.Errorf("vaultsync: collecting garbage: %w", err)
	}
	return removed, nil
}
