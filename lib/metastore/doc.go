// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metastore is the durable path index behind every vault. It
// maps (vault, path) to the latest [vault.Entry], including tombstones,
// and keeps the bookkeeping the sync engine needs: per-vault sequence
// counters and epochs, sync cursors for remote vaults, the push outbox
// with per-peer delivered marks, per-path staleness and an audit trail
// of discarded conflict losers.
//
// Storage is a single SQLite database opened through lib/sqlitepool.
// Every mutating method runs in its own IMMEDIATE transaction, so
// concurrent readers (WAL snapshots) always see either the whole
// mutation or none of it.
package metastore
