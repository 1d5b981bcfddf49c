// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens the SQLite database that backs a vault
// node's metadata store.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool. Callers Take a
// connection, do their work, and Put it back; a connection is never
// shared between goroutines. Every connection gets the same pragmas:
//
//   - journal_mode=WAL: filesystem readers (lookup, readdir) run
//     against a snapshot while the local vault manager or the sync
//     engine commits.
//   - synchronous=FULL: the database is the only copy of the local
//     vault's namespace, so commits are fsynced.
//   - busy_timeout=5000: concurrent IMMEDIATE writers wait instead of
//     failing with SQLITE_BUSY.
//   - foreign_keys=OFF, temp_store=MEMORY, cache_size=-8192.
//
// The schema is applied once, on a single connection, when the pool
// opens. Statements use CREATE ... IF NOT EXISTS so reopening an
// existing database is a no-op.
package sqlitepool
