// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package localvault is the only writer of the local vault's entries.
//
// Every mutation follows the same shape: read the current record
// (absent counts as version 0), store any new content in the content
// store, then commit to the metadata store with the version that was
// read as the expectation. A concurrent writer that committed first
// makes the commit fail with vault.ErrConflict; the caller re-reads
// and retries. Committing also appends the change to the push outbox
// in the same transaction, after which the manager wakes the push
// loop without waiting for it.
//
// Nothing here touches the network, so local reads and writes keep
// working while every peer is offline.
package localvault
