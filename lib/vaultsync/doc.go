// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package vaultsync keeps replicas of remote vaults converging and
// tells peers about local changes.
//
// An [Engine] runs one loop per configured peer plus a push fan-out
// loop, all under one errgroup. Each peer loop pulls the peer's vault
// on a fixed interval, and sooner when the peer sends a notify. A pull
// asks for records past the stored sync cursor, in batches, and
// advances the cursor only after a whole batch is applied to the
// replica cache, so an abandoned round resumes from a safe point and
// replays are absorbed by the cache's idempotent upsert.
//
// Every peer has a [PeerState]. Failed contact moves it to
// Unreachable and marks its vault stale; the next successful pull moves
// it back to Reachable and marks it fresh. There is no terminal state.
//
// The engine is also the server side of lib/peerrpc: it answers pulls
// for the local vault (and, with relaying enabled, for replicas it
// holds), single-path fetches, blob reads and notifies.
//
// With a GC interval configured, a further loop sweeps blobs that no
// live entry references.
//
// Filesystem dispatch never waits on a sync round. The only network
// call on the dispatch path is [Engine.FetchRemote], which is bounded
// by a timeout and remembers misses for a short time.
package vaultsync
