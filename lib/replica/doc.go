// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package replica is the local materialized view of remote vaults.
//
// The sync engine is its only writer. [Cache.Upsert] stores the blob
// first and then applies the entry under the deterministic resolution
// rule of [vault.Compare], so replaying a batch or receiving the same
// path through two different relays converges on the same winner in
// any order. Losing versions are dropped from the cache and written to
// the conflict audit trail.
//
// Reads never depend on a peer being reachable. When a peer goes
// offline its vault is marked stale, which only changes the
// [Freshness] reported alongside cached entries.
package replica
