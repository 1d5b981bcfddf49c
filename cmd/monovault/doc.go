// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// monovault runs one node of a peer-to-peer vault filesystem.
//
// Each node owns one vault and mounts a tree whose top-level
// directories are its own vault and every peer's vault. Writes go to
// the local vault only; peer vaults are read-only replicas kept
// current by the sync engine and served from the local cache when the
// owner is offline.
//
// The node listens on my_address for peer RPC (pull, notify, fetch,
// blob) and serves Prometheus metrics at /metrics on the same port.
//
// Usage:
//
//	monovault --config /etc/monovault/node.yaml
//	MONOVAULT_CONFIG=/etc/monovault/node.jsonc monovault --log-level debug
package main
