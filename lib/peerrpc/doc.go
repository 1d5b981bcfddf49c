// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package peerrpc is the node-to-node protocol: four request/response
// calls carried as HTTP POST with CBOR bodies.
//
//	/v1/pull    PullRequest   → PullResponse   delta of a vault since a cursor
//	/v1/notify  NotifyRequest → (empty)        hint that the sender's vault changed
//	/v1/fetch   FetchRequest  → FetchResponse  one entry plus content, on demand
//	/v1/blob    BlobRequest   → BlobResponse   content too large to inline
//
// Both sides speak the [Service] interface. [NewHandler] exposes a
// Service over HTTP, and [Client] is a Service that calls a remote
// peer through a transport.Dialer. Failures are sent as an
// [ErrorResponse] whose code maps back onto the lib/vault sentinels,
// so errors.Is works across the wire. A peer that cannot be reached
// at all yields vault.ErrUnreachable.
package peerrpc
