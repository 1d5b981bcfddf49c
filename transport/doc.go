// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries peer RPC between monovault nodes.
//
// [Listener] accepts inbound connections from peers and serves an
// http.Handler on them; [Dialer] opens outbound connections to a
// peer's configured address. [HTTPTransport] wraps a Dialer as an
// http.RoundTripper pinned to one peer, so RPC clients use ordinary
// net/http code while the connection target comes from the peer table
// rather than the request URL.
//
// The only implementation is plain TCP ([TCPListener], [TCPDialer]):
// peers form a small, statically configured set with direct
// reachability.
package transport
