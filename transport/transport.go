// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
	"net/http"
	"time"
)

// Listener accepts inbound peer connections.
type Listener interface {
	// Serve dispatches requests to handler until ctx is cancelled or
	// Close is called. Returns nil on clean shutdown.
	Serve(ctx context.Context, handler http.Handler) error

	// Address returns the bound address in the form peers dial.
	Address() string

	// Close stops the listener. In-flight requests are abandoned.
	Close() error
}

// Dialer opens connections to peers.
type Dialer interface {
	// DialContext connects to a peer at address, in the format its
	// Listener.Address returns.
	DialContext(ctx context.Context, address string) (net.Conn, error)
}

// HTTPTransport returns a RoundTripper that sends every request to
// address through dialer, whatever host the request URL names. Idle
// connections are kept so a sync loop reuses one connection per peer.
func HTTPTransport(dialer Dialer, address string) http.RoundTripper {
	return &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, address)
		},
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		DisableCompression:  true,
	}
}
