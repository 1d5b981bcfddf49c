// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

var (
	_ Listener = (*TCPListener)(nil)
	_ Dialer   = (*TCPDialer)(nil)
)

// ShutdownGrace bounds how long Serve waits for in-flight requests
// after its context is cancelled.
const ShutdownGrace = 5 * time.Second

// TCPListener serves peer RPC over TCP.
type TCPListener struct {
	listener net.Listener
	logger   *slog.Logger

	mu     sync.Mutex
	server *http.Server
	closed bool
}

// NewTCPListener binds address ("host:port"; port 0 picks a free
// port). A nil logger discards server errors.
func NewTCPListener(address string, logger *slog.Logger) (*TCPListener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("transport: listening on %s: %w", address, err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TCPListener{listener: listener, logger: logger}, nil
}

// Serve blocks serving handler. Cancelling ctx drains in-flight
// requests for up to ShutdownGrace.
func (l *TCPListener) Serve(ctx context.Context, handler http.Handler) error {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      5 * time.Minute, // Large blob responses.
		ErrorLog:          slog.NewLogLogger(l.logger.Handler(), slog.LevelWarn),
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.server = server
	l.mu.Unlock()

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			shutdownContext, cancel := context.WithTimeout(context.Background(), ShutdownGrace)
			defer cancel()
			if err := server.Shutdown(shutdownContext); err != nil {
				server.Close()
			}
		case <-stopped:
		}
	}()

	l.logger.Info("peer listener serving", "address", l.Address())
	err := server.Serve(l.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Address returns the bound "host:port".
func (l *TCPListener) Address() string {
	return l.listener.Addr().String()
}

// Close stops accepting and drops open connections.
func (l *TCPListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	if l.server != nil {
		return l.server.Close()
	}
	return l.listener.Close()
}

// TCPDialer dials peers over TCP.
type TCPDialer struct {
	// Timeout bounds connection establishment. Zero leaves only the
	// context deadline.
	Timeout time.Duration
}

// DialContext connects to address ("host:port").
func (d *TCPDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout, KeepAlive: 30 * time.Second}
	return dialer.DialContext(ctx, "tcp", address)
}
