// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func startListener(t *testing.T, handler http.Handler) *TCPListener {
	t.Helper()
	listener, err := NewTCPListener("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("NewTCPListener: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		listener.Serve(ctx, handler)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return listener
}

func TestTCPListenerAddress(t *testing.T) {
	listener := startListener(t, http.NotFoundHandler())
	if !strings.HasPrefix(listener.Address(), "127.0.0.1:") {
		t.Errorf("Address() = %q, want 127.0.0.1:<port>", listener.Address())
	}
}

func TestHTTPTransportIgnoresURLHost(t *testing.T) {
	listener := startListener(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fmt.Fprintf(w, "%s %s %s", r.Method, r.URL.Path, body)
	}))

	client := &http.Client{
		Transport: HTTPTransport(&TCPDialer{}, listener.Address()),
		Timeout:   5 * time.Second,
	}
	// The URL host names the peer vault, not a resolvable address.
	response, err := client.Post("http://beta/v1/pull", "application/cbor", bytes.NewReader([]byte("payload")))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if want := "POST /v1/pull payload"; string(body) != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

func TestTCPDialerConnectionRefused(t *testing.T) {
	dialer := &TCPDialer{Timeout: time.Second}
	// Port 1 is almost certainly not listening.
	if _, err := dialer.DialContext(context.Background(), "127.0.0.1:1"); err == nil {
		t.Error("expected error connecting to non-listening port")
	}
}

func TestTCPDialerCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (&TCPDialer{}).DialContext(ctx, "127.0.0.1:1"); err == nil {
		t.Error("expected error with cancelled context")
	}
}

func TestServeReturnsOnCancel(t *testing.T) {
	listener, err := NewTCPListener("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("NewTCPListener: %v", err)
	}
	defer listener.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Serve(ctx, http.NotFoundHandler()) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v, want nil", err)
		}
	case <-time.After(ShutdownGrace + 5*time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

func TestServeAfterClose(t *testing.T) {
	listener, err := NewTCPListener("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("NewTCPListener: %v", err)
	}
	if err := listener.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := listener.Serve(context.Background(), http.NotFoundHandler()); err != nil {
		t.Errorf("Serve after Close = %v, want nil", err)
	}
}
