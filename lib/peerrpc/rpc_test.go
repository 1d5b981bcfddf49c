// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package peerrpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/monovault/lib/codec"
	"github.com/bureau-foundation/monovault/lib/vault"
	"github.com/bureau-foundation/monovault/lib/version"
	"github.com/bureau-foundation/monovault/transport"
)

// stubService answers from fixed data and records notifications.
type stubService struct {
	mu       sync.Mutex
	notified []NotifyRequest
	entries  map[string]vault.Entry
	blobs    map[string][]byte
}

func (s *stubService) Pull(ctx context.Context, request *PullRequest) (*PullResponse, error) {
	if request.Vault != "beta" {
		return nil, fmt.Errorf("vault %s: %w", request.Vault, vault.ErrNotFound)
	}
	response := &PullResponse{Vault: "beta", Epoch: "epoch-1", Through: request.Since}
	for _, entry := range s.entries {
		if entry.Sequence > request.Since {
			response.Entries = append(response.Entries, PulledEntry{Entry: entry, Data: []byte("inline"), Inline: true})
			response.Through = max(response.Through, entry.Sequence)
		}
	}
	return response, nil
}

func (s *stubService) Notify(ctx context.Context, request *NotifyRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notified = append(s.notified, *request)
	return nil
}

func (s *stubService) Fetch(ctx context.Context, request *FetchRequest) (*FetchResponse, error) {
	entry, ok := s.entries[request.Path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", request.Path, vault.ErrNotFound)
	}
	return &FetchResponse{Entry: entry}, nil
}

func (s *stubService) Blob(ctx context.Context, request *BlobRequest) (*BlobResponse, error) {
	data, ok := s.blobs[request.Ref]
	if !ok {
		return nil, errors.New("disk exploded")
	}
	return &BlobResponse{Data: data}, nil
}

func startServer(t *testing.T, service Service) *Client {
	t.Helper()
	listener, err := transport.NewTCPListener("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("NewTCPListener: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		listener.Serve(ctx, NewHandler(service, nil))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return NewClient(ClientConfig{Peer: "beta", Address: listener.Address(), Timeout: 5 * time.Second})
}

func newStub() *stubService {
	return &stubService{
		entries: map[string]vault.Entry{
			"tsfile": {
				Vault: "beta", Path: "tsfile", Kind: vault.KindFile, Size: 6, Version: 2, Sequence: 7,
				Content:  "c0ffee",
				Modified: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			},
		},
		blobs: map[string][]byte{"big": bytes.Repeat([]byte("x"), 1<<20)},
	}
}

func TestPullRoundTrip(t *testing.T) {
	client := startServer(t, newStub())
	response, err := client.Pull(context.Background(), &PullRequest{Vault: "beta", Since: 0})
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if response.Epoch != "epoch-1" || response.Through != 7 || len(response.Entries) != 1 {
		t.Fatalf("Pull = %+v", response)
	}
	pulled := response.Entries[0]
	if !pulled.Inline || string(pulled.Data) != "inline" {
		t.Errorf("pulled data = %q inline=%t", pulled.Data, pulled.Inline)
	}
	if pulled.Entry.Version != 2 || !pulled.Entry.Modified.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("pulled entry = %+v", pulled.Entry)
	}
}

func TestErrorCodesSurviveTheWire(t *testing.T) {
	client := startServer(t, newStub())
	ctx := context.Background()

	if _, err := client.Pull(ctx, &PullRequest{Vault: "gamma"}); !errors.Is(err, vault.ErrNotFound) {
		t.Errorf("Pull(unknown vault) = %v, want ErrNotFound", err)
	}
	if _, err := client.Fetch(ctx, &FetchRequest{Vault: "beta", Path: "missing"}); !errors.Is(err, vault.ErrNotFound) {
		t.Errorf("Fetch(missing) = %v, want ErrNotFound", err)
	}
	_, err := client.Blob(ctx, &BlobRequest{Ref: "nope"})
	if err == nil || errors.Is(err, vault.ErrNotFound) || errors.Is(err, vault.ErrUnreachable) {
		t.Errorf("Blob(server failure) = %v, want a plain I/O error", err)
	}
}

func TestLargeBlob(t *testing.T) {
	client := startServer(t, newStub())
	response, err := client.Blob(context.Background(), &BlobRequest{Ref: "big"})
	if err != nil {
		t.Fatalf("Blob: %v", err)
	}
	if len(response.Data) != 1<<20 {
		t.Errorf("blob length = %d, want %d", len(response.Data), 1<<20)
	}
}

func TestNotifyDelivered(t *testing.T) {
	stub := newStub()
	client := startServer(t, stub)
	request := &NotifyRequest{Vault: "alpha", Sequence: 12, Paths: []string{"a", "b"}}
	if err := client.Notify(context.Background(), request); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.notified) != 1 || stub.notified[0].Sequence != 12 || len(stub.notified[0].Paths) != 2 {
		t.Errorf("notified = %+v", stub.notified)
	}
}

func TestUnreachablePeer(t *testing.T) {
	client := NewClient(ClientConfig{Peer: "beta", Address: "127.0.0.1:1", Timeout: time.Second})
	_, err := client.Pull(context.Background(), &PullRequest{Vault: "beta"})
	if !errors.Is(err, vault.ErrUnreachable) {
		t.Errorf("Pull to closed port = %v, want ErrUnreachable", err)
	}
}

func TestMalformedRequest(t *testing.T) {
	handler := NewHandler(newStub(), nil)
	listener, err := transport.NewTCPListener("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("NewTCPListener: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.Serve(ctx, handler)

	httpClient := &http.Client{Transport: transport.HTTPTransport(&transport.TCPDialer{}, listener.Address())}
	request, err := http.NewRequest(http.MethodPost, "http://peer"+PathPull, bytes.NewReader([]byte{0xff, 0x00}))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	request.Header.Set("Content-Type", ContentType)
	request.Header.Set(ProtocolHeader, version.ProtocolString)
	response, err := httpClient.Do(request)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", response.StatusCode)
	}
	var failure ErrorResponse
	if err := codec.NewDecoder(response.Body).Decode(&failure); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if failure.Code != vault.CodeIO {
		t.Errorf("code = %q, want io", failure.Code)
	}

	// Only POST is routed.
	getResponse, err := httpClient.Get("http://peer" + PathPull)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	getResponse.Body.Close()
	if getResponse.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", getResponse.StatusCode)
	}
}

func TestProtocolMismatchRejected(t *testing.T) {
	listener, err := transport.NewTCPListener("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("NewTCPListener: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.Serve(ctx, NewHandler(newStub(), nil))

	body, err := codec.Marshal(&PullRequest{Vault: "beta"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	httpClient := &http.Client{Transport: transport.HTTPTransport(&transport.TCPDialer{}, listener.Address())}
	for _, protocol := range []string{"", "999"} {
		request, err := http.NewRequest(http.MethodPost, "http://peer"+PathPull, bytes.NewReader(body))
		if err != nil {
			t.Fatalf("NewRequest: %v", err)
		}
		request.Header.Set("Content-Type", ContentType)
		if protocol != "" {
			request.Header.Set(ProtocolHeader, protocol)
		}
		response, err := httpClient.Do(request)
		if err != nil {
			t.Fatalf("POST: %v", err)
		}
		var failure ErrorResponse
		decodeErr := codec.NewDecoder(response.Body).Decode(&failure)
		response.Body.Close()
		if response.StatusCode != http.StatusBadRequest {
			t.Errorf("protocol %q: status = %d, want 400", protocol, response.StatusCode)
		}
		if decodeErr != nil {
			t.Fatalf("protocol %q: decoding error body: %v", protocol, decodeErr)
		}
		if !strings.Contains(failure.Message, "protocol") {
			t.Errorf("protocol %q: message = %q, want a protocol mismatch", protocol, failure.Message)
		}
	}
}
