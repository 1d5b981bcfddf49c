// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package peerrpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bureau-foundation/monovault/lib/codec"
	"github.com/bureau-foundation/monovault/lib/vault"
	"github.com/bureau-foundation/monovault/lib/version"
	"github.com/bureau-foundation/monovault/transport"
)

var _ Service = (*Client)(nil)

// maxResponseBytes bounds response bodies: the largest blob plus
// envelope.
const maxResponseBytes = codec.MaxPayloadBytes + 1<<20

// ClientConfig describes one remote peer.
type ClientConfig struct {
	// Peer is the remote vault name, used in URLs and errors.
	Peer string

	// Address is the peer's "host:port".
	Address string

	// Dialer opens connections. Nil uses a plain TCPDialer.
	Dialer transport.Dialer

	// Timeout bounds each call, including reading the response.
	// Zero leaves only the context deadline.
	Timeout time.Duration
}

// Client calls one remote peer.
type Client struct {
	peer       string
	address    string
	httpClient *http.Client
}

// NewClient returns a Client for cfg.
func NewClient(cfg ClientConfig) *Client {
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &transport.TCPDialer{Timeout: cfg.Timeout}
	}
	return &Client{
		peer:    cfg.Peer,
		address: cfg.Address,
		httpClient: &http.Client{
			Transport: transport.HTTPTransport(dialer, cfg.Address),
			Timeout:   cfg.Timeout,
		},
	}
}

// Peer returns the remote vault name.
func (c *Client) Peer() string { return c.peer }

// Pull requests a delta.
func (c *Client) Pull(ctx context.Context, request *PullRequest) (*PullResponse, error) {
	var response PullResponse
	if err := c.call(ctx, PathPull, request, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// Notify sends a change hint.
func (c *Client) Notify(ctx context.Context, request *NotifyRequest) error {
	var response struct{}
	return c.call(ctx, PathNotify, request, &response)
}

// Fetch requests one entry.
func (c *Client) Fetch(ctx context.Context, request *FetchRequest) (*FetchResponse, error) {
	var response FetchResponse
	if err := c.call(ctx, PathFetch, request, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// Blob requests content by ref.
func (c *Client) Blob(ctx context.Context, request *BlobRequest) (*BlobResponse, error) {
	var response BlobResponse
	if err := c.call(ctx, PathBlob, request, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// CloseIdleConnections drops pooled connections to the peer.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) call(ctx context.Context, path string, request, response any) error {
	body, err := codec.Marshal(request)
	if err != nil {
		return fmt.Errorf("peerrpc: encoding %s request: %w", path, err)
	}
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://monovault-peer"+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("peerrpc: building %s request: %w", path, err)
	}
	httpRequest.Header.Set("Content-Type", ContentType)
	httpRequest.Header.Set(ProtocolHeader, version.ProtocolString)

	httpResponse, err := c.httpClient.Do(httpRequest)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
			return ctxErr
		}
		return fmt.Errorf("peer %s at %s: %w: %v", c.peer, c.address, vault.ErrUnreachable, err)
	}
	defer httpResponse.Body.Close()

	reader := io.LimitReader(httpResponse.Body, maxResponseBytes)
	if httpResponse.StatusCode != http.StatusOK {
		var failure ErrorResponse
		if err := codec.NewDecoder(reader).Decode(&failure); err != nil {
			return fmt.Errorf("peer %s: %s returned HTTP %d", c.peer, path, httpResponse.StatusCode)
		}
		if sentinel := vault.ErrorFor(failure.Code); sentinel != nil {
			return fmt.Errorf("peer %s: %s: %w", c.peer, failure.Message, sentinel)
		}
		return fmt.Errorf("peer %s: %s", c.peer, failure.Message)
	}
	if err := codec.NewDecoder(reader).Decode(response); err != nil {
		// A connection cut mid-body is as good as no connection.
		return fmt.Errorf("peer %s: decoding %s response: %w: %v", c.peer, path, vault.ErrUnreachable, err)
	}
	return nil
}
