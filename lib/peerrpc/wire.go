// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package peerrpc

import (
	"context"

	"github.com/bureau-foundation/monovault/lib/vault"
)

// ContentType is the media type of every request and response body.
const ContentType = "application/cbor"

// ProtocolHeader carries the caller's version.Protocol. Requests
// without it, or with another revision, are rejected.
const ProtocolHeader = "Monovault-Protocol"

// Request paths.
const (
	PathPull   = "/v1/pull"
	PathNotify = "/v1/notify"
	PathFetch  = "/v1/fetch"
	PathBlob   = "/v1/blob"
)

// InlineLimit is the largest content sent inside a pull or fetch
// response. Larger files travel by ref and are fetched with Blob.
const InlineLimit = 256 << 10

// Service is implemented by the sync engine (serving) and by Client
// (calling a remote peer).
type Service interface {
	Pull(ctx context.Context, request *PullRequest) (*PullResponse, error)
	Notify(ctx context.Context, request *NotifyRequest) error
	Fetch(ctx context.Context, request *FetchRequest) (*FetchResponse, error)
	Blob(ctx context.Context, request *BlobRequest) (*BlobResponse, error)
}

// PullRequest asks for the records of Vault with a sequence above
// Since. Epoch is the epoch the cursor was taken in; the server
// answers with its own and the caller resets when they differ.
type PullRequest struct {
	Vault string `cbor:"vault"`
	Since uint64 `cbor:"since"`
	Epoch string `cbor:"epoch,omitempty"`
	Limit int    `cbor:"limit,omitempty"`
}

// PullResponse is one batch of changes in sequence order. Through is
// the cursor to store once every entry has been applied; More asks the
// caller to pull again from Through.
type PullResponse struct {
	Vault   string        `cbor:"vault"`
	Epoch   string        `cbor:"epoch"`
	Entries []PulledEntry `cbor:"entries"`
	Through uint64        `cbor:"through"`
	More    bool          `cbor:"more,omitempty"`
}

// PulledEntry is a record plus, when Inline is set, its content.
type PulledEntry struct {
	Entry  vault.Entry `cbor:"entry"`
	Data   []byte      `cbor:"data,omitempty"`
	Inline bool        `cbor:"inline,omitempty"`
}

// NotifyRequest tells a peer that Vault advanced to Sequence. Paths
// lists what changed; receivers only use it as a hint.
type NotifyRequest struct {
	Vault    string   `cbor:"vault"`
	Sequence uint64   `cbor:"sequence"`
	Paths    []string `cbor:"paths,omitempty"`
}

// FetchRequest asks for the current record at one path.
type FetchRequest struct {
	Vault string `cbor:"vault"`
	Path  string `cbor:"path"`
}

// FetchResponse carries the record and, when Inline, its content.
type FetchResponse struct {
	Entry  vault.Entry `cbor:"entry"`
	Data   []byte      `cbor:"data,omitempty"`
	Inline bool        `cbor:"inline,omitempty"`
}

// BlobRequest asks for a blob by ref.
type BlobRequest struct {
	Ref string `cbor:"ref"`
}

// BlobResponse carries the blob bytes.
type BlobResponse struct {
	Data []byte `cbor:"data"`
}

// ErrorResponse is the body of every non-200 response.
type ErrorResponse struct {
	Code    vault.Code `cbor:"code"`
	Message string     `cbor:"message"`
}
