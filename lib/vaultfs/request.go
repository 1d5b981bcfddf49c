// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vaultfs

import "context"

// Request is one filesystem call. The set of implementations is
// closed: only the request types in this package satisfy it.
type Request interface {
	serve(ctx context.Context, fs *FS) (Response, error)
}

// Response carries whichever results the request produces: Node for
// calls that resolve or change a path, Data for reads, Entries for
// listings and Written for writes.
type Response struct {
	Node    Node
	Data    []byte
	Entries []DirEntry
	Written int
}

// Dispatch runs request against fs.
func (fs *FS) Dispatch(ctx context.Context, request Request) (Response, error) {
	return request.serve(ctx, fs)
}

// LookupRequest resolves Path to a Node.
type LookupRequest struct{ Path string }

// ReadRequest reads up to Size bytes of the file at Path, starting at
// Offset.
type ReadRequest struct {
	Path   string
	Offset int64
	Size   int
}

// WriteRequest writes Data at Offset into an existing local file.
// Response.Written reports how many bytes were taken.
type WriteRequest struct {
	Path   string
	Offset int64
	Data   []byte
}

// ReplaceRequest sets the whole content of a local file, creating it
// when absent.
type ReplaceRequest struct {
	Path string
	Data []byte
}

// CreateRequest creates an empty local file.
type CreateRequest struct{ Path string }

// MkdirRequest creates a local directory.
type MkdirRequest struct{ Path string }

// TruncateRequest resizes a local file, zero-filling growth.
type TruncateRequest struct {
	Path string
	Size int64
}

// RenameRequest moves a local file or directory. Both paths must be
// in the local vault.
type RenameRequest struct{ From, To string }

// DeleteRequest removes a local file or empty directory.
type DeleteRequest struct{ Path string }

// ReaddirRequest lists the directory at Path.
type ReaddirRequest struct{ Path string }

func (r LookupRequest) serve(ctx context.Context, fs *FS) (Response, error) {
	node, err := fs.Lookup(ctx, r.Path)
	return Response{Node: node}, err
}

func (r ReadRequest) serve(ctx context.Context, fs *FS) (Response, error) {
	data, err := fs.Read(ctx, r.Path, r.Offset, r.Size)
	return Response{Data: data}, err
}

func (r WriteRequest) serve(ctx context.Context, fs *FS) (Response, error) {
	node, err := fs.Write(ctx, r.Path, r.Offset, r.Data)
	if err != nil {
		return Response{}, err
	}
	return Response{Node: node, Written: len(r.Data)}, nil
}

func (r ReplaceRequest) serve(ctx context.Context, fs *FS) (Response, error) {
	node, err := fs.Replace(ctx, r.Path, r.Data)
	if err != nil {
		return Response{}, err
	}
	return Response{Node: node, Written: len(r.Data)}, nil
}

func (r CreateRequest) serve(ctx context.Context, fs *FS) (Response, error) {
	node, err := fs.Create(ctx, r.Path)
	return Response{Node: node}, err
}

func (r MkdirRequest) serve(ctx context.Context, fs *FS) (Response, error) {
	node, err := fs.Mkdir(ctx, r.Path)
	return Response{Node: node}, err
}

func (r TruncateRequest) serve(ctx context.Context, fs *FS) (Response, error) {
	node, err := fs.Truncate(ctx, r.Path, r.Size)
	return Response{Node: node}, err
}

func (r RenameRequest) serve(ctx context.Context, fs *FS) (Response, error) {
	return Response{}, fs.Rename(ctx, r.From, r.To)
}

func (r DeleteRequest) serve(ctx context.Context, fs *FS) (Response, error) {
	return Response{}, fs.Delete(ctx, r.Path)
}

func (r ReaddirRequest) serve(ctx context.Context, fs *FS) (Response, error) {
	entries, err := fs.Readdir(ctx, r.Path)
	return Response{Entries: entries}, err
}
