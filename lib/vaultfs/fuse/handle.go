// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fuse

import (
	"context"
	"sync"
	"syscall"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/bureau-foundation/monovault/lib/codec"
	"github.com/bureau-foundation/monovault/lib/localvault"
)

// fileHandle is an open file. Read-only handles read through to the
// dispatcher; writable handles hold the whole file in buffer until
// Flush.
type fileHandle struct {
	mount *mount
	node  *vaultNode

	writable bool

	mu     sync.Mutex
	buffer []byte

	// dirty is set by writes and truncates since the last flush.
	dirty bool
}

var (
	_ gofuse.FileReader   = (*fileHandle)(nil)
	_ gofuse.FileWriter   = (*fileHandle)(nil)
	_ gofuse.FileFlusher  = (*fileHandle)(nil)
	_ gofuse.FileFsyncer  = (*fileHandle)(nil)
	_ gofuse.FileReleaser = (*fileHandle)(nil)
)

func (h *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if h.writable {
		h.mu.Lock()
		defer h.mu.Unlock()
		return fuse.ReadResultData(localvault.Slice(h.buffer, off, len(dest))), 0
	}
	path := h.node.mountPath()
	data, err := h.mount.fs.Read(ctx, path, off, len(dest))
	if err != nil {
		return nil, h.mount.errno("read", path, err)
	}
	return fuse.ReadResultData(data), 0
}

func (h *fileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	if !h.writable {
		return 0, syscall.EBADF
	}
	if off < 0 {
		return 0, syscall.EINVAL
	}
	if off > codec.MaxPayloadBytes-int64(len(data)) {
		return 0, syscall.EFBIG
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	end := off + int64(len(data))
	if end > int64(len(h.buffer)) {
		grown := make([]byte, end)
		copy(grown, h.buffer)
		h.buffer = grown
	}
	copy(h.buffer[off:], data)
	h.dirty = true
	return uint32(len(data)), 0
}

// truncate resizes the buffer. Sizes beyond the vault's file limit
// fail with EFBIG and leave the buffer untouched.
func (h *fileHandle) truncate(size uint64) syscall.Errno {
	if size > codec.MaxPayloadBytes {
		return syscall.EFBIG
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if size <= uint64(len(h.buffer)) {
		h.buffer = h.buffer[:size]
	} else {
		grown := make([]byte, size)
		copy(grown, h.buffer)
		h.buffer = grown
	}
	h.dirty = true
	return 0
}

// bufferedSize reports the buffered length for writable handles.
func (h *fileHandle) bufferedSize() (int64, bool) {
	if !h.writable {
		return 0, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return int64(len(h.buffer)), true
}

// Flush commits buffered changes. Called on every close of a
// descriptor sharing this handle, so it is a no-op when clean.
func (h *fileHandle) Flush(ctx context.Context) syscall.Errno {
	if !h.writable {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.dirty {
		return 0
	}
	path := h.node.mountPath()
	if _, err := h.mount.fs.Replace(ctx, path, h.buffer); err != nil {
		return h.mount.errno("flush", path, err)
	}
	h.dirty = false
	return 0
}

func (h *fileHandle) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	return h.Flush(ctx)
}

func (h *fileHandle) Release(ctx context.Context) syscall.Errno {
	return 0
}
