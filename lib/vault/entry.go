// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vault

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the type of a path entry.
type Kind uint8

const (
	KindFile      Kind = 0
	KindDirectory Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Entry is the metadata record of one file or directory at one
// version.
type Entry struct {
	Vault string `cbor:"vault"`
	Path  string `cbor:"path"`
	Kind  Kind   `cbor:"kind"`
	Size  int64  `cbor:"size"`

	// Version is the per-path mutation counter. It strictly increases
	// across the whole history of the path, deletes included.
	Version uint64 `cbor:"version"`

	// Sequence is the owner's vault-wide change counter at the time of
	// this mutation. Replicas keep the origin's value.
	Sequence uint64 `cbor:"sequence"`

	// Content is the content store reference of the file's bytes.
	// Empty for directories and tombstones.
	Content string `cbor:"content,omitempty"`

	Modified time.Time `cbor:"modified"`
	Deleted  bool      `cbor:"deleted,omitempty"`
}

// IsDir reports whether the entry is a directory.
func (e *Entry) IsDir() bool { return e.Kind == KindDirectory }

// Name returns the last path component, or the vault name for the
// vault root.
func (e *Entry) Name() string {
	if e.Path == "" {
		return e.Vault
	}
	return Base(e.Path)
}

func (e Entry) String() string {
	state := ""
	if e.Deleted {
		state = " deleted"
	}
	return fmt.Sprintf("%s:/%s v%d seq%d%s", e.Vault, e.Path, e.Version, e.Sequence, state)
}

// Compare orders two versions of the same path. It returns a positive
// number when a should win over b, negative when b wins, and zero when
// they are the same version. Higher Version wins; on a tie the
// lexicographically larger Content reference wins; on a full tie a
// tombstone beats a live entry, then a directory beats a file. The
// result depends only on the two entries, never on which arrived
// first.
func Compare(a, b *Entry) int {
	switch {
	case a.Version > b.Version:
		return 1
	case a.Version < b.Version:
		return -1
	}
	if c := strings.Compare(a.Content, b.Content); c != 0 {
		return c
	}
	if a.Deleted != b.Deleted {
		if a.Deleted {
			return 1
		}
		return -1
	}
	switch {
	case a.Kind > b.Kind:
		return 1
	case a.Kind < b.Kind:
		return -1
	}
	return 0
}
