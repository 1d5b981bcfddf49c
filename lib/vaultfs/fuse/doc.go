// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fuse mounts a [vaultfs.FS] through the kernel FUSE driver.
//
// Every inode is the same node type; its mount path is recomputed from
// the inode tree on each call, so renames need no bookkeeping here.
// Directory and attribute answers come straight from vaultfs.FS.
//
// # Write Path
//
// Opening a file for writing loads its content into a per-handle
// buffer (or starts empty with O_TRUNC). Writes and truncates through
// the handle only touch the buffer. Flush commits the buffer as the
// file's new content with one Replace call, so other readers see the
// whole close-to-open update or none of it. A handle flushes again
// only when written after the previous flush.
//
// Paths in remote vaults are presented read-only (mode 0444/0555) and
// every mutation there fails with EACCES.
package fuse
