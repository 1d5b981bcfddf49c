// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package vaultfs presents every known vault as one namespace and
// routes filesystem calls to the component that owns each path.
//
// Mount paths are "/"-rooted and the first component names the vault:
// "/alpha/docs/a.txt" is "docs/a.txt" in vault alpha. The mount root
// is a virtual directory listing every vault name.
//
// Calls on the local vault go to lib/localvault. A version conflict
// there means another writer committed between this call's read and
// its commit; the call is retried from a fresh read a bounded number
// of times and then fails with an I/O error. Calls on a remote vault
// read the replica cache, asking the owner on a cache miss, and every
// mutation of a remote vault is denied: only the owning node writes
// it.
//
// [FS] is the only state. Callers can use its methods directly or
// build a [Request] and pass it to [FS.Dispatch].
package vaultfs
