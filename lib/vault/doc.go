// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package vault defines the data model shared by every monovault
// component: path entries, the error taxonomy, path handling and the
// deterministic ordering used to resolve conflicting versions.
//
// A vault is a disjoint namespace owned by exactly one node. The
// mount presents one top-level directory per vault:
//
//	/<vault>/<path within the vault>
//
// Paths inside a vault are slash separated with no leading slash; the
// empty string is the vault root. [Split] turns a mount path into a
// vault name and an intra-vault path.
//
// Every mutation of a path bumps its Version. Deletes leave a
// tombstone entry (Deleted set) so the version carries forward when
// the path is created again, and so peers learn about the delete. The
// owner also stamps each mutation with a vault-wide Sequence, which is
// what peers use as their sync cursor.
package vault
