// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package contentstore holds file bytes as immutable, content-addressed
// blobs, separate from the metadata index so that metadata updates
// never rewrite payloads and renames never copy data.
//
// A blob is addressed by its [Ref]: the hex BLAKE3 keyed hash of the
// uncompressed bytes. Identical content shares one blob. On disk each
// blob lives at
//
//	<root>/<ref[0:2]>/<ref[2:4]>/<ref>
//
// and starts with a one-byte compression tag and the uncompressed
// length (8 bytes, big endian), followed by the payload. Payloads are
// zstd or LZ4 compressed when that saves enough space, raw otherwise.
// Files are written to <root>/tmp and renamed into place, so readers
// only ever observe complete blobs.
//
// Blobs are never modified. Unreferenced blobs are removed by
// [Store.Sweep].
package contentstore
