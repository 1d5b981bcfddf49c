// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package contentstore

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// RefLength is the length of a Ref in hex characters.
const RefLength = 64

// Ref identifies a blob: the hex BLAKE3 keyed hash of its
// uncompressed bytes. Refs compare lexicographically, which the
// conflict tie-break relies on.
type Ref = string

// blobDomainKey separates blob hashes from any other BLAKE3 use. The
// bytes are the ASCII domain name zero-padded to 32 bytes; changing
// them invalidates every stored ref.
var blobDomainKey = [32]byte{
	'm', 'o', 'n', 'o', 'v', 'a', 'u', 'l', 't', '.', 'b', 'l', 'o', 'b',
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Hash returns the Ref of data.
func Hash(data []byte) Ref {
	hasher, err := blake3.NewKeyed(blobDomainKey[:])
	if err != nil {
		panic("contentstore: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil))
}

// ValidateRef checks that ref is well formed, so it can be used as a
// file name.
func ValidateRef(ref Ref) error {
	if len(ref) != RefLength {
		return fmt.Errorf("contentstore: ref %q has length %d, want %d", ref, len(ref), RefLength)
	}
	for index := 0; index < len(ref); index++ {
		character := ref[index]
		if (character < '0' || character > '9') && (character < 'a' || character > 'f') {
			return fmt.Errorf("contentstore: ref %q is not lowercase hex", ref)
		}
	}
	return nil
}
