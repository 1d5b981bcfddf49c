// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides monovault's standard CBOR encoding
// configuration.
//
// CBOR is used for everything a vault node writes for another
// program to read: the peer RPC bodies exchanged between nodes
// (pull deltas, push notifications, fetch responses) and the
// conflict audit payloads kept in the metadata database. JSON is
// reserved for the human-edited configuration file.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2):
// sorted map keys, smallest integer encoding, no indefinite-length
// items. Two nodes encoding the same entry produce identical bytes,
// which keeps wire captures and audit rows comparable.
//
// Timestamps are encoded as RFC 3339 strings with nanosecond
// precision. Entry modification times must round-trip exactly or a
// replicated entry would appear to differ from its origin.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For streaming request and response bodies:
//
//	encoder := codec.NewEncoder(writer)
//	decoder := codec.NewDecoder(reader)
//
// Wire types use `cbor` struct tags. Types that are also written to
// the JSON configuration use `json` tags only; fxamacker/cbor falls
// back to them when no `cbor` tag is present.
package codec
