// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the monovault binary.
//
// [GitCommit], [GitDirty], [BuildTime] and [Version] are injected with
// -ldflags -X and default to "unknown" / "0.1.0-dev" in development
// builds and tests:
//
//	go build -ldflags "-X github.com/bureau-foundation/monovault/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// [Info] formats them for --version; [Full] adds the Go toolchain and
// platform, which the binary logs at startup.
//
// [Protocol] is not a build stamp: it names the peer RPC revision this
// source tree speaks, and peerrpc sends and checks it on every call.
package version
