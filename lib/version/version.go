// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"strconv"
)

// Set via -ldflags at build time.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty is "true" when the build had uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the release version.
	Version = "0.1.0-dev"
)

// Protocol is the peer RPC revision. Nodes refuse requests from peers
// on another revision, so it must change whenever a wire type or the
// meaning of a sync cursor changes incompatibly. Release versions may
// differ freely between peers that share it.
const Protocol = 1

// ProtocolString is Protocol in the form carried on the wire.
var ProtocolString = strconv.Itoa(Protocol)

// Info returns "version (commit[-dirty], build time, protocol N)".
func Info() string {
	dirty := ""
	if GitDirty == "true" {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s, protocol %d)", Version, GitCommit, dirty, BuildTime, Protocol)
}

// Full returns Info plus the Go version and platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
