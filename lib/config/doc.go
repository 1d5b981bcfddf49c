// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the monovault node configuration.
//
// Configuration comes from a single file named by the
// MONOVAULT_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no discovery and no per-field
// environment override.
//
// The file format follows the extension: .json and .jsonc are parsed
// as JSON after stripping comments and trailing commas; .yaml and
// .yml as YAML. Fields missing from the file keep the values from
// [Default].
//
// ${HOME} and ${VAR:-default} patterns are expanded in mount_point
// and db_path after loading.
//
// This package depends on no other monovault packages.
package config
