// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers for tests that wait on goroutines,
// loops or the network. Every wait is bounded by a wall-clock timeout
// so a broken test fails instead of hanging.
package testutil
