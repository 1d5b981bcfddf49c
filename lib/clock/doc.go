// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// The sync engine's per-peer rounds, the push fan-out and blob
// garbage collection are all driven by tickers. Production code uses
// Real(); tests use Fake() and call Advance to run a round on demand
// instead of sleeping.
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	engine := vaultsync.New(config, vaultsync.Deps{Clock: c, ...})
//	go engine.Run(ctx)
//	c.WaitForTimers(2)      // both peer loops have registered tickers
//	c.Advance(time.Second)  // fire one round
package clock
