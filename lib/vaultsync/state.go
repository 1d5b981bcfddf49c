// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vaultsync

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bureau-foundation/monovault/lib/peerrpc"
)

// PeerState is the reachability of one peer.
type PeerState uint8

const (
	StateUnknown PeerState = iota
	StateReachable
	StateUnreachable
)

func (s PeerState) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateReachable:
		return "reachable"
	case StateUnreachable:
		return "unreachable"
	default:
		return fmt.Sprintf("invalid(%d)", s)
	}
}

// peer is the engine's view of one remote node. The vault it owns has
// the same name.
type peer struct {
	name    string
	service peerrpc.Service

	// kick wakes the peer loop early. Buffered so a burst of notifies
	// collapses into one extra round.
	kick    chan struct{}
	limiter *rate.Limiter

	mu         sync.Mutex
	state      PeerState
	since      time.Time
	lastError  string
	lastPulled time.Time
}

// transition moves the peer to next and reports whether it changed.
func (p *peer) transition(next PeerState, now time.Time, cause error) (PeerState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	previous := p.state
	if cause != nil {
		p.lastError = cause.Error()
	} else {
		p.lastError = ""
	}
	if previous == next {
		return previous, false
	}
	p.state = next
	p.since = now
	return previous, true
}

func (p *peer) current() PeerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// PeerStatus is a snapshot of a peer for diagnostics.
type PeerStatus struct {
	Name       string
	State      PeerState
	Since      time.Time
	LastError  string
	LastPulled time.Time
}

func (p *peer) status() PeerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PeerStatus{
		Name:       p.name,
		State:      p.state,
		Since:      p.since,
		LastError:  p.lastError,
		LastPulled: p.lastPulled,
	}
}

// requestKick wakes the peer loop unless the notify rate limit is
// exhausted. Returns whether a wake-up was queued.
func (p *peer) requestKick() bool {
	if !p.limiter.Allow() {
		return false
	}
	select {
	case p.kick <- struct{}{}:
	default:
	}
	return true
}
