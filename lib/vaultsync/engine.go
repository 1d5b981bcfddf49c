// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vaultsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/bureau-foundation/monovault/lib/clock"
	"github.com/bureau-foundation/monovault/lib/contentstore"
	"github.com/bureau-foundation/monovault/lib/metastore"
	"github.com/bureau-foundation/monovault/lib/peerrpc"
	"github.com/bureau-foundation/monovault/lib/replica"
	"github.com/bureau-foundation/monovault/lib/vault"
)

// Defaults for zero Config fields.
const (
	DefaultInterval     = 3 * time.Second
	DefaultFetchTimeout = 2 * time.Second
	DefaultBatchSize    = 256
	DefaultNegativeTTL  = 5 * time.Second

	// maxBatchSize caps what a peer may ask for in one pull.
	maxBatchSize = 4096

	// maxInlineBytes caps the content carried inline by one pull
	// response; entries past it travel by ref.
	maxInlineBytes = 8 << 20

	// notifyRate and notifyBurst bound how often a notifying peer can
	// trigger an early pull.
	notifyRate  = rate.Limit(2)
	notifyBurst = 4
)

var _ peerrpc.Service = (*Engine)(nil)

// Config holds an Engine's collaborators and tuning.
type Config struct {
	// LocalVault is the vault this node owns.
	LocalVault string

	// ShareLocal lets peers pull the local vault. When false the
	// local vault is private and nothing is pushed.
	ShareLocal bool

	// Relay lets peers pull replicated vaults from this node, and lets
	// this node pull a vault from any reachable peer while its owner
	// is unreachable.
	Relay bool

	// Peers maps each remote vault name to the service of the node
	// that owns it.
	Peers map[string]peerrpc.Service

	Metadata *metastore.Store
	Content  *contentstore.Store
	Replica  *replica.Cache

	// Interval is the period of pull and push rounds.
	Interval time.Duration

	// FetchTimeout bounds on-demand fetches.
	FetchTimeout time.Duration

	// BatchSize is the number of entries requested per pull.
	BatchSize int

	// NegativeTTL is how long a failed on-demand fetch is remembered.
	NegativeTTL time.Duration

	// GCInterval is the period of content garbage collection. Zero
	// disables the collector; CollectGarbage still works.
	GCInterval time.Duration

	// Metrics receives counters. Nil creates unregistered collectors.
	Metrics *Metrics

	Clock  clock.Clock
	Logger *slog.Logger
}

// Engine drives synchronization with every peer.
type Engine struct {
	localVault   string
	shareLocal   bool
	relay        bool
	peers        map[string]*peer
	peerNames    []string
	metadata     *metastore.Store
	content      *contentstore.Store
	replica      *replica.Cache
	interval     time.Duration
	fetchTimeout time.Duration
	batchSize    int
	gcInterval   time.Duration
	misses       *ttlcache.Cache[string, error]
	metrics      *Metrics
	clock        clock.Clock
	logger       *slog.Logger

	// pushWake is signalled by local commits.
	pushWake chan struct{}
}

// New validates cfg and returns an Engine. Call Run to start it.
func New(cfg Config) (*Engine, error) {
	if cfg.LocalVault == "" {
		return nil, fmt.Errorf("vaultsync: LocalVault is required")
	}
	if cfg.Metadata == nil || cfg.Content == nil || cfg.Replica == nil {
		return nil, fmt.Errorf("vaultsync: Metadata, Content and Replica are required")
	}
	if _, ok := cfg.Peers[cfg.LocalVault]; ok {
		return nil, fmt.Errorf("vaultsync: local vault %q is also listed as a peer", cfg.LocalVault)
	}

	engine := &Engine{
		localVault:   cfg.LocalVault,
		shareLocal:   cfg.ShareLocal,
		relay:        cfg.Relay,
		peers:        make(map[string]*peer, len(cfg.Peers)),
		metadata:     cfg.Metadata,
		content:      cfg.Content,
		replica:      cfg.Replica,
		interval:     cfg.Interval,
		fetchTimeout: cfg.FetchTimeout,
		batchSize:    cfg.BatchSize,
		gcInterval:   cfg.GCInterval,
		metrics:      cfg.Metrics,
		clock:        cfg.Clock,
		logger:       cfg.Logger,
		pushWake:     make(chan struct{}, 1),
	}
	if engine.interval <= 0 {
		engine.interval = DefaultInterval
	}
	if engine.fetchTimeout <= 0 {
		engine.fetchTimeout = DefaultFetchTimeout
	}
	if engine.batchSize <= 0 {
		engine.batchSize = DefaultBatchSize
	}
	engine.batchSize = min(engine.batchSize, maxBatchSize)
	if engine.metrics == nil {
		engine.metrics = NewMetrics(nil, cfg.LocalVault)
	}
	if engine.clock == nil {
		engine.clock = clock.Real()
	}
	if engine.logger == nil {
		engine.logger = slog.New(slog.DiscardHandler)
	}
	negativeTTL := cfg.NegativeTTL
	if negativeTTL <= 0 {
		negativeTTL = DefaultNegativeTTL
	}
	engine.misses = ttlcache.New[string, error](
		ttlcache.WithTTL[string, error](negativeTTL),
		// A hit must not extend the entry, or a peer that stays
		// popular would never be retried.
		ttlcache.WithDisableTouchOnHit[string, error](),
	)

	for name, service := range cfg.Peers {
		engine.peers[name] = &peer{
			name:    name,
			service: service,
			kick:    make(chan struct{}, 1),
			limiter: rate.NewLimiter(notifyRate, notifyBurst),
		}
		engine.peerNames = append(engine.peerNames, name)
		engine.metrics.PeerState.WithLabelValues(name).Set(float64(StateUnknown))
	}
	sort.Strings(engine.peerNames)
	return engine, nil
}

// LocalVault returns the local vault name.
func (e *Engine) LocalVault() string { return e.localVault }

// Vaults returns every known vault name, local first, then peers in
// name order.
func (e *Engine) Vaults() []string {
	return append([]string{e.localVault}, e.peerNames...)
}

// IsRemote reports whether name is a configured peer vault.
func (e *Engine) IsRemote(name string) bool {
	_, ok := e.peers[name]
	return ok
}

// Wake schedules a push round without blocking. The local vault
// manager calls it after every commit.
func (e *Engine) Wake() {
	select {
	case e.pushWake <- struct{}{}:
	default:
	}
}

// PeerStatus returns a snapshot of the named peer.
func (e *Engine) PeerStatus(name string) (PeerStatus, bool) {
	peer, ok := e.peers[name]
	if !ok {
		return PeerStatus{}, false
	}
	return peer.status(), true
}

// Run starts the peer loops and the push loop and blocks until ctx is
// cancelled or a loop fails. Cancellation returns nil.
func (e *Engine) Run(ctx context.Context) error {
	go e.misses.Start()
	defer e.misses.Stop()

	group, groupContext := errgroup.WithContext(ctx)
	for _, name := range e.peerNames {
		peer := e.peers[name]
		group.Go(func() error {
			return e.peerLoop(groupContext, peer)
		})
	}
	if e.shareLocal && len(e.peers) > 0 {
		group.Go(func() error {
			return e.pushLoop(groupContext)
		})
	}
	if e.gcInterval > 0 {
		group.Go(func() error {
			return e.gcLoop(groupContext)
		})
	}

	e.logger.Info("sync engine started",
		"vault", e.localVault,
		"peers", len(e.peers),
		"interval", e.interval,
		"relay", e.relay,
	)
	err := group.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// peerLoop runs a sync round immediately, then every interval or when
// kicked, until ctx is done.
func (e *Engine) peerLoop(ctx context.Context, peer *peer) error {
	ticker := e.clock.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		e.SyncPeer(ctx, peer.name)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-peer.kick:
		}
	}
}

// SyncPeer runs one sync round with the named peer: pull its vault,
// and with relaying enabled also pull, through it, any vault whose
// owner is unreachable. Errors only change peer state.
func (e *Engine) SyncPeer(ctx context.Context, name string) {
	peer, ok := e.peers[name]
	if !ok {
		return
	}
	err := e.pullVault(ctx, peer, peer.name)
	if ctx.Err() != nil {
		return
	}
	switch {
	case err == nil:
	case errors.Is(err, vault.ErrPermissionDenied):
		// The peer answered but keeps its vault private.
		e.logger.Debug("peer does not share its vault", "peer", peer.name)
	default:
		e.markUnreachable(ctx, peer, err)
		return
	}
	e.markReachable(ctx, peer)

	if !e.relay {
		return
	}
	for _, vaultName := range e.peerNames {
		if vaultName == peer.name || e.peers[vaultName].current() != StateUnreachable {
			continue
		}
		if err := e.pullVault(ctx, peer, vaultName); err != nil && ctx.Err() == nil {
			e.logger.Debug("relayed pull failed", "via", peer.name, "vault", vaultName, "error", err)
		}
	}
}

func (e *Engine) markReachable(ctx context.Context, peer *peer) {
	now := e.clock.Now()
	peer.mu.Lock()
	peer.lastPulled = now
	peer.mu.Unlock()

	previous, changed := peer.transition(StateReachable, now, nil)
	if !changed {
		return
	}
	e.metrics.PeerState.WithLabelValues(peer.name).Set(float64(StateReachable))
	// The round that just finished pulled everything up to the
	// peer's head, so the cache is current again.
	if err := e.replica.MarkFresh(ctx, peer.name); err != nil {
		e.logger.Warn("marking vault fresh failed", "vault", peer.name, "error", err)
	}
	e.logger.Info("peer reachable", "peer", peer.name, "previous", previous.String())
	// Catch the peer up on anything committed while it was away.
	e.Wake()
}

func (e *Engine) markUnreachable(ctx context.Context, peer *peer, cause error) {
	previous, changed := peer.transition(StateUnreachable, e.clock.Now(), cause)
	if !changed {
		return
	}
	e.metrics.PeerState.WithLabelValues(peer.name).Set(float64(StateUnreachable))
	if err := e.replica.MarkStale(ctx, peer.name); err != nil {
		e.logger.Warn("marking vault stale failed", "vault", peer.name, "error", err)
	}
	e.logger.Warn("peer unreachable", "peer", peer.name, "previous", previous.String(), "error", cause)
}
