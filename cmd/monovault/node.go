// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/monovault/lib/config"
	"github.com/bureau-foundation/monovault/lib/contentstore"
	"github.com/bureau-foundation/monovault/lib/localvault"
	"github.com/bureau-foundation/monovault/lib/metastore"
	"github.com/bureau-foundation/monovault/lib/peerrpc"
	"github.com/bureau-foundation/monovault/lib/replica"
	"github.com/bureau-foundation/monovault/lib/vaultfs"
	"github.com/bureau-foundation/monovault/lib/vaultsync"
	"github.com/bureau-foundation/monovault/transport"
)

// node is every component of one running monovault node except the
// listener and the mount.
type node struct {
	cfg      *config.Config
	metadata *metastore.Store
	content  *contentstore.Store
	replica  *replica.Cache
	engine   *vaultsync.Engine
	local    *localvault.Manager
	fs       *vaultfs.FS
	registry *prometheus.Registry
	logger   *slog.Logger
}

// openNode opens the durable state under cfg.DBPath and wires the
// components together.
func openNode(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*node, error) {
	if err := os.MkdirAll(cfg.DBPath, 0o700); err != nil {
		return nil, fmt.Errorf("creating %s: %w", cfg.DBPath, err)
	}
	metadata, err := metastore.Open(ctx, metastore.Config{
		Path:   filepath.Join(cfg.DBPath, "metadata.db"),
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	n := &node{cfg: cfg, metadata: metadata, logger: logger}
	if err := n.wire(); err != nil {
		metadata.Close()
		return nil, err
	}
	return n, nil
}

func (n *node) wire() error {
	var err error
	n.content, err = contentstore.Open(contentstore.Config{
		Root:   filepath.Join(n.cfg.DBPath, "blobs"),
		Logger: n.logger,
	})
	if err != nil {
		return err
	}
	n.replica, err = replica.New(replica.Config{
		LocalVault: n.cfg.LocalVaultName,
		Metadata:   n.metadata,
		Content:    n.content,
		Logger:     n.logger,
	})
	if err != nil {
		return err
	}

	peers := make(map[string]peerrpc.Service, len(n.cfg.Peers))
	for _, name := range n.cfg.PeerNames() {
		peers[name] = peerrpc.NewClient(peerrpc.ClientConfig{
			Peer:    name,
			Address: n.cfg.Peers[name],
			Dialer:  &transport.TCPDialer{Timeout: n.cfg.RPCTimeoutDuration()},
			Timeout: n.cfg.RPCTimeoutDuration(),
		})
	}

	n.registry = prometheus.NewRegistry()
	n.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	n.engine, err = vaultsync.New(vaultsync.Config{
		LocalVault:   n.cfg.LocalVaultName,
		ShareLocal:   n.cfg.ShareLocalVault,
		Relay:        n.cfg.Relay,
		Peers:        peers,
		Metadata:     n.metadata,
		Content:      n.content,
		Replica:      n.replica,
		Interval:     n.cfg.UpdateInterval(),
		FetchTimeout: n.cfg.FetchTimeoutDuration(),
		BatchSize:    n.cfg.BatchSize,
		GCInterval:   n.cfg.GCIntervalDuration(),
		Metrics:      vaultsync.NewMetrics(n.registry, n.cfg.LocalVaultName),
		Logger:       n.logger,
	})
	if err != nil {
		return err
	}

	n.local, err = localvault.New(localvault.Config{
		Vault:    n.cfg.LocalVaultName,
		Metadata: n.metadata,
		Content:  n.content,
		Notify:   n.engine.Wake,
		Logger:   n.logger,
	})
	if err != nil {
		return err
	}
	n.fs, err = vaultfs.New(vaultfs.Config{
		Local:   n.local,
		Replica: n.replica,
		Remotes: n.engine,
		Logger:  n.logger,
	})
	return err
}

// handler serves peer RPC and /metrics on one port.
func (n *node) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(n.registry, promhttp.HandlerOpts{}))
	mux.Handle("/", peerrpc.NewHandler(n.engine, n.logger))
	return mux
}

// run serves listener and runs the sync engine until ctx is cancelled
// or either fails.
func (n *node) run(ctx context.Context, listener transport.Listener) error {
	group, groupContext := errgroup.WithContext(ctx)
	group.Go(func() error {
		return listener.Serve(groupContext, n.handler())
	})
	group.Go(func() error {
		return n.engine.Run(groupContext)
	})
	err := group.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (n *node) Close() error {
	return n.metadata.Close()
}
