// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vaultsync

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	PullsTotal       *prometheus.CounterVec
	PullDuration     *prometheus.HistogramVec
	EntriesTotal     *prometheus.CounterVec
	PushesTotal      *prometheus.CounterVec
	FetchesTotal     *prometheus.CounterVec
	ServedTotal      *prometheus.CounterVec
	PeerState        *prometheus.GaugeVec
	CursorSequence   *prometheus.GaugeVec
	OutboxPrunedRows prometheus.Counter
	BlobsSwept       prometheus.Counter
}

// NewMetrics creates the collectors and registers them with
// registerer. A nil registerer leaves them unregistered, which tests
// use to run several engines in one process.
func NewMetrics(registerer prometheus.Registerer, localVault string) *Metrics {
	factory := promauto.With(registerer)
	labels := prometheus.Labels{"vault": localVault}
	return &Metrics{
		PullsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "monovault",
			Subsystem:   "sync",
			Name:        "pulls_total",
			Help:        "Pull rounds by peer and result",
			ConstLabels: labels,
		}, []string{"peer", "result"}),
		PullDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   "monovault",
			Subsystem:   "sync",
			Name:        "pull_duration_seconds",
			Help:        "Duration of complete pull rounds",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"peer"}),
		EntriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "monovault",
			Subsystem:   "sync",
			Name:        "entries_total",
			Help:        "Replicated entries by source vault and outcome (applied, duplicate, discarded)",
			ConstLabels: labels,
		}, []string{"source", "outcome"}),
		PushesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "monovault",
			Subsystem:   "sync",
			Name:        "pushes_total",
			Help:        "Change notifications sent by peer and result",
			ConstLabels: labels,
		}, []string{"peer", "result"}),
		FetchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "monovault",
			Subsystem:   "sync",
			Name:        "fetches_total",
			Help:        "On-demand fetches by result (hit, miss, cached_miss, error)",
			ConstLabels: labels,
		}, []string{"result"}),
		ServedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "monovault",
			Subsystem:   "sync",
			Name:        "served_total",
			Help:        "Peer RPC requests answered by call",
			ConstLabels: labels,
		}, []string{"call"}),
		PeerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "monovault",
			Subsystem:   "sync",
			Name:        "peer_state",
			Help:        "Peer reachability: 0 unknown, 1 reachable, 2 unreachable",
			ConstLabels: labels,
		}, []string{"peer"}),
		CursorSequence: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "monovault",
			Subsystem:   "sync",
			Name:        "cursor_sequence",
			Help:        "Sync cursor position per replicated vault",
			ConstLabels: labels,
		}, []string{"source"}),
		OutboxPrunedRows: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "monovault",
			Subsystem:   "sync",
			Name:        "outbox_pruned_total",
			Help:        "Outbox rows removed after every peer was notified",
			ConstLabels: labels,
		}),
		BlobsSwept: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "monovault",
			Subsystem:   "gc",
			Name:        "blobs_swept_total",
			Help:        "Unreferenced blobs removed from the content store",
			ConstLabels: labels,
		}),
	}
}
