// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package vaultsync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/monovault/lib/clock"
	"github.com/bureau-foundation/monovault/lib/contentstore"
	"github.com/bureau-foundation/monovault/lib/localvault"
	"github.com/bureau-foundation/monovault/lib/metastore"
	"github.com/bureau-foundation/monovault/lib/peerrpc"
	"github.com/bureau-foundation/monovault/lib/replica"
	"github.com/bureau-foundation/monovault/lib/testutil"
	"github.com/bureau-foundation/monovault/lib/vault"
)

// link is an in-process connection to another node's engine that a
// test can cut.
type link struct {
	mu     sync.Mutex
	target peerrpc.Service
	down   bool
	calls  map[string]int

	// failBlobs makes Blob fail while the rest of the link works.
	failBlobs bool
}

func (l *link) service() (peerrpc.Service, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.down || l.target == nil {
		return nil, fmt.Errorf("link down: %w", vault.ErrUnreachable)
	}
	return l.target, nil
}

func (l *link) count(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.calls == nil {
		l.calls = make(map[string]int)
	}
	l.calls[call]++
}

func (l *link) setDown(down bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.down = down
}

func (l *link) setFailBlobs(fail bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failBlobs = fail
}

func (l *link) connect(target peerrpc.Service) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.target = target
}

func (l *link) Pull(ctx context.Context, request *peerrpc.PullRequest) (*peerrpc.PullResponse, error) {
	service, err := l.service()
	if err != nil {
		return nil, err
	}
	l.count("pull")
	return service.Pull(ctx, request)
}

func (l *link) Notify(ctx context.Context, request *peerrpc.NotifyRequest) error {
	service, err := l.service()
	if err != nil {
		return err
	}
	l.count("notify")
	return service.Notify(ctx, request)
}

func (l *link) Fetch(ctx context.Context, request *peerrpc.FetchRequest) (*peerrpc.FetchResponse, error) {
	service, err := l.service()
	if err != nil {
		return nil, err
	}
	l.count("fetch")
	return service.Fetch(ctx, request)
}

func (l *link) Blob(ctx context.Context, request *peerrpc.BlobRequest) (*peerrpc.BlobResponse, error) {
	service, err := l.service()
	if err != nil {
		return nil, err
	}
	l.count("blob")
	l.mu.Lock()
	fail := l.failBlobs
	l.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("blob %s: connection reset: %w", request.Ref, vault.ErrUnreachable)
	}
	return service.Blob(ctx, request)
}

type node struct {
	name     string
	metadata *metastore.Store
	manager  *localvault.Manager
	replica  *replica.Cache
	engine   *Engine
	links    map[string]*link
	clock    *clock.FakeClock
}

type nodeOptions struct {
	share     bool
	relay     bool
	batchSize int
}

var testEpoch = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func newNode(t *testing.T, name string, peers []string, options nodeOptions) *node {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()
	fake := clock.Fake(testEpoch)

	metadata, err := metastore.Open(ctx, metastore.Config{Path: filepath.Join(dir, "metadata.db")})
	if err != nil {
		t.Fatalf("metastore.Open: %v", err)
	}
	t.Cleanup(func() { metadata.Close() })
	content, err := contentstore.Open(contentstore.Config{Root: filepath.Join(dir, "blobs"), Clock: fake})
	if err != nil {
		t.Fatalf("contentstore.Open: %v", err)
	}
	cache, err := replica.New(replica.Config{LocalVault: name, Metadata: metadata, Content: content, Clock: fake})
	if err != nil {
		t.Fatalf("replica.New: %v", err)
	}

	n := &node{name: name, metadata: metadata, replica: cache, links: make(map[string]*link), clock: fake}
	services := make(map[string]peerrpc.Service, len(peers))
	for _, peerName := range peers {
		n.links[peerName] = &link{}
		services[peerName] = n.links[peerName]
	}
	n.engine, err = New(Config{
		LocalVault: name,
		ShareLocal: options.share,
		Relay:      options.relay,
		Peers:      services,
		Metadata:   metadata,
		Content:    content,
		Replica:    cache,
		BatchSize:  options.batchSize,
		Clock:      fake,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	n.manager, err = localvault.New(localvault.Config{
		Vault:    name,
		Metadata: metadata,
		Content:  content,
		Notify:   n.engine.Wake,
		Clock:    fake,
	})
	if err != nil {
		t.Fatalf("localvault.New: %v", err)
	}
	return n
}

// connect points a's link for b's vault at b's engine.
func connect(a, b *node) {
	a.links[b.name].connect(b.engine)
}

func (n *node) write(t *testing.T, path, data string) {
	t.Helper()
	if _, err := n.manager.Replace(context.Background(), path, []byte(data)); err != nil {
		t.Fatalf("%s: Replace(%s): %v", n.name, path, err)
	}
}

func (n *node) cached(t *testing.T, vaultName, path string) (string, replica.Freshness) {
	t.Helper()
	entry, freshness, err := n.replica.GetCached(context.Background(), vaultName, path)
	if err != nil {
		t.Fatalf("%s: GetCached(%s): %v", n.name, vault.Join(vaultName, path), err)
	}
	data, err := n.replica.ReadContent(&entry)
	if err != nil {
		t.Fatalf("%s: ReadContent(%s): %v", n.name, vault.Join(vaultName, path), err)
	}
	return string(data), freshness
}

func (n *node) state(t *testing.T, peerName string) PeerState {
	t.Helper()
	status, ok := n.engine.PeerStatus(peerName)
	if !ok {
		t.Fatalf("%s: no peer %s", n.name, peerName)
	}
	return status.State
}

func TestPullReplicatesRemoteWrite(t *testing.T) {
	alpha := newNode(t, "alpha", []string{"beta"}, nodeOptions{share: true})
	beta := newNode(t, "beta", []string{"alpha"}, nodeOptions{share: true})
	connect(alpha, beta)
	ctx := context.Background()

	beta.write(t, "tsfile", "helloworrdddd")
	alpha.engine.SyncPeer(ctx, "beta")

	data, freshness := alpha.cached(t, "beta", "tsfile")
	if data != "helloworrdddd" {
		t.Errorf("replicated content = %q", data)
	}
	if freshness != replica.Fresh {
		t.Errorf("freshness = %s, want fresh", freshness)
	}
	if state := alpha.state(t, "beta"); state != StateReachable {
		t.Errorf("peer state = %s, want reachable", state)
	}

	cursor, err := alpha.metadata.Cursor(ctx, "beta")
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	head, _ := beta.metadata.Sequence(ctx, "beta")
	if cursor.Sequence != head || cursor.Epoch == "" {
		t.Errorf("cursor = %+v, want sequence %d with an epoch", cursor, head)
	}
}

func TestOfflinePeerServesStaleCache(t *testing.T) {
	alpha := newNode(t, "alpha", []string{"beta"}, nodeOptions{share: true})
	beta := newNode(t, "beta", []string{"alpha"}, nodeOptions{share: true})
	connect(alpha, beta)
	ctx := context.Background()

	beta.write(t, "tsfile", "helloworrdddd")
	alpha.engine.SyncPeer(ctx, "beta")

	alpha.links["beta"].setDown(true)
	alpha.engine.SyncPeer(ctx, "beta")
	if state := alpha.state(t, "beta"); state != StateUnreachable {
		t.Fatalf("peer state = %s, want unreachable", state)
	}
	data, freshness := alpha.cached(t, "beta", "tsfile")
	if data != "helloworrdddd" {
		t.Errorf("stale content = %q", data)
	}
	if freshness != replica.Stale {
		t.Errorf("freshness = %s, want stale", freshness)
	}

	// Coming back clears the stale flag without losing data.
	alpha.links["beta"].setDown(false)
	alpha.engine.SyncPeer(ctx, "beta")
	if _, freshness := alpha.cached(t, "beta", "tsfile"); freshness != replica.Fresh {
		t.Errorf("freshness after recovery = %s, want fresh", freshness)
	}
}

func TestLocalWritesReachPeerAfterReconnect(t *testing.T) {
	alpha := newNode(t, "alpha", []string{"beta"}, nodeOptions{share: true})
	beta := newNode(t, "beta", []string{"alpha"}, nodeOptions{share: true})
	connect(alpha, beta)
	connect(beta, alpha)
	ctx := context.Background()

	beta.links["alpha"].setDown(true)
	beta.engine.SyncPeer(ctx, "alpha")

	if _, err := alpha.manager.Mkdir(ctx, "notes"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	alpha.write(t, "notes/today", "written while beta was away")
	if _, _, err := beta.replica.GetCached(ctx, "alpha", "notes/today"); !errors.Is(err, vault.ErrNotFound) {
		t.Fatalf("beta saw the write before reconnecting: %v", err)
	}

	beta.links["alpha"].setDown(false)
	beta.engine.SyncPeer(ctx, "alpha")
	if data, _ := beta.cached(t, "alpha", "notes/today"); data != "written while beta was away" {
		t.Errorf("content after reconnect = %q", data)
	}
	if entry, _, err := beta.replica.GetCached(ctx, "alpha", "notes"); err != nil || !entry.IsDir() {
		t.Errorf("notes = %+v, %v; want a directory", entry, err)
	}
}

func TestDeletePropagates(t *testing.T) {
	alpha := newNode(t, "alpha", []string{"beta"}, nodeOptions{share: true})
	beta := newNode(t, "beta", []string{"alpha"}, nodeOptions{share: true})
	connect(alpha, beta)
	ctx := context.Background()

	beta.write(t, "doomed", "short lived")
	alpha.engine.SyncPeer(ctx, "beta")
	if err := beta.manager.Delete(ctx, "doomed"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	alpha.engine.SyncPeer(ctx, "beta")
	if _, _, err := alpha.replica.GetCached(ctx, "beta", "doomed"); !errors.Is(err, vault.ErrNotFound) {
		t.Errorf("GetCached after remote delete = %v, want ErrNotFound", err)
	}
}

func TestRenamePropagates(t *testing.T) {
	alpha := newNode(t, "alpha", []string{"beta"}, nodeOptions{share: true})
	beta := newNode(t, "beta", []string{"alpha"}, nodeOptions{share: true})
	connect(alpha, beta)
	ctx := context.Background()

	beta.write(t, "draft", "contents")
	alpha.engine.SyncPeer(ctx, "beta")
	if err := beta.manager.Rename(ctx, "draft", "final"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	alpha.engine.SyncPeer(ctx, "beta")
	if _, _, err := alpha.replica.GetCached(ctx, "beta", "draft"); !errors.Is(err, vault.ErrNotFound) {
		t.Errorf("old name still cached: %v", err)
	}
	if data, _ := alpha.cached(t, "beta", "final"); data != "contents" {
		t.Errorf("renamed content = %q", data)
	}
}

func TestBatchedPullDrainsHistory(t *testing.T) {
	alpha := newNode(t, "alpha", []string{"beta"}, nodeOptions{share: true, batchSize: 2})
	beta := newNode(t, "beta", []string{"alpha"}, nodeOptions{share: true})
	connect(alpha, beta)
	ctx := context.Background()

	for index := range 7 {
		beta.write(t, fmt.Sprintf("file-%d", index), fmt.Sprintf("payload %d", index))
	}
	alpha.engine.SyncPeer(ctx, "beta")

	for index := range 7 {
		if data, _ := alpha.cached(t, "beta", fmt.Sprintf("file-%d", index)); data != fmt.Sprintf("payload %d", index) {
			t.Errorf("file-%d = %q", index, data)
		}
	}
	if pulls := alpha.links["beta"].calls["pull"]; pulls < 4 {
		t.Errorf("pulls = %d, want at least 4 batches of 2", pulls)
	}
}

func TestLargeFilesTravelByBlob(t *testing.T) {
	alpha := newNode(t, "alpha", []string{"beta"}, nodeOptions{share: true})
	beta := newNode(t, "beta", []string{"alpha"}, nodeOptions{share: true})
	connect(alpha, beta)
	ctx := context.Background()

	large := make([]byte, peerrpc.InlineLimit+1)
	for index := range large {
		large[index] = byte(index % 251)
	}
	if _, err := beta.manager.Replace(ctx, "large", large); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	alpha.engine.SyncPeer(ctx, "beta")

	if data, _ := alpha.cached(t, "beta", "large"); data != string(large) {
		t.Errorf("large file differs after replication (%d bytes)", len(data))
	}
	if blobs := alpha.links["beta"].calls["blob"]; blobs != 1 {
		t.Errorf("blob calls = %d, want 1", blobs)
	}
}

func TestFailedBlobAbandonsBatch(t *testing.T) {
	alpha := newNode(t, "alpha", []string{"beta"}, nodeOptions{share: true})
	beta := newNode(t, "beta", []string{"alpha"}, nodeOptions{share: true})
	connect(alpha, beta)
	ctx := context.Background()

	large := make([]byte, peerrpc.InlineLimit+1)
	for index := range large {
		large[index] = byte(index % 251)
	}
	beta.write(t, "before", "small before")
	if _, err := beta.manager.Replace(ctx, "large", large); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	beta.write(t, "after", "small after")

	alpha.links["beta"].setFailBlobs(true)
	alpha.engine.SyncPeer(ctx, "beta")

	cursor, err := alpha.metadata.Cursor(ctx, "beta")
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	if cursor.Sequence != 0 {
		t.Errorf("cursor = %+v after a failed batch, want sequence 0", cursor)
	}
	if state := alpha.state(t, "beta"); state != StateUnreachable {
		t.Errorf("peer state = %s, want unreachable", state)
	}
	if _, _, err := alpha.replica.GetCached(ctx, "beta", "large"); !errors.Is(err, vault.ErrNotFound) {
		t.Errorf("GetCached(large) = %v, want ErrNotFound", err)
	}

	alpha.links["beta"].setFailBlobs(false)
	alpha.engine.SyncPeer(ctx, "beta")

	if state := alpha.state(t, "beta"); state != StateReachable {
		t.Fatalf("peer state = %s after recovery, want reachable", state)
	}
	for path, want := range map[string]string{"before": "small before", "large": string(large), "after": "small after"} {
		if data, freshness := alpha.cached(t, "beta", path); data != want || freshness != replica.Fresh {
			t.Errorf("%s = %d bytes (%s), want %d bytes fresh", path, len(data), freshness, len(want))
		}
	}
	cursor, err = alpha.metadata.Cursor(ctx, "beta")
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	head, _ := beta.metadata.Sequence(ctx, "beta")
	if cursor.Sequence != head {
		t.Errorf("cursor = %+v after recovery, want sequence %d", cursor, head)
	}
}

func TestPrivateVaultIsNotServed(t *testing.T) {
	alpha := newNode(t, "alpha", []string{"beta"}, nodeOptions{share: true})
	beta := newNode(t, "beta", []string{"alpha"}, nodeOptions{share: false})
	connect(alpha, beta)
	ctx := context.Background()

	beta.write(t, "secret", "private")
	alpha.engine.SyncPeer(ctx, "beta")

	if state := alpha.state(t, "beta"); state != StateReachable {
		t.Errorf("peer state = %s, want reachable", state)
	}
	if _, _, err := alpha.replica.GetCached(ctx, "beta", "secret"); !errors.Is(err, vault.ErrNotFound) {
		t.Errorf("private entry replicated: %v", err)
	}
	if _, err := beta.engine.Fetch(ctx, &peerrpc.FetchRequest{Vault: "beta", Path: "secret"}); !errors.Is(err, vault.ErrPermissionDenied) {
		t.Errorf("Fetch of private vault = %v, want ErrPermissionDenied", err)
	}
}

func TestEpochChangeDiscardsReplica(t *testing.T) {
	alpha := newNode(t, "alpha", []string{"beta"}, nodeOptions{share: true})
	oldBeta := newNode(t, "beta", []string{"alpha"}, nodeOptions{share: true})
	connect(alpha, oldBeta)
	ctx := context.Background()

	oldBeta.write(t, "old-1", "from the old history")
	oldBeta.write(t, "old-2", "more history")
	alpha.engine.SyncPeer(ctx, "beta")

	// beta's database is replaced: new epoch, sequences restart.
	newBeta := newNode(t, "beta", []string{"alpha"}, nodeOptions{share: true})
	newBeta.write(t, "fresh", "from the new history")
	connect(alpha, newBeta)
	alpha.engine.SyncPeer(ctx, "beta")

	if _, _, err := alpha.replica.GetCached(ctx, "beta", "old-1"); !errors.Is(err, vault.ErrNotFound) {
		t.Errorf("entry from the old epoch survived: %v", err)
	}
	if data, _ := alpha.cached(t, "beta", "fresh"); data != "from the new history" {
		t.Errorf("fresh = %q", data)
	}
	cursor, _ := alpha.metadata.Cursor(ctx, "beta")
	newEpoch, _ := newBeta.metadata.Epoch(ctx, "beta")
	if cursor.Epoch != newEpoch {
		t.Errorf("cursor epoch = %q, want %q", cursor.Epoch, newEpoch)
	}
}

func TestPushAdvancesMarksOnlyOnDelivery(t *testing.T) {
	alpha := newNode(t, "alpha", []string{"beta"}, nodeOptions{share: true})
	beta := newNode(t, "beta", []string{"alpha"}, nodeOptions{share: true})
	connect(alpha, beta)
	ctx := context.Background()

	alpha.engine.SyncPeer(ctx, "beta")
	alpha.write(t, "one", "1")
	alpha.write(t, "two", "2")
	alpha.engine.PushRound(ctx)

	pending, err := alpha.metadata.Pending(ctx, "beta", "alpha", 10)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending after delivery = %+v", pending)
	}
	if notifies := alpha.links["beta"].calls["notify"]; notifies != 1 {
		t.Errorf("notify calls = %d, want 1", notifies)
	}

	alpha.links["beta"].setDown(true)
	alpha.write(t, "three", "3")
	alpha.engine.PushRound(ctx)
	pending, _ = alpha.metadata.Pending(ctx, "beta", "alpha", 10)
	if len(pending) != 1 || pending[0].Path != "three" {
		t.Errorf("pending after failed delivery = %+v, want three", pending)
	}
	if state := alpha.state(t, "beta"); state != StateUnreachable {
		t.Errorf("peer state after failed push = %s, want unreachable", state)
	}

	// Unreachable peers are skipped until a pull succeeds again.
	alpha.links["beta"].setDown(false)
	alpha.engine.PushRound(ctx)
	if pending, _ = alpha.metadata.Pending(ctx, "beta", "alpha", 10); len(pending) != 1 {
		t.Errorf("pushed to an unreachable peer: pending = %+v", pending)
	}
	alpha.engine.SyncPeer(ctx, "beta")
	alpha.engine.PushRound(ctx)
	if pending, _ = alpha.metadata.Pending(ctx, "beta", "alpha", 10); len(pending) != 0 {
		t.Errorf("pending after recovery = %+v", pending)
	}
}

func TestNotifyKicksPeerLoop(t *testing.T) {
	alpha := newNode(t, "alpha", []string{"beta"}, nodeOptions{share: true})
	ctx := context.Background()

	if err := alpha.engine.Notify(ctx, &peerrpc.NotifyRequest{Vault: "beta", Sequence: 3}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	select {
	case <-alpha.engine.peers["beta"].kick:
	default:
		t.Error("notify did not queue a pull")
	}
	if err := alpha.engine.Notify(ctx, &peerrpc.NotifyRequest{Vault: "gamma"}); !errors.Is(err, vault.ErrNotFound) {
		t.Errorf("Notify(unknown vault) = %v, want ErrNotFound", err)
	}
}

func TestNotifyIsRateLimited(t *testing.T) {
	alpha := newNode(t, "alpha", []string{"beta"}, nodeOptions{share: true})
	peer := alpha.engine.peers["beta"]

	accepted := 0
	for range 20 {
		if peer.requestKick() {
			accepted++
		}
	}
	if accepted < notifyBurst || accepted > notifyBurst+1 {
		t.Errorf("accepted %d kicks in a burst, want about %d", accepted, notifyBurst)
	}
}

func TestFetchRemote(t *testing.T) {
	alpha := newNode(t, "alpha", []string{"beta"}, nodeOptions{share: true})
	beta := newNode(t, "beta", []string{"alpha"}, nodeOptions{share: true})
	connect(alpha, beta)
	ctx := context.Background()

	beta.write(t, "ondemand", "fetched without a pull")
	entry, freshness, err := alpha.engine.FetchRemote(ctx, "beta", "ondemand")
	if err != nil {
		t.Fatalf("FetchRemote: %v", err)
	}
	if entry.Size != int64(len("fetched without a pull")) || freshness != replica.Fresh {
		t.Errorf("FetchRemote = %+v, %s", entry, freshness)
	}
	if data, _ := alpha.cached(t, "beta", "ondemand"); data != "fetched without a pull" {
		t.Errorf("cached content = %q", data)
	}

	if _, _, err := alpha.engine.FetchRemote(ctx, "beta", "absent"); !errors.Is(err, vault.ErrNotFound) {
		t.Errorf("FetchRemote(absent) = %v, want ErrNotFound", err)
	}
	fetches := alpha.links["beta"].calls["fetch"]
	if _, _, err := alpha.engine.FetchRemote(ctx, "beta", "absent"); !errors.Is(err, vault.ErrNotFound) {
		t.Errorf("repeated FetchRemote(absent) = %v, want ErrNotFound", err)
	}
	if alpha.links["beta"].calls["fetch"] != fetches {
		t.Error("a remembered miss still called the peer")
	}

	alpha.links["beta"].setDown(true)
	if _, _, err := alpha.engine.FetchRemote(ctx, "beta", "other"); !errors.Is(err, vault.ErrNotFound) {
		t.Errorf("FetchRemote with peer down = %v, want ErrNotFound", err)
	}
	if _, _, err := alpha.engine.FetchRemote(ctx, "gamma", "x"); !errors.Is(err, vault.ErrNotFound) {
		t.Errorf("FetchRemote(unknown vault) = %v, want ErrNotFound", err)
	}
}

func TestRelayServesUnreachableOwner(t *testing.T) {
	alpha := newNode(t, "alpha", []string{"beta", "gamma"}, nodeOptions{share: true, relay: true})
	beta := newNode(t, "beta", []string{"alpha", "gamma"}, nodeOptions{share: true, relay: true})
	gamma := newNode(t, "gamma", []string{"alpha", "beta"}, nodeOptions{share: true})
	connect(alpha, beta)
	connect(alpha, gamma)
	connect(beta, gamma)
	ctx := context.Background()

	gamma.write(t, "report", "relayed")
	beta.engine.SyncPeer(ctx, "gamma")

	alpha.links["gamma"].setDown(true)
	alpha.engine.SyncPeer(ctx, "gamma")
	if state := alpha.state(t, "gamma"); state != StateUnreachable {
		t.Fatalf("gamma state = %s, want unreachable", state)
	}
	alpha.engine.SyncPeer(ctx, "beta")

	data, freshness := alpha.cached(t, "gamma", "report")
	if data != "relayed" {
		t.Errorf("relayed content = %q", data)
	}
	if freshness != replica.Stale {
		t.Errorf("relayed freshness = %s, want stale while the owner is away", freshness)
	}

	// The relay never serves past its own cursor.
	gamma.write(t, "later", "not yet at the relay")
	response, err := beta.engine.Pull(ctx, &peerrpc.PullRequest{Vault: "gamma"})
	if err != nil {
		t.Fatalf("relay Pull: %v", err)
	}
	for _, pulled := range response.Entries {
		if pulled.Entry.Path == "later" {
			t.Error("relay served an entry it has not pulled")
		}
	}
}

func TestRelayDisabledHidesReplicas(t *testing.T) {
	beta := newNode(t, "beta", []string{"gamma"}, nodeOptions{share: true})
	gamma := newNode(t, "gamma", []string{"beta"}, nodeOptions{share: true})
	connect(beta, gamma)
	ctx := context.Background()

	gamma.write(t, "report", "data")
	beta.engine.SyncPeer(ctx, "gamma")
	if _, err := beta.engine.Pull(ctx, &peerrpc.PullRequest{Vault: "gamma"}); !errors.Is(err, vault.ErrNotFound) {
		t.Errorf("Pull of a replica without relaying = %v, want ErrNotFound", err)
	}
}

func TestPullFromStaleEpochRestartsAtZero(t *testing.T) {
	beta := newNode(t, "beta", nil, nodeOptions{share: true})
	ctx := context.Background()
	beta.write(t, "a", "1")
	beta.write(t, "b", "2")

	response, err := beta.engine.Pull(ctx, &peerrpc.PullRequest{Vault: "beta", Since: 99, Epoch: "some-other-epoch"})
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if len(response.Entries) != 2 {
		t.Errorf("entries = %d, want the full history", len(response.Entries))
	}
	if response.More {
		t.Error("More set on a complete response")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	alpha := newNode(t, "alpha", []string{"beta"}, nodeOptions{share: true})
	beta := newNode(t, "beta", []string{"alpha"}, nodeOptions{share: true})
	connect(alpha, beta)
	beta.write(t, "tsfile", "helloworrdddd")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- alpha.engine.Run(ctx) }()

	// The first round runs without waiting for a tick.
	testutil.Eventually(t, 5*time.Second, func() bool {
		return alpha.state(t, "beta") == StateReachable
	}, "first sync round never completed")
	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "Run did not return after cancel"); err != nil {
		t.Errorf("Run = %v, want nil on cancel", err)
	}
	if data, _ := alpha.cached(t, "beta", "tsfile"); data != "helloworrdddd" {
		t.Errorf("content = %q", data)
	}
}

func TestCollectGarbageKeepsReferencedBlobs(t *testing.T) {
	alpha := newNode(t, "alpha", []string{"beta"}, nodeOptions{share: true})
	beta := newNode(t, "beta", []string{"alpha"}, nodeOptions{share: true})
	connect(alpha, beta)
	ctx := context.Background()

	beta.write(t, "tsfile", "first version")
	alpha.engine.SyncPeer(ctx, "beta")
	beta.write(t, "tsfile", "second version")
	alpha.engine.SyncPeer(ctx, "beta")

	oldRef := contentstore.Hash([]byte("first version"))
	newRef := contentstore.Hash([]byte("second version"))
	if !alpha.replica.HasContent(oldRef) || !alpha.replica.HasContent(newRef) {
		t.Fatal("expected both versions' blobs before collection")
	}

	// Inside the sweep grace nothing is removed.
	if removed, err := alpha.engine.CollectGarbage(ctx); err != nil || removed != 0 {
		t.Fatalf("CollectGarbage within grace = %d, %v; want 0, nil", removed, err)
	}

	alpha.clock.Advance(time.Hour)
	removed, err := alpha.engine.CollectGarbage(ctx)
	if err != nil {
		t.Fatalf("CollectGarbage: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if alpha.replica.HasContent(oldRef) {
		t.Error("superseded blob survived collection")
	}
	if !alpha.replica.HasContent(newRef) {
		t.Error("referenced blob was collected")
	}
	if data, _ := alpha.cached(t, "beta", "tsfile"); data != "second version" {
		t.Errorf("content after collection = %q", data)
	}
}
