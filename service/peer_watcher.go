package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/elrhedda/ipopo/helpers"
	"github.com/elrhedda/ipopo/interfaces"
)

const (
	defaultPollInterval     = 30 * time.Second
	defaultFailureThreshold = 3
)

// Peer identifies a remote discovery servlet to poll.
type Peer struct {
	Host string
	Port int
	Path string
}

func (p Peer) String() string {
	return fmt.Sprintf("%s:%d%s", p.Host, p.Port, p.Path)
}

// peerState tracks one polled peer: its consecutive fetch failures and the
// endpoints last seen in its catalog (uid to framework UID).
type peerState struct {
	peer     Peer
	failures int
	seen     map[string]string
}

// PeerWatcher keeps the imports registry in sync with a set of remote peers
// by polling their discovery catalogs. New endpoints are added, endpoints a
// peer no longer lists are removed, and a peer failing several polls in a
// row has every framework it announced dropped from the registry.
type PeerWatcher struct {
	logger           log.Logger
	fetcher          interfaces.EndpointFetcher
	imports          interfaces.ImportsRegistry
	frameworkUID     string
	interval         time.Duration
	failureThreshold int

	mu      sync.Mutex
	peers   map[string]*peerState
	started bool
	closed  bool
	done    chan struct{}
}

// NewPeerWatcher creates a watcher that polls every interval and treats a
// peer as lost after failureThreshold consecutive fetch errors. Non-positive
// values fall back to 30s and 3. Endpoints announced by the local framework
// itself are never imported.
func NewPeerWatcher(logger log.Logger, fetcher interfaces.EndpointFetcher, imports interfaces.ImportsRegistry,
	frameworkUID string, interval time.Duration, failureThreshold int) *PeerWatcher {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}
	return &PeerWatcher{
		logger: log.With(helpers.NilPanic(logger, "service.peer_watcher.go: logger is required"),
			"component", "peer_watcher"),
		fetcher:          helpers.NilPanic(fetcher, "service.peer_watcher.go: fetcher is required"),
		imports:          helpers.NilPanic(imports, "service.peer_watcher.go: imports is required"),
		frameworkUID:     helpers.StrPanic(frameworkUID, "service.peer_watcher.go: frameworkUID is required"),
		interval:         interval,
		failureThreshold: failureThreshold,
		peers:            map[string]*peerState{},
		done:             make(chan struct{}),
	}
}

// AddPeer registers a peer for polling, starting at the next tick. Known
// peers are ignored.
func (w *PeerWatcher) AddPeer(peer Peer) {
	key := peer.String()
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.peers[key]; ok {
		return
	}
	w.peers[key] = &peerState{peer: peer, seen: map[string]string{}}
}

// RemovePeer unregisters a peer and removes every endpoint last seen in its
// catalog from the imports registry.
func (w *PeerWatcher) RemovePeer(peer Peer) {
	key := peer.String()
	w.mu.Lock()
	state, ok := w.peers[key]
	if ok {
		delete(w.peers, key)
	}
	w.mu.Unlock()
	if !ok {
		return
	}

	for uid := range state.seen {
		if err := w.imports.Remove(uid); err != nil && !IsUnknownEndpointError(err) {
			level.Warn(w.logger).Log("msg", "error removing endpoint of removed peer",
				"peer", key, "uid", uid, "err", err)
		}
	}
	level.Info(w.logger).Log("msg", "peer removed", "peer", key, "endpoints", len(state.seen))
}

// Start launches the poll loop. Starting twice or after Close is a no-op.
func (w *PeerWatcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.closed {
		return
	}
	w.started = true
	go w.pollLoop()
}

// Close stops the poll loop. It does not touch the imports registry.
func (w *PeerWatcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	close(w.done)
}

func (w *PeerWatcher) pollLoop() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), w.interval)
			w.PollOnce(ctx)
			cancel()
		}
	}
}

// PollOnce fetches every registered peer's catalog once and applies the
// differences to the imports registry.
func (w *PeerWatcher) PollOnce(ctx context.Context) {
	w.mu.Lock()
	keys := make([]string, 0, len(w.peers))
	for key := range w.peers {
		keys = append(keys, key)
	}
	w.mu.Unlock()

	for _, key := range keys {
		w.pollPeer(ctx, key)
	}
}

func (w *PeerWatcher) pollPeer(ctx context.Context, key string) {
	w.mu.Lock()
	state, ok := w.peers[key]
	if !ok {
		w.mu.Unlock()
		return
	}
	peer := state.peer
	seen := make(map[string]string, len(state.seen))
	for uid, frameworkUID := range state.seen {
		seen[uid] = frameworkUID
	}
	w.mu.Unlock()

	endpoints, err := w.fetcher.FetchEndpoints(ctx, peer.Host, peer.Port, peer.Path)
	if err != nil {
		w.handleFailure(key, seen, err)
		return
	}

	current := make(map[string]string, len(endpoints))
	for _, endpoint := range endpoints {
		if endpoint.FrameworkUID == w.frameworkUID {
			continue
		}
		current[endpoint.UID] = endpoint.FrameworkUID
		// Re-adding a known endpoint reports duplicate_uid; it also restores
		// entries a registry TTL dropped between polls.
		if err := w.imports.Add(endpoint); err != nil && !IsDuplicateUIDError(err) {
			level.Warn(w.logger).Log("msg", "error adding discovered endpoint",
				"peer", key, "uid", endpoint.UID, "err", err)
			delete(current, endpoint.UID)
		}
	}
	for uid := range seen {
		if _, still := current[uid]; still {
			continue
		}
		if err := w.imports.Remove(uid); err != nil && !IsUnknownEndpointError(err) {
			level.Warn(w.logger).Log("msg", "error removing vanished endpoint",
				"peer", key, "uid", uid, "err", err)
		}
	}

	w.mu.Lock()
	if state, ok := w.peers[key]; ok {
		state.failures = 0
		state.seen = current
	}
	w.mu.Unlock()
}

// handleFailure counts a failed poll and, once the threshold is reached,
// drops every framework last seen through the peer.
func (w *PeerWatcher) handleFailure(key string, seen map[string]string, err error) {
	w.mu.Lock()
	state, ok := w.peers[key]
	if !ok {
		w.mu.Unlock()
		return
	}
	state.failures++
	failures := state.failures
	lost := failures >= w.failureThreshold && len(state.seen) > 0
	if lost {
		state.seen = map[string]string{}
		state.failures = 0
	}
	w.mu.Unlock()

	level.Warn(w.logger).Log("msg", "error polling peer",
		"peer", key, "failures", failures, "err", err)
	if !lost {
		return
	}

	frameworks := map[string]struct{}{}
	for _, frameworkUID := range seen {
		frameworks[frameworkUID] = struct{}{}
	}
	for frameworkUID := range frameworks {
		removed, lfErr := w.imports.LostFramework(frameworkUID)
		if lfErr != nil {
			level.Warn(w.logger).Log("msg", "error dropping lost framework",
				"peer", key, "framework_uid", frameworkUID, "err", lfErr)
			continue
		}
		level.Info(w.logger).Log("msg", "peer lost, framework dropped",
			"peer", key, "framework_uid", frameworkUID, "endpoints", len(removed))
	}
}
