package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elrhedda/ipopo/domain"
	"github.com/elrhedda/ipopo/interfaces/mock"
)

// catalogFetcher serves a mutable per-peer catalog and counts fetches.
type catalogFetcher struct {
	mu       sync.Mutex
	catalog  []*domain.ImportEndpoint
	err      error
	fetches  int
	lastPath string
}

func (f *catalogFetcher) set(catalog []*domain.ImportEndpoint, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalog = catalog
	f.err = err
}

func (f *catalogFetcher) mock() *mock.EndpointFetcherMock {
	return &mock.EndpointFetcherMock{
		FetchEndpointsFunc: func(_ context.Context, _ string, _ int, path string) ([]*domain.ImportEndpoint, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.fetches++
			f.lastPath = path
			return f.catalog, f.err
		},
	}
}

func (f *catalogFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func newTestWatcher(t *testing.T, fetcher *catalogFetcher, threshold int) (*PeerWatcher, *MemoryImports) {
	t.Helper()
	registry := NewMemoryImports(log.NewNopLogger())
	watcher := NewPeerWatcher(log.NewNopLogger(), fetcher.mock(), registry,
		"framework-self", time.Minute, threshold)
	watcher.AddPeer(Peer{Host: "peer.example", Port: 9000, Path: "/pelix-dispatcher"})
	return watcher, registry
}

func TestPeerWatcherSync(t *testing.T) {
	fetcher := &catalogFetcher{}
	watcher, registry := newTestWatcher(t, fetcher, 3)

	alpha := newTestImport("alpha", "framework-b")
	beta := newTestImport("beta", "framework-b")
	fetcher.set([]*domain.ImportEndpoint{alpha, beta}, nil)
	watcher.PollOnce(context.Background())

	listed, err := registry.List()
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "/pelix-dispatcher", fetcher.lastPath)

	// An endpoint missing from the next catalog is removed, a new one added.
	gamma := newTestImport("gamma", "framework-b")
	fetcher.set([]*domain.ImportEndpoint{alpha, gamma}, nil)
	watcher.PollOnce(context.Background())

	listed, err = registry.List()
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "alpha", listed[0].Name)
	assert.Equal(t, "gamma", listed[1].Name)

	// An unchanged catalog adds nothing twice.
	watcher.PollOnce(context.Background())
	listed, err = registry.List()
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestPeerWatcherSkipsOwnFramework(t *testing.T) {
	fetcher := &catalogFetcher{}
	watcher, registry := newTestWatcher(t, fetcher, 3)

	mine := newTestImport("mine", "framework-self")
	other := newTestImport("other", "framework-b")
	fetcher.set([]*domain.ImportEndpoint{mine, other}, nil)
	watcher.PollOnce(context.Background())

	listed, err := registry.List()
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "other", listed[0].Name)
}

func TestPeerWatcherPeerLost(t *testing.T) {
	fetcher := &catalogFetcher{}
	watcher, registry := newTestWatcher(t, fetcher, 2)

	alpha := newTestImport("alpha", "framework-b")
	beta := newTestImport("beta", "framework-c")
	fetcher.set([]*domain.ImportEndpoint{alpha, beta}, nil)
	watcher.PollOnce(context.Background())
	listed, err := registry.List()
	require.NoError(t, err)
	require.Len(t, listed, 2)

	// The first failure keeps everything in place.
	fetcher.set(nil, errors.New("connection refused"))
	watcher.PollOnce(context.Background())
	listed, err = registry.List()
	require.NoError(t, err)
	assert.Len(t, listed, 2)

	// The second failure reaches the threshold: every framework announced
	// through the peer is dropped.
	watcher.PollOnce(context.Background())
	listed, err = registry.List()
	require.NoError(t, err)
	assert.Empty(t, listed)

	// A recovered peer repopulates the registry.
	fetcher.set([]*domain.ImportEndpoint{alpha}, nil)
	watcher.PollOnce(context.Background())
	listed, err = registry.List()
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "alpha", listed[0].Name)
}

func TestPeerWatcherRemovePeer(t *testing.T) {
	fetcher := &catalogFetcher{}
	watcher, registry := newTestWatcher(t, fetcher, 3)

	alpha := newTestImport("alpha", "framework-b")
	fetcher.set([]*domain.ImportEndpoint{alpha}, nil)
	watcher.PollOnce(context.Background())

	watcher.RemovePeer(Peer{Host: "peer.example", Port: 9000, Path: "/pelix-dispatcher"})
	listed, err := registry.List()
	require.NoError(t, err)
	assert.Empty(t, listed)

	// The removed peer is no longer polled.
	before := fetcher.count()
	watcher.PollOnce(context.Background())
	assert.Equal(t, before, fetcher.count())
}

func TestPeerWatcherAddPeerTwice(t *testing.T) {
	fetcher := &catalogFetcher{}
	watcher, _ := newTestWatcher(t, fetcher, 3)
	watcher.AddPeer(Peer{Host: "peer.example", Port: 9000, Path: "/pelix-dispatcher"})

	watcher.PollOnce(context.Background())
	assert.Equal(t, 1, fetcher.count())
}

func TestPeerWatcherLoop(t *testing.T) {
	fetched := make(chan struct{}, 1)
	fetcher := &mock.EndpointFetcherMock{
		FetchEndpointsFunc: func(context.Context, string, int, string) ([]*domain.ImportEndpoint, error) {
			select {
			case fetched <- struct{}{}:
			default:
			}
			return nil, nil
		},
	}
	registry := NewMemoryImports(log.NewNopLogger())
	watcher := NewPeerWatcher(log.NewNopLogger(), fetcher, registry,
		"framework-self", 10*time.Millisecond, 3)
	watcher.AddPeer(Peer{Host: "peer.example", Port: 9000, Path: "/pelix-dispatcher"})

	watcher.Start()
	defer watcher.Close()

	select {
	case <-fetched:
	case <-time.After(2 * time.Second):
		t.Fatal("poll loop never fetched the peer")
	}
}
