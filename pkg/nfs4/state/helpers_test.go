package state

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/nfs4state/pkg/lock"
	"github.com/marmos91/nfs4state/pkg/nfs4/types"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// newTestHandler creates a handler on an in-memory lock backend with a fake
// clock. The handler is shut down when the test ends.
func newTestHandler(t *testing.T, cfg Config) (*StateHandler, *fakeClock) {
	t.Helper()
	return newTestHandlerWithBackend(t, cfg, lock.NewMemoryBackend())
}

func newTestHandlerWithBackend(t *testing.T, cfg Config, backend lock.Backend) (*StateHandler, *fakeClock) {
	t.Helper()

	mgr := lock.NewManager(backend, lock.Config{}, nil)
	t.Cleanup(func() { _ = mgr.Close() })

	h := NewStateHandler(cfg, mgr, nil)
	clock := newFakeClock()
	h.now = clock.Now
	t.Cleanup(func() { _ = h.Shutdown(context.Background()) })

	return h, clock
}

func mustClient(t *testing.T, h *StateHandler, owner string) *Client {
	t.Helper()
	c, err := h.CreateClient(t.Context(), PeerInfo{Addr: "10.0.0.1:700"}, []byte(owner), types.Verifier4{1}, nil)
	require.NoError(t, err)
	return c
}

func mustLockOwner(t *testing.T, h *StateHandler, c *Client, owner string) *StateObject {
	t.Helper()
	st, err := h.CreateLockOwnerState(c, []byte(owner))
	require.NoError(t, err)
	return st
}

// waitBlocked waits until n lock requests are blocked in the lock manager.
func waitBlocked(t *testing.T, h *StateHandler, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.locks.BlockedCount() == n
	}, 2*time.Second, 5*time.Millisecond)
}

// distributedBackend reports itself as shared across instances.
type distributedBackend struct {
	*lock.MemoryBackend
}

func (distributedBackend) Distributed() bool { return true }

// gatedBackend pauses the next object mutex acquisition until released, so
// a test can run other operations while a Lock call is in flight. A paused
// acquisition is not interruptible once the gate opens.
type gatedBackend struct {
	*lock.MemoryBackend

	mu      sync.Mutex
	entered chan struct{}
	release chan struct{}
}

func newGatedBackend() *gatedBackend {
	return &gatedBackend{MemoryBackend: lock.NewMemoryBackend()}
}

// arm makes the next mutex acquisition block. The returned channel is
// closed once it does; calling open lets it proceed.
func (b *gatedBackend) arm() (entered <-chan struct{}, open func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entered = make(chan struct{})
	b.release = make(chan struct{})
	release := b.release
	return b.entered, func() { close(release) }
}

func (b *gatedBackend) Mutex(key string) lock.ObjectMutex {
	return &gatedMutex{ObjectMutex: b.MemoryBackend.Mutex(key), b: b}
}

type gatedMutex struct {
	lock.ObjectMutex
	b *gatedBackend
}

func (m *gatedMutex) Lock(ctx context.Context) error {
	m.b.mu.Lock()
	entered, release := m.b.entered, m.b.release
	m.b.entered, m.b.release = nil, nil
	m.b.mu.Unlock()

	if entered == nil {
		return m.ObjectMutex.Lock(ctx)
	}
	close(entered)
	<-release
	return m.ObjectMutex.Lock(context.WithoutCancel(ctx))
}
