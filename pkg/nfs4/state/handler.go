package state

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/nfs4state/internal/logger"
	"github.com/marmos91/nfs4state/pkg/lock"
	"github.com/marmos91/nfs4state/pkg/nfs4/types"
)

// Default timing and limits.
const (
	// DefaultLeaseTime is the NFSv4 lease duration handed to clients.
	DefaultLeaseTime = 90 * time.Second

	// DefaultLeaseGrace is the slack past the lease before a client is reaped.
	DefaultLeaseGrace = 15 * time.Second

	// DefaultGracePeriod is the post-restart reclaim window.
	DefaultGracePeriod = 90 * time.Second

	// DefaultMaxSessionsPerClient is the number of sessions a client may hold.
	DefaultMaxSessionsPerClient = 1
)

// Config tunes the StateHandler. Zero values take the defaults above.
type Config struct {
	LeaseTime            time.Duration
	LeaseGrace           time.Duration
	GracePeriod          time.Duration
	MaxSessionsPerClient int
	MaxSlots             uint32
	MaxBackSlots         uint32
}

func (c *Config) applyDefaults() {
	if c.LeaseTime <= 0 {
		c.LeaseTime = DefaultLeaseTime
	}
	if c.LeaseGrace < 0 {
		c.LeaseGrace = 0
	} else if c.LeaseGrace == 0 {
		c.LeaseGrace = DefaultLeaseGrace
	}
	if c.GracePeriod < 0 {
		c.GracePeriod = 0
	}
	if c.MaxSessionsPerClient <= 0 {
		c.MaxSessionsPerClient = DefaultMaxSessionsPerClient
	}
	if c.MaxSlots == 0 {
		c.MaxSlots = DefaultMaxSlots
	}
	if c.MaxBackSlots == 0 {
		c.MaxBackSlots = DefaultMaxBackSlots
	}
}

// StateHandler is the central NFSv4 state registry: clients, sessions and
// state objects, plus the glue to the byte-range lock manager.
//
// Lock ordering: h.mu before Client.mu before StateObject.mu. The lock
// manager is never called with h.mu held.
type StateHandler struct {
	cfg     Config
	locks   *lock.Manager
	grace   *GraceManager
	metrics *Metrics

	// bootEpoch is the server start time in unix seconds. It is embedded in
	// client ids and stateids to recognize ids of previous incarnations.
	bootEpoch     uint32
	nextClientSeq atomic.Uint32
	nextStateSeq  atomic.Uint64

	now func() time.Time

	mu         sync.RWMutex
	clients    map[uint64]*Client
	byOwner    map[string]*Client
	byVerifier map[types.Verifier4]map[uint64]*Client
	sessions   map[types.SessionId4]*Session
	states     map[[types.NFS4_OTHER_SIZE]byte]*StateObject

	sweepMu     sync.Mutex
	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

// NewStateHandler creates an empty handler on top of locks. metrics may be nil.
func NewStateHandler(cfg Config, locks *lock.Manager, metrics *Metrics) *StateHandler {
	cfg.applyDefaults()

	h := &StateHandler{
		cfg:        cfg,
		locks:      locks,
		metrics:    metrics,
		bootEpoch:  uint32(time.Now().Unix()),
		now:        time.Now,
		clients:    make(map[uint64]*Client),
		byOwner:    make(map[string]*Client),
		byVerifier: make(map[types.Verifier4]map[uint64]*Client),
		sessions:   make(map[types.SessionId4]*Session),
		states:     make(map[[types.NFS4_OTHER_SIZE]byte]*StateObject),
	}
	h.grace = NewGraceManager(cfg.GracePeriod, func() { metrics.setGrace(false) })
	return h
}

// Config returns the effective configuration.
func (h *StateHandler) Config() Config {
	return h.cfg
}

// Grace returns the grace period manager.
func (h *StateHandler) Grace() *GraceManager {
	return h.grace
}

// LockManager returns the lock manager the handler delegates to.
func (h *StateHandler) LockManager() *lock.Manager {
	return h.locks
}

// BootEpoch returns the epoch embedded in ids issued by this instance.
func (h *StateHandler) BootEpoch() uint32 {
	return h.bootEpoch
}

// ============================================================================
// Client Registry
// ============================================================================

// CreateClient registers a new client incarnation for owner.
//
// When a live client already holds owner, negotiate decides whether it is
// replaced (disposed with full cascade) or the request is rejected with
// ErrClientInUse. A nil negotiate uses DefaultNegotiation. A prior client
// whose lease lapsed is replaced without consulting negotiate.
func (h *StateHandler) CreateClient(ctx context.Context, peer PeerInfo, owner []byte, verifier types.Verifier4, negotiate NegotiationFunc) (*Client, error) {
	if len(owner) == 0 {
		return nil, stateErr(ErrInval, "empty client owner")
	}
	if negotiate == nil {
		negotiate = DefaultNegotiation
	}

	req := ClientRequest{Peer: peer, Owner: owner, Verifier: verifier}
	key := hex.EncodeToString(owner)

	for {
		now := h.now()

		h.mu.Lock()
		existing := h.byOwner[key]
		if existing == nil {
			c := newClient(h.generateClientID(), owner, verifier, peer, h.cfg.LeaseTime, now)
			h.clients[c.ID] = c
			h.byOwner[key] = c
			h.indexVerifierLocked(c)
			h.mu.Unlock()

			h.metrics.clientCreated()
			logger.InfoCtx(ctx, "Client registered",
				logger.ClientID(c.ID),
				logger.ClientOwner(key),
				logger.PeerAddr(peer.Addr))
			return c, nil
		}

		reason := ReasonReplaced
		if existing.expired(now, h.cfg.LeaseGrace) {
			reason = ReasonExpired
		} else if negotiate(existing, req) == NegotiateReject {
			h.mu.Unlock()
			return nil, stateErr(ErrClientInUse, "client owner %s is in use by client %#x", key, existing.ID)
		}
		h.unregisterLocked(existing)
		h.mu.Unlock()

		if err := h.releaseClient(ctx, existing, reason); err != nil {
			return nil, fmt.Errorf("dispose previous client %#x: %w", existing.ID, err)
		}
	}
}

// LookupByID returns the live client with id, or ErrStaleClientID.
func (h *StateHandler) LookupByID(id uint64) (*Client, error) {
	h.mu.RLock()
	c := h.clients[id]
	h.mu.RUnlock()

	if c == nil || c.IsDisposed() {
		return nil, stateErr(ErrStaleClientID, "client %#x not found", id)
	}
	return c, nil
}

// LookupByVerifier returns the most recent live client that registered with
// verifier, or nil.
func (h *StateHandler) LookupByVerifier(verifier types.Verifier4) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var newest *Client
	for id, c := range h.byVerifier[verifier] {
		if c.IsDisposed() {
			continue
		}
		if newest == nil || id > newest.ID {
			newest = c
		}
	}
	return newest
}

// indexVerifierLocked adds c to the clients registered with its verifier.
// Distinct owners may present the same verifier. Caller must hold h.mu.
func (h *StateHandler) indexVerifierLocked(c *Client) {
	set := h.byVerifier[c.Verifier]
	if set == nil {
		set = make(map[uint64]*Client)
		h.byVerifier[c.Verifier] = set
	}
	set[c.ID] = c
}

// RenewLease resets the lease timer of client id (RENEW, or implicitly any
// operation that names the client).
//
// Fails with ErrExpired when the id was issued by this server incarnation
// but the client is gone or its lease already lapsed (the lapsed client is
// disposed on the spot), and with ErrStaleClientID for ids never issued by
// this incarnation.
func (h *StateHandler) RenewLease(ctx context.Context, id uint64) error {
	now := h.now()

	h.mu.RLock()
	c := h.clients[id]
	h.mu.RUnlock()

	if c == nil || c.IsDisposed() {
		if h.issuedHere(id) {
			return stateErr(ErrExpired, "lease of client %#x expired", id)
		}
		return stateErr(ErrStaleClientID, "client %#x was not issued by this server", id)
	}

	if c.expired(now, h.cfg.LeaseGrace) {
		if err := h.disposeClient(ctx, c, ReasonExpired); err != nil {
			logger.WarnCtx(ctx, "Failed to dispose expired client",
				logger.ClientID(id), logger.Err(err))
		}
		return stateErr(ErrExpired, "lease of client %#x expired", id)
	}

	c.touch(now)
	return nil
}

// DestroyClient disposes client id with full cascade: sessions are
// destroyed, blocked lock waits of its lock-owners cancelled, state objects
// removed and their locks released. Destroying an unknown or already
// disposed client is a no-op.
func (h *StateHandler) DestroyClient(ctx context.Context, id uint64) error {
	h.mu.RLock()
	c := h.clients[id]
	h.mu.RUnlock()

	if c == nil {
		return nil
	}
	return h.disposeClient(ctx, c, ReasonDestroyed)
}

// ListClients returns every live client.
func (h *StateHandler) ListClients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

// ClientCount returns the number of live clients.
func (h *StateHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown stops the lease sweeper and disposes every client.
func (h *StateHandler) Shutdown(ctx context.Context) error {
	h.StopLeaseSweeper()
	h.grace.Stop()

	var errs []error
	for _, c := range h.ListClients() {
		if err := h.disposeClient(ctx, c, ReasonShutdown); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// disposeClient unregisters c and releases everything it owns. Only the
// caller that wins the disposal does the release; others return nil.
func (h *StateHandler) disposeClient(ctx context.Context, c *Client, reason string) error {
	h.mu.Lock()
	won := h.unregisterLocked(c)
	h.mu.Unlock()

	if !won {
		return nil
	}
	return h.releaseClient(ctx, c, reason)
}

// unregisterLocked marks c disposed and removes it and everything it owns
// from the handler indices. Returns false when c was already disposed.
// Caller must hold h.mu.
func (h *StateHandler) unregisterLocked(c *Client) bool {
	if !c.disposed.CompareAndSwap(false, true) {
		return false
	}

	if h.clients[c.ID] == c {
		delete(h.clients, c.ID)
	}
	if key := c.OwnerKey(); h.byOwner[key] == c {
		delete(h.byOwner, key)
	}
	if set := h.byVerifier[c.Verifier]; set[c.ID] == c {
		delete(set, c.ID)
		if len(set) == 0 {
			delete(h.byVerifier, c.Verifier)
		}
	}

	c.mu.Lock()
	for id := range c.sessions {
		delete(h.sessions, id)
	}
	for other, st := range c.states {
		delete(h.states, other)
		st.release()
	}
	c.mu.Unlock()

	return true
}

// releaseClient tears down a client that is no longer indexed.
//
// Blocked lock waits are cancelled before any lock is released so that a
// wait of the disposed client can never pick up a range freed by its own
// release.
func (h *StateHandler) releaseClient(ctx context.Context, c *Client, reason string) error {
	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	states := make([]*StateObject, 0, len(c.states))
	for _, st := range c.states {
		states = append(states, st)
	}
	c.sessions = make(map[types.SessionId4]*Session)
	c.states = make(map[[types.NFS4_OTHER_SIZE]byte]*StateObject)
	c.lockOwners = make(map[string]*StateObject)
	c.mu.Unlock()

	for _, s := range sessions {
		h.finishSession(s, reason)
	}

	for _, st := range states {
		if st.Kind == KindLock {
			h.locks.CancelWaiters(st.ownerKey)
		}
	}

	var errs []error
	for _, st := range states {
		h.metrics.stateRemoved(st.Kind)
		if st.Kind != KindLock {
			continue
		}
		if err := h.releaseLocks(ctx, st); err != nil {
			errs = append(errs, err)
		}
	}

	h.metrics.clientDisposed(reason)
	err := errors.Join(errs...)
	if err != nil {
		logger.ErrorCtx(ctx, "Client disposed with errors",
			logger.ClientID(c.ID), logger.Reason(reason), logger.Err(err))
	} else {
		logger.InfoCtx(ctx, "Client disposed",
			logger.ClientID(c.ID),
			logger.Reason(reason),
			"sessions", len(sessions),
			"states", len(states))
	}
	return err
}
