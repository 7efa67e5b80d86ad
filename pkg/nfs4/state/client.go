// Package state implements the NFSv4 stateful engine: client identity and
// leases, sessions with exactly-once slot tables, open/lock state objects and
// the glue between lock-owner state and the byte-range lock manager.
package state

import (
	"bytes"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/nfs4state/pkg/nfs4/types"
)

// PeerInfo describes the transport endpoint a request came from.
type PeerInfo struct {
	// Addr is the remote network address (for logging and negotiation).
	Addr string
}

// ============================================================================
// Client
// ============================================================================

// Client is the server-side record of one NFSv4 client incarnation.
//
// A client is identified by the opaque Owner it presents (stable across its
// reboots) and the Verifier (changes on every client reboot). The server
// assigns ID, built from the boot epoch (high 32 bits) and a counter (low 32
// bits).
//
// Once disposed a client is never returned by a lookup and has released its
// sessions, state objects and locks.
type Client struct {
	ID        uint64
	Owner     []byte
	Verifier  types.Verifier4
	Peer      PeerInfo
	LeaseTime time.Duration
	CreatedAt time.Time

	// lastRenewal is the unix nano timestamp of the last lease renewal.
	lastRenewal atomic.Int64
	disposed    atomic.Bool

	mu         sync.Mutex
	sessions   map[types.SessionId4]*Session
	states     map[[types.NFS4_OTHER_SIZE]byte]*StateObject
	lockOwners map[string]*StateObject
}

func newClient(id uint64, owner []byte, verifier types.Verifier4, peer PeerInfo, lease time.Duration, now time.Time) *Client {
	c := &Client{
		ID:         id,
		Owner:      bytes.Clone(owner),
		Verifier:   verifier,
		Peer:       peer,
		LeaseTime:  lease,
		CreatedAt:  now,
		sessions:   make(map[types.SessionId4]*Session),
		states:     make(map[[types.NFS4_OTHER_SIZE]byte]*StateObject),
		lockOwners: make(map[string]*StateObject),
	}
	c.lastRenewal.Store(now.UnixNano())
	return c
}

// OwnerKey returns the hex encoding of the client owner, the key of the
// owner index and the identity used for grace-period reclaims.
func (c *Client) OwnerKey() string {
	return hex.EncodeToString(c.Owner)
}

// LastRenewal returns the time of the last lease renewal.
func (c *Client) LastRenewal() time.Time {
	return time.Unix(0, c.lastRenewal.Load())
}

// IsDisposed reports whether the client has been destroyed or reaped.
func (c *Client) IsDisposed() bool {
	return c.disposed.Load()
}

func (c *Client) touch(now time.Time) {
	c.lastRenewal.Store(now.UnixNano())
}

// expired reports whether the lease lapsed by more than grace at now.
func (c *Client) expired(now time.Time, grace time.Duration) bool {
	return now.Sub(c.LastRenewal()) > c.LeaseTime+grace
}

// SessionCount returns the number of live sessions of the client.
func (c *Client) SessionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// ClientInfo is a point-in-time view of a client for the admin API and CLI.
type ClientInfo struct {
	ID             uint64    `json:"id"`
	Owner          string    `json:"owner"`
	Verifier       string    `json:"verifier"`
	PeerAddr       string    `json:"peer_addr"`
	CreatedAt      time.Time `json:"created_at"`
	LastRenewal    time.Time `json:"last_renewal"`
	LeaseExpiresAt time.Time `json:"lease_expires_at"`
	Sessions       []string  `json:"sessions"`
	States         int       `json:"states"`
	LockOwners     int       `json:"lock_owners"`
}

// Snapshot returns a copy of the client's observable state.
func (c *Client) Snapshot() ClientInfo {
	c.mu.Lock()
	sessions := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		sessions = append(sessions, id.String())
	}
	states := len(c.states)
	owners := len(c.lockOwners)
	c.mu.Unlock()

	renewed := c.LastRenewal()
	return ClientInfo{
		ID:             c.ID,
		Owner:          c.OwnerKey(),
		Verifier:       c.Verifier.String(),
		PeerAddr:       c.Peer.Addr,
		CreatedAt:      c.CreatedAt,
		LastRenewal:    renewed,
		LeaseExpiresAt: renewed.Add(c.LeaseTime),
		Sessions:       sessions,
		States:         states,
		LockOwners:     owners,
	}
}

// ============================================================================
// Client negotiation
// ============================================================================

// ClientRequest carries the identity presented by a client registering
// itself (EXCHANGE_ID / SETCLIENTID).
type ClientRequest struct {
	Peer     PeerInfo
	Owner    []byte
	Verifier types.Verifier4
}

// NegotiationResult is the decision taken when an owner is already
// registered by a live client.
type NegotiationResult int

const (
	// NegotiateReplace disposes the existing client and registers the new one.
	NegotiateReplace NegotiationResult = iota

	// NegotiateReject refuses the new registration with ErrClientInUse.
	NegotiateReject
)

// NegotiationFunc decides between an existing live client and a new
// registration for the same owner. It runs while the handler's client table
// is locked and must not call back into the StateHandler.
type NegotiationFunc func(existing *Client, req ClientRequest) NegotiationResult

// DefaultNegotiation follows the RFC 8881 Section 18.35.5 cases that need no
// principal information:
//
//   - A changed verifier means the client rebooted: replace.
//   - The same verifier from the same address is a re-establishment: replace.
//   - The same verifier from another address is a different client using
//     the same owner string: reject.
func DefaultNegotiation(existing *Client, req ClientRequest) NegotiationResult {
	if existing.Verifier != req.Verifier {
		return NegotiateReplace
	}
	if existing.Peer.Addr == req.Peer.Addr {
		return NegotiateReplace
	}
	return NegotiateReject
}
