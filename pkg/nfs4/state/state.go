package state

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/nfs4state/internal/logger"
	"github.com/marmos91/nfs4state/pkg/lock"
	"github.com/marmos91/nfs4state/pkg/nfs4/types"
)

// StateObject is an open, lock or delegation state owned by a client and
// named on the wire by a stateid.
//
// Lookups match on the stateid's Other field only; the seqid is a version
// counter bumped by every state-changing operation and used for staleness
// checks.
type StateObject struct {
	Kind      StateKind
	ClientID  uint64
	CreatedAt time.Time

	// Owner is the lock-owner (KindLock) as presented by the client.
	Owner []byte

	other    [types.NFS4_OTHER_SIZE]byte
	ownerKey string
	client   *Client

	mu        sync.Mutex
	seqid     uint32
	confirmed bool

	// objects holds the ids of the objects this lock-owner may hold locks
	// on, keyed by lock.ObjectKey.
	objects map[string][]byte

	// done is closed once the state is destroyed or its client disposed.
	done     chan struct{}
	doneOnce sync.Once
}

// Stateid returns the current stateid of the state object.
func (s *StateObject) Stateid() types.Stateid4 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return types.Stateid4{Seqid: s.seqid, Other: s.other}
}

// IsConfirmed reports whether ConfirmState was called.
func (s *StateObject) IsConfirmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmed
}

// OwnerKey returns the owner id this state uses with the lock manager.
func (s *StateObject) OwnerKey() string {
	return s.ownerKey
}

// Objects returns the ids of the objects the state has locked at some point.
func (s *StateObject) Objects() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([][]byte, 0, len(s.objects))
	for _, id := range s.objects {
		out = append(out, id)
	}
	return out
}

// bump advances the seqid and returns the new stateid. Seqid 0 is reserved
// for "current" in NFSv4.1, so the counter wraps to 1.
func (s *StateObject) bump() types.Stateid4 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seqid++
	if s.seqid == 0 {
		s.seqid = 1
	}
	return types.Stateid4{Seqid: s.seqid, Other: s.other}
}

// release marks the state gone. Lock calls in flight for it observe this
// and back out.
func (s *StateObject) release() {
	s.doneOnce.Do(func() { close(s.done) })
}

// IsReleased reports whether the state was destroyed.
func (s *StateObject) IsReleased() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// lockContext derives a context that is cancelled when the state is
// released, so that a lock wait cannot outlive its owner.
func (s *StateObject) lockContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func (s *StateObject) addObject(objectID []byte) {
	key := lock.ObjectKey(objectID)
	s.mu.Lock()
	if _, ok := s.objects[key]; !ok {
		s.objects[key] = bytes.Clone(objectID)
	}
	s.mu.Unlock()
}

// ============================================================================
// State Object Registry
// ============================================================================

// CreateState creates an unconfirmed state object of kind for client.
//
// A lock state created here gets an owner derived from its own stateid; use
// CreateLockOwnerState to bind a lock state to a client-supplied owner.
func (h *StateHandler) CreateState(client *Client, kind StateKind) (*StateObject, error) {
	switch kind {
	case KindOpen, KindLock, KindDelegation:
	default:
		return nil, stateErr(ErrInval, "unknown state kind %d", kind)
	}
	return h.registerState(client, kind, nil)
}

// CreateLockOwnerState returns the lock state of (client, owner), creating
// it on first use. All locks of one lock-owner share one state object.
func (h *StateHandler) CreateLockOwnerState(client *Client, owner []byte) (*StateObject, error) {
	if len(owner) == 0 {
		return nil, stateErr(ErrInval, "empty lock owner")
	}
	return h.registerState(client, KindLock, owner)
}

func (h *StateHandler) registerState(client *Client, kind StateKind, owner []byte) (*StateObject, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.IsDisposed() || h.clients[client.ID] != client {
		return nil, stateErr(ErrStaleClientID, "client %#x is no longer registered", client.ID)
	}

	client.mu.Lock()
	defer client.mu.Unlock()

	ownerHex := hex.EncodeToString(owner)
	if owner != nil {
		if st, ok := client.lockOwners[ownerHex]; ok {
			return st, nil
		}
	}

	st := &StateObject{
		Kind:      kind,
		ClientID:  client.ID,
		CreatedAt: h.now(),
		other:     h.generateStateidOther(kind),
		client:    client,
		seqid:     1,
		objects:   make(map[string][]byte),
		done:      make(chan struct{}),
	}
	if owner == nil {
		owner = st.other[:]
		ownerHex = hex.EncodeToString(owner)
	}
	if kind == KindLock {
		st.Owner = bytes.Clone(owner)
		st.ownerKey = lockOwnerKey(client.ID, owner)
		client.lockOwners[ownerHex] = st
	}

	client.states[st.other] = st
	h.states[st.other] = st
	h.metrics.stateAdded(kind)

	return st, nil
}

// lookupState finds the state object named by id. Unknown ids fail with
// ErrStaleStateid when they carry another boot epoch, ErrBadStateid
// otherwise.
func (h *StateHandler) lookupState(id types.Stateid4) (*StateObject, error) {
	if id.IsSpecialStateid() {
		return nil, stateErr(ErrBadStateid, "special stateid %s names no state", id)
	}

	h.mu.RLock()
	st := h.states[id.Other]
	h.mu.RUnlock()

	if st != nil {
		return st, nil
	}
	if !h.isCurrentEpoch(id.Other) {
		return nil, stateErr(ErrStaleStateid, "stateid %s is from a previous server incarnation", id)
	}
	return nil, stateErr(ErrBadStateid, "stateid %s not found", id)
}

// ClientForState returns the client owning the state named by id.
func (h *StateHandler) ClientForState(id types.Stateid4) (*Client, error) {
	st, err := h.lookupState(id)
	if err != nil {
		return nil, err
	}
	return st.client, nil
}

// ConfirmState marks a state object confirmed (OPEN_CONFIRM). Fails with
// ErrStaleStateid when the state does not exist.
func (h *StateHandler) ConfirmState(id types.Stateid4) error {
	h.mu.RLock()
	st := h.states[id.Other]
	h.mu.RUnlock()

	if st == nil {
		return stateErr(ErrStaleStateid, "stateid %s not found", id)
	}

	st.mu.Lock()
	st.confirmed = true
	st.mu.Unlock()
	return nil
}

// ValidateSeq resolves a wire stateid and checks its seqid against the
// current one: older fails with ErrOldStateid, newer with ErrBadStateid.
// Seqid 0 means "the current stateid" (RFC 8881 Section 8.2.2).
func (h *StateHandler) ValidateSeq(id types.Stateid4) (*StateObject, error) {
	st, err := h.lookupState(id)
	if err != nil {
		return nil, err
	}
	if id.Seqid == 0 {
		return st, nil
	}

	st.mu.Lock()
	cur := st.seqid
	st.mu.Unlock()

	switch id.CompareSeqid(cur) {
	case -1:
		return nil, stateErr(ErrOldStateid, "stateid %s: current seqid is %d", id, cur)
	case 1:
		return nil, stateErr(ErrBadStateid, "stateid %s: seqid ahead of current %d", id, cur)
	}
	return st, nil
}

// DestroyState removes a state object (CLOSE, FREE_STATEID). A lock state
// first cancels its blocked lock waits, then releases every lock it holds.
func (h *StateHandler) DestroyState(ctx context.Context, id types.Stateid4) error {
	if _, err := h.lookupState(id); err != nil {
		return err
	}

	h.mu.Lock()
	st := h.states[id.Other]
	if st == nil {
		// Lost a race with another destroy.
		h.mu.Unlock()
		return stateErr(ErrBadStateid, "stateid %s not found", id)
	}
	h.unindexStateLocked(st)
	h.mu.Unlock()

	h.metrics.stateRemoved(st.Kind)

	if st.Kind != KindLock {
		return nil
	}
	h.locks.CancelWaiters(st.ownerKey)
	return h.releaseLocks(ctx, st)
}

// unindexStateLocked removes st from the global and client indices and
// marks it released. Caller must hold h.mu.
func (h *StateHandler) unindexStateLocked(st *StateObject) {
	delete(h.states, st.other)
	st.release()

	c := st.client
	c.mu.Lock()
	delete(c.states, st.other)
	if st.Kind == KindLock {
		key := hex.EncodeToString(st.Owner)
		if c.lockOwners[key] == st {
			delete(c.lockOwners, key)
		}
	}
	c.mu.Unlock()
}

// releaseLocks removes every lock held by st on every object it touched.
func (h *StateHandler) releaseLocks(ctx context.Context, st *StateObject) error {
	var errs []error
	for _, objectID := range st.Objects() {
		n, err := h.locks.RemoveAllForOwner(ctx, objectID, st.ownerKey)
		if err != nil {
			errs = append(errs, fmt.Errorf("release locks of %s on %s: %w",
				st.ownerKey, lock.ObjectKey(objectID), err))
			continue
		}
		if n > 0 {
			logger.DebugCtx(ctx, "Released lock-owner locks",
				logger.LockOwner(st.ownerKey),
				logger.Object(lock.ObjectKey(objectID)),
				"count", n)
		}
	}
	return errors.Join(errs...)
}

// StatesForClient returns the state objects owned by client.
func (h *StateHandler) StatesForClient(client *Client) []*StateObject {
	client.mu.Lock()
	defer client.mu.Unlock()

	out := make([]*StateObject, 0, len(client.states))
	for _, st := range client.states {
		out = append(out, st)
	}
	return out
}
