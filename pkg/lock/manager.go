package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"

	"github.com/marmos91/nfs4state/internal/logger"
	"github.com/marmos91/nfs4state/internal/telemetry"
)

// Default timing for blocking waits.
const (
	DefaultPollInterval = 500 * time.Millisecond
)

// Config tunes the Manager.
type Config struct {
	// BlockingTimeout bounds a blocking Lock call. When it elapses the call
	// fails with ErrLocked as if it had not blocked. Zero waits until the
	// context is done.
	BlockingTimeout time.Duration

	// PollInterval is how often a blocked waiter re-checks a distributed
	// backend, where releases by other instances are not broadcast.
	PollInterval time.Duration

	// MaxLocksPerObject caps the number of lock entries per object.
	// Zero means unlimited.
	MaxLocksPerObject int
}

// Manager decides byte-range lock requests against a Backend.
//
// Every decision runs under the backend's object mutex, so the read of the
// current locks, the conflict check and the mutation form one atomic step
// for that object, even when the backend is shared by several instances.
// Different objects never contend.
type Manager struct {
	backend Backend
	cfg     Config
	metrics *Metrics

	waiters *waitQueue
	graph   *WaitForGraph

	now func() time.Time
}

// NewManager creates a lock manager on top of backend. metrics may be nil.
func NewManager(backend Backend, cfg Config, metrics *Metrics) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Manager{
		backend: backend,
		cfg:     cfg,
		metrics: metrics,
		waiters: newWaitQueue(),
		graph:   NewWaitForGraph(),
		now:     time.Now,
	}
}

// Backend returns the storage backend.
func (m *Manager) Backend() Backend {
	return m.backend
}

// Lock acquires req on objectID and returns the granted lock.
//
// Without blocking a conflicting request fails with an ErrLocked error that
// carries the conflicting lock. With blocking the call waits until the range
// becomes free, the owner's waits are cancelled (ErrWaitCancelled), the
// blocking timeout elapses (ErrLocked), waiting would deadlock (ErrDeadlock)
// or ctx is done.
//
// A request from the same owner for exactly the same range as an existing
// lock replaces that lock's type in place.
func (m *Manager) Lock(ctx context.Context, objectID []byte, req *Lock, blocking bool) (*Lock, error) {
	key := ObjectKey(objectID)
	ctx, span := telemetry.StartLockSpan(ctx, "lock", key,
		telemetry.LockOwner(req.Owner.OwnerID),
		telemetry.LockType(req.Type.String()),
		telemetry.LockOffset(req.Offset),
		telemetry.LockLength(req.Length),
		telemetry.LockBlocking(blocking),
	)
	defer span.End()

	granted, err := m.lock(ctx, key, req, blocking)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		m.metrics.ObserveLockAcquire(req.Type, acquireStatus(err))
		return nil, err
	}
	m.metrics.ObserveLockAcquire(req.Type, StatusGranted)
	return granted, nil
}

func (m *Manager) lock(ctx context.Context, key string, req *Lock, blocking bool) (*Lock, error) {
	var (
		w         *waiter
		waitStart time.Time
		timeout   <-chan time.Time
	)
	defer func() {
		if w != nil {
			m.waiters.remove(w)
			m.graph.RemoveWaiter(req.Owner.OwnerID)
			m.metrics.WaitFinished(m.now().Sub(waitStart))
		}
	}()

	for {
		var (
			granted  *Lock
			conflict *Lock
		)
		err := m.withObject(ctx, key, func(ctx context.Context) error {
			existing, err := m.backend.GetLocks(ctx, key)
			if err != nil {
				return NewBackendError(key, "get locks", err)
			}

			conflicts := conflictsWith(existing, req)
			if len(conflicts) == 0 {
				granted, err = m.grant(ctx, key, existing, req)
				return err
			}
			conflict = conflicts[0]
			if !blocking {
				return nil
			}

			// Register before the mutex is released so a release happening
			// right after is not missed.
			if !m.graph.TryAddWaiter(req.Owner.OwnerID, ownersOf(conflicts)) {
				m.metrics.ObserveDeadlock()
				return NewDeadlockError(key, req.Owner.OwnerID)
			}
			if w == nil {
				w = newWaiter(key, req.Owner.OwnerID)
				m.waiters.add(w)
				waitStart = m.now()
				m.metrics.WaitStarted()
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		if granted != nil {
			return granted, nil
		}
		if !blocking {
			return nil, NewLockedError(key, conflict)
		}

		if timeout == nil && m.cfg.BlockingTimeout > 0 {
			timer := time.NewTimer(m.cfg.BlockingTimeout)
			defer timer.Stop()
			timeout = timer.C
		}

		logger.DebugCtx(ctx, "Lock request blocked",
			"object", key, "owner", req.Owner.OwnerID, "conflict_owner", conflict.Owner.OwnerID)

		if err := m.wait(ctx, w, timeout); err != nil {
			if CodeOf(err) == ErrLocked {
				return nil, NewLockedError(key, conflict)
			}
			return nil, err
		}
	}
}

// wait parks a blocked request until something worth a retry happens.
// A nil return means "retry".
func (m *Manager) wait(ctx context.Context, w *waiter, timeout <-chan time.Time) error {
	var poll <-chan time.Time
	if m.backend.Distributed() {
		pollTimer := time.NewTimer(m.cfg.PollInterval)
		defer pollTimer.Stop()
		poll = pollTimer.C
	}

	select {
	case <-w.wake:
		return nil
	case <-poll:
		return nil
	case <-w.cancelled:
		return NewWaitCancelledError(w.key, w.ownerID)
	case <-timeout:
		return ErrLockedSentinel
	case <-ctx.Done():
		return ctx.Err()
	}
}

// grant stores req (or updates the owner's identical range in place).
// Must be called with the object mutex held.
func (m *Manager) grant(ctx context.Context, key string, existing []*Lock, req *Lock) (*Lock, error) {
	for _, l := range existing {
		if !l.SameRange(req.Owner.OwnerID, req.Offset, req.Length) {
			continue
		}
		if l.Type == req.Type {
			return l.Clone(), nil
		}
		updated := l.Clone()
		updated.Type = req.Type
		updated.Reclaim = req.Reclaim
		if err := m.backend.AddLock(ctx, key, updated); err != nil {
			return nil, NewBackendError(key, "update lock", err)
		}
		// A downgrade to shared can admit waiting readers.
		if updated.Type == LockTypeShared {
			m.waiters.broadcast(key)
		}
		return updated.Clone(), nil
	}

	if m.cfg.MaxLocksPerObject > 0 && len(existing) >= m.cfg.MaxLocksPerObject {
		return nil, NewLimitExceededError(key, m.cfg.MaxLocksPerObject)
	}

	granted := req.Clone()
	if granted.ID == "" {
		granted.ID = uuid.New().String()
	}
	granted.AcquiredAt = m.now()
	if err := m.backend.AddLock(ctx, key, granted); err != nil {
		return nil, NewBackendError(key, "add lock", err)
	}
	return granted.Clone(), nil
}

// Test reports the first lock that would conflict with candidate, or nil if
// candidate could be granted now. Nothing is mutated.
func (m *Manager) Test(ctx context.Context, objectID []byte, candidate *Lock) (*Conflict, error) {
	key := ObjectKey(objectID)
	ctx, span := telemetry.StartLockSpan(ctx, "test", key,
		telemetry.LockOwner(candidate.Owner.OwnerID),
		telemetry.LockType(candidate.Type.String()),
		telemetry.LockOffset(candidate.Offset),
		telemetry.LockLength(candidate.Length),
	)
	defer span.End()

	var conflict *Conflict
	err := m.withObject(ctx, key, func(ctx context.Context) error {
		existing, err := m.backend.GetLocks(ctx, key)
		if err != nil {
			return NewBackendError(key, "get locks", err)
		}
		if conflicts := conflictsWith(existing, candidate); len(conflicts) > 0 {
			conflict = &Conflict{Lock: conflicts[0].Clone()}
		}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	m.metrics.ObserveLockTest(conflict != nil)
	return conflict, nil
}

// Unlock removes the lock of ownerID that covers exactly [offset, offset+length).
// Fails with ErrLockNotFound when no such entry exists.
func (m *Manager) Unlock(ctx context.Context, objectID []byte, ownerID string, offset, length uint64) error {
	key := ObjectKey(objectID)
	ctx, span := telemetry.StartLockSpan(ctx, "unlock", key,
		telemetry.LockOwner(ownerID),
		telemetry.LockOffset(offset),
		telemetry.LockLength(length),
	)
	defer span.End()

	var released *Lock
	err := m.withObject(ctx, key, func(ctx context.Context) error {
		existing, err := m.backend.GetLocks(ctx, key)
		if err != nil {
			return NewBackendError(key, "get locks", err)
		}
		for _, l := range existing {
			if l.SameRange(ownerID, offset, length) {
				released = l
				break
			}
		}
		if released == nil {
			return NewLockNotFoundError(key)
		}
		if err := m.backend.RemoveLock(ctx, key, released); err != nil {
			return NewBackendError(key, "remove lock", err)
		}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	m.waiters.broadcast(key)
	m.metrics.ObserveLockRelease(ReasonExplicit, []*Lock{released})
	return nil
}

// RemoveAllForOwner releases every lock ownerID holds on objectID.
func (m *Manager) RemoveAllForOwner(ctx context.Context, objectID []byte, ownerID string) (int, error) {
	return m.removeWhere(ctx, objectID, ReasonOwner, func(l *Lock) bool {
		return l.Owner.OwnerID == ownerID
	})
}

// RemoveAllForObject releases every lock on objectID.
func (m *Manager) RemoveAllForObject(ctx context.Context, objectID []byte) (int, error) {
	return m.removeWhere(ctx, objectID, ReasonObject, func(*Lock) bool { return true })
}

func (m *Manager) removeWhere(ctx context.Context, objectID []byte, reason string, match func(*Lock) bool) (int, error) {
	key := ObjectKey(objectID)
	var removed []*Lock
	err := m.withObject(ctx, key, func(ctx context.Context) error {
		existing, err := m.backend.GetLocks(ctx, key)
		if err != nil {
			return NewBackendError(key, "get locks", err)
		}
		for _, l := range existing {
			if match(l) {
				removed = append(removed, l)
			}
		}
		if len(removed) == 0 {
			return nil
		}
		if err := m.backend.RemoveLocks(ctx, key, removed); err != nil {
			return NewBackendError(key, "remove locks", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(removed) > 0 {
		m.waiters.broadcast(key)
		m.metrics.ObserveLockRelease(reason, removed)
		logger.DebugCtx(ctx, "Released locks", "object", key, "count", len(removed), "reason", reason)
	}
	return len(removed), nil
}

// CancelWaiters fails every blocked Lock call of ownerID with
// ErrWaitCancelled and forgets the owner in the wait-for graph.
func (m *Manager) CancelWaiters(ownerID string) int {
	n := m.waiters.cancelOwner(ownerID)
	m.graph.RemoveOwner(ownerID)
	if n > 0 {
		logger.Debug("Cancelled blocked lock waits", "owner", ownerID, "count", n)
	}
	return n
}

// BlockedCount returns the number of Lock calls currently waiting.
func (m *Manager) BlockedCount() int {
	return m.waiters.count()
}

// ListLocks returns the locks held on objectID.
func (m *Manager) ListLocks(ctx context.Context, objectID []byte) ([]*Lock, error) {
	key := ObjectKey(objectID)
	locks, err := m.backend.GetLocks(ctx, key)
	if err != nil {
		return nil, NewBackendError(key, "get locks", err)
	}
	return locks, nil
}

// ListObjects returns the object keys that currently have locks.
func (m *Manager) ListObjects(ctx context.Context) ([]string, error) {
	keys, err := m.backend.Objects(ctx)
	if err != nil {
		return nil, NewBackendError("", "list objects", err)
	}
	return keys, nil
}

// Close cancels every blocked wait and closes the backend.
func (m *Manager) Close() error {
	m.waiters.mu.Lock()
	for _, set := range m.waiters.byKey {
		for w := range set {
			w.cancel()
		}
	}
	m.waiters.mu.Unlock()
	return m.backend.Close()
}

// withObject runs fn with the object mutex of key held. fn must use the
// context it is given for backend calls.
func (m *Manager) withObject(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	mu := m.backend.Mutex(key)
	if err := mu.Lock(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return NewBackendError(key, "acquire object mutex", err)
	}
	defer func() {
		if err := mu.Unlock(); err != nil {
			logger.Warn("Failed to release object mutex", "object", key, "error", err)
		}
	}()
	if sm, ok := mu.(SessionMutex); ok {
		ctx = sm.Bind(ctx)
	}
	return fn(ctx)
}

// conflictsWith returns the locks in existing that conflict with req.
func conflictsWith(existing []*Lock, req *Lock) []*Lock {
	var out []*Lock
	for _, l := range existing {
		if l.ConflictsWith(req) {
			out = append(out, l)
		}
	}
	return out
}

func ownersOf(locks []*Lock) []string {
	seen := make(map[string]struct{}, len(locks))
	owners := make([]string, 0, len(locks))
	for _, l := range locks {
		if _, ok := seen[l.Owner.OwnerID]; ok {
			continue
		}
		seen[l.Owner.OwnerID] = struct{}{}
		owners = append(owners, l.Owner.OwnerID)
	}
	return owners
}

func acquireStatus(err error) string {
	switch CodeOf(err) {
	case ErrLocked:
		return StatusDenied
	case ErrDeadlock:
		return StatusDeadlock
	case ErrWaitCancelled:
		return StatusCancelled
	case ErrLimitExceeded:
		return StatusLimit
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return StatusCancelled
	}
	return StatusError
}
