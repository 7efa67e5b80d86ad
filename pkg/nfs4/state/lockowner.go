package state

import (
	"context"
	"sort"

	"github.com/marmos91/nfs4state/internal/logger"
	"github.com/marmos91/nfs4state/internal/telemetry"
	"github.com/marmos91/nfs4state/pkg/lock"
	"github.com/marmos91/nfs4state/pkg/nfs4/types"
)

// LockArgs carries a decoded LOCK request.
type LockArgs struct {
	// StateID names the lock-owner state (see CreateLockOwnerState).
	StateID types.Stateid4

	// ObjectID is the opaque id of the locked object (file handle).
	ObjectID []byte

	// LockType is one of READ_LT, WRITE_LT, READW_LT, WRITEW_LT.
	LockType uint32

	Offset uint64

	// Length is the range length; NFS4_UINT64_MAX means to end of file.
	Length uint64

	// Reclaim marks a lock reclaimed after a server restart.
	Reclaim bool
}

// convertLockType maps an nfs_lock_type4 to a lock type and a blocking flag.
func convertLockType(lt uint32) (lock.LockType, bool, error) {
	switch lt {
	case types.READ_LT:
		return lock.LockTypeShared, false, nil
	case types.WRITE_LT:
		return lock.LockTypeExclusive, false, nil
	case types.READW_LT:
		return lock.LockTypeShared, true, nil
	case types.WRITEW_LT:
		return lock.LockTypeExclusive, true, nil
	}
	return 0, false, stateErr(ErrInval, "invalid lock type %d", lt)
}

// convertLength maps a wire length to the lock manager's: all ones means
// to end of file (0 for the manager), a zero length is invalid.
func convertLength(length uint64) (uint64, error) {
	switch length {
	case 0:
		return 0, stateErr(ErrInval, "zero-length lock range")
	case types.NFS4_UINT64_MAX:
		return 0, nil
	}
	return length, nil
}

// Lock acquires a byte-range lock for the lock-owner named by args.StateID
// and returns its new stateid. READW_LT/WRITEW_LT requests block until the
// range is free, the owner's waits are cancelled, the lock manager's
// blocking timeout elapses or ctx is done.
func (h *StateHandler) Lock(ctx context.Context, args LockArgs) (types.Stateid4, error) {
	ctx, span := telemetry.StartStateSpan(ctx, "lock",
		telemetry.Stateid(args.StateID.String()),
		telemetry.LockOffset(args.Offset),
		telemetry.LockLength(args.Length))
	defer span.End()

	st, err := h.lockOwnerState(args.StateID)
	if err != nil {
		return types.Stateid4{}, err
	}
	lockType, blocking, err := convertLockType(args.LockType)
	if err != nil {
		return types.Stateid4{}, err
	}
	length, err := convertLength(args.Length)
	if err != nil {
		return types.Stateid4{}, err
	}
	if err := h.grace.CheckLock(args.Reclaim); err != nil {
		return types.Stateid4{}, err
	}

	c := st.client
	req := lock.NewLock(lock.Owner{OwnerID: st.ownerKey, ClientID: c.OwnerKey()}, args.Offset, length, lockType)
	req.Reclaim = args.Reclaim

	// Record the object before the lock exists: a concurrent release either
	// sees it and drops the lock, or is seen by the checks below.
	st.addObject(args.ObjectID)
	if st.IsReleased() {
		return types.Stateid4{}, stateErr(ErrBadStateid, "stateid %s was destroyed", args.StateID)
	}

	lockCtx, cancel := st.lockContext(ctx)
	_, err = h.locks.Lock(lockCtx, args.ObjectID, req, blocking)
	cancel()
	if err != nil {
		telemetry.RecordError(ctx, err)
		if ctx.Err() == nil && st.IsReleased() {
			return types.Stateid4{}, stateErr(ErrLockWaitCancelled, "lock-owner %s was released while waiting", st.ownerKey)
		}
		return types.Stateid4{}, mapLockError(err)
	}

	if c.IsDisposed() {
		if _, err := h.locks.RemoveAllForOwner(ctx, args.ObjectID, st.ownerKey); err != nil {
			logger.WarnCtx(ctx, "Failed to release lock of disposed client",
				logger.ClientID(c.ID), logger.Err(err))
		}
		return types.Stateid4{}, stateErr(ErrExpired, "client %#x was disposed while locking", c.ID)
	}
	if st.IsReleased() {
		// DestroyState ran while the lock was being granted; its release may
		// have missed the new range.
		if err := h.locks.Unlock(ctx, args.ObjectID, st.ownerKey, args.Offset, length); err != nil && lock.CodeOf(err) != lock.ErrLockNotFound {
			logger.WarnCtx(ctx, "Failed to release lock of destroyed state",
				logger.LockOwner(st.ownerKey), logger.Err(err))
		}
		return types.Stateid4{}, stateErr(ErrBadStateid, "stateid %s was destroyed while locking", args.StateID)
	}

	id := st.bump()
	c.touch(h.now())

	if args.Reclaim {
		h.metrics.reclaimGranted()
		h.grace.ClientReclaimed(c.OwnerKey())
	}

	logger.DebugCtx(ctx, "Lock granted",
		logger.Stateid(id.String()),
		logger.Object(lock.ObjectKey(args.ObjectID)),
		logger.LockType(lockType.String()),
		logger.LockOffset(args.Offset),
		logger.LockLength(length))
	return id, nil
}

// TestLock checks whether owner of client clientID could lock the range
// (LOCKT). It returns the conflicting lock, or nil when the range is free.
// Nothing is mutated apart from renewing the client's lease.
func (h *StateHandler) TestLock(ctx context.Context, clientID uint64, owner, objectID []byte, lockType uint32, offset, length uint64) (*LockDenied, error) {
	ctx, span := telemetry.StartStateSpan(ctx, "lockt",
		telemetry.ClientID(clientID),
		telemetry.LockOffset(offset),
		telemetry.LockLength(length))
	defer span.End()

	c, err := h.LookupByID(clientID)
	if err != nil {
		return nil, err
	}
	lt, _, err := convertLockType(lockType)
	if err != nil {
		return nil, err
	}
	n, err := convertLength(length)
	if err != nil {
		return nil, err
	}
	if h.grace.InGrace() {
		return nil, ErrGrace
	}

	candidate := lock.NewLock(lock.Owner{OwnerID: lockOwnerKey(c.ID, owner), ClientID: c.OwnerKey()}, offset, n, lt)
	conflict, err := h.locks.Test(ctx, objectID, candidate)
	if err != nil {
		return nil, mapLockError(err)
	}

	c.touch(h.now())
	if conflict == nil {
		return nil, nil
	}
	return deniedFromConflict(conflict), nil
}

// Unlock releases the exact range (LOCKU) and returns the lock-owner's new
// stateid. A range that matches no lock fails with ErrLockRange.
func (h *StateHandler) Unlock(ctx context.Context, stateID types.Stateid4, objectID []byte, offset, length uint64) (types.Stateid4, error) {
	ctx, span := telemetry.StartStateSpan(ctx, "locku",
		telemetry.Stateid(stateID.String()),
		telemetry.LockOffset(offset),
		telemetry.LockLength(length))
	defer span.End()

	st, err := h.lockOwnerState(stateID)
	if err != nil {
		return types.Stateid4{}, err
	}
	n, err := convertLength(length)
	if err != nil {
		return types.Stateid4{}, err
	}

	if err := h.locks.Unlock(ctx, objectID, st.ownerKey, offset, n); err != nil {
		return types.Stateid4{}, mapLockError(err)
	}

	id := st.bump()
	st.client.touch(h.now())
	return id, nil
}

// lockOwnerState validates a stateid that must name a lock state.
func (h *StateHandler) lockOwnerState(id types.Stateid4) (*StateObject, error) {
	st, err := h.ValidateSeq(id)
	if err != nil {
		return nil, err
	}
	if st.Kind != KindLock {
		return nil, stateErr(ErrBadStateid, "stateid %s is a %s stateid, not a lock stateid", id, st.Kind)
	}
	return st, nil
}

// ============================================================================
// Restart recovery
// ============================================================================

// RecoverLocks prepares the lock table after a restart and starts the grace
// period.
//
// With a persistent single-node backend the locks of the previous
// incarnation are still stored but their owners' state is gone, so they are
// purged and their client owners become the clients expected to reclaim.
// A distributed backend is shared with instances that are still running and
// is left untouched; no grace period is started for it.
//
// Returns the number of purged locks.
func (h *StateHandler) RecoverLocks(ctx context.Context) (int, error) {
	if h.locks.Backend().Distributed() {
		logger.InfoCtx(ctx, "Distributed lock backend: skipping restart recovery")
		return 0, nil
	}

	objects, err := h.locks.ListObjects(ctx)
	if err != nil {
		return 0, err
	}

	owners := make(map[string]struct{})
	purged := 0
	for _, key := range objects {
		objectID, err := lock.ParseObjectKey(key)
		if err != nil {
			logger.WarnCtx(ctx, "Skipping malformed object key", logger.Object(key), logger.Err(err))
			continue
		}
		locks, err := h.locks.ListLocks(ctx, objectID)
		if err != nil {
			return purged, err
		}
		for _, l := range locks {
			if l.Owner.ClientID != "" {
				owners[l.Owner.ClientID] = struct{}{}
			}
		}
		n, err := h.locks.RemoveAllForObject(ctx, objectID)
		if err != nil {
			return purged, err
		}
		purged += n
	}

	expected := make([]string, 0, len(owners))
	for owner := range owners {
		expected = append(expected, owner)
	}
	sort.Strings(expected)

	h.grace.Start(expected)
	h.metrics.setGrace(h.grace.InGrace())

	logger.InfoCtx(ctx, "Lock recovery complete",
		"purged_locks", purged,
		"objects", len(objects),
		"expected_clients", len(expected))
	return purged, nil
}

// ReclaimComplete records that client id finished reclaiming
// (RECLAIM_COMPLETE).
func (h *StateHandler) ReclaimComplete(id uint64) error {
	c, err := h.LookupByID(id)
	if err != nil {
		return err
	}
	return h.grace.ReclaimComplete(c.OwnerKey())
}
