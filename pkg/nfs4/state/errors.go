package state

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/marmos91/nfs4state/pkg/lock"
	"github.com/marmos91/nfs4state/pkg/nfs4/types"
)

// NFS4StateError is an error type that carries an NFS4 status code.
// Protocol handlers map it to the wire status; errors.Is matches on Status,
// so errors.Is(err, ErrStaleClientID) holds for every STALE_CLIENTID error.
//
// A sentinel that refines a status shared with another one (ErrTooManySessions
// within NFS4ERR_RESOURCE) only matches errors derived from it.
type NFS4StateError struct {
	Status  uint32
	Message string

	// Denied describes the conflicting lock for NFS4ERR_DENIED.
	Denied *LockDenied

	reason string
}

func (e *NFS4StateError) Error() string {
	return e.Message
}

// Is reports whether target is an NFS4StateError with the same status and,
// when target refines its status, the same refinement.
func (e *NFS4StateError) Is(target error) bool {
	t, ok := target.(*NFS4StateError)
	return ok && t.Status == e.Status && (t.reason == "" || t.reason == e.reason)
}

// StatusOf returns the NFS4 status carried by err: NFS4_OK for nil,
// NFS4ERR_SERVERFAULT for errors that are not state errors.
func StatusOf(err error) uint32 {
	if err == nil {
		return types.NFS4_OK
	}
	var se *NFS4StateError
	if errors.As(err, &se) {
		return se.Status
	}
	return types.NFS4ERR_SERVERFAULT
}

// Common state errors used throughout the state package.
var (
	ErrStaleClientID     = &NFS4StateError{Status: types.NFS4ERR_STALE_CLIENTID, Message: "stale client id"}
	ErrBadStateid        = &NFS4StateError{Status: types.NFS4ERR_BAD_STATEID, Message: "bad stateid"}
	ErrOldStateid        = &NFS4StateError{Status: types.NFS4ERR_OLD_STATEID, Message: "old stateid"}
	ErrStaleStateid      = &NFS4StateError{Status: types.NFS4ERR_STALE_STATEID, Message: "stale stateid"}
	ErrDeadSession       = &NFS4StateError{Status: types.NFS4ERR_DEADSESSION, Message: "session from a previous server incarnation"}
	ErrBadSession        = &NFS4StateError{Status: types.NFS4ERR_BADSESSION, Message: "session not found"}
	ErrSeqMisordered     = &NFS4StateError{Status: types.NFS4ERR_SEQ_MISORDERED, Message: "sequence ID misordered"}
	ErrExpired           = &NFS4StateError{Status: types.NFS4ERR_EXPIRED, Message: "lease expired"}
	ErrDenied            = &NFS4StateError{Status: types.NFS4ERR_DENIED, Message: "lock denied"}
	ErrLockWaitCancelled = &NFS4StateError{Status: types.NFS4ERR_ADMIN_REVOKED, Message: "blocked lock request cancelled"}
	ErrLockRange         = &NFS4StateError{Status: types.NFS4ERR_LOCK_RANGE, Message: "no lock matches the range"}
	ErrDelay             = &NFS4StateError{Status: types.NFS4ERR_DELAY, Message: "session has requests in flight"}
	ErrTooManySessions   = &NFS4StateError{Status: types.NFS4ERR_RESOURCE, Message: "too many sessions for client", reason: "too_many_sessions"}
	ErrResource          = &NFS4StateError{Status: types.NFS4ERR_RESOURCE, Message: "server resource limit reached"}
	ErrClientInUse       = &NFS4StateError{Status: types.NFS4ERR_CLID_INUSE, Message: "client owner in use by another client"}
	ErrBadSlot           = &NFS4StateError{Status: types.NFS4ERR_BADSLOT, Message: "slot ID out of range"}
	ErrRetryUncachedRep  = &NFS4StateError{Status: types.NFS4ERR_RETRY_UNCACHED_REP, Message: "retry of uncached reply"}
	ErrDeadlock          = &NFS4StateError{Status: types.NFS4ERR_DEADLOCK, Message: "lock would deadlock"}
	ErrGrace             = &NFS4StateError{Status: types.NFS4ERR_GRACE, Message: "server in grace period"}
	ErrNoGrace           = &NFS4StateError{Status: types.NFS4ERR_NO_GRACE, Message: "no grace period available for reclaim"}
	ErrCompleteAlready   = &NFS4StateError{Status: types.NFS4ERR_COMPLETE_ALREADY, Message: "reclaim already completed for this client"}
	ErrInval             = &NFS4StateError{Status: types.NFS4ERR_INVAL, Message: "invalid argument"}
	ErrServerFault       = &NFS4StateError{Status: types.NFS4ERR_SERVERFAULT, Message: "server fault"}
)

func stateErr(base *NFS4StateError, format string, args ...any) *NFS4StateError {
	return &NFS4StateError{Status: base.Status, Message: fmt.Sprintf(format, args...), reason: base.reason}
}

// LockDenied describes the lock that blocked a LOCK or LOCKT request
// (LOCK4denied on the wire).
type LockDenied struct {
	Offset   uint64
	Length   uint64
	LockType uint32 // READ_LT or WRITE_LT
	ClientID uint64
	Owner    []byte
}

// lockOwnerKey builds the opaque owner id handed to the lock manager.
func lockOwnerKey(clientID uint64, owner []byte) string {
	return fmt.Sprintf("nfs4:%d:%x", clientID, owner)
}

// parseLockOwnerKey reverses lockOwnerKey. ok is false for owners that were
// not created by this package.
func parseLockOwnerKey(key string) (clientID uint64, owner []byte, ok bool) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 || parts[0] != "nfs4" {
		return 0, nil, false
	}
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, nil, false
	}
	owner, err = hex.DecodeString(parts[2])
	if err != nil {
		return 0, nil, false
	}
	return id, owner, true
}

func deniedFromConflict(c *lock.Conflict) *LockDenied {
	if c == nil || c.Lock == nil {
		return nil
	}
	d := &LockDenied{
		Offset:   c.Lock.Offset,
		Length:   c.Lock.Length,
		LockType: types.READ_LT,
	}
	if d.Length == 0 {
		d.Length = types.NFS4_UINT64_MAX
	}
	if c.Lock.Type == lock.LockTypeExclusive {
		d.LockType = types.WRITE_LT
	}
	if id, owner, ok := parseLockOwnerKey(c.Lock.Owner.OwnerID); ok {
		d.ClientID = id
		d.Owner = owner
	} else {
		d.Owner = []byte(c.Lock.Owner.OwnerID)
	}
	return d
}

// mapLockError translates lock manager failures into NFS4 state errors.
// Context errors pass through untouched.
func mapLockError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch lock.CodeOf(err) {
	case lock.ErrLocked:
		return &NFS4StateError{
			Status:  types.NFS4ERR_DENIED,
			Message: "lock denied: conflicting lock held",
			Denied:  deniedFromConflict(lock.ConflictOf(err)),
		}
	case lock.ErrLockNotFound:
		return stateErr(ErrLockRange, "%s", err.Error())
	case lock.ErrWaitCancelled:
		return stateErr(ErrLockWaitCancelled, "%s", err.Error())
	case lock.ErrDeadlock:
		return stateErr(ErrDeadlock, "%s", err.Error())
	case lock.ErrLimitExceeded:
		return stateErr(ErrResource, "%s", err.Error())
	}
	return fmt.Errorf("%w: %w", ErrServerFault, err)
}
