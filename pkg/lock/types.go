// Package lock implements byte-range lock management for NFSv4 state.
//
// The Manager owns the conflict-detection algorithm and blocking waits. It
// reaches lock storage only through the Backend capability interface, so the
// same algorithm runs against the in-process MemoryBackend, the persistent
// badger backend or the cluster-shared postgres backend.
package lock

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LockType represents the type of lock (shared or exclusive).
type LockType int

const (
	// LockTypeShared is a shared (read) lock - multiple readers allowed.
	LockTypeShared LockType = iota

	// LockTypeExclusive is an exclusive (write) lock - no other locks allowed.
	LockTypeExclusive
)

// String returns a human-readable name for the lock type.
func (lt LockType) String() string {
	switch lt {
	case LockTypeShared:
		return "shared"
	case LockTypeExclusive:
		return "exclusive"
	default:
		return "unknown"
	}
}

// ParseLockType converts "shared"/"exclusive" back into a LockType.
func ParseLockType(s string) (LockType, error) {
	switch s {
	case "shared":
		return LockTypeShared, nil
	case "exclusive":
		return LockTypeExclusive, nil
	default:
		return LockTypeShared, fmt.Errorf("unknown lock type %q", s)
	}
}

// Owner identifies the holder of a lock.
//
// OwnerID is opaque to the manager and only compared for equality. The NFSv4
// state layer encodes it as "nfs4:{clientid}:{owner-hex}", so two lock-owners
// of the same client are distinct owners.
type Owner struct {
	// OwnerID is the lock-owner identity. Locks with equal OwnerID never conflict.
	OwnerID string `json:"owner_id"`

	// ClientID is the owning client, used for bulk cleanup and diagnostics.
	ClientID string `json:"client_id"`
}

// Lock is one granted (or requested) byte-range lock on an object.
//
// Ranges are discrete entries; overlapping locks of one owner are kept side
// by side and never coalesced.
type Lock struct {
	// ID is a unique identifier for this lock (UUID).
	ID string `json:"id"`

	// Owner identifies who holds the lock.
	Owner Owner `json:"owner"`

	// Offset is the starting byte offset of the lock.
	Offset uint64 `json:"offset"`

	// Length is the number of bytes locked.
	// 0 means "to end of file", as does any length that runs past 2^64-1.
	Length uint64 `json:"length"`

	// Type indicates whether this is a shared or exclusive lock.
	Type LockType `json:"type"`

	// AcquiredAt is when the lock was granted.
	AcquiredAt time.Time `json:"acquired_at"`

	// Reclaim marks a lock re-established during the grace period.
	Reclaim bool `json:"reclaim,omitempty"`
}

// NewLock creates a lock request with a generated UUID.
func NewLock(owner Owner, offset, length uint64, lockType LockType) *Lock {
	return &Lock{
		ID:     uuid.New().String(),
		Owner:  owner,
		Offset: offset,
		Length: length,
		Type:   lockType,
	}
}

// IsExclusive returns true if this is an exclusive (write) lock.
func (l *Lock) IsExclusive() bool {
	return l.Type == LockTypeExclusive
}

// End returns the exclusive end offset, saturating at max uint64 for
// to-EOF ranges.
func (l *Lock) End() uint64 {
	return rangeEnd(l.Offset, l.Length)
}

// Overlaps returns true if this lock overlaps with the specified range.
func (l *Lock) Overlaps(offset, length uint64) bool {
	return RangesOverlap(l.Offset, l.Length, offset, length)
}

// SameRange reports whether l covers exactly the given owner and range.
func (l *Lock) SameRange(ownerID string, offset, length uint64) bool {
	return l.Owner.OwnerID == ownerID && l.Offset == offset && rangeEnd(l.Offset, l.Length) == rangeEnd(offset, length)
}

// ConflictsWith reports whether l and other cannot coexist: their ranges
// overlap, their owners differ and at least one of them is exclusive.
// The same owner never conflicts with itself.
func (l *Lock) ConflictsWith(other *Lock) bool {
	if l.Owner.OwnerID == other.Owner.OwnerID {
		return false
	}
	if !RangesOverlap(l.Offset, l.Length, other.Offset, other.Length) {
		return false
	}
	return l.Type == LockTypeExclusive || other.Type == LockTypeExclusive
}

// Clone creates a copy of the lock.
func (l *Lock) Clone() *Lock {
	c := *l
	return &c
}

// String renders the lock for logs.
func (l *Lock) String() string {
	return fmt.Sprintf("%s[%d,+%d) %s", l.Owner.OwnerID, l.Offset, l.Length, l.Type)
}

// RangesOverlap returns true if two byte ranges overlap.
// Length of 0 means "to end of file" (unbounded).
func RangesOverlap(offset1, length1, offset2, length2 uint64) bool {
	end1 := rangeEnd(offset1, length1)
	end2 := rangeEnd(offset2, length2)
	return end1 > offset2 && end2 > offset1
}

// rangeEnd returns the exclusive end of a byte range.
// For unbounded ranges (length=0 or offset+length overflowing), returns max
// uint64 to represent infinity.
func rangeEnd(offset, length uint64) uint64 {
	if length == 0 || length > ^uint64(0)-offset {
		return ^uint64(0)
	}
	return offset + length
}

// Conflict describes the lock that blocked a request.
type Conflict struct {
	// Lock is the conflicting lock.
	Lock *Lock
}

// ObjectKey encodes an opaque object identifier (a file handle) as the
// string key used by every backend.
func ObjectKey(objectID []byte) string {
	return hex.EncodeToString(objectID)
}

// ParseObjectKey decodes a key produced by ObjectKey.
func ParseObjectKey(key string) ([]byte, error) {
	b, err := hex.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("invalid object key %q: %w", key, err)
	}
	return b, nil
}
