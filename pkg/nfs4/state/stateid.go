package state

import (
	"encoding/binary"

	"github.com/marmos91/nfs4state/pkg/nfs4/types"
)

// StateKind tells what a state object stands for. The kind is also the tag
// in byte 0 of the stateid "other" field.
type StateKind byte

const (
	// KindOpen identifies an open stateid (created by OPEN, removed by CLOSE).
	KindOpen StateKind = 0x01

	// KindLock identifies a lock-owner stateid (created by LOCK).
	KindLock StateKind = 0x02

	// KindDelegation identifies a delegation stateid.
	KindDelegation StateKind = 0x03
)

// String returns the kind name.
func (k StateKind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindLock:
		return "lock"
	case KindDelegation:
		return "delegation"
	default:
		return "unknown"
	}
}

// generateStateidOther creates a unique 12-byte "other" field.
//
// Layout:
//   - Byte 0:    state kind tag
//   - Bytes 1-3: boot epoch fragment (low 24 bits of the boot epoch)
//   - Bytes 4-11: global counter (8 bytes, big-endian)
//
// The epoch fragment lets a lookup miss be classified as STALE (previous
// server incarnation) rather than BAD without keeping old state around.
func (h *StateHandler) generateStateidOther(kind StateKind) [types.NFS4_OTHER_SIZE]byte {
	var other [types.NFS4_OTHER_SIZE]byte

	other[0] = byte(kind)
	other[1] = byte(h.bootEpoch >> 16)
	other[2] = byte(h.bootEpoch >> 8)
	other[3] = byte(h.bootEpoch)
	binary.BigEndian.PutUint64(other[4:], h.nextStateSeq.Add(1))

	return other
}

// isCurrentEpoch checks whether the epoch fragment of other matches this
// server incarnation.
func (h *StateHandler) isCurrentEpoch(other [types.NFS4_OTHER_SIZE]byte) bool {
	return other[1] == byte(h.bootEpoch>>16) &&
		other[2] == byte(h.bootEpoch>>8) &&
		other[3] == byte(h.bootEpoch)
}

// generateClientID combines the boot epoch (high 32 bits) with a monotonic
// counter (low 32 bits), so ids never repeat within a process lifetime and
// ids of an earlier incarnation are recognizable.
func (h *StateHandler) generateClientID() uint64 {
	seq := h.nextClientSeq.Add(1)
	return (uint64(h.bootEpoch) << 32) | uint64(seq)
}

// issuedHere reports whether id was handed out by this server incarnation.
func (h *StateHandler) issuedHere(id uint64) bool {
	seq := uint32(id)
	return uint32(id>>32) == h.bootEpoch && seq != 0 && seq <= h.nextClientSeq.Load()
}
