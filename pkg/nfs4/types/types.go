package types

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// ============================================================================
// Stateid4 (State Identifier)
// ============================================================================

// Stateid4 represents an NFSv4 state identifier (stateid4).
// Per RFC 7530 Section 9.1.4:
//
//	struct stateid4 {
//	    uint32_t seqid;
//	    opaque   other[NFS4_OTHER_SIZE];
//	}
//
// Two stateids refer to the same state object when their Other fields are
// equal. Seqid is a version counter and only takes part in staleness checks,
// so never compare Stateid4 values with ==; use Matches and CompareSeqid.
type Stateid4 struct {
	Seqid uint32
	Other [NFS4_OTHER_SIZE]byte
}

// Matches reports whether s and other identify the same state object.
// The seqid is ignored.
func (s Stateid4) Matches(other Stateid4) bool {
	return s.Other == other.Other
}

// CompareSeqid compares the seqid of s against current using serial number
// arithmetic, so a counter that wrapped past 0xFFFFFFFF still orders after
// its predecessor. Returns -1 if s is older, 0 if equal, 1 if s is newer.
func (s Stateid4) CompareSeqid(current uint32) int {
	diff := int32(s.Seqid - current)
	switch {
	case diff < 0:
		return -1
	case diff > 0:
		return 1
	default:
		return 0
	}
}

// IsSpecialStateid returns true if the stateid is a special stateid.
// Special stateids per RFC 7530 Section 9.1.4.3:
//   - Anonymous: seqid=0, other=all-zeros (standard access check, no lock state)
//   - READ bypass: seqid=0xFFFFFFFF, other=all-ones (bypass locks for read only)
func (s Stateid4) IsSpecialStateid() bool {
	return s.isAnonymous() || s.isReadBypass()
}

func (s Stateid4) isAnonymous() bool {
	if s.Seqid != 0 {
		return false
	}
	for _, b := range s.Other {
		if b != 0 {
			return false
		}
	}
	return true
}

func (s Stateid4) isReadBypass() bool {
	if s.Seqid != 0xFFFFFFFF {
		return false
	}
	for _, b := range s.Other {
		if b != 0xFF {
			return false
		}
	}
	return true
}

// OtherHex returns the hex encoding of the Other field.
func (s Stateid4) OtherHex() string {
	return hex.EncodeToString(s.Other[:])
}

// String renders the stateid as "seqid:other" for logs.
func (s Stateid4) String() string {
	return fmt.Sprintf("%d:%s", s.Seqid, s.OtherHex())
}

// ============================================================================
// Session and verifier identifiers
// ============================================================================

// SessionId4 is the 16-byte NFSv4.1 session identifier.
type SessionId4 [NFS4_SESSIONID_SIZE]byte

// ClientID returns the client identifier embedded in the first eight bytes.
func (s SessionId4) ClientID() uint64 {
	return binary.BigEndian.Uint64(s[:8])
}

// String returns the hex encoding of the session id.
func (s SessionId4) String() string {
	return hex.EncodeToString(s[:])
}

// ParseSessionID decodes a hex-encoded session id.
func ParseSessionID(s string) (SessionId4, error) {
	var id SessionId4
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid session id: %w", err)
	}
	if len(b) != NFS4_SESSIONID_SIZE {
		return id, fmt.Errorf("invalid session id length %d, want %d", len(b), NFS4_SESSIONID_SIZE)
	}
	copy(id[:], b)
	return id, nil
}

// Verifier4 is the opaque 8-byte boot verifier a client sends to distinguish
// its incarnations.
type Verifier4 [NFS4_VERIFIER_SIZE]byte

// String returns the hex encoding of the verifier.
func (v Verifier4) String() string {
	return hex.EncodeToString(v[:])
}
