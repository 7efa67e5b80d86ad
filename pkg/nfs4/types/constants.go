// Package types holds the NFSv4 wire-level constants and value types shared by
// the state engine: status codes, lock types and the fixed-size identifiers
// (stateid, session id, verifier) exchanged with clients.
//
// The package has no internal dependencies so every other package may import it.
package types

// ============================================================================
// NFSv4 Error Codes (nfsstat4)
// ============================================================================
//
// Per RFC 7530 Section 13 and RFC 8881 Section 15. Only the codes produced by
// the state engine are listed.

const (
	NFS4_OK = 0 // Success

	NFS4ERR_INVAL              = 22    // Invalid argument (EINVAL)
	NFS4ERR_SERVERFAULT        = 10006 // Internal server error
	NFS4ERR_DELAY              = 10008 // Retry later
	NFS4ERR_DENIED             = 10010 // Lock denied
	NFS4ERR_EXPIRED            = 10011 // Lease/state expired
	NFS4ERR_GRACE              = 10013 // Grace period active
	NFS4ERR_CLID_INUSE         = 10017 // Client ID in use
	NFS4ERR_RESOURCE           = 10018 // Server resource limit
	NFS4ERR_STALE_CLIENTID     = 10022 // Client ID is stale
	NFS4ERR_STALE_STATEID      = 10023 // State ID is stale
	NFS4ERR_OLD_STATEID        = 10024 // State ID is outdated
	NFS4ERR_BAD_STATEID        = 10025 // Invalid state ID
	NFS4ERR_BAD_SEQID          = 10026 // Sequence ID mismatch
	NFS4ERR_LOCK_RANGE         = 10028 // Lock range not supported
	NFS4ERR_NO_GRACE           = 10033 // No grace period available
	NFS4ERR_BAD_RANGE          = 10042 // Invalid byte range
	NFS4ERR_LOCK_NOTSUPP       = 10043 // Lock type not supported
	NFS4ERR_DEADLOCK           = 10045 // Lock deadlock detected
	NFS4ERR_ADMIN_REVOKED      = 10047 // Admin revoked access
	NFS4ERR_BADSESSION         = 10052 // Invalid session ID
	NFS4ERR_BADSLOT            = 10053 // Invalid slot ID
	NFS4ERR_SEQ_MISORDERED     = 10063 // Sequence misordered
	NFS4ERR_RETRY_UNCACHED_REP = 10068 // Retry uncached reply
	NFS4ERR_DEADSESSION        = 10078 // Dead session
	NFS4ERR_COMPLETE_ALREADY   = 10083 // RECLAIM_COMPLETE already done
)

// statusNames maps the status codes above to their RFC names for logging.
var statusNames = map[uint32]string{
	NFS4_OK:                    "NFS4_OK",
	NFS4ERR_INVAL:              "NFS4ERR_INVAL",
	NFS4ERR_SERVERFAULT:        "NFS4ERR_SERVERFAULT",
	NFS4ERR_DELAY:              "NFS4ERR_DELAY",
	NFS4ERR_DENIED:             "NFS4ERR_DENIED",
	NFS4ERR_EXPIRED:            "NFS4ERR_EXPIRED",
	NFS4ERR_GRACE:              "NFS4ERR_GRACE",
	NFS4ERR_CLID_INUSE:         "NFS4ERR_CLID_INUSE",
	NFS4ERR_RESOURCE:           "NFS4ERR_RESOURCE",
	NFS4ERR_STALE_CLIENTID:     "NFS4ERR_STALE_CLIENTID",
	NFS4ERR_STALE_STATEID:      "NFS4ERR_STALE_STATEID",
	NFS4ERR_OLD_STATEID:        "NFS4ERR_OLD_STATEID",
	NFS4ERR_BAD_STATEID:        "NFS4ERR_BAD_STATEID",
	NFS4ERR_BAD_SEQID:          "NFS4ERR_BAD_SEQID",
	NFS4ERR_LOCK_RANGE:         "NFS4ERR_LOCK_RANGE",
	NFS4ERR_NO_GRACE:           "NFS4ERR_NO_GRACE",
	NFS4ERR_BAD_RANGE:          "NFS4ERR_BAD_RANGE",
	NFS4ERR_LOCK_NOTSUPP:       "NFS4ERR_LOCK_NOTSUPP",
	NFS4ERR_DEADLOCK:           "NFS4ERR_DEADLOCK",
	NFS4ERR_ADMIN_REVOKED:      "NFS4ERR_ADMIN_REVOKED",
	NFS4ERR_BADSESSION:         "NFS4ERR_BADSESSION",
	NFS4ERR_BADSLOT:            "NFS4ERR_BADSLOT",
	NFS4ERR_SEQ_MISORDERED:     "NFS4ERR_SEQ_MISORDERED",
	NFS4ERR_RETRY_UNCACHED_REP: "NFS4ERR_RETRY_UNCACHED_REP",
	NFS4ERR_DEADSESSION:        "NFS4ERR_DEADSESSION",
	NFS4ERR_COMPLETE_ALREADY:   "NFS4ERR_COMPLETE_ALREADY",
}

// StatusName returns the RFC name of an nfsstat4 value, or "NFS4ERR_UNKNOWN".
func StatusName(status uint32) string {
	if name, ok := statusNames[status]; ok {
		return name
	}
	return "NFS4ERR_UNKNOWN"
}

// ============================================================================
// Lock Type Constants (nfs_lock_type4) per RFC 7530/7531
// ============================================================================
//
// Used by LOCK, LOCKT, and LOCKU. The "W" variants ask the server to block
// until the lock can be granted.

const (
	READ_LT   = 1 // Shared (read) lock
	WRITE_LT  = 2 // Exclusive (write) lock
	READW_LT  = 3 // Blocking read lock
	WRITEW_LT = 4 // Blocking write lock
)

// ============================================================================
// Identifier sizes
// ============================================================================

const (
	// NFS4_OTHER_SIZE is the size of the "other" field in stateid4 (12 bytes).
	NFS4_OTHER_SIZE = 12

	// NFS4_SESSIONID_SIZE is the size of a session identifier (16 bytes).
	// Per RFC 8881 Section 2.10.3.
	NFS4_SESSIONID_SIZE = 16

	// NFS4_VERIFIER_SIZE is the size of a boot verifier (8 bytes).
	NFS4_VERIFIER_SIZE = 8
)

// NFS4_UINT64_MAX is the lock length meaning "to end of file".
const NFS4_UINT64_MAX = ^uint64(0)
