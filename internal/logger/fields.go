package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that client,
// session and lock events can be correlated in log aggregation.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyRequestID = "request_id" // Admin API request id
	KeyTraceID   = "trace_id"   // OpenTelemetry trace ID for request correlation
	KeySpanID    = "span_id"    // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Operation
	// ========================================================================
	KeyOperation  = "operation"   // Operation name: SEQUENCE, LOCK, LOCKU, ...
	KeyStatus     = "status"      // nfsstat4 status name
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyReason     = "reason"      // Why something was disposed or released
	KeyCount      = "count"       // Number of affected entries

	// ========================================================================
	// Client & Session
	// ========================================================================
	KeyClientID    = "client_id"    // Server-assigned client id (hex)
	KeyClientOwner = "client_owner" // Client-supplied owner (hex)
	KeyPeerAddr    = "peer_addr"    // Remote network address
	KeySessionID   = "session_id"   // Session id (hex)
	KeySlot        = "slot"         // Slot index
	KeySeqID       = "seqid"        // Slot sequence id
	KeyStateid     = "stateid"      // Stateid as seqid:other
	KeyStateKind   = "state_kind"   // open, lock, delegation

	// ========================================================================
	// Locking
	// ========================================================================
	KeyObject     = "object"      // Locked object key (hex)
	KeyLockType   = "lock_type"   // shared, exclusive
	KeyLockOffset = "lock_offset" // Lock range start
	KeyLockLength = "lock_length" // Lock range length (0 = to EOF)
	KeyLockOwner  = "lock_owner"  // Lock owner identifier
	KeyBackend    = "backend"     // Lock backend: memory, badger, postgres
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// Operation returns a slog.Attr for the operation name
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Status returns a slog.Attr for an nfsstat4 status name
func Status(name string) slog.Attr {
	return slog.String(KeyStatus, name)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Reason returns a slog.Attr for a disposal or release reason
func Reason(reason string) slog.Attr {
	return slog.String(KeyReason, reason)
}

// Count returns a slog.Attr for a count
func Count(n int) slog.Attr {
	return slog.Int(KeyCount, n)
}

// ----------------------------------------------------------------------------
// Client & Session
// ----------------------------------------------------------------------------

// ClientID returns a slog.Attr for a client id, formatted as hex
func ClientID(id uint64) slog.Attr {
	return slog.String(KeyClientID, fmt.Sprintf("%#x", id))
}

// ClientOwner returns a slog.Attr for a hex client owner
func ClientOwner(owner string) slog.Attr {
	return slog.String(KeyClientOwner, owner)
}

// PeerAddr returns a slog.Attr for the remote address
func PeerAddr(addr string) slog.Attr {
	return slog.String(KeyPeerAddr, addr)
}

// SessionID returns a slog.Attr for session identifier
func SessionID(id string) slog.Attr {
	return slog.String(KeySessionID, id)
}

// Slot returns a slog.Attr for a slot index
func Slot(slot uint32) slog.Attr {
	return slog.Any(KeySlot, slot)
}

// SeqID returns a slog.Attr for a slot sequence id
func SeqID(seq uint32) slog.Attr {
	return slog.Any(KeySeqID, seq)
}

// Stateid returns a slog.Attr for a stateid
func Stateid(id string) slog.Attr {
	return slog.String(KeyStateid, id)
}

// StateKind returns a slog.Attr for a state object kind
func StateKind(kind string) slog.Attr {
	return slog.String(KeyStateKind, kind)
}

// ----------------------------------------------------------------------------
// Locking
// ----------------------------------------------------------------------------

// Object returns a slog.Attr for a locked object key
func Object(key string) slog.Attr {
	return slog.String(KeyObject, key)
}

// LockType returns a slog.Attr for lock type
func LockType(t string) slog.Attr {
	return slog.String(KeyLockType, t)
}

// LockOffset returns a slog.Attr for lock range start
func LockOffset(off uint64) slog.Attr {
	return slog.Uint64(KeyLockOffset, off)
}

// LockLength returns a slog.Attr for lock range length
func LockLength(length uint64) slog.Attr {
	return slog.Uint64(KeyLockLength, length)
}

// LockOwner returns a slog.Attr for lock owner identifier
func LockOwner(owner string) slog.Attr {
	return slog.String(KeyLockOwner, owner)
}

// Backend returns a slog.Attr for the lock backend name
func Backend(name string) slog.Attr {
	return slog.String(KeyBackend, name)
}
