package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for state and lock operations.
// Client and peer keys follow OpenTelemetry semantic conventions, engine
// specific keys use the "nfs4." and "lock." prefixes.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientAddr = "client.address"
	AttrClientID   = "nfs4.client_id"

	// ========================================================================
	// Session and slot attributes
	// ========================================================================
	AttrSessionID  = "nfs4.session_id"
	AttrSlotID     = "nfs4.slot_id"
	AttrSequenceID = "nfs4.sequence_id"
	AttrStateid    = "nfs4.stateid"
	AttrStatus     = "nfs4.status"

	// ========================================================================
	// Lock attributes
	// ========================================================================
	AttrLockObject   = "lock.object"
	AttrLockOwner    = "lock.owner"
	AttrLockType     = "lock.type"
	AttrLockOffset   = "lock.offset"
	AttrLockLength   = "lock.length"
	AttrLockBlocking = "lock.blocking"
	AttrLockBackend  = "lock.backend"
)

// Span name prefixes.
const (
	SpanPrefixState = "nfs4."
	SpanPrefixLock  = "lock."
)

// ClientAddr returns an attribute for the client network address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// ClientID returns an attribute for a server-assigned client id
func ClientID(id uint64) attribute.KeyValue {
	return attribute.String(AttrClientID, fmt.Sprintf("%#x", id))
}

// SessionID returns an attribute for a hex session id
func SessionID(id string) attribute.KeyValue {
	return attribute.String(AttrSessionID, id)
}

// SlotID returns an attribute for a slot index
func SlotID(slot uint32) attribute.KeyValue {
	return attribute.Int64(AttrSlotID, int64(slot))
}

// SequenceID returns an attribute for a slot sequence id
func SequenceID(seq uint32) attribute.KeyValue {
	return attribute.Int64(AttrSequenceID, int64(seq))
}

// Stateid returns an attribute for a stateid rendered as "seqid:other"
func Stateid(id string) attribute.KeyValue {
	return attribute.String(AttrStateid, id)
}

// Status returns an attribute for an nfsstat4 value
func Status(status uint32) attribute.KeyValue {
	return attribute.Int64(AttrStatus, int64(status))
}

// LockObject returns an attribute for the hex object key
func LockObject(key string) attribute.KeyValue {
	return attribute.String(AttrLockObject, key)
}

// LockOwner returns an attribute for the lock owner id
func LockOwner(owner string) attribute.KeyValue {
	return attribute.String(AttrLockOwner, owner)
}

// LockType returns an attribute for the lock type
func LockType(t string) attribute.KeyValue {
	return attribute.String(AttrLockType, t)
}

// LockOffset returns an attribute for the range start.
// Offsets above MaxInt64 wrap; they are informational only.
func LockOffset(offset uint64) attribute.KeyValue {
	return attribute.Int64(AttrLockOffset, int64(offset))
}

// LockLength returns an attribute for the range length
func LockLength(length uint64) attribute.KeyValue {
	return attribute.Int64(AttrLockLength, int64(length))
}

// LockBlocking returns an attribute telling whether the request may block
func LockBlocking(blocking bool) attribute.KeyValue {
	return attribute.Bool(AttrLockBlocking, blocking)
}

// LockBackend returns an attribute for the lock backend name
func LockBackend(name string) attribute.KeyValue {
	return attribute.String(AttrLockBackend, name)
}

// StartStateSpan starts a span for a state engine operation ("nfs4.<op>").
func StartStateSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanPrefixState+operation, trace.WithAttributes(attrs...))
}

// StartLockSpan starts a span for a lock manager operation ("lock.<op>")
// on the object with the given key.
func StartLockSpan(ctx context.Context, operation, objectKey string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	allAttrs = append(allAttrs, LockObject(objectKey))
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, SpanPrefixLock+operation, trace.WithAttributes(allAttrs...))
}
