package logger

import (
	"context"
	"time"
)

type contextKey struct{}

// LogContext carries request-scoped fields that the *Ctx functions prepend
// to every record.
type LogContext struct {
	RequestID string
	TraceID   string
	SpanID    string
	Operation string // SEQUENCE, LOCK, or an API route
	PeerAddr  string
	ClientID  uint64 // 0 if unknown
	SessionID string
	StartTime time.Time
}

// WithContext returns a copy of ctx carrying lc.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, contextKey{}, lc)
}

// FromContext returns the LogContext of ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(contextKey{}).(*LogContext)
	return lc
}

// NewLogContext starts a LogContext for a request from peerAddr.
func NewLogContext(peerAddr string) *LogContext {
	return &LogContext{PeerAddr: peerAddr, StartTime: time.Now()}
}

// Clone returns a shallow copy; nil stays nil.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

// WithOperation returns a copy with the operation set.
func (lc *LogContext) WithOperation(op string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.Operation = op
	}
	return c
}

// WithClient returns a copy with the client id set.
func (lc *LogContext) WithClient(clientID uint64) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.ClientID = clientID
	}
	return c
}

// WithSession returns a copy with the session id set.
func (lc *LogContext) WithSession(sessionID string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.SessionID = sessionID
	}
	return c
}

// WithTrace returns a copy with the trace and span ids set.
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	c := lc.Clone()
	if c != nil {
		c.TraceID = traceID
		c.SpanID = spanID
	}
	return c
}

// DurationMs returns the milliseconds since StartTime.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return Since(lc.StartTime)
}

// prepend returns args preceded by the non-empty fields of lc.
func (lc *LogContext) prepend(args []any) []any {
	if lc == nil {
		return args
	}
	out := make([]any, 0, 14+len(args))
	if lc.RequestID != "" {
		out = append(out, KeyRequestID, lc.RequestID)
	}
	if lc.TraceID != "" {
		out = append(out, KeyTraceID, lc.TraceID)
	}
	if lc.SpanID != "" {
		out = append(out, KeySpanID, lc.SpanID)
	}
	if lc.Operation != "" {
		out = append(out, KeyOperation, lc.Operation)
	}
	if lc.PeerAddr != "" {
		out = append(out, KeyPeerAddr, lc.PeerAddr)
	}
	if lc.ClientID != 0 {
		out = append(out, ClientID(lc.ClientID))
	}
	if lc.SessionID != "" {
		out = append(out, KeySessionID, lc.SessionID)
	}
	return append(out, args...)
}
