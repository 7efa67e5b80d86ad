package state

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/nfs4state/internal/logger"
	"github.com/marmos91/nfs4state/internal/telemetry"
	"github.com/marmos91/nfs4state/pkg/nfs4/types"
)

// Session represents an NFSv4.1 session per RFC 8881 Section 2.10.
//
// A session ties a session id to its client and to the fore and back channel
// slot tables. The slot counts are fixed for the lifetime of the session.
type Session struct {
	// ID carries the owning client id in bytes 0-7 (big-endian) and random
	// bytes in 8-15.
	ID types.SessionId4

	// ClientID is the server-assigned id of the owning client.
	ClientID uint64

	// Fore is the fore channel (client to server) slot table.
	Fore *SlotTable

	// Back is the back channel (server to client) slot table.
	Back *SlotTable

	CreatedAt time.Time

	client  *Client
	handler *StateHandler
}

// newSessionID builds a session id for clientID.
func newSessionID(clientID uint64) (types.SessionId4, error) {
	var sid types.SessionId4
	u, err := uuid.NewRandom()
	if err != nil {
		return sid, err
	}
	binary.BigEndian.PutUint64(sid[:8], clientID)
	copy(sid[8:], u[:8])
	return sid, nil
}

// ProcessSlot runs the fore-channel slot check for one request (the SEQUENCE
// operation). See SlotTable.Process for the decisions. An accepted request
// renews the client's lease.
func (s *Session) ProcessSlot(ctx context.Context, slotID, seqID uint32, cacheThis bool) (*SlotCall, error) {
	ctx, span := telemetry.StartStateSpan(ctx, "sequence",
		telemetry.SessionID(s.ID.String()),
		telemetry.SlotID(slotID),
		telemetry.SequenceID(seqID))
	defer span.End()

	call, err := s.Fore.Process(ctx, slotID, seqID, cacheThis)
	if err != nil {
		s.handler.metrics.sequenceError(err)
		telemetry.RecordError(ctx, err)
		logger.DebugCtx(ctx, "Slot request rejected",
			logger.SessionID(s.ID.String()),
			logger.Slot(slotID),
			logger.SeqID(seqID),
			logger.Err(err))
		return nil, err
	}

	s.client.touch(s.handler.now())
	s.handler.metrics.sequence(call.Kind)
	return call, nil
}

// destroy fails every pending and future slot request of the session.
func (s *Session) destroy() {
	s.Fore.destroy()
	s.Back.destroy()
}

// SessionInfo is a point-in-time view of a session for the admin API.
type SessionInfo struct {
	ID              string    `json:"id"`
	ClientID        uint64    `json:"client_id"`
	ForeSlots       uint32    `json:"fore_slots"`
	BackSlots       uint32    `json:"back_slots"`
	SlotsInUse      int       `json:"slots_in_use"`
	HighestUsedSlot int       `json:"highest_used_slot"`
	CachedBytes     int       `json:"cached_bytes"`
	CreatedAt       time.Time `json:"created_at"`
}

// Snapshot returns a copy of the session's observable state.
func (s *Session) Snapshot() SessionInfo {
	return SessionInfo{
		ID:              s.ID.String(),
		ClientID:        s.ClientID,
		ForeSlots:       s.Fore.MaxSlots(),
		BackSlots:       s.Back.MaxSlots(),
		SlotsInUse:      s.Fore.SlotsInUse(),
		HighestUsedSlot: s.Fore.HighestUsedSlot(),
		CachedBytes:     s.Fore.CachedBytes(),
		CreatedAt:       s.CreatedAt,
	}
}

// ============================================================================
// Session lifecycle on the StateHandler
// ============================================================================

// CreateSession creates a session for client (CREATE_SESSION).
//
// foreSlots is clamped to [1, MaxSlots] and backSlots to [1, MaxBackSlots].
// Fails with ErrStaleClientID when the client was disposed and with
// ErrTooManySessions when the client already holds MaxSessionsPerClient
// sessions.
func (h *StateHandler) CreateSession(client *Client, foreSlots, backSlots uint32) (*Session, error) {
	sid, err := newSessionID(client.ID)
	if err != nil {
		return nil, stateErr(ErrServerFault, "generate session id: %v", err)
	}

	now := h.now()
	sess := &Session{
		ID:        sid,
		ClientID:  client.ID,
		Fore:      NewSlotTable(foreSlots, h.cfg.MaxSlots),
		Back:      NewSlotTable(backSlots, h.cfg.MaxBackSlots),
		CreatedAt: now,
		client:    client,
		handler:   h,
	}

	h.mu.Lock()
	if client.IsDisposed() || h.clients[client.ID] != client {
		h.mu.Unlock()
		return nil, stateErr(ErrStaleClientID, "client %#x is no longer registered", client.ID)
	}
	client.mu.Lock()
	if len(client.sessions) >= h.cfg.MaxSessionsPerClient {
		n := len(client.sessions)
		client.mu.Unlock()
		h.mu.Unlock()
		return nil, stateErr(ErrTooManySessions, "client %#x already has %d session(s)", client.ID, n)
	}
	client.sessions[sid] = sess
	client.mu.Unlock()
	h.sessions[sid] = sess
	h.mu.Unlock()

	client.touch(now)
	h.metrics.sessionCreated()

	logger.Info("Session created",
		logger.SessionID(sid.String()),
		logger.ClientID(client.ID),
		"fore_slots", sess.Fore.MaxSlots(),
		"back_slots", sess.Back.MaxSlots())

	return sess, nil
}

// LookupSession returns the live session with id.
//
// An id whose embedded client id carries another boot epoch fails with
// ErrDeadSession, any other unknown id with ErrBadSession.
func (h *StateHandler) LookupSession(id types.SessionId4) (*Session, error) {
	h.mu.RLock()
	sess := h.sessions[id]
	h.mu.RUnlock()

	if sess != nil {
		return sess, nil
	}
	if uint32(id.ClientID()>>32) != h.bootEpoch {
		return nil, stateErr(ErrDeadSession, "session %s is from a previous server incarnation", id)
	}
	return nil, stateErr(ErrBadSession, "session %s not found", id)
}

// DestroySession removes a session (DESTROY_SESSION).
//
// Fails with ErrBadSession for an unknown id and with ErrDelay while any
// fore-channel slot has an outstanding request.
func (h *StateHandler) DestroySession(id types.SessionId4) error {
	h.mu.Lock()
	sess := h.sessions[id]
	if sess == nil {
		h.mu.Unlock()
		return stateErr(ErrBadSession, "session %s not found", id)
	}
	if !sess.Fore.destroyIfIdle() {
		h.mu.Unlock()
		return stateErr(ErrDelay, "session %s has requests in flight", id)
	}
	delete(h.sessions, id)
	sess.client.mu.Lock()
	delete(sess.client.sessions, id)
	sess.client.mu.Unlock()
	h.mu.Unlock()

	h.finishSession(sess, ReasonDestroyed)
	return nil
}

// ListSessions returns every live session.
func (h *StateHandler) ListSessions() []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// finishSession tears down a session that is no longer indexed.
func (h *StateHandler) finishSession(sess *Session, reason string) {
	sess.destroy()
	lifetime := h.now().Sub(sess.CreatedAt)
	h.metrics.sessionDestroyed(reason, lifetime)

	logger.Info("Session destroyed",
		logger.SessionID(sess.ID.String()),
		logger.ClientID(sess.ClientID),
		logger.Reason(reason),
		"duration_s", lifetime.Seconds())
}
