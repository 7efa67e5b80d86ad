package state

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
)

// ============================================================================
// Slot Table Constants
// ============================================================================

const (
	// DefaultMaxSlots is the server-imposed maximum fore-channel slot count.
	// Each slot can hold a cached reply, so this bounds replay cache memory.
	DefaultMaxSlots uint32 = 64

	// DefaultMaxBackSlots is the server-imposed maximum back-channel slot count.
	DefaultMaxBackSlots uint32 = 16

	// MinSlots is the minimum number of slots per channel, per RFC 8881.
	MinSlots uint32 = 1

	// NoSlotUsed is returned by HighestUsedSlot for a table that never
	// accepted a request.
	NoSlotUsed = -1
)

// SlotDecision tells the caller of ProcessSlot what to do with a request.
type SlotDecision int

const (
	// SlotExecute means the request is new: run it, then Complete the call.
	SlotExecute SlotDecision = iota

	// SlotReplay means the request is a retransmission: send SlotCall.Reply.
	SlotReplay
)

func (d SlotDecision) String() string {
	if d == SlotReplay {
		return "replay"
	}
	return "execute"
}

// slot is one entry of a slot table.
//
// seqID starts at 0, so the first valid request uses seqID 1. used tells a
// slot that completed a request with seqID 0 (after wraparound) apart from a
// slot that never saw a request.
type slot struct {
	seqID  uint32
	used   bool
	cached bool
	reply  []byte

	// busy is non-nil while an Execute decision is outstanding and is
	// closed when it completes or aborts.
	busy chan struct{}
}

// SlotTable implements the NFSv4.1 slot table per RFC 8881 Section 2.10.6.
//
// Each session has its own SlotTable with a per-table mutex, so SEQUENCE
// processing never contends on the handler's client tables. Different slots
// are independent; requests on one slot are serialized: while an Execute is
// outstanding, a retransmission of the same request waits for it and is then
// answered from the reply cache.
type SlotTable struct {
	mu sync.Mutex

	// slots has a fixed length for the lifetime of the table.
	slots []slot

	// highest is the highest slot index that ever accepted a request.
	highest int

	destroyed chan struct{}
	closeOnce sync.Once
}

// NewSlotTable creates a SlotTable with numSlots slots, clamped to
// [MinSlots, maxSlots].
func NewSlotTable(numSlots, maxSlots uint32) *SlotTable {
	if maxSlots < MinSlots {
		maxSlots = MinSlots
	}
	numSlots = max(numSlots, MinSlots)
	numSlots = min(numSlots, maxSlots)

	return &SlotTable{
		slots:     make([]slot, numSlots),
		highest:   NoSlotUsed,
		destroyed: make(chan struct{}),
	}
}

// MaxSlots returns the number of slots in the table.
func (st *SlotTable) MaxSlots() uint32 {
	return uint32(len(st.slots))
}

// Process implements the sequence validation algorithm of RFC 8881 Section
// 2.10.6.1 for one request.
//
//   - seqID == current+1: new request, returns a SlotExecute call. The slot
//     stays busy until the call is completed or aborted.
//   - seqID == current on a slot that completed a request: retransmission,
//     returns a SlotReplay call with the cached reply, or ErrRetryUncachedRep
//     when the original reply was not cached.
//   - anything else: ErrSeqMisordered; the slot is not touched.
//
// A request for current+1 that arrives while the slot is busy is a
// retransmission of the in-flight request: it waits (ctx-aware) until the
// outstanding call finishes and is then evaluated again.
func (st *SlotTable) Process(ctx context.Context, slotID, seqID uint32, cacheThis bool) (*SlotCall, error) {
	for {
		st.mu.Lock()
		if st.isDestroyed() {
			st.mu.Unlock()
			return nil, stateErr(ErrBadSession, "session destroyed")
		}
		if slotID >= uint32(len(st.slots)) {
			st.mu.Unlock()
			return nil, stateErr(ErrBadSlot, "slot %d out of range (max %d)", slotID, len(st.slots)-1)
		}

		s := &st.slots[slotID]
		expected := s.seqID + 1 // wraps 0xFFFFFFFF -> 0

		if seqID == expected && s.busy != nil {
			busy := s.busy
			st.mu.Unlock()
			select {
			case <-busy:
				continue
			case <-st.destroyed:
				return nil, stateErr(ErrBadSession, "session destroyed")
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		switch {
		case seqID == expected:
			s.busy = make(chan struct{})
			if int(slotID) > st.highest {
				st.highest = int(slotID)
			}
			st.mu.Unlock()
			return &SlotCall{
				Kind:      SlotExecute,
				table:     st,
				slotID:    slotID,
				seqID:     seqID,
				cacheThis: cacheThis,
			}, nil

		case seqID == s.seqID && s.used:
			if !s.cached {
				st.mu.Unlock()
				return nil, stateErr(ErrRetryUncachedRep, "slot %d seqid %d: reply was not cached", slotID, seqID)
			}
			reply := s.reply
			st.mu.Unlock()
			return &SlotCall{Kind: SlotReplay, Reply: reply, slotID: slotID, seqID: seqID}, nil

		default:
			cur := s.seqID
			st.mu.Unlock()
			return nil, stateErr(ErrSeqMisordered, "slot %d: seqid %d, expected %d", slotID, seqID, cur+1)
		}
	}
}

// finish ends an outstanding Execute. When advance is set the slot takes the
// request's seqid and, if requested, caches reply.
func (st *SlotTable) finish(c *SlotCall, advance bool, reply []byte) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s := &st.slots[c.slotID]
	if advance {
		s.seqID = c.seqID
		s.used = true
		s.cached = c.cacheThis
		s.reply = nil
		if c.cacheThis {
			s.reply = bytes.Clone(reply)
		}
	}
	if s.busy != nil {
		close(s.busy)
		s.busy = nil
	}
}

// HighestUsedSlot returns the highest slot index that ever accepted a
// request, or NoSlotUsed.
func (st *SlotTable) HighestUsedSlot() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.highest
}

// SlotsInUse returns the number of slots with an outstanding Execute.
func (st *SlotTable) SlotsInUse() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	n := 0
	for i := range st.slots {
		if st.slots[i].busy != nil {
			n++
		}
	}
	return n
}

// HasInFlightRequests reports whether any slot has an outstanding Execute.
func (st *SlotTable) HasInFlightRequests() bool {
	return st.SlotsInUse() > 0
}

// CachedBytes returns the total size of cached replies.
func (st *SlotTable) CachedBytes() int {
	st.mu.Lock()
	defer st.mu.Unlock()

	n := 0
	for i := range st.slots {
		n += len(st.slots[i].reply)
	}
	return n
}

// destroy fails every waiter and every later Process call.
func (st *SlotTable) destroy() {
	st.closeOnce.Do(func() { close(st.destroyed) })
}

// destroyIfIdle destroys the table unless a slot has an outstanding
// Execute. The check and the destroy happen under one lock, so no Execute can
// start in between. Reports whether the table was destroyed.
func (st *SlotTable) destroyIfIdle() bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	for i := range st.slots {
		if st.slots[i].busy != nil {
			return false
		}
	}
	st.destroy()
	return true
}

func (st *SlotTable) isDestroyed() bool {
	select {
	case <-st.destroyed:
		return true
	default:
		return false
	}
}

// ============================================================================
// SlotCall
// ============================================================================

// SlotCall is the outcome of a successful slot check.
//
// For SlotExecute the caller must call exactly one of Complete or Abort;
// extra calls are ignored. For SlotReplay both are no-ops and Reply holds
// the cached reply, which must not be modified.
type SlotCall struct {
	Kind  SlotDecision
	Reply []byte

	table     *SlotTable
	slotID    uint32
	seqID     uint32
	cacheThis bool
	done      atomic.Bool
}

// SlotID returns the slot the call runs on.
func (c *SlotCall) SlotID() uint32 { return c.slotID }

// SeqID returns the sequence id of the request.
func (c *SlotCall) SeqID() uint32 { return c.seqID }

// Complete records the reply of an executed request and advances the slot.
func (c *SlotCall) Complete(reply []byte) {
	if c.Kind != SlotExecute || !c.done.CompareAndSwap(false, true) {
		return
	}
	c.Reply = reply
	c.table.finish(c, true, reply)
}

// Abort releases the slot without advancing it, for a request that failed
// before it executed. A retransmission is then treated as new.
func (c *SlotCall) Abort() {
	if c.Kind != SlotExecute || !c.done.CompareAndSwap(false, true) {
		return
	}
	c.table.finish(c, false, nil)
}
