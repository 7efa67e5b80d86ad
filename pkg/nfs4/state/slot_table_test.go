package state

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSlotTable_Clamps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		requested uint32
		max       uint32
		want      uint32
	}{
		{"zero becomes min", 0, 64, MinSlots},
		{"within range", 8, 64, 8},
		{"capped at max", 1000, 64, 64},
		{"zero max", 4, 0, MinSlots},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewSlotTable(tt.requested, tt.max).MaxSlots())
		})
	}
}

func TestSlotTable_ExecuteThenReplay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewSlotTable(4, DefaultMaxSlots)

	call, err := st.Process(ctx, 0, 1, true)
	require.NoError(t, err)
	assert.Equal(t, SlotExecute, call.Kind)
	assert.True(t, st.HasInFlightRequests())
	call.Complete([]byte("reply-1"))
	assert.False(t, st.HasInFlightRequests())

	replay, err := st.Process(ctx, 0, 1, true)
	require.NoError(t, err)
	assert.Equal(t, SlotReplay, replay.Kind)
	assert.Equal(t, []byte("reply-1"), replay.Reply)

	next, err := st.Process(ctx, 0, 2, false)
	require.NoError(t, err)
	assert.Equal(t, SlotExecute, next.Kind)
	next.Complete(nil)
}

func TestSlotTable_ExactlyOnce(t *testing.T) {
	t.Parallel()
	st := NewSlotTable(4, DefaultMaxSlots)

	const n = 32
	var executed atomic.Int32
	replies := make([][]byte, n)
	errs := make([]error, n)

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			call, err := st.Process(context.Background(), 1, 1, true)
			if err != nil {
				errs[i] = err
				return
			}
			if call.Kind == SlotExecute {
				executed.Add(1)
				time.Sleep(10 * time.Millisecond)
				call.Complete([]byte("reply-1"))
			}
			replies[i] = call.Reply
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), executed.Load(), "request must execute exactly once")
	for i := range n {
		require.NoError(t, errs[i])
		assert.Equal(t, []byte("reply-1"), replies[i])
	}
}

func TestSlotTable_SequenceGapRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewSlotTable(2, DefaultMaxSlots)

	call, err := st.Process(ctx, 0, 1, true)
	require.NoError(t, err)
	call.Complete([]byte("r1"))

	for _, seq := range []uint32{3, 100, 0, 0xFFFFFFFF} {
		_, err := st.Process(ctx, 0, seq, true)
		assert.ErrorIs(t, err, ErrSeqMisordered, "seq %d", seq)
	}

	// The slot is unchanged: the retry still replays and seq 2 executes.
	replay, err := st.Process(ctx, 0, 1, true)
	require.NoError(t, err)
	assert.Equal(t, SlotReplay, replay.Kind)

	next, err := st.Process(ctx, 0, 2, true)
	require.NoError(t, err)
	assert.Equal(t, SlotExecute, next.Kind)
	next.Complete(nil)
}

func TestSlotTable_UnusedSlotRejectsSeqZero(t *testing.T) {
	t.Parallel()
	st := NewSlotTable(1, DefaultMaxSlots)

	_, err := st.Process(context.Background(), 0, 0, true)
	assert.ErrorIs(t, err, ErrSeqMisordered)
	assert.Equal(t, NoSlotUsed, st.HighestUsedSlot())
}

func TestSlotTable_RetryOfUncachedReply(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewSlotTable(1, DefaultMaxSlots)

	call, err := st.Process(ctx, 0, 1, false)
	require.NoError(t, err)
	call.Complete([]byte("not cached"))

	_, err = st.Process(ctx, 0, 1, false)
	assert.ErrorIs(t, err, ErrRetryUncachedRep)
	assert.Zero(t, st.CachedBytes())
}

func TestSlotTable_AbortDoesNotAdvance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewSlotTable(1, DefaultMaxSlots)

	call, err := st.Process(ctx, 0, 1, true)
	require.NoError(t, err)
	call.Abort()
	call.Complete([]byte("ignored"))

	again, err := st.Process(ctx, 0, 1, true)
	require.NoError(t, err)
	assert.Equal(t, SlotExecute, again.Kind)
	again.Complete([]byte("r1"))
}

func TestSlotTable_SeqIDWraps(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewSlotTable(1, DefaultMaxSlots)
	st.slots[0].seqID = 0xFFFFFFFF
	st.slots[0].used = true

	call, err := st.Process(ctx, 0, 0, true)
	require.NoError(t, err)
	assert.Equal(t, SlotExecute, call.Kind)
	call.Complete([]byte("wrapped"))

	replay, err := st.Process(ctx, 0, 0, true)
	require.NoError(t, err)
	assert.Equal(t, SlotReplay, replay.Kind)
}

func TestSlotTable_BadSlot(t *testing.T) {
	t.Parallel()
	st := NewSlotTable(4, DefaultMaxSlots)

	_, err := st.Process(context.Background(), 4, 1, true)
	assert.ErrorIs(t, err, ErrBadSlot)
}

func TestSlotTable_SlotsAreIndependent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := NewSlotTable(4, DefaultMaxSlots)

	busy, err := st.Process(ctx, 0, 1, true)
	require.NoError(t, err)

	other, err := st.Process(ctx, 3, 1, true)
	require.NoError(t, err)
	assert.Equal(t, SlotExecute, other.Kind)
	assert.Equal(t, 2, st.SlotsInUse())
	assert.Equal(t, 3, st.HighestUsedSlot())

	busy.Complete(nil)
	other.Complete(nil)
	assert.Zero(t, st.SlotsInUse())
}

func TestSlotTable_WaitHonoursContext(t *testing.T) {
	t.Parallel()
	st := NewSlotTable(1, DefaultMaxSlots)

	call, err := st.Process(context.Background(), 0, 1, true)
	require.NoError(t, err)
	defer call.Complete(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = st.Process(ctx, 0, 1, true)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSlotTable_DestroyWakesWaiters(t *testing.T) {
	t.Parallel()
	st := NewSlotTable(1, DefaultMaxSlots)

	_, err := st.Process(context.Background(), 0, 1, true)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := st.Process(context.Background(), 0, 1, true)
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	st.destroy()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrBadSession)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not released by destroy")
	}

	_, err = st.Process(context.Background(), 0, 2, true)
	assert.ErrorIs(t, err, ErrBadSession)
}

func TestSlotTable_DestroyIfIdle(t *testing.T) {
	t.Parallel()
	st := NewSlotTable(2, DefaultMaxSlots)

	call, err := st.Process(context.Background(), 1, 1, true)
	require.NoError(t, err)
	assert.False(t, st.destroyIfIdle(), "a busy slot keeps the table alive")

	call.Complete(nil)
	assert.True(t, st.destroyIfIdle())

	_, err = st.Process(context.Background(), 0, 1, true)
	assert.ErrorIs(t, err, ErrBadSession)
}
