package state

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/nfs4state/pkg/lock"
)

func TestMetrics_NilSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.clientCreated()
		m.clientDisposed(ReasonDestroyed)
		m.sessionCreated()
		m.sessionDestroyed(ReasonDestroyed, time.Second)
		m.sequence(SlotExecute)
		m.sequenceError(ErrBadSlot)
		m.stateAdded(KindOpen)
		m.stateRemoved(KindOpen)
		m.leaseSweep()
		m.setGrace(true)
		m.reclaimGranted()
	})
}

func TestNewMetrics_ReusesRegisteredCollectors(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	first := NewMetrics(reg)
	second := NewMetrics(reg)

	first.ClientsCreatedTotal.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(second.ClientsCreatedTotal))
}

func TestMetrics_TrackHandlerActivity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := NewMetrics(prometheus.NewRegistry())
	mgr := lock.NewManager(lock.NewMemoryBackend(), lock.Config{}, nil)
	t.Cleanup(func() { _ = mgr.Close() })
	h := NewStateHandler(Config{}, mgr, m)

	c, err := h.CreateClient(ctx, PeerInfo{Addr: "10.0.0.1:700"}, []byte("owner"), [8]byte{1}, nil)
	require.NoError(t, err)
	sess, err := h.CreateSession(c, 2, 1)
	require.NoError(t, err)
	_, err = h.CreateState(c, KindOpen)
	require.NoError(t, err)

	call, err := sess.ProcessSlot(ctx, 0, 1, true)
	require.NoError(t, err)
	call.Complete([]byte("r"))
	_, err = sess.ProcessSlot(ctx, 0, 1, true)
	require.NoError(t, err)
	_, err = sess.ProcessSlot(ctx, 0, 5, true)
	require.ErrorIs(t, err, ErrSeqMisordered)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClientsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StatesActive.WithLabelValues("open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SequenceTotal.WithLabelValues("execute")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SequenceTotal.WithLabelValues("replay")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SequenceErrorsTotal.WithLabelValues(seqErrMisordered)))

	require.NoError(t, h.Shutdown(ctx))

	assert.Zero(t, testutil.ToFloat64(m.ClientsActive))
	assert.Zero(t, testutil.ToFloat64(m.SessionsActive))
	assert.Zero(t, testutil.ToFloat64(m.StatesActive.WithLabelValues("open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClientsDisposedTotal.WithLabelValues(ReasonShutdown)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsDestroyedTotal.WithLabelValues(ReasonShutdown)))
}
