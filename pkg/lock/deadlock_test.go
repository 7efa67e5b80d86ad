package lock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitForGraph_NewWaitForGraph(t *testing.T) {
	t.Parallel()

	wfg := NewWaitForGraph()

	require.NotNil(t, wfg)
	assert.Equal(t, 0, wfg.Size())
}

func TestWaitForGraph_SimpleCycle(t *testing.T) {
	t.Parallel()

	wfg := NewWaitForGraph()
	wfg.AddWaiter("A", []string{"B"})

	assert.True(t, wfg.WouldCauseCycle("B", []string{"A"}), "A->B->A must be detected")
}

func TestWaitForGraph_ChainNoCycle(t *testing.T) {
	t.Parallel()

	wfg := NewWaitForGraph()
	wfg.AddWaiter("A", []string{"B"})

	assert.False(t, wfg.WouldCauseCycle("B", []string{"C"}))
	wfg.AddWaiter("B", []string{"C"})
	assert.Equal(t, 2, wfg.Size())
}

func TestWaitForGraph_TriangleCycle(t *testing.T) {
	t.Parallel()

	wfg := NewWaitForGraph()
	wfg.AddWaiter("A", []string{"B"})
	wfg.AddWaiter("B", []string{"C"})

	assert.True(t, wfg.WouldCauseCycle("C", []string{"A"}))
}

func TestWaitForGraph_DiamondNoCycle(t *testing.T) {
	t.Parallel()

	//   A -> B -> D
	//   A -> C -> D
	wfg := NewWaitForGraph()
	wfg.AddWaiter("A", []string{"B", "C"})
	wfg.AddWaiter("B", []string{"D"})
	wfg.AddWaiter("C", []string{"D"})

	assert.False(t, wfg.WouldCauseCycle("D", []string{"E"}))
	assert.True(t, wfg.WouldCauseCycle("D", []string{"A"}))
}

func TestWaitForGraph_TryAddWaiter(t *testing.T) {
	t.Parallel()

	wfg := NewWaitForGraph()
	require.True(t, wfg.TryAddWaiter("A", []string{"B"}))
	assert.False(t, wfg.TryAddWaiter("B", []string{"A"}))
	assert.Equal(t, 1, wfg.Size(), "refused waiter must not be recorded")
}

func TestWaitForGraph_SelfEdgeIgnored(t *testing.T) {
	t.Parallel()

	wfg := NewWaitForGraph()
	assert.True(t, wfg.TryAddWaiter("A", []string{"A"}))
	assert.Equal(t, 0, wfg.Size())
}

func TestWaitForGraph_AddWaiterReplacesEdges(t *testing.T) {
	t.Parallel()

	wfg := NewWaitForGraph()
	wfg.AddWaiter("A", []string{"B"})
	wfg.AddWaiter("A", []string{"C"})

	assert.Empty(t, wfg.GetWaitersFor("B"))
	assert.Equal(t, []string{"A"}, wfg.GetWaitersFor("C"))
}

func TestWaitForGraph_RemoveWaiter(t *testing.T) {
	t.Parallel()

	wfg := NewWaitForGraph()
	wfg.AddWaiter("A", []string{"B"})
	wfg.RemoveWaiter("A")

	assert.Equal(t, 0, wfg.Size())
	assert.False(t, wfg.WouldCauseCycle("B", []string{"A"}))
}

func TestWaitForGraph_RemoveOwner(t *testing.T) {
	t.Parallel()

	wfg := NewWaitForGraph()
	wfg.AddWaiter("A", []string{"B"})
	wfg.AddWaiter("C", []string{"B", "D"})
	wfg.AddWaiter("B", []string{"E"})

	wfg.RemoveOwner("B")

	assert.Empty(t, wfg.GetWaitersFor("B"))
	assert.Equal(t, []string{"C"}, wfg.GetWaitersFor("D"))
	assert.Equal(t, 1, wfg.Size(), "only C -> D should remain")
}

func TestWaitForGraph_ConcurrentMutualWait(t *testing.T) {
	t.Parallel()

	// Two owners racing to wait on each other: at most one may succeed.
	for i := 0; i < 100; i++ {
		wfg := NewWaitForGraph()
		var wg sync.WaitGroup
		results := make([]bool, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			results[0] = wfg.TryAddWaiter("A", []string{"B"})
		}()
		go func() {
			defer wg.Done()
			results[1] = wfg.TryAddWaiter("B", []string{"A"})
		}()
		wg.Wait()

		assert.False(t, results[0] && results[1], "both sides of a cycle were admitted")
	}
}
