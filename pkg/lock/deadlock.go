package lock

import "sync"

// WaitForGraph tracks which lock-owners are blocked behind which other
// lock-owners so the Manager can refuse a blocking wait that would close a
// cycle.
//
// Nodes are owner ids; an edge A -> B means "A is waiting for a lock held by B".
//
//	Owner A holds [0,10) on F1 and waits for [0,10) on F2 (held by B)
//	Owner B holds [0,10) on F2 and waits for [0,10) on F1 (held by A)
//	Graph: A -> B -> A
//
// Only waits on this server instance are visible. With a distributed backend
// a cross-instance cycle is broken by the blocking timeout instead.
//
// WaitForGraph is safe for concurrent use.
type WaitForGraph struct {
	mu sync.RWMutex

	// edges maps waiter -> set of owners it waits on.
	edges map[string]map[string]struct{}
}

// NewWaitForGraph creates a new empty Wait-For Graph.
func NewWaitForGraph() *WaitForGraph {
	return &WaitForGraph{
		edges: make(map[string]map[string]struct{}),
	}
}

// WouldCauseCycle reports whether waiter waiting on any of owners closes a
// cycle, i.e. whether waiter is reachable from one of the owners.
func (wfg *WaitForGraph) WouldCauseCycle(waiter string, owners []string) bool {
	wfg.mu.RLock()
	defer wfg.mu.RUnlock()
	return wfg.cycleLocked(waiter, owners)
}

// TryAddWaiter records waiter -> owners unless that would create a cycle.
// The check and the insert happen under one lock, so two owners racing to
// wait on each other cannot both succeed. Returns false on deadlock.
func (wfg *WaitForGraph) TryAddWaiter(waiter string, owners []string) bool {
	wfg.mu.Lock()
	defer wfg.mu.Unlock()

	if wfg.cycleLocked(waiter, owners) {
		return false
	}
	wfg.addLocked(waiter, owners)
	return true
}

// AddWaiter records that waiter is waiting for all specified owners. It does
// not check for cycles.
func (wfg *WaitForGraph) AddWaiter(waiter string, owners []string) {
	wfg.mu.Lock()
	defer wfg.mu.Unlock()
	wfg.addLocked(waiter, owners)
}

// RemoveWaiter drops every edge leaving waiter. Called when its wait ends
// for any reason (granted, denied, cancelled, timed out).
func (wfg *WaitForGraph) RemoveWaiter(waiter string) {
	wfg.mu.Lock()
	defer wfg.mu.Unlock()

	delete(wfg.edges, waiter)
}

// RemoveOwner removes owner from the graph entirely, both as a waiter and
// as the target of other waiters. Used when a lock-owner is disposed.
func (wfg *WaitForGraph) RemoveOwner(owner string) {
	wfg.mu.Lock()
	defer wfg.mu.Unlock()

	for waiter, waitSet := range wfg.edges {
		delete(waitSet, owner)
		if len(waitSet) == 0 {
			delete(wfg.edges, waiter)
		}
	}
	delete(wfg.edges, owner)
}

// GetWaitersFor returns all owners that are waiting for the specified owner.
func (wfg *WaitForGraph) GetWaitersFor(owner string) []string {
	wfg.mu.RLock()
	defer wfg.mu.RUnlock()

	var waiters []string
	for waiter, waitSet := range wfg.edges {
		if _, waiting := waitSet[owner]; waiting {
			waiters = append(waiters, waiter)
		}
	}
	return waiters
}

// Size returns the number of owners currently waiting.
func (wfg *WaitForGraph) Size() int {
	wfg.mu.RLock()
	defer wfg.mu.RUnlock()
	return len(wfg.edges)
}

func (wfg *WaitForGraph) addLocked(waiter string, owners []string) {
	if len(owners) == 0 {
		return
	}
	// A waiter re-evaluated after a wake-up may be blocked by a different
	// set of holders, so the edges are replaced rather than merged.
	waitSet := make(map[string]struct{}, len(owners))
	for _, owner := range owners {
		if owner != waiter {
			waitSet[owner] = struct{}{}
		}
	}
	if len(waitSet) == 0 {
		return
	}
	wfg.edges[waiter] = waitSet
}

func (wfg *WaitForGraph) cycleLocked(waiter string, owners []string) bool {
	for _, owner := range owners {
		if owner == waiter {
			continue
		}
		if wfg.canReach(owner, waiter, make(map[string]bool)) {
			return true
		}
	}
	return false
}

// canReach performs DFS to check if 'to' is reachable from 'from'.
// Must be called with at least RLock held.
func (wfg *WaitForGraph) canReach(from, to string, visited map[string]bool) bool {
	if visited[from] {
		return false
	}
	visited[from] = true

	waitSet, exists := wfg.edges[from]
	if !exists {
		return false
	}
	if _, waiting := waitSet[to]; waiting {
		return true
	}
	for waitingFor := range waitSet {
		if wfg.canReach(waitingFor, to, visited) {
			return true
		}
	}
	return false
}
