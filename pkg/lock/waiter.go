package lock

import "sync"

// waiter is one blocked Lock call. It is registered on the object while the
// object mutex is held, so no release can slip between the failed attempt
// and the wait.
type waiter struct {
	key     string
	ownerID string

	// wake receives a token on every release affecting key. Buffered so a
	// release never blocks and a burst of releases collapses into one retry.
	wake chan struct{}

	cancelled  chan struct{}
	cancelOnce sync.Once
}

func newWaiter(key, ownerID string) *waiter {
	return &waiter{
		key:       key,
		ownerID:   ownerID,
		wake:      make(chan struct{}, 1),
		cancelled: make(chan struct{}),
	}
}

func (w *waiter) notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *waiter) cancel() {
	w.cancelOnce.Do(func() { close(w.cancelled) })
}

// waitQueue indexes blocked waiters by object and by owner.
type waitQueue struct {
	mu      sync.Mutex
	byKey   map[string]map[*waiter]struct{}
	byOwner map[string]map[*waiter]struct{}
}

func newWaitQueue() *waitQueue {
	return &waitQueue{
		byKey:   make(map[string]map[*waiter]struct{}),
		byOwner: make(map[string]map[*waiter]struct{}),
	}
}

func (q *waitQueue) add(w *waiter) {
	q.mu.Lock()
	defer q.mu.Unlock()
	addToSet(q.byKey, w.key, w)
	addToSet(q.byOwner, w.ownerID, w)
}

func (q *waitQueue) remove(w *waiter) {
	q.mu.Lock()
	defer q.mu.Unlock()
	removeFromSet(q.byKey, w.key, w)
	removeFromSet(q.byOwner, w.ownerID, w)
}

// broadcast wakes every waiter of key.
func (q *waitQueue) broadcast(key string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	for w := range q.byKey[key] {
		w.notify()
	}
	return len(q.byKey[key])
}

// cancelOwner cancels every wait of ownerID and returns how many were hit.
func (q *waitQueue) cancelOwner(ownerID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	for w := range q.byOwner[ownerID] {
		w.cancel()
	}
	return len(q.byOwner[ownerID])
}

func (q *waitQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, set := range q.byKey {
		n += len(set)
	}
	return n
}

func addToSet(m map[string]map[*waiter]struct{}, k string, w *waiter) {
	set, ok := m[k]
	if !ok {
		set = make(map[*waiter]struct{})
		m[k] = set
	}
	set[w] = struct{}{}
}

func removeFromSet(m map[string]map[*waiter]struct{}, k string, w *waiter) {
	set, ok := m[k]
	if !ok {
		return
	}
	delete(set, w)
	if len(set) == 0 {
		delete(m, k)
	}
}
