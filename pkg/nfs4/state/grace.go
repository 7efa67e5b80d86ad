package state

import (
	"sort"
	"sync"
	"time"

	"github.com/marmos91/nfs4state/internal/logger"
)

// GraceStatus holds structured information about the grace period.
type GraceStatus struct {
	Active           bool          `json:"active"`
	RemainingSeconds float64       `json:"remaining_seconds"`
	TotalDuration    time.Duration `json:"total_duration"`
	ExpectedClients  int           `json:"expected_clients"`
	ReclaimedClients int           `json:"reclaimed_clients"`
	StartedAt        time.Time     `json:"started_at"`
}

// GraceManager manages the NFSv4 grace period after a server restart.
//
// While the grace period is active only reclaim lock requests are accepted;
// new locks fail with ErrGrace. A reclaim outside the grace period fails
// with ErrNoGrace. The period ends when the duration elapses, when every
// expected client has reclaimed, or on ForceEnd.
//
// Clients are identified by the hex encoding of their owner, the only
// identity that survives a restart (client ids embed the boot epoch).
type GraceManager struct {
	mu sync.Mutex

	active    bool
	duration  time.Duration
	startedAt time.Time
	timer     *time.Timer

	expected         map[string]bool
	reclaimed        map[string]bool
	reclaimCompleted map[string]bool

	// onEnd runs outside the mutex when the period ends.
	onEnd func()
}

// NewGraceManager creates an inactive grace manager. onEnd may be nil.
func NewGraceManager(duration time.Duration, onEnd func()) *GraceManager {
	return &GraceManager{
		duration:         duration,
		expected:         make(map[string]bool),
		reclaimed:        make(map[string]bool),
		reclaimCompleted: make(map[string]bool),
		onEnd:            onEnd,
	}
}

// Start begins the grace period for the given client owners.
//
// With no expected clients or a zero duration the grace period is skipped.
func (g *GraceManager) Start(expectedOwners []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active {
		return
	}
	if len(expectedOwners) == 0 || g.duration <= 0 {
		logger.Info("Grace period skipped", "expected_clients", len(expectedOwners), "duration", g.duration)
		return
	}

	g.active = true
	g.startedAt = time.Now()
	g.expected = make(map[string]bool, len(expectedOwners))
	for _, owner := range expectedOwners {
		g.expected[owner] = true
	}
	g.reclaimed = make(map[string]bool)
	g.reclaimCompleted = make(map[string]bool)

	logger.Info("Grace period started",
		"duration", g.duration,
		"expected_clients", len(g.expected))

	g.timer = time.AfterFunc(g.duration, func() {
		g.end("ended")
	})
}

// InGrace reports whether the grace period is active.
func (g *GraceManager) InGrace() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

// CheckLock tells whether a lock request may proceed: during grace only
// reclaims are allowed, outside grace reclaims are refused.
func (g *GraceManager) CheckLock(reclaim bool) error {
	in := g.InGrace()
	switch {
	case in && !reclaim:
		return ErrGrace
	case !in && reclaim:
		return ErrNoGrace
	}
	return nil
}

// ClientReclaimed records a reclaim by ownerKey. When every expected client
// has reclaimed the grace period ends early.
func (g *GraceManager) ClientReclaimed(ownerKey string) {
	g.mu.Lock()

	if !g.active || !g.expected[ownerKey] {
		g.mu.Unlock()
		return
	}

	g.reclaimed[ownerKey] = true
	logger.Debug("Grace period: client reclaimed",
		"owner", ownerKey,
		"reclaimed", len(g.reclaimed),
		"expected", len(g.expected))

	done := len(g.reclaimed) >= len(g.expected)
	g.mu.Unlock()

	if done {
		g.end("ended early: all expected clients reclaimed")
	}
}

// ReclaimComplete records RECLAIM_COMPLETE for ownerKey (RFC 8881 Section
// 18.51). A second call for the same owner fails with ErrCompleteAlready.
func (g *GraceManager) ReclaimComplete(ownerKey string) error {
	g.mu.Lock()
	if g.reclaimCompleted[ownerKey] {
		g.mu.Unlock()
		return ErrCompleteAlready
	}
	g.reclaimCompleted[ownerKey] = true
	active := g.active
	g.mu.Unlock()

	if active {
		g.ClientReclaimed(ownerKey)
	}
	return nil
}

// ExpectedOwners returns the sorted owners expected to reclaim.
func (g *GraceManager) ExpectedOwners() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]string, 0, len(g.expected))
	for owner := range g.expected {
		out = append(out, owner)
	}
	sort.Strings(out)
	return out
}

// Status returns a snapshot of the grace period.
func (g *GraceManager) Status() GraceStatus {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := GraceStatus{
		Active:           g.active,
		TotalDuration:    g.duration,
		ExpectedClients:  len(g.expected),
		ReclaimedClients: len(g.reclaimed),
		StartedAt:        g.startedAt,
	}
	if g.active {
		st.RemainingSeconds = max(g.duration-time.Since(g.startedAt), 0).Seconds()
	}
	return st
}

// ForceEnd ends the grace period now. No-op when inactive.
func (g *GraceManager) ForceEnd() {
	g.end("force-ended")
}

// Stop deactivates the grace period without running the end callback.
func (g *GraceManager) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.active = false
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

func (g *GraceManager) end(reason string) {
	g.mu.Lock()
	if !g.active {
		g.mu.Unlock()
		return
	}
	g.active = false
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	callback := g.onEnd
	reclaimed, expected := len(g.reclaimed), len(g.expected)
	g.mu.Unlock()

	logger.Info("Grace period "+reason,
		"reclaimed_clients", reclaimed,
		"expected_clients", expected)

	if callback != nil {
		callback()
	}
}
