package state

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/nfs4state/internal/logger"
)

// StartLeaseSweeper starts the background goroutine that reaps clients whose
// lease lapsed. It ticks every LeaseTime/2 until ctx is done or
// StopLeaseSweeper is called. Starting an already running sweeper is a no-op.
func (h *StateHandler) StartLeaseSweeper(ctx context.Context) {
	h.sweepMu.Lock()
	defer h.sweepMu.Unlock()

	if h.sweepCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	h.sweepCancel = cancel
	h.sweepDone = done

	interval := h.cfg.LeaseTime / 2
	logger.Info("Lease sweeper started", "interval", interval, "lease_time", h.cfg.LeaseTime)

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.SweepOnce(ctx)
			}
		}
	}()
}

// StopLeaseSweeper stops the sweeper and waits for the running pass to end.
func (h *StateHandler) StopLeaseSweeper() {
	h.sweepMu.Lock()
	cancel, done := h.sweepCancel, h.sweepDone
	h.sweepCancel, h.sweepDone = nil, nil
	h.sweepMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logger.Info("Lease sweeper stopped")
}

// SweepOnce runs one sweeper pass and returns the number of clients reaped.
//
// The client list is snapshotted under the read lock; each expired client is
// then disposed on its own, taking the write lock only for its
// unregistration. A failing or panicking disposal is logged and does not
// stop the pass.
func (h *StateHandler) SweepOnce(ctx context.Context) int {
	h.metrics.leaseSweep()
	now := h.now()

	h.mu.RLock()
	var candidates []*Client
	for _, c := range h.clients {
		if c.expired(now, h.cfg.LeaseGrace) {
			candidates = append(candidates, c)
		}
	}
	h.mu.RUnlock()

	reaped := 0
	for _, c := range candidates {
		if ctx.Err() != nil {
			break
		}
		if h.reap(ctx, c) {
			reaped++
		}
	}

	if reaped > 0 {
		logger.Info("Lease sweep reaped clients", "count", reaped, "clients", h.ClientCount())
	}
	return reaped
}

// reap disposes c if its lease is still lapsed.
func (h *StateHandler) reap(ctx context.Context, c *Client) (reaped bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCtx(ctx, "Panic while reaping client",
				logger.ClientID(c.ID), logger.Err(fmt.Errorf("%v", r)))
			reaped = false
		}
	}()

	h.mu.Lock()
	// The client may have renewed since the snapshot.
	if !c.expired(h.now(), h.cfg.LeaseGrace) {
		h.mu.Unlock()
		return false
	}
	won := h.unregisterLocked(c)
	h.mu.Unlock()

	if !won {
		return false
	}

	logger.InfoCtx(ctx, "Client lease expired",
		logger.ClientID(c.ID),
		logger.PeerAddr(c.Peer.Addr),
		"last_renewal", c.LastRenewal())

	if err := h.releaseClient(ctx, c, ReasonExpired); err != nil {
		logger.ErrorCtx(ctx, "Failed to release expired client",
			logger.ClientID(c.ID), logger.Err(err))
	}
	return true
}
