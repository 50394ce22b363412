package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Confirmer schedules the deferred confirmation of freshly dispatched jobs:
// one one-shot timer per job that promotes it from pending to assigned after
// a grace interval. The promotion itself is conditional on the job still
// being pending, so a manual status change in the meantime wins without any
// explicit cancellation.
type Confirmer struct {
	engine *Engine
	grace  time.Duration

	mu      sync.Mutex
	stopped bool
	timers  map[string]*time.Timer
	wg      sync.WaitGroup
}

// NewConfirmer creates a new confirmer with the given grace interval
func NewConfirmer(engine *Engine, grace time.Duration) *Confirmer {
	return &Confirmer{
		engine: engine,
		grace:  grace,
		timers: make(map[string]*time.Timer),
	}
}

// Schedule arms the one-shot confirmation timer for a job.
func (c *Confirmer) Schedule(jobID, unitID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped || c.timers[jobID] != nil {
		return
	}

	c.wg.Add(1)
	c.timers[jobID] = time.AfterFunc(c.grace, func() {
		defer c.wg.Done()

		c.mu.Lock()
		delete(c.timers, jobID)
		c.mu.Unlock()

		if err := c.engine.ConfirmAssignment(context.Background(), jobID, unitID); err != nil {
			slog.Warn("deferred confirmation failed", "job_id", jobID, "unit_id", unitID, "error", err)
		}
	})
}

// Stop cancels pending timers and waits for in-flight confirmations.
func (c *Confirmer) Stop() {
	c.mu.Lock()
	c.stopped = true
	for jobID, timer := range c.timers {
		if timer.Stop() {
			c.wg.Done()
		}
		delete(c.timers, jobID)
	}
	c.mu.Unlock()

	c.wg.Wait()
	slog.Info("confirmer stopped")
}
