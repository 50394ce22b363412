package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dispatch-service/internal/events"
	"dispatch-service/internal/metrics"
	"dispatch-service/internal/storage"
)

// knownServices are the sub-services a customer may request. Optional
// services extend the visit duration via PricingConfig.ExtraMinutes.
var knownServices = map[string]bool{
	"exterior": true,
	"interior": true,
	"polish":   true,
	"wax":      true,
}

// assignAttempts bounds retries when an assignment or transition loses a
// race; every attempt re-reads the store, so the whole operation is safe to
// repeat.
const assignAttempts = 3

// errUnitClaimed signals that the unit chosen from the snapshot was taken by
// a concurrent dispatch before our transaction could claim it.
var errUnitClaimed = errors.New("unit claimed concurrently")

// JobRequest is an incoming booking request.
type JobRequest struct {
	CustomerName  string
	CustomerPhone string
	Lat           float64
	Lng           float64
	Level         int
	Services      []string
	RequestedAt   time.Time
}

// Quote is a non-binding estimate for a job request.
type Quote struct {
	Price           float64 `json:"price"`
	DurationMinutes int     `json:"duration_minutes"`
	DistanceKm      float64 `json:"distance_km"`
	UnitName        string  `json:"unit_name"`
}

// Engine dispatches jobs onto units and drives their lifecycle. Every write
// path runs through a unit-scoped store transaction, so a unit's occupancy is
// only ever changed under mutual exclusion.
type Engine struct {
	store     storage.Store
	pricing   *PricingConfig
	policy    TransitionPolicy
	sink      events.Sink
	confirmer *Confirmer
	now       func() time.Time
}

// NewEngine creates a new dispatch engine instance
func NewEngine(store storage.Store, pricing *PricingConfig, policy TransitionPolicy, sink events.Sink) *Engine {
	if pricing == nil {
		pricing = DefaultPricingConfig()
	}
	if sink == nil {
		sink = events.LogSink{}
	}
	return &Engine{
		store:   store,
		pricing: pricing,
		policy:  policy,
		sink:    sink,
		now:     time.Now,
	}
}

// SetConfirmer enables deferred pending-to-assigned confirmation for jobs
// dispatched onto a free unit.
func (e *Engine) SetConfirmer(confirmer *Confirmer) {
	e.confirmer = confirmer
}

// Estimate runs unit selection and pricing without committing anything.
func (e *Engine) Estimate(ctx context.Context, req JobRequest) (*Quote, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	unit, dist, err := e.snapshotSelect(ctx, req)
	if err != nil {
		return nil, err
	}

	price, minutes, err := e.pricing.Quote(req.Level, dist, req.Services)
	if err != nil {
		return nil, err
	}

	return &Quote{
		Price:           price,
		DurationMinutes: minutes,
		DistanceKm:      dist,
		UnitName:        unit.Name,
	}, nil
}

// CreateJob selects a unit, prices the job and persists it bound to that unit
// in one atomic group: job record, unit occupancy, activity log.
func (e *Engine) CreateJob(ctx context.Context, req JobRequest) (*storage.Job, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = e.now()
	}

	for attempt := 0; attempt < assignAttempts; attempt++ {
		job, err := e.tryCreateJob(ctx, req)
		if errors.Is(err, errUnitClaimed) || errors.Is(err, storage.ErrConflict) {
			metrics.DispatchConflicts.Inc()
			continue
		}
		if err != nil {
			return nil, err
		}
		return job, nil
	}

	return nil, fmt.Errorf("dispatch retries exhausted: %w", storage.ErrConflict)
}

func (e *Engine) tryCreateJob(ctx context.Context, req JobRequest) (*storage.Job, error) {
	now := e.now()

	unit, dist, err := e.snapshotSelect(ctx, req)
	if err != nil {
		return nil, err
	}

	price, minutes, err := e.pricing.Quote(req.Level, dist, req.Services)
	if err != nil {
		return nil, err
	}

	wasFree := unitFree(unit, now)
	var job *storage.Job

	err = e.store.Txn(ctx, unit.ID, func(tx storage.Tx) error {
		u, err := tx.GetUnit(unit.ID)
		if err != nil {
			return err
		}
		if wasFree && !unitFree(u, now) {
			return errUnitClaimed
		}

		job = &storage.Job{
			CustomerName:    req.CustomerName,
			CustomerPhone:   req.CustomerPhone,
			Lat:             req.Lat,
			Lng:             req.Lng,
			Level:           req.Level,
			Services:        req.Services,
			RequestedAt:     req.RequestedAt,
			Status:          storage.StatusPending,
			AssignedUnitID:  &u.ID,
			Price:           price,
			DurationMinutes: minutes,
			DistanceKm:      dist,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		tx.CreateJob(job)

		duration := time.Duration(minutes) * time.Minute
		if wasFree {
			u.Available = false
			u.CurrentJobID = &job.ID
			u.AvailableFrom = now.Add(duration)
		} else {
			// Queued behind the unit's current work: only the window moves.
			u.AvailableFrom = u.AvailableFrom.Add(duration)
		}
		u.LastUpdated = now
		tx.PutUnit(u)

		tx.AppendLog(&storage.ActivityLogEntry{
			JobID:     job.ID,
			Status:    job.Status,
			UnitID:    u.ID,
			Note:      "order created",
			Timestamp: now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.JobsCreated.Inc()
	e.sink.Publish(ctx, events.Event{
		Type:      events.TypeOrderCreated,
		Scope:     events.ScopeJob,
		JobID:     job.ID,
		Status:    job.Status,
		UnitID:    job.AssignedUnitID,
		Timestamp: now,
	})

	if wasFree && e.confirmer != nil {
		e.confirmer.Schedule(job.ID, unit.ID)
	}

	slog.Info("job dispatched",
		"job_id", job.ID,
		"unit_id", unit.ID,
		"distance_km", dist,
		"price", price,
		"duration_minutes", minutes,
		"queued", !wasFree,
	)
	return job, nil
}

// SetJobStatus applies a status transition, logging it and advancing the
// unit's queue when the new status is terminal.
func (e *Engine) SetJobStatus(ctx context.Context, jobID, status, note string) (*storage.Job, error) {
	if !ValidStatus(status) {
		return nil, fmt.Errorf("%w: unrecognized status %q", ErrInvalidStatus, status)
	}

	current, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, err
	}

	unitID := ""
	if current.AssignedUnitID != nil {
		unitID = *current.AssignedUnitID
	}

	var updated, promoted *storage.Job
	for attempt := 0; attempt < assignAttempts; attempt++ {
		updated, promoted = nil, nil
		err = e.store.Txn(ctx, unitID, func(tx storage.Tx) error {
			job, err := tx.GetJob(jobID)
			if err != nil {
				return err
			}
			if !e.policy.Allowed(job.Status, status) {
				return fmt.Errorf("%w: transition %s -> %s not allowed", ErrInvalidStatus, job.Status, status)
			}

			now := e.now()
			job.Status = status
			job.UpdatedAt = now
			tx.PutJob(job)
			tx.AppendLog(&storage.ActivityLogEntry{
				JobID:     job.ID,
				Status:    status,
				UnitID:    unitID,
				Note:      note,
				Timestamp: now,
			})
			updated = job

			if storage.IsTerminal(status) && job.AssignedUnitID != nil {
				unit, err := tx.GetUnit(*job.AssignedUnitID)
				if err != nil {
					return err
				}
				promoted, err = advanceQueue(tx, unit, job, now)
				return err
			}
			return nil
		})
		if errors.Is(err, storage.ErrConflict) {
			continue
		}
		break
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, err
	}

	metrics.StatusUpdates.Inc()
	e.publishStatusEvents(ctx, updated)

	if storage.IsTerminal(status) && updated.AssignedUnitID != nil {
		if promoted != nil {
			metrics.QueuePromotions.Inc()
			e.publishStatusEvents(ctx, promoted)
			slog.Info("queued job promoted", "job_id", promoted.ID, "unit_id", unitID, "finished_job_id", updated.ID)
		} else {
			metrics.UnitsFreed.Inc()
		}
	}

	return updated, nil
}

// ConfirmAssignment promotes a freshly dispatched job from pending to
// assigned, unless an operator already moved it. The status check inside the
// transaction is what makes the deferred task idempotent and cancel-safe.
func (e *Engine) ConfirmAssignment(ctx context.Context, jobID, unitID string) error {
	var confirmed *storage.Job

	for attempt := 0; attempt < assignAttempts; attempt++ {
		confirmed = nil
		err := e.store.Txn(ctx, unitID, func(tx storage.Tx) error {
			job, err := tx.GetJob(jobID)
			if err != nil {
				return err
			}
			if job.Status != storage.StatusPending {
				return nil
			}

			now := e.now()
			job.Status = storage.StatusAssigned
			job.UpdatedAt = now
			tx.PutJob(job)
			tx.AppendLog(&storage.ActivityLogEntry{
				JobID:     job.ID,
				Status:    job.Status,
				UnitID:    unitID,
				Note:      "dispatch confirmed",
				Timestamp: now,
			})
			confirmed = job
			return nil
		})
		if errors.Is(err, storage.ErrConflict) {
			continue
		}
		if err != nil {
			return err
		}
		break
	}

	if confirmed != nil {
		metrics.StatusUpdates.Inc()
		e.publishStatusEvents(ctx, confirmed)
	}
	return nil
}

// GetJob retrieves a job by ID
func (e *Engine) GetJob(ctx context.Context, jobID string) (*storage.Job, error) {
	job, err := e.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, err
	}
	return job, nil
}

// GetActivityLog returns the append-only history for a job.
func (e *Engine) GetActivityLog(ctx context.Context, jobID string) ([]*storage.ActivityLogEntry, error) {
	if _, err := e.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return e.store.GetActivityLog(ctx, jobID)
}

func (e *Engine) snapshotSelect(ctx context.Context, req JobRequest) (*storage.Unit, float64, error) {
	units, err := e.store.GetAllUnits(ctx)
	if err != nil {
		return nil, 0, err
	}
	active, err := e.store.GetActiveJobs(ctx)
	if err != nil {
		return nil, 0, err
	}

	return selectUnit(units, active, req.Lat, req.Lng, e.now())
}

func (e *Engine) publishStatusEvents(ctx context.Context, job *storage.Job) {
	event := events.Event{
		Type:      events.TypeStatusUpdate,
		Scope:     events.ScopeJob,
		JobID:     job.ID,
		Status:    job.Status,
		UnitID:    job.AssignedUnitID,
		Timestamp: e.now(),
	}
	e.sink.Publish(ctx, event)

	event.Type = events.TypeAdminStatusUpdate
	event.Scope = events.ScopeBroadcast
	e.sink.Publish(ctx, event)
}

func validateRequest(req JobRequest) error {
	if req.Lat < -90 || req.Lat > 90 || req.Lng < -180 || req.Lng > 180 {
		return fmt.Errorf("%w: coordinates out of range (%f, %f)", ErrInvalidInput, req.Lat, req.Lng)
	}
	if req.Level < 1 || req.Level > 5 {
		return fmt.Errorf("%w: level must be between 1 and 5, got %d", ErrInvalidInput, req.Level)
	}
	for _, svc := range req.Services {
		if !knownServices[svc] {
			return fmt.Errorf("%w: unknown service %q", ErrInvalidInput, svc)
		}
	}
	return nil
}
