package storage

import (
	"context"
	"errors"
	"sort"
	"time"
)

// Job statuses. completed and cancelled are terminal.
const (
	StatusPending    = "pending"
	StatusAssigned   = "assigned"
	StatusEnRoute    = "en_route"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// NonTerminalStatuses lists the statuses a job can still move out of.
var NonTerminalStatuses = []string{StatusPending, StatusAssigned, StatusEnRoute, StatusInProgress}

// IsTerminal reports whether a status ends a job's lifecycle.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

// Common storage errors
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("transaction conflict")
)

// Job represents a single customer service request. Price, duration and
// distance are computed once at dispatch time and never change afterwards.
type Job struct {
	ID              string    `json:"id" dynamodbav:"id"`
	CustomerName    string    `json:"customer_name" dynamodbav:"customer_name"`
	CustomerPhone   string    `json:"customer_phone" dynamodbav:"customer_phone"`
	Lat             float64   `json:"lat" dynamodbav:"lat"`
	Lng             float64   `json:"lng" dynamodbav:"lng"`
	Level           int       `json:"level" dynamodbav:"level"`
	Services        []string  `json:"services" dynamodbav:"services"`
	RequestedAt     time.Time `json:"requested_at" dynamodbav:"requested_at"`
	Status          string    `json:"status" dynamodbav:"status"`
	AssignedUnitID  *string   `json:"assigned_unit_id,omitempty" dynamodbav:"assigned_unit_id,omitempty"`
	Price           float64   `json:"price" dynamodbav:"price"`
	DurationMinutes int       `json:"duration_minutes" dynamodbav:"duration_minutes"`
	DistanceKm      float64   `json:"distance_km" dynamodbav:"distance_km"`
	CreatedAt       time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" dynamodbav:"updated_at"`
	Version         int64     `json:"-" dynamodbav:"version"`
}

// Unit represents a mobile service unit. Its location only moves when a job
// finishes on it, and its occupancy fields are written exclusively through
// Store.Txn.
type Unit struct {
	ID            string    `json:"id" dynamodbav:"id"`
	Name          string    `json:"name" dynamodbav:"name"`
	Lat           float64   `json:"lat" dynamodbav:"lat"`
	Lng           float64   `json:"lng" dynamodbav:"lng"`
	Available     bool      `json:"available" dynamodbav:"available"`
	AvailableFrom time.Time `json:"available_from" dynamodbav:"available_from"`
	CurrentJobID  *string   `json:"current_job_id,omitempty" dynamodbav:"current_job_id,omitempty"`
	LastUpdated   time.Time `json:"last_updated" dynamodbav:"last_updated"`
	Version       int64     `json:"-" dynamodbav:"version"`
}

// ActivityLogEntry is an append-only record of a status transition.
type ActivityLogEntry struct {
	ID        string    `json:"id" dynamodbav:"id"`
	JobID     string    `json:"job_id" dynamodbav:"job_id"`
	Status    string    `json:"status" dynamodbav:"status"`
	UnitID    string    `json:"unit_id" dynamodbav:"unit_id"`
	Note      string    `json:"note" dynamodbav:"note"`
	Timestamp time.Time `json:"timestamp" dynamodbav:"timestamp"`
}

// Tx stages reads and writes inside one atomic unit-scoped transaction.
// Reads observe committed state from before the transaction; staged writes
// become visible only if the transaction commits as a whole.
type Tx interface {
	// GetJob retrieves a job by ID
	GetJob(id string) (*Job, error)

	// GetUnit retrieves a unit by ID
	GetUnit(id string) (*Unit, error)

	// PendingJobsForUnit returns pending jobs bound to a unit, earliest
	// requested first
	PendingJobsForUnit(unitID string) ([]*Job, error)

	// CreateJob stages a new job and assigns its ID
	CreateJob(job *Job)

	// PutJob stages an update to an existing job
	PutJob(job *Job)

	// PutUnit stages an update to an existing unit
	PutUnit(unit *Unit)

	// AppendLog stages an activity log append and assigns its ID
	AppendLog(entry *ActivityLogEntry)
}

// Store defines the interface for job, unit and activity log persistence.
type Store interface {
	// GetJob retrieves a job by ID
	GetJob(ctx context.Context, jobID string) (*Job, error)

	// GetAllJobs returns all jobs (for dashboard)
	GetAllJobs(ctx context.Context) ([]*Job, error)

	// GetJobsByStatus finds jobs by status
	GetJobsByStatus(ctx context.Context, status string) ([]*Job, error)

	// GetActiveJobs returns all jobs in a non-terminal status
	GetActiveJobs(ctx context.Context) ([]*Job, error)

	// GetUnit retrieves a unit by ID
	GetUnit(ctx context.Context, unitID string) (*Unit, error)

	// GetAllUnits returns all units
	GetAllUnits(ctx context.Context) ([]*Unit, error)

	// CreateUnit adds a new unit (out-of-band seeding/registration)
	CreateUnit(ctx context.Context, unit *Unit) error

	// GetActivityLog returns the log entries for a job, oldest first
	GetActivityLog(ctx context.Context, jobID string) ([]*ActivityLogEntry, error)

	// Txn runs fn inside an atomic transaction serialized on the given
	// unit. All staged writes commit together or not at all; a detected
	// read-modify-write race surfaces as ErrConflict.
	Txn(ctx context.Context, unitID string, fn func(Tx) error) error
}

// SortJobsByRequestedAt orders jobs earliest-requested first, ties broken by
// ID so the ordering is stable across stores.
func SortJobsByRequestedAt(jobs []*Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].RequestedAt.Equal(jobs[j].RequestedAt) {
			return jobs[i].RequestedAt.Before(jobs[j].RequestedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
}
