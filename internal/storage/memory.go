package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store using in-memory maps. Transactions take a
// per-unit mutex, so two transactions on the same unit serialize while
// unrelated units proceed in parallel.
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[string]*Job
	units map[string]*Unit
	log   []*ActivityLogEntry

	lockMu    sync.Mutex
	unitLocks map[string]*sync.Mutex
}

// NewMemoryStore creates a new in-memory store instance
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:      make(map[string]*Job),
		units:     make(map[string]*Unit),
		unitLocks: make(map[string]*sync.Mutex),
	}
}

func (m *MemoryStore) GetJob(ctx context.Context, jobID string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, exists := m.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}

	return cloneJob(job), nil
}

func (m *MemoryStore) GetAllJobs(ctx context.Context) ([]*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Job
	for _, job := range m.jobs {
		result = append(result, cloneJob(job))
	}

	return result, nil
}

func (m *MemoryStore) GetJobsByStatus(ctx context.Context, status string) ([]*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Job
	for _, job := range m.jobs {
		if job.Status == status {
			result = append(result, cloneJob(job))
		}
	}

	return result, nil
}

func (m *MemoryStore) GetActiveJobs(ctx context.Context) ([]*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Job
	for _, job := range m.jobs {
		if !IsTerminal(job.Status) {
			result = append(result, cloneJob(job))
		}
	}

	return result, nil
}

func (m *MemoryStore) GetUnit(ctx context.Context, unitID string) (*Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	unit, exists := m.units[unitID]
	if !exists {
		return nil, fmt.Errorf("unit %s: %w", unitID, ErrNotFound)
	}

	return cloneUnit(unit), nil
}

func (m *MemoryStore) GetAllUnits(ctx context.Context) ([]*Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Unit
	for _, unit := range m.units {
		result = append(result, cloneUnit(unit))
	}

	return result, nil
}

func (m *MemoryStore) CreateUnit(ctx context.Context, unit *Unit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if unit.ID == "" {
		unit.ID = uuid.NewString()
	}
	if _, exists := m.units[unit.ID]; exists {
		return fmt.Errorf("unit %s already exists", unit.ID)
	}

	unit.Version = 1
	unit.LastUpdated = time.Now()
	m.units[unit.ID] = cloneUnit(unit)
	return nil
}

func (m *MemoryStore) GetActivityLog(ctx context.Context, jobID string) ([]*ActivityLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*ActivityLogEntry
	for _, entry := range m.log {
		if entry.JobID == jobID {
			e := *entry
			result = append(result, &e)
		}
	}

	return result, nil
}

// Txn holds the unit's lock for the whole read-modify-write, so staged writes
// apply without any competing transaction having observed intermediate state.
func (m *MemoryStore) Txn(ctx context.Context, unitID string, fn func(Tx) error) error {
	lock := m.unitLock(unitID)
	lock.Lock()
	defer lock.Unlock()

	tx := &memTx{store: m}
	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range tx.created {
		m.jobs[job.ID] = cloneJob(job)
	}
	for _, job := range tx.jobPuts {
		c := cloneJob(job)
		c.Version = job.Version + 1
		m.jobs[job.ID] = c
	}
	for _, unit := range tx.unitPuts {
		c := cloneUnit(unit)
		c.Version = unit.Version + 1
		m.units[unit.ID] = c
	}
	m.log = append(m.log, tx.logPuts...)

	return nil
}

func (m *MemoryStore) unitLock(unitID string) *sync.Mutex {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()

	lock, exists := m.unitLocks[unitID]
	if !exists {
		lock = &sync.Mutex{}
		m.unitLocks[unitID] = lock
	}
	return lock
}

// memTx collects staged writes while the unit lock is held.
type memTx struct {
	store    *MemoryStore
	created  []*Job
	jobPuts  []*Job
	unitPuts []*Unit
	logPuts  []*ActivityLogEntry
}

func (tx *memTx) GetJob(id string) (*Job, error) {
	return tx.store.GetJob(context.Background(), id)
}

func (tx *memTx) GetUnit(id string) (*Unit, error) {
	return tx.store.GetUnit(context.Background(), id)
}

func (tx *memTx) PendingJobsForUnit(unitID string) ([]*Job, error) {
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	var result []*Job
	for _, job := range tx.store.jobs {
		if job.Status == StatusPending && job.AssignedUnitID != nil && *job.AssignedUnitID == unitID {
			result = append(result, cloneJob(job))
		}
	}

	SortJobsByRequestedAt(result)
	return result, nil
}

func (tx *memTx) CreateJob(job *Job) {
	job.ID = uuid.NewString()
	job.Version = 1
	tx.created = append(tx.created, job)
}

func (tx *memTx) PutJob(job *Job) {
	tx.jobPuts = append(tx.jobPuts, job)
}

func (tx *memTx) PutUnit(unit *Unit) {
	tx.unitPuts = append(tx.unitPuts, unit)
}

func (tx *memTx) AppendLog(entry *ActivityLogEntry) {
	entry.ID = uuid.NewString()
	tx.logPuts = append(tx.logPuts, entry)
}

// Reads hand out copies so callers can mutate and re-stage records without
// leaking uncommitted state into the maps.
func cloneJob(job *Job) *Job {
	c := *job
	if job.AssignedUnitID != nil {
		id := *job.AssignedUnitID
		c.AssignedUnitID = &id
	}
	if job.Services != nil {
		c.Services = append([]string(nil), job.Services...)
	}
	return &c
}

func cloneUnit(unit *Unit) *Unit {
	c := *unit
	if unit.CurrentJobID != nil {
		id := *unit.CurrentJobID
		c.CurrentJobID = &id
	}
	return &c
}
