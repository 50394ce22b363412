package service

import (
	"time"

	"dispatch-service/internal/storage"
)

// advanceQueue runs inside the terminal transition's transaction, after the
// finished job's status has been staged. It promotes the earliest-requested
// pending job still bound to the unit, or frees the unit when none is queued.
// The unit moves to where it last worked either way.
//
// The guard on CurrentJobID makes repeated terminal transitions harmless: a
// second completion of the same job finds the unit already advanced and does
// nothing.
func advanceQueue(tx storage.Tx, unit *storage.Unit, finished *storage.Job, now time.Time) (*storage.Job, error) {
	if unit.CurrentJobID == nil || *unit.CurrentJobID != finished.ID {
		return nil, nil
	}

	pending, err := tx.PendingJobsForUnit(unit.ID)
	if err != nil {
		return nil, err
	}

	unit.Lat = finished.Lat
	unit.Lng = finished.Lng
	unit.LastUpdated = now

	if len(pending) == 0 {
		unit.Available = true
		unit.CurrentJobID = nil
		unit.AvailableFrom = now
		tx.PutUnit(unit)
		return nil, nil
	}

	next := pending[0]
	next.Status = storage.StatusAssigned
	next.UpdatedAt = now
	tx.PutJob(next)

	unit.Available = false
	unit.CurrentJobID = &next.ID
	unit.AvailableFrom = now.Add(time.Duration(next.DurationMinutes) * time.Minute)
	tx.PutUnit(unit)

	tx.AppendLog(&storage.ActivityLogEntry{
		JobID:     next.ID,
		Status:    next.Status,
		UnitID:    unit.ID,
		Note:      "auto-assigned on queue advance",
		Timestamp: now,
	})

	return next, nil
}
