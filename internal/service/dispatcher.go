package service

import (
	"sort"
	"time"

	"dispatch-service/internal/storage"
)

// selectUnit picks a unit for a new job from a snapshot of units and
// in-flight jobs.
//
// Scenario 1: if any unit is free right now, the nearest free unit wins.
// Scenario 2: with every unit busy, the unit that frees up soonest wins
// regardless of proximity; its distance is measured from its effective
// position, the location of its most recently requested in-flight job.
// Ties break to the lowest unit ID.
func selectUnit(units []*storage.Unit, activeJobs []*storage.Job, lat, lng float64, now time.Time) (*storage.Unit, float64, error) {
	if len(units) == 0 {
		return nil, 0, ErrNoUnitAvailable
	}

	sorted := make([]*storage.Unit, len(units))
	copy(sorted, units)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var nearest *storage.Unit
	var nearestDist float64
	for _, unit := range sorted {
		if !unitFree(unit, now) {
			continue
		}

		dist := Distance(unit.Lat, unit.Lng, lat, lng)
		if nearest == nil || dist < nearestDist {
			nearest = unit
			nearestDist = dist
		}
	}
	if nearest != nil {
		return nearest, nearestDist, nil
	}

	// Most recently requested in-flight job per unit.
	latest := make(map[string]*storage.Job)
	for _, job := range activeJobs {
		if job.AssignedUnitID == nil {
			continue
		}
		current := latest[*job.AssignedUnitID]
		if current == nil || job.RequestedAt.After(current.RequestedAt) {
			latest[*job.AssignedUnitID] = job
		}
	}

	var soonest *storage.Unit
	var soonestDist float64
	for _, unit := range sorted {
		effLat, effLng := unit.Lat, unit.Lng
		if job := latest[unit.ID]; job != nil {
			effLat, effLng = job.Lat, job.Lng
		}

		dist := Distance(effLat, effLng, lat, lng)
		if soonest == nil || unit.AvailableFrom.Before(soonest.AvailableFrom) {
			soonest = unit
			soonestDist = dist
		}
	}

	return soonest, soonestDist, nil
}

// unitFree reports whether a unit can take a new job immediately.
func unitFree(unit *storage.Unit, now time.Time) bool {
	return unit.Available && !unit.AvailableFrom.After(now)
}
