package service

import (
	"errors"
	"testing"
	"time"

	"dispatch-service/internal/storage"
)

func freeUnit(id string, lat, lng float64) *storage.Unit {
	return &storage.Unit{
		ID:        id,
		Name:      id,
		Lat:       lat,
		Lng:       lng,
		Available: true,
	}
}

func busyUnit(id string, lat, lng float64, availableFrom time.Time) *storage.Unit {
	jobID := id + "-job"
	return &storage.Unit{
		ID:            id,
		Name:          id,
		Lat:           lat,
		Lng:           lng,
		Available:     false,
		AvailableFrom: availableFrom,
		CurrentJobID:  &jobID,
	}
}

func TestSelectUnit_NearestFreeUnitWins(t *testing.T) {
	now := time.Now()
	units := []*storage.Unit{
		freeUnit("unit-a", 32.09, 34.79),
		freeUnit("unit-b", 32.30, 34.90),
		freeUnit("unit-c", 31.80, 34.60),
	}

	unit, dist, err := selectUnit(units, nil, 32.08, 34.78, now)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if unit.ID != "unit-a" {
		t.Errorf("Expected unit-a, got %s", unit.ID)
	}

	expected := Distance(32.09, 34.79, 32.08, 34.78)
	if dist != expected {
		t.Errorf("Expected distance %f, got %f", expected, dist)
	}
}

func TestSelectUnit_FreeUnitBeatsBusyUnit(t *testing.T) {
	now := time.Now()
	units := []*storage.Unit{
		// busy unit right next to the customer, free unit far away
		busyUnit("unit-a", 32.08, 34.78, now.Add(5*time.Minute)),
		freeUnit("unit-b", 33.00, 35.50),
	}

	unit, _, err := selectUnit(units, nil, 32.08, 34.78, now)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if unit.ID != "unit-b" {
		t.Errorf("Expected free unit-b over busy unit-a, got %s", unit.ID)
	}
}

func TestSelectUnit_TieBreaksToLowestID(t *testing.T) {
	now := time.Now()
	units := []*storage.Unit{
		freeUnit("unit-b", 32.09, 34.79),
		freeUnit("unit-a", 32.09, 34.79),
	}

	unit, _, err := selectUnit(units, nil, 32.08, 34.78, now)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if unit.ID != "unit-a" {
		t.Errorf("Expected tie to break to unit-a, got %s", unit.ID)
	}
}

func TestSelectUnit_AvailableFromInFutureIsNotFree(t *testing.T) {
	now := time.Now()
	stillBusy := freeUnit("unit-a", 32.08, 34.78)
	stillBusy.AvailableFrom = now.Add(10 * time.Minute)
	units := []*storage.Unit{
		stillBusy,
		freeUnit("unit-b", 33.00, 35.50),
	}

	unit, _, err := selectUnit(units, nil, 32.08, 34.78, now)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if unit.ID != "unit-b" {
		t.Errorf("Expected unit-b, got %s", unit.ID)
	}
}

func TestSelectUnit_AllBusySelectsSoonestFree(t *testing.T) {
	now := time.Now()
	units := []*storage.Unit{
		// nearest but frees up last
		busyUnit("unit-a", 32.08, 34.78, now.Add(40*time.Minute)),
		busyUnit("unit-b", 33.00, 35.50, now.Add(10*time.Minute)),
	}

	unit, _, err := selectUnit(units, nil, 32.08, 34.78, now)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if unit.ID != "unit-b" {
		t.Errorf("Expected soonest-free unit-b, got %s", unit.ID)
	}
}

func TestSelectUnit_AllBusyUsesEffectivePosition(t *testing.T) {
	now := time.Now()
	unitID := "unit-a"
	units := []*storage.Unit{
		busyUnit(unitID, 32.00, 34.70, now.Add(10*time.Minute)),
	}

	// The unit's latest in-flight job is across town; distance must be
	// measured from there, not from the unit's stored location.
	older := &storage.Job{
		ID:             "job-1",
		AssignedUnitID: &unitID,
		Lat:            32.05,
		Lng:            34.75,
		RequestedAt:    now.Add(-time.Hour),
		Status:         storage.StatusInProgress,
	}
	newer := &storage.Job{
		ID:             "job-2",
		AssignedUnitID: &unitID,
		Lat:            32.20,
		Lng:            34.90,
		RequestedAt:    now.Add(-time.Minute),
		Status:         storage.StatusPending,
	}

	_, dist, err := selectUnit(units, []*storage.Job{older, newer}, 32.08, 34.78, now)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	expected := Distance(32.20, 34.90, 32.08, 34.78)
	if dist != expected {
		t.Errorf("Expected distance from latest job location %f, got %f", expected, dist)
	}
}

func TestSelectUnit_NoUnits(t *testing.T) {
	_, _, err := selectUnit(nil, nil, 32.08, 34.78, time.Now())
	if !errors.Is(err, ErrNoUnitAvailable) {
		t.Errorf("Expected ErrNoUnitAvailable, got %v", err)
	}
}

func TestSelectUnit_DeterministicAcrossInputOrder(t *testing.T) {
	now := time.Now()
	build := func(reversed bool) []*storage.Unit {
		units := []*storage.Unit{
			freeUnit("unit-a", 32.09, 34.79),
			freeUnit("unit-b", 32.10, 34.80),
			freeUnit("unit-c", 32.11, 34.81),
		}
		if reversed {
			for i, j := 0, len(units)-1; i < j; i, j = i+1, j-1 {
				units[i], units[j] = units[j], units[i]
			}
		}
		return units
	}

	first, _, err := selectUnit(build(false), nil, 32.08, 34.78, now)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	second, _, err := selectUnit(build(true), nil, 32.08, 34.78, now)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("Expected stable selection, got %s and %s", first.ID, second.ID)
	}
}
