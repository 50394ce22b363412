package service

import "testing"

func TestDistance(t *testing.T) {
	// Distance between San Francisco and Los Angeles (approximately 560km)
	sfLat, sfLng := 37.7749, -122.4194
	laLat, laLng := 34.0522, -118.2437

	distance := Distance(sfLat, sfLng, laLat, laLng)

	if distance < 500 || distance > 600 {
		t.Errorf("Expected distance around 560km, got %f", distance)
	}

	// Same point (should be 0)
	sameDistance := Distance(sfLat, sfLng, sfLat, sfLng)
	if sameDistance > 0.001 {
		t.Errorf("Expected distance 0, got %f", sameDistance)
	}
}

func TestDistance_Symmetric(t *testing.T) {
	aLat, aLng := 32.0853, 34.7818
	bLat, bLng := 31.7683, 35.2137

	forward := Distance(aLat, aLng, bLat, bLng)
	backward := Distance(bLat, bLng, aLat, aLng)

	if forward != backward {
		t.Errorf("Expected symmetric distance, got %f and %f", forward, backward)
	}
}
