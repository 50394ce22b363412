package service

import (
	"fmt"
	"math"
)

// PricingConfig holds pricing and duration parameters. Requested services add
// time on site but never money: only level and travel distance price a job.
type PricingConfig struct {
	BasePrice     float64 `yaml:"base_price"`      // Base price for any visit
	PerLevelPrice float64 `yaml:"per_level_price"` // Added per intensity level
	PerKmPrice    float64 `yaml:"per_km_price"`    // Added per kilometer of travel

	BaseMinutes     int            `yaml:"base_minutes"`      // Base time on site
	PerLevelMinutes int            `yaml:"per_level_minutes"` // Added per intensity level
	ExtraMinutes    map[string]int `yaml:"extra_minutes"`     // Duration add-ons per optional service
}

// DefaultPricingConfig returns the standard rate card
func DefaultPricingConfig() *PricingConfig {
	return &PricingConfig{
		BasePrice:       50,
		PerLevelPrice:   20,
		PerKmPrice:      2,
		BaseMinutes:     30,
		PerLevelMinutes: 10,
		ExtraMinutes: map[string]int{
			"polish": 15,
			"wax":    10,
		},
	}
}

// Quote computes the price (rounded to a whole currency unit) and the
// duration in minutes for a job.
func (p *PricingConfig) Quote(level int, distanceKm float64, services []string) (float64, int, error) {
	if level < 1 || level > 5 {
		return 0, 0, fmt.Errorf("%w: level must be between 1 and 5, got %d", ErrInvalidInput, level)
	}
	if distanceKm < 0 {
		return 0, 0, fmt.Errorf("%w: distance must not be negative, got %f", ErrInvalidInput, distanceKm)
	}

	minutes := p.BaseMinutes + p.PerLevelMinutes*level
	for _, svc := range services {
		minutes += p.ExtraMinutes[svc]
	}

	price := math.Round(p.BasePrice + p.PerLevelPrice*float64(level) + p.PerKmPrice*distanceKm)

	return price, minutes, nil
}
