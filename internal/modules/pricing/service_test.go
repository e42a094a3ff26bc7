package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"carpool/internal/config"
)

type stubVariables struct {
	vars map[string]float64
	err  error
}

func (s *stubVariables) ActiveVariables(_ context.Context) (map[string]float64, error) {
	return s.vars, s.err
}

func TestTripCost(t *testing.T) {
	rates := config.CostRatesConfig{
		BaseRatePerKm:            2,
		FuelEfficiencyKmPerLiter: 10,
		FuelPricePerLiter:        1.5,
		TollRatePerKm:            0.5,
		DriverRatePerHour:        12,
		Currency:                 "USD",
	}

	tests := []struct {
		name        string
		distanceKm  float64
		durationMin float64
		want        float64
	}{
		// 20*2 + 2*1.5 + 20*0.5 + 0.5*12 = 40 + 3 + 10 + 6
		{name: "distance and duration", distanceKm: 20, durationMin: 30, want: 59},
		{name: "distance only", distanceKm: 10, durationMin: 0, want: 20 + 1.5 + 5},
		{name: "duration only", distanceKm: 0, durationMin: 60, want: 12},
		{name: "negative inputs clamp to zero", distanceKm: -5, durationMin: -10, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TripCost(rates, tt.distanceKm, tt.durationMin)
			assert.InDelta(t, tt.want, got.Total, 1e-9)
			assert.InDelta(t, got.Base+got.Fuel+got.Toll+got.Driver, got.Total, 1e-9)
			assert.Equal(t, "USD", got.Currency)
		})
	}
}

func TestTripCostZeroEfficiencySkipsFuel(t *testing.T) {
	got := TripCost(config.CostRatesConfig{BaseRatePerKm: 1, FuelPricePerLiter: 2}, 10, 0)
	assert.Equal(t, 0.0, got.Fuel)
	assert.Equal(t, 10.0, got.Total)
}

func TestRatesLayering(t *testing.T) {
	defaults := config.DefaultCostRates()

	t.Run("registry overrides defaults", func(t *testing.T) {
		svc := NewService(&stubVariables{vars: map[string]float64{
			VarFuelPricePerLiter:        2.2,
			VarFuelEfficiencyKmPerLiter: 0, // invalid, ignored
		}}, defaults, nil)
		got := svc.Rates(context.Background())
		assert.Equal(t, 2.2, got.FuelPricePerLiter)
		assert.Equal(t, defaults.FuelEfficiencyKmPerLiter, got.FuelEfficiencyKmPerLiter)
		assert.Equal(t, defaults.BaseRatePerKm, got.BaseRatePerKm)
	})

	t.Run("registry failure falls back", func(t *testing.T) {
		svc := NewService(&stubVariables{err: errors.New("timeout")}, defaults, nil)
		assert.Equal(t, defaults, svc.Rates(context.Background()))
	})

	t.Run("no registry", func(t *testing.T) {
		svc := NewService(nil, defaults, nil)
		assert.Equal(t, defaults, svc.Rates(context.Background()))
	})
}
