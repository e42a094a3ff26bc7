// README: Pricing service resolves cost rates and computes trip cost.
package pricing

import (
	"context"

	"go.uber.org/zap"

	"carpool/internal/config"
)

// VariableSource is the externally managed cost-variable registry.
type VariableSource interface {
	ActiveVariables(ctx context.Context) (map[string]float64, error)
}

type Service struct {
	source   VariableSource
	defaults config.CostRatesConfig
	log      *zap.Logger
}

func NewService(source VariableSource, defaults config.CostRatesConfig, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{source: source, defaults: defaults, log: log}
}

// Rates returns the registry values layered over the defaults; it never fails.
func (s *Service) Rates(ctx context.Context) config.CostRatesConfig {
	r := s.defaults
	if s.source == nil {
		return r
	}
	vars, err := s.source.ActiveVariables(ctx)
	if err != nil {
		s.log.Warn("cost variables unavailable, using defaults", zap.Error(err))
		return r
	}
	if v, ok := vars[VarBaseRatePerKm]; ok && v >= 0 {
		r.BaseRatePerKm = v
	}
	// Zero efficiency would divide by zero in TripCost.
	if v, ok := vars[VarFuelEfficiencyKmPerLiter]; ok && v > 0 {
		r.FuelEfficiencyKmPerLiter = v
	}
	if v, ok := vars[VarFuelPricePerLiter]; ok && v >= 0 {
		r.FuelPricePerLiter = v
	}
	if v, ok := vars[VarTollRatePerKm]; ok && v >= 0 {
		r.TollRatePerKm = v
	}
	if v, ok := vars[VarDriverRatePerHour]; ok && v >= 0 {
		r.DriverRatePerHour = v
	}
	return r
}

// TripCost applies the cost model:
//
//	D*base + (D/efficiency)*fuelPrice + D*toll + (T/60)*driverRate
func TripCost(r config.CostRatesConfig, distanceKm, durationMin float64) Breakdown {
	if distanceKm < 0 {
		distanceKm = 0
	}
	if durationMin < 0 {
		durationMin = 0
	}
	b := Breakdown{
		DistanceKm:  distanceKm,
		DurationMin: durationMin,
		Base:        distanceKm * r.BaseRatePerKm,
		Toll:        distanceKm * r.TollRatePerKm,
		Driver:      durationMin / 60 * r.DriverRatePerHour,
		Currency:    r.Currency,
	}
	if r.FuelEfficiencyKmPerLiter > 0 {
		b.Fuel = distanceKm / r.FuelEfficiencyKmPerLiter * r.FuelPricePerLiter
	}
	b.Total = b.Base + b.Fuel + b.Toll + b.Driver
	return b
}
