// README: Cost variable codes and trip cost breakdown.
package pricing

const (
	VarBaseRatePerKm            = "base_rate_per_km"
	VarFuelEfficiencyKmPerLiter = "fuel_efficiency_km_per_liter"
	VarFuelPricePerLiter        = "fuel_price_per_liter"
	VarTollRatePerKm            = "toll_rate_per_km"
	VarDriverRatePerHour        = "driver_rate_per_hour"
)

// Breakdown is the trip cost split into its components.
type Breakdown struct {
	DistanceKm  float64 `json:"distance_km"`
	DurationMin float64 `json:"duration_min"`
	Base        float64 `json:"base"`
	Fuel        float64 `json:"fuel"`
	Toll        float64 `json:"toll"`
	Driver      float64 `json:"driver"`
	Total       float64 `json:"total"`
	Currency    string  `json:"currency"`
}
