package domain

import "fmt"

// Variable identifies a meteorological quantity carried by grids and stations.
type Variable string

const (
	VarTemperature   Variable = "temperature"   // air temperature, degrees C
	VarHumidity      Variable = "humidity"      // relative humidity, percent
	VarPrecipitation Variable = "precipitation" // past-hour precipitation, mm
	VarWindSpeed     Variable = "wind_speed"    // 2-minute mean wind speed, m/s
)

// Variables lists every recognized variable.
var Variables = []Variable{VarTemperature, VarHumidity, VarPrecipitation, VarWindSpeed}

// ParseVariable validates a variable name from configuration or input data.
func ParseVariable(s string) (Variable, error) {
	switch Variable(s) {
	case VarTemperature, VarHumidity, VarPrecipitation, VarWindSpeed:
		return Variable(s), nil
	}
	return "", fmt.Errorf("%w: unknown variable %q", ErrConfig, s)
}

// Bounds is the physically valid closed range for a variable's values.
type Bounds struct {
	Min float64 `koanf:"min" json:"min"`
	Max float64 `koanf:"max" json:"max"`
}

// Validate rejects inverted bounds.
func (b Bounds) Validate() error {
	if b.Min > b.Max {
		return fmt.Errorf("%w: bounds min %.2f > max %.2f", ErrConfig, b.Min, b.Max)
	}
	return nil
}

// Clamp forces v into the bounds. Returns the clamped value and whether
// clamping was applied.
func (b Bounds) Clamp(v float64) (float64, bool) {
	switch {
	case v < b.Min:
		return b.Min, true
	case v > b.Max:
		return b.Max, true
	}
	return v, false
}

// DefaultBounds returns the built-in physical range for a variable.
// Configuration may narrow or widen these per run.
func (v Variable) DefaultBounds() Bounds {
	switch v {
	case VarTemperature:
		return Bounds{Min: -90, Max: 60}
	case VarHumidity:
		return Bounds{Min: 0, Max: 100}
	case VarPrecipitation:
		return Bounds{Min: 0, Max: 500}
	case VarWindSpeed:
		return Bounds{Min: 0, Max: 120}
	}
	return Bounds{Min: -1e30, Max: 1e30}
}
