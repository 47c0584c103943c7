package domain

import "time"

// QCSentinel is the threshold above which station archive values encode a
// quality-control failure rather than a measurement.
const QCSentinel = 9999.0

// StationObservation is one ground-truth reading: (station, variable,
// timestamp) with a nullable value. A nil Value is a missing reading; it is
// representable and excluded from training, never imputed.
type StationObservation struct {
	StationID string    `json:"station_id"`
	Name      string    `json:"name,omitempty"`
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lon"`
	Elevation float64   `json:"elevation"`
	Variable  Variable  `json:"variable"`
	Timestamp time.Time `json:"timestamp"`
	Value     *float64  `json:"value"`
}

// HasValue reports whether the reading is present.
func (o StationObservation) HasValue() bool { return o.Value != nil }

// SanitizeObservation maps QC sentinel values (> 9999) to missing. The
// original archives use 999999-style codes for failed sensors.
func SanitizeObservation(o StationObservation) StationObservation {
	if o.Value != nil && *o.Value > QCSentinel {
		o.Value = nil
	}
	return o
}

// Float64Ptr is a convenience for building observations in fixtures and tests.
func Float64Ptr(v float64) *float64 { return &v }
