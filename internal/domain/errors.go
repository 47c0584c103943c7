package domain

import "errors"

// ErrConfig marks ConfigurationError-class conditions: unrecognized options,
// inverted clamp bounds, mismatched georeferencing. These are fatal at the
// point of use — the operation fails instead of proceeding ambiguously.
// Per-sample and per-key data problems are not errors; they surface as counts
// in reports.
var ErrConfig = errors.New("invalid configuration")

// ErrShape marks grid construction with inconsistent dimensions.
var ErrShape = errors.New("grid shape mismatch")
