package models

import "errors"

// ErrConfig marks fatal configuration problems: invalid weights, unknown
// pillar/indicator references, malformed regime tables. A run must not
// proceed past an ErrConfig. Per-cell data problems are never errors; they
// propagate as missing cells.
var ErrConfig = errors.New("invalid configuration")
