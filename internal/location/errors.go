package location

import "errors"

// Positioning errors. All three block trip start and carry a remediation
// hint for the operator.
var (
	ErrServicesDisabled            = errors.New("location services are disabled")
	ErrPermissionDenied            = errors.New("location permission denied")
	ErrPermissionPermanentlyDenied = errors.New("location permission permanently denied")
)
