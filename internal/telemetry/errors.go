package telemetry

import (
	"errors"
	"fmt"
)

// ValidationError marks a sample the ingestion endpoint would never accept.
// Requeuing such a sample cannot succeed, so callers must drop it.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid gps sample: " + e.Reason
}

// DeliveryError reports a delivery attempt that may succeed later.
// StatusCode is zero when the request never reached the server.
type DeliveryError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sending gps sample: %v", e.Err)
	}
	return fmt.Sprintf("gps endpoint returned %d: %s", e.StatusCode, e.Body)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Retryable reports whether retrying the same delivery could succeed.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var verr *ValidationError
	return !errors.As(err, &verr)
}
