package webex

import (
	"errors"
	"fmt"
)

// APIError is a non-2xx platform response.
type APIError struct {
	StatusCode int
	Message    string
	TrackingID string
}

func (e *APIError) Error() string {
	if e.TrackingID != "" {
		return fmt.Sprintf("webex: status %d: %s (tracking %s)", e.StatusCode, e.Message, e.TrackingID)
	}
	return fmt.Sprintf("webex: status %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the platform.
func IsNotFound(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.StatusCode == 404
}
