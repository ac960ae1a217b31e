package ai

import (
	"errors"
	"fmt"
)

var ErrUnavailable = errors.New("ai provider not configured")

// ProviderError carries the upstream HTTP status of a failed provider call so
// the error classifier can apply its status-code rules.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s request failed: status=%d: %s", e.Provider, e.Status, e.Message)
	}
	return fmt.Sprintf("%s request failed: %s", e.Provider, e.Message)
}

func (e *ProviderError) HTTPStatus() int {
	return e.Status
}
