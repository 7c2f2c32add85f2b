package listener

import (
	"fmt"

	"github.com/stacklok/view-exporter/internal/resource"
)

// SetupError is returned when the session cannot be prepared for listening
type SetupError struct {
	// Step is the setup statement that failed, e.g. "set time zone"
	Step string
	Err  error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("listener setup failed (%s): %v", e.Step, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// FetchError is returned when a resource fails to export
type FetchError struct {
	Name resource.Name
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch resource %s: %v", e.Name, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// NotificationError is returned when waiting for a notification fails for any
// reason other than the tick expiring
type NotificationError struct {
	Err error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("failed to receive notification: %v", e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}
