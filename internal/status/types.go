// Package status tracks the export state of every resource for the status API.
package status

import "time"

// FetchPhase represents the current phase of a resource export
type FetchPhase string

const (
	// FetchPhasePending means the resource has not been fetched yet
	FetchPhasePending FetchPhase = "Pending"

	// FetchPhaseFetching means a fetch is currently in progress
	FetchPhaseFetching FetchPhase = "Fetching"

	// FetchPhaseComplete means the last fetch completed successfully
	FetchPhaseComplete FetchPhase = "Complete"

	// FetchPhaseFailed means the last fetch failed
	FetchPhaseFailed FetchPhase = "Failed"

	// FetchPhaseUnknown means the name was notified but is not registered
	FetchPhaseUnknown FetchPhase = "Unknown"
)

// ResourceStatus represents the current export state of one resource
type ResourceStatus struct {
	// Name is the resource name
	Name string `json:"name"`

	// Phase represents the current fetch phase
	Phase FetchPhase `json:"phase"`

	// Message provides additional information, such as the last error
	Message string `json:"message,omitempty"`

	// LastAttempt is the timestamp of the last fetch attempt
	LastAttempt *time.Time `json:"lastAttempt,omitempty"`

	// LastFetchTime is the timestamp of the last successful fetch
	LastFetchTime *time.Time `json:"lastFetchTime,omitempty"`

	// Items is the number of items written by the last successful fetch
	Items int `json:"items"`

	// Duration is how long the last successful fetch took
	Duration string `json:"duration,omitempty"`

	// FetchCount is the number of successful fetches since startup
	FetchCount int `json:"fetchCount"`

	// NotifyCount is how often an unregistered name was seen
	NotifyCount int `json:"notifyCount,omitempty"`
}
