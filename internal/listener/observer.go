package listener

import (
	"time"

	"github.com/stacklok/view-exporter/internal/resource"
)

// Observer is notified about fetch progress. Calls are made from the listener
// goroutine and must not block.
type Observer interface {
	FetchStarted(name resource.Name)
	FetchCompleted(name resource.Name, items int, elapsed time.Duration)
	FetchFailed(name resource.Name, err error)
	UnknownResource(name resource.Name)
	BootstrapCompleted(elapsed time.Duration)
}

// nopObserver discards all events
type nopObserver struct{}

func (nopObserver) FetchStarted(resource.Name)                       {}
func (nopObserver) FetchCompleted(resource.Name, int, time.Duration) {}
func (nopObserver) FetchFailed(resource.Name, error)                 {}
func (nopObserver) UnknownResource(resource.Name)                    {}
func (nopObserver) BootstrapCompleted(time.Duration)                 {}
