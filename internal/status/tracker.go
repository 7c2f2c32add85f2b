package status

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/stacklok/view-exporter/internal/resource"
)

// MaxUnknownResources bounds how many unregistered names are remembered.
// The least recently notified name is evicted first.
const MaxUnknownResources = 32

// Tracker records fetch progress reported by the listener.
// Readers always receive copies.
type Tracker struct {
	now func() time.Time

	mu                sync.RWMutex
	order             []resource.Name
	statuses          map[resource.Name]*ResourceStatus
	unknown           map[resource.Name]*ResourceStatus
	unknownOrder      []resource.Name
	ready             bool
	bootstrapDuration time.Duration
}

// NewTracker creates a tracker with every registered name pending
func NewTracker(names []resource.Name) *Tracker {
	t := &Tracker{
		now:      time.Now,
		order:    slices.Clone(names),
		statuses: make(map[resource.Name]*ResourceStatus, len(names)),
		unknown:  make(map[resource.Name]*ResourceStatus),
	}
	for _, name := range names {
		t.statuses[name] = &ResourceStatus{Name: string(name), Phase: FetchPhasePending}
	}
	return t
}

// FetchStarted marks name as being fetched
func (t *Tracker) FetchStarted(name resource.Name) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.statusLocked(name)
	now := t.now()
	st.Phase = FetchPhaseFetching
	st.LastAttempt = &now
}

// FetchCompleted records a successful fetch
func (t *Tracker) FetchCompleted(name resource.Name, items int, elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.statusLocked(name)
	now := t.now()
	st.Phase = FetchPhaseComplete
	st.Message = ""
	st.LastFetchTime = &now
	st.Items = items
	st.Duration = elapsed.String()
	st.FetchCount++
}

// FetchFailed records a failed fetch
func (t *Tracker) FetchFailed(name resource.Name, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.statusLocked(name)
	st.Phase = FetchPhaseFailed
	if err != nil {
		st.Message = err.Error()
	}
}

// UnknownResource counts a reference to an unregistered name
func (t *Tracker) UnknownResource(name resource.Name) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.unknown[name]
	if ok {
		t.unknownOrder = slices.DeleteFunc(t.unknownOrder, func(n resource.Name) bool { return n == name })
	} else {
		if len(t.unknownOrder) >= MaxUnknownResources {
			delete(t.unknown, t.unknownOrder[0])
			t.unknownOrder = slices.Delete(t.unknownOrder, 0, 1)
		}
		st = &ResourceStatus{Name: string(name), Phase: FetchPhaseUnknown, Message: "resource is not registered"}
		t.unknown[name] = st
	}
	t.unknownOrder = append(t.unknownOrder, name)
	now := t.now()
	st.LastAttempt = &now
	st.NotifyCount++
}

// BootstrapCompleted marks the tracker ready
func (t *Tracker) BootstrapCompleted(elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ready = true
	t.bootstrapDuration = elapsed
}

// Ready reports whether bootstrap has completed
func (t *Tracker) Ready() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ready
}

// BootstrapDuration returns how long bootstrap took, or zero before it completes
func (t *Tracker) BootstrapDuration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bootstrapDuration
}

// List returns registered resources in registry order followed by
// unregistered names sorted by name
func (t *Tracker) List() []ResourceStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make([]ResourceStatus, 0, len(t.order)+len(t.unknown))
	for _, name := range t.order {
		result = append(result, *t.statuses[name])
	}

	unknown := make([]ResourceStatus, 0, len(t.unknown))
	for _, st := range t.unknown {
		unknown = append(unknown, *st)
	}
	slices.SortFunc(unknown, func(a, b ResourceStatus) int {
		return cmp.Compare(a.Name, b.Name)
	})

	return append(result, unknown...)
}

// Get returns the status of a registered resource
func (t *Tracker) Get(name resource.Name) (ResourceStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st, ok := t.statuses[name]
	if !ok {
		return ResourceStatus{}, false
	}
	return *st, true
}

// statusLocked returns the status for name, creating it for names that were
// not known at construction; t.mu must be held
func (t *Tracker) statusLocked(name resource.Name) *ResourceStatus {
	st, ok := t.statuses[name]
	if !ok {
		st = &ResourceStatus{Name: string(name), Phase: FetchPhasePending}
		t.statuses[name] = st
		t.order = append(t.order, name)
	}
	return st
}
