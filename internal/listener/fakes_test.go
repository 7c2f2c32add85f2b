package listener

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stacklok/view-exporter/internal/resource"
)

// errScriptDone ends a scripted session once every tick has been delivered
var errScriptDone = errors.New("script exhausted")

// eventLog records what happened, in order
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(event string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// fetchesPerTick groups the fetches that follow each tick expiry.
// Fetches before the first expiry are bootstrap fetches and are returned separately.
func (l *eventLog) fetchesPerTick() (bootstrap []string, ticks [][]string) {
	current := &bootstrap
	for _, event := range l.all() {
		switch {
		case event == "tick":
			ticks = append(ticks, nil)
			current = &ticks[len(ticks)-1]
		case strings.HasPrefix(event, "fetch:"):
			*current = append(*current, strings.TrimPrefix(event, "fetch:"))
		}
	}
	return bootstrap, ticks
}

// scriptedSession delivers a fixed batch of notifications per tick.
// The end of each batch is reported as an expired deadline, so no test waits
// for a real tick. Once every batch is delivered endErr is returned.
type scriptedSession struct {
	events *eventLog
	ticks  [][]string
	tick   int
	pos    int

	endErr    error
	tzErr     error
	listenErr error
}

var _ Session = (*scriptedSession)(nil)

func newScriptedSession(events *eventLog, ticks ...[]string) *scriptedSession {
	return &scriptedSession{events: events, ticks: ticks, endErr: errScriptDone}
}

func (s *scriptedSession) SetTimeZone(_ context.Context, tz string) error {
	s.events.add("tz:" + tz)
	return s.tzErr
}

func (s *scriptedSession) Listen(_ context.Context, channel string) error {
	s.events.add("listen:" + channel)
	return s.listenErr
}

func (s *scriptedSession) WaitForNotification(ctx context.Context) (*pgconn.Notification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.tick >= len(s.ticks) {
		s.events.add("end")
		return nil, s.endErr
	}

	batch := s.ticks[s.tick]
	if s.pos < len(batch) {
		payload := batch[s.pos]
		s.pos++
		s.events.add("notify:" + payload)
		return &pgconn.Notification{PID: 1, Channel: "tms", Payload: payload}, nil
	}

	s.tick++
	s.pos = 0
	s.events.add("tick")
	return nil, context.DeadlineExceeded
}

func (*scriptedSession) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("unexpected query")
}

// fakeResource records its fetches and emits one path per file
type fakeResource struct {
	name   resource.Name
	files  int
	events *eventLog

	// failFrom is the 1-based call from which Fetch fails; 0 never fails
	failFrom int
	err      error
	calls    int
}

var _ resource.Resource = (*fakeResource)(nil)

func (r *fakeResource) Name() resource.Name {
	return r.name
}

func (r *fakeResource) Fetch(_ context.Context, _ resource.Querier, dir string, sink resource.Sink) (int, error) {
	r.calls++
	r.events.add("fetch:" + string(r.name))
	if r.failFrom > 0 && r.calls >= r.failFrom {
		return 0, r.err
	}

	files := max(r.files, 1)
	for i := range files {
		if files == 1 {
			sink.Emit(filepath.Join(dir, string(r.name)))
			continue
		}
		sink.Emit(filepath.Join(dir, string(r.name), strconv.Itoa(i)))
	}
	return files, nil
}

// recordingObserver records observer callbacks
type recordingObserver struct {
	mu        sync.Mutex
	started   []resource.Name
	completed map[resource.Name]int
	done      []resource.Name
	failed    map[resource.Name]error
	unknown   []resource.Name
	bootstrap int
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{
		completed: make(map[resource.Name]int),
		failed:    make(map[resource.Name]error),
	}
}

func (o *recordingObserver) FetchStarted(name resource.Name) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, name)
}

func (o *recordingObserver) FetchCompleted(name resource.Name, items int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed[name] = items
	o.done = append(o.done, name)
}

func (o *recordingObserver) FetchFailed(name resource.Name, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed[name] = err
}

func (o *recordingObserver) UnknownResource(name resource.Name) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unknown = append(o.unknown, name)
}

func (o *recordingObserver) BootstrapCompleted(time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bootstrap++
}

func (o *recordingObserver) bootstrapped() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.bootstrap > 0
}

func (o *recordingObserver) completedCount(name resource.Name) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	count := 0
	for _, done := range o.done {
		if done == name {
			count++
		}
	}
	return count
}
