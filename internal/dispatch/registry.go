package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/outreach/internal/domain"
)

const (
	// DefaultHistoryLimit is the number of jobs returned by ListRecent.
	DefaultHistoryLimit = 20

	maxRecentEvents   = 10
	maxListedFailures = 5
)

// Registry is the process-wide, in-memory store of dispatch jobs.
// Every mutation publishes a snapshot to the job's subscribers while the
// registry lock is held, so subscribers observe events in emission order.
type Registry struct {
	mu           sync.RWMutex
	jobs         map[string]*jobEntry
	order        []string
	historyLimit int
	now          func() time.Time
}

type jobEntry struct {
	state    domain.JobProgress
	bus      *bus
	cancelCh chan struct{}
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithHistoryLimit sets how many jobs ListRecent returns.
func WithHistoryLimit(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.historyLimit = n
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		jobs:         make(map[string]*jobEntry),
		historyLimit: DefaultHistoryLimit,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// JobOptions carries the descriptive fields of a new job.
type JobOptions struct {
	Source     string
	CampaignID string
	DryRun     bool
	BatchSize  int
	BatchDelay time.Duration
}

// Create registers a queued job for total recipients and returns its snapshot.
func (r *Registry) Create(total int, opts JobOptions) domain.JobProgress {
	now := r.now()
	state := domain.JobProgress{
		JobID:        uuid.NewString(),
		Status:       domain.JobStatusQueued,
		Source:       opts.Source,
		CampaignID:   opts.CampaignID,
		DryRun:       opts.DryRun,
		Total:        total,
		BatchSize:    opts.BatchSize,
		BatchDelayMs: opts.BatchDelay.Milliseconds(),
		RecentEvents: []domain.RecentEvent{},
		Failures:     []domain.FailureRecord{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	r.mu.Lock()
	r.jobs[state.JobID] = &jobEntry{
		state:    state,
		bus:      newBus(),
		cancelCh: make(chan struct{}),
	}
	r.order = append(r.order, state.JobID)
	r.mu.Unlock()

	return state.Clone()
}

// Get returns a copy of the job's current state.
func (r *Registry) Get(id string) (domain.JobProgress, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[id]
	if !ok {
		return domain.JobProgress{}, false
	}
	return e.state.Clone(), true
}

// Update applies mutate to the job and publishes the resulting snapshot.
// The mutator writes only the fields it owns. Updates to a terminal job are
// ignored and the unchanged snapshot is returned without publishing; the
// job identity and terminal transitions belong to Create and Complete.
func (r *Registry) Update(id string, mutate func(p *domain.JobProgress)) (domain.JobProgress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok {
		return domain.JobProgress{}, false
	}
	if e.state.Status.IsTerminal() {
		return e.state.Clone(), true
	}

	prevStatus := e.state.Status
	cancelRequested := e.state.CancelRequested
	mutate(&e.state)

	e.state.JobID = id
	if e.state.Status.IsTerminal() {
		e.state.Status = prevStatus
	}
	// write-once flag, only RequestCancel sets it
	e.state.CancelRequested = cancelRequested
	if n := len(e.state.RecentEvents); n > maxRecentEvents {
		e.state.RecentEvents = append([]domain.RecentEvent(nil), e.state.RecentEvents[n-maxRecentEvents:]...)
	}

	snap := e.state.Clone()
	e.bus.publish(Event{Type: EventProgress, Job: snap})
	return snap, true
}

// Complete moves the job into a terminal status, notifies subscribers and
// closes its event stream. Completing an already terminal job is a no-op.
func (r *Registry) Complete(id string, status domain.TerminalStatus, errMsg string) (domain.JobProgress, bool) {
	if !status.Valid() {
		errMsg = fmt.Sprintf("invalid terminal status %q", status)
		status = domain.TerminalFailed
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok {
		return domain.JobProgress{}, false
	}
	if e.state.Status.IsTerminal() {
		return e.state.Clone(), true
	}

	now := r.now()
	e.state.Status = status.JobStatus()
	e.state.UpdatedAt = now
	e.state.CompletedAt = &now
	e.state.EstimatedRemainingMs = 0
	e.state.EstimatedCompletionAt = nil
	if errMsg != "" {
		e.state.ErrorMessage = errMsg
	}

	snap := e.state.Clone()
	e.bus.close(snap)
	return snap, true
}

// RequestCancel flags the job for cooperative cancellation. The flag is
// write-once; repeated requests and requests on terminal jobs change nothing.
func (r *Registry) RequestCancel(id string) (domain.JobProgress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.jobs[id]
	if !ok {
		return domain.JobProgress{}, false
	}
	if e.state.Status.IsTerminal() || e.state.CancelRequested {
		return e.state.Clone(), true
	}

	e.state.CancelRequested = true
	e.state.UpdatedAt = r.now()
	close(e.cancelCh)

	snap := e.state.Clone()
	e.bus.publish(Event{Type: EventProgress, Job: snap})
	return snap, true
}

// CancelRequested reports whether cancellation was requested for the job.
func (r *Registry) CancelRequested(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.jobs[id]
	return ok && e.state.CancelRequested
}

// cancelSignal returns a channel closed once cancellation is requested.
func (r *Registry) cancelSignal(id string) <-chan struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.jobs[id]; ok {
		return e.cancelCh
	}
	return nil
}

// ListRecent returns the most recently created jobs in creation order,
// with failures truncated for listing.
func (r *Registry) ListRecent() []domain.JobProgress {
	r.mu.RLock()
	defer r.mu.RUnlock()

	start := len(r.order) - r.historyLimit
	if start < 0 {
		start = 0
	}

	out := make([]domain.JobProgress, 0, len(r.order)-start)
	for _, id := range r.order[start:] {
		snap := r.jobs[id].state.Clone()
		if len(snap.Failures) > maxListedFailures {
			snap.Failures = snap.Failures[:maxListedFailures]
		}
		out = append(out, snap)
	}
	return out
}

// Subscribe attaches an observer to the job. The first event is always the
// current snapshot; a terminal job yields its snapshot, the complete event,
// and a closed channel.
func (r *Registry) Subscribe(id string) (*Subscription, bool) {
	// Read lock excludes publishers, so nothing is emitted between the
	// snapshot and the registration.
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	return e.bus.subscribe(e.state.Clone()), true
}

// Watch is the callback form of Subscribe. onProgress receives the current
// snapshot before Watch returns; later events are delivered from a separate
// goroutine. The returned function detaches the observer and may be called
// more than once.
func (r *Registry) Watch(id string, onProgress, onComplete func(domain.JobProgress)) (func(), bool) {
	sub, ok := r.Subscribe(id)
	if !ok {
		return func() {}, false
	}

	deliver := func(ev Event) {
		switch ev.Type {
		case EventProgress:
			if onProgress != nil {
				onProgress(ev.Job)
			}
		case EventComplete:
			if onComplete != nil {
				onComplete(ev.Job)
			}
		}
	}

	// Subscribe queues the snapshot first, so this receive does not wait on
	// the job.
	if ev, open := <-sub.Events(); open {
		deliver(ev)
	}

	go func() {
		for ev := range sub.Events() {
			if sub.closed() {
				return
			}
			deliver(ev)
		}
	}()

	return sub.Close, true
}
