package dispatch

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/outreach/internal/domain"
)

func nextEvent(t *testing.T, sub *Subscription) (Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		return ev, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}, false
	}
}

func TestRegistryCreateAndGet(t *testing.T) {
	r := NewRegistry()

	job := r.Create(3, JobOptions{Source: "upload", BatchSize: 2, BatchDelay: time.Minute})
	require.NotEmpty(t, job.JobID)
	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.Equal(t, 3, job.Total)
	assert.Equal(t, int64(60000), job.BatchDelayMs)
	assert.Empty(t, job.RecentEvents)
	assert.Empty(t, job.Failures)

	got, ok := r.Get(job.JobID)
	require.True(t, ok)
	assert.Equal(t, job.JobID, got.JobID)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistryGetReturnsCopy(t *testing.T) {
	r := NewRegistry()
	job := r.Create(1, JobOptions{})
	r.Update(job.JobID, func(p *domain.JobProgress) {
		p.Failures = append(p.Failures, domain.FailureRecord{ClientEmail: "a@example.com"})
	})

	got, _ := r.Get(job.JobID)
	got.Failures[0].ClientEmail = "mutated"
	got.Sent = 99

	again, _ := r.Get(job.JobID)
	assert.Equal(t, "a@example.com", again.Failures[0].ClientEmail)
	assert.Equal(t, 0, again.Sent)
}

func TestRegistryUpdateCapsRecentEvents(t *testing.T) {
	r := NewRegistry()
	job := r.Create(15, JobOptions{})

	for i := 0; i < 15; i++ {
		r.Update(job.JobID, func(p *domain.JobProgress) {
			p.RecentEvents = append(p.RecentEvents, domain.RecentEvent{ClientEmail: fmt.Sprintf("r%d@example.com", i)})
		})
	}

	got, _ := r.Get(job.JobID)
	require.Len(t, got.RecentEvents, maxRecentEvents)
	assert.Equal(t, "r5@example.com", got.RecentEvents[0].ClientEmail)
	assert.Equal(t, "r14@example.com", got.RecentEvents[9].ClientEmail)
}

func TestRegistryUpdateCannotFinishOrUncancel(t *testing.T) {
	r := NewRegistry()
	job := r.Create(1, JobOptions{})
	r.RequestCancel(job.JobID)

	snap, ok := r.Update(job.JobID, func(p *domain.JobProgress) {
		p.Status = domain.JobStatusCompleted
		p.CancelRequested = false
		p.JobID = "other"
	})
	require.True(t, ok)
	assert.Equal(t, domain.JobStatusQueued, snap.Status)
	assert.True(t, snap.CancelRequested)
	assert.Equal(t, job.JobID, snap.JobID)
}

func TestRegistryCompleteIsFinal(t *testing.T) {
	clock := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	r := NewRegistry(WithClock(func() time.Time { return clock }))
	job := r.Create(2, JobOptions{})

	done, ok := r.Complete(job.JobID, domain.TerminalFailed, "smtp down")
	require.True(t, ok)
	assert.Equal(t, domain.JobStatusFailed, done.Status)
	assert.Equal(t, "smtp down", done.ErrorMessage)
	require.NotNil(t, done.CompletedAt)

	clock = clock.Add(time.Hour)
	again, _ := r.Complete(job.JobID, domain.TerminalCompleted, "")
	assert.Equal(t, domain.JobStatusFailed, again.Status)
	assert.Equal(t, *done.CompletedAt, *again.CompletedAt)

	updated, _ := r.Update(job.JobID, func(p *domain.JobProgress) { p.Sent = 2 })
	assert.Equal(t, 0, updated.Sent)
}

func TestRegistryCompleteRejectsUnknownStatus(t *testing.T) {
	r := NewRegistry()
	job := r.Create(1, JobOptions{})

	done, _ := r.Complete(job.JobID, domain.TerminalStatus("done"), "")
	assert.Equal(t, domain.JobStatusFailed, done.Status)
	assert.Contains(t, done.ErrorMessage, "invalid terminal status")
}

func TestRegistryRequestCancelIdempotent(t *testing.T) {
	r := NewRegistry()
	job := r.Create(4, JobOptions{})

	sub, ok := r.Subscribe(job.JobID)
	require.True(t, ok)
	defer sub.Close()
	first, _ := nextEvent(t, sub)
	assert.False(t, first.Job.CancelRequested)

	a, ok := r.RequestCancel(job.JobID)
	require.True(t, ok)
	b, ok := r.RequestCancel(job.JobID)
	require.True(t, ok)
	assert.True(t, a.CancelRequested)
	assert.Equal(t, a.UpdatedAt, b.UpdatedAt)
	assert.True(t, r.CancelRequested(job.JobID))

	ev, _ := nextEvent(t, sub)
	assert.True(t, ev.Job.CancelRequested)

	// the second request published nothing, so the next event is the completion
	r.Complete(job.JobID, domain.TerminalCancelled, "")
	ev, _ = nextEvent(t, sub)
	assert.Equal(t, EventComplete, ev.Type)

	select {
	case <-r.cancelSignal(job.JobID):
	default:
		t.Fatal("cancel signal not closed")
	}
}

func TestRegistryRequestCancelOnTerminalJob(t *testing.T) {
	r := NewRegistry()
	job := r.Create(1, JobOptions{})
	r.Complete(job.JobID, domain.TerminalCompleted, "")

	snap, ok := r.RequestCancel(job.JobID)
	require.True(t, ok)
	assert.Equal(t, domain.JobStatusCompleted, snap.Status)
	assert.False(t, snap.CancelRequested)

	_, ok = r.RequestCancel("missing")
	assert.False(t, ok)
}

func TestRegistryListRecent(t *testing.T) {
	r := NewRegistry()
	var ids []string
	for i := 0; i < 25; i++ {
		ids = append(ids, r.Create(i+1, JobOptions{}).JobID)
	}
	r.Update(ids[24], func(p *domain.JobProgress) {
		for i := 0; i < 8; i++ {
			p.Failures = append(p.Failures, domain.FailureRecord{Error: fmt.Sprintf("e%d", i)})
		}
	})

	jobs := r.ListRecent()
	require.Len(t, jobs, DefaultHistoryLimit)
	for i, job := range jobs {
		assert.Equal(t, ids[i+5], job.JobID)
	}
	assert.Len(t, jobs[19].Failures, maxListedFailures)

	full, _ := r.Get(ids[24])
	assert.Len(t, full.Failures, 8)
}

func TestRegistryListRecentCustomLimit(t *testing.T) {
	r := NewRegistry(WithHistoryLimit(2))
	r.Create(1, JobOptions{})
	b := r.Create(1, JobOptions{})
	c := r.Create(1, JobOptions{})

	jobs := r.ListRecent()
	require.Len(t, jobs, 2)
	assert.Equal(t, b.JobID, jobs[0].JobID)
	assert.Equal(t, c.JobID, jobs[1].JobID)
}

func TestSubscribeReplaysSnapshotThenEvents(t *testing.T) {
	r := NewRegistry()
	job := r.Create(2, JobOptions{})
	r.Update(job.JobID, func(p *domain.JobProgress) { p.Status = domain.JobStatusRunning })

	sub, ok := r.Subscribe(job.JobID)
	require.True(t, ok)
	defer sub.Close()

	r.Update(job.JobID, func(p *domain.JobProgress) { p.Processed, p.Sent = 1, 1 })
	r.Update(job.JobID, func(p *domain.JobProgress) { p.Processed, p.Sent = 2, 2 })
	r.Complete(job.JobID, domain.TerminalCompleted, "")

	var got []Event
	for ev := range sub.Events() {
		got = append(got, ev)
	}
	require.Len(t, got, 4)
	assert.Equal(t, EventProgress, got[0].Type)
	assert.Equal(t, domain.JobStatusRunning, got[0].Job.Status)
	assert.Equal(t, 0, got[0].Job.Processed)
	assert.Equal(t, 1, got[1].Job.Processed)
	assert.Equal(t, 2, got[2].Job.Processed)
	assert.Equal(t, EventComplete, got[3].Type)
	assert.Equal(t, domain.JobStatusCompleted, got[3].Job.Status)
}

func TestSubscribeToTerminalJob(t *testing.T) {
	r := NewRegistry()
	job := r.Create(1, JobOptions{})
	r.Complete(job.JobID, domain.TerminalCancelled, "")

	sub, ok := r.Subscribe(job.JobID)
	require.True(t, ok)

	first, ok := nextEvent(t, sub)
	require.True(t, ok)
	assert.Equal(t, EventProgress, first.Type)
	assert.Equal(t, domain.JobStatusCancelled, first.Job.Status)

	second, ok := nextEvent(t, sub)
	require.True(t, ok)
	assert.Equal(t, EventComplete, second.Type)

	_, ok = nextEvent(t, sub)
	assert.False(t, ok)

	_, ok = r.Subscribe("missing")
	assert.False(t, ok)
}

func TestSubscriptionCloseStopsDelivery(t *testing.T) {
	r := NewRegistry()
	job := r.Create(1, JobOptions{})

	sub, _ := r.Subscribe(job.JobID)
	nextEvent(t, sub)
	sub.Close()
	sub.Close()

	r.Update(job.JobID, func(p *domain.JobProgress) { p.Processed = 1 })

	_, ok := nextEvent(t, sub)
	assert.False(t, ok)

	r.mu.RLock()
	count := r.jobs[job.JobID].bus.subscriberCount()
	r.mu.RUnlock()
	assert.Equal(t, 0, count)
}

func TestSubscribersAreIndependent(t *testing.T) {
	r := NewRegistry()
	job := r.Create(3, JobOptions{})

	slow, _ := r.Subscribe(job.JobID)
	fast, _ := r.Subscribe(job.JobID)
	defer slow.Close()
	defer fast.Close()

	for i := 1; i <= 3; i++ {
		r.Update(job.JobID, func(p *domain.JobProgress) { p.Processed = i })
	}
	r.Complete(job.JobID, domain.TerminalCompleted, "")

	var fastSeen []int
	for ev := range fast.Events() {
		fastSeen = append(fastSeen, ev.Job.Processed)
	}
	var slowSeen []int
	for ev := range slow.Events() {
		slowSeen = append(slowSeen, ev.Job.Processed)
	}

	assert.Equal(t, []int{0, 1, 2, 3, 3}, fastSeen)
	assert.Equal(t, fastSeen, slowSeen)
}

func TestWatchCallbacks(t *testing.T) {
	r := NewRegistry()
	job := r.Create(1, JobOptions{})

	var (
		mu       sync.Mutex
		progress []int
	)
	done := make(chan domain.JobProgress, 1)
	unsubscribe, ok := r.Watch(job.JobID, func(p domain.JobProgress) {
		mu.Lock()
		progress = append(progress, p.Processed)
		mu.Unlock()
	}, func(p domain.JobProgress) {
		done <- p
	})
	require.True(t, ok)
	defer unsubscribe()

	r.Update(job.JobID, func(p *domain.JobProgress) { p.Processed, p.Sent = 1, 1 })
	r.Complete(job.JobID, domain.TerminalCompleted, "")

	select {
	case final := <-done:
		assert.Equal(t, domain.JobStatusCompleted, final.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("onComplete not called")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1}, progress)

	_, ok = r.Watch("missing", nil, nil)
	assert.False(t, ok)
}

func TestWatchDeliversSnapshotBeforeReturning(t *testing.T) {
	r := NewRegistry()
	job := r.Create(3, JobOptions{})
	r.Update(job.JobID, func(p *domain.JobProgress) { p.Processed, p.Sent = 2, 2 })

	var got []domain.JobProgress
	unsubscribe, ok := r.Watch(job.JobID, func(p domain.JobProgress) {
		got = append(got, p)
	}, nil)
	require.True(t, ok)
	defer unsubscribe()

	// No synchronization: the snapshot callback must already have run.
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Processed)
	assert.Equal(t, 3, got[0].Total)
}
