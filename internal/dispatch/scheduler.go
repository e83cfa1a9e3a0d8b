package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"time"

	"github.com/timmy/outreach/internal/domain"
	"github.com/timmy/outreach/internal/logger"
)

// ErrNoRecipients is returned when a plan has nobody to send to.
var ErrNoRecipients = errors.New("dispatch: no recipients")

// Sender delivers one message to one recipient.
type Sender interface {
	Send(ctx context.Context, unit domain.RecipientUnit) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, unit domain.RecipientUnit) error

// Send calls f(ctx, unit).
func (f SenderFunc) Send(ctx context.Context, unit domain.RecipientUnit) error {
	return f(ctx, unit)
}

// ResultSink records per-recipient outcomes and renders the downloadable
// result once the job stops. It is only called from the job's goroutine.
type ResultSink interface {
	MarkAccepted(unit domain.RecipientUnit, at time.Time)
	MarkError(unit domain.RecipientUnit, at time.Time, message string)
	MarkCancelled(unit domain.RecipientUnit, at time.Time)
	Materialize(jobID string) (domain.ResultArtifact, error)
}

// Observer receives best-effort notifications outside the progress stream,
// for example to mirror counters into the campaign record.
type Observer interface {
	JobProgressed(ctx context.Context, job domain.JobProgress)
	JobFinished(ctx context.Context, job domain.JobProgress)
}

// Plan describes one dispatch job.
type Plan struct {
	Recipients []domain.RecipientUnit
	BatchSize  int
	BatchDelay time.Duration
	Sender     Sender
	Sink       ResultSink
	Observers  []Observer

	Source     string
	CampaignID string
	DryRun     bool
}

// SleepFunc waits for d. It returns early with nil when cancel is closed and
// with an error when ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration, cancel <-chan struct{}) error

// Scheduler runs dispatch jobs in detached goroutines.
type Scheduler struct {
	registry  *Registry
	limiter   *Limiter
	artifacts *ArtifactStore
	baseCtx   context.Context
	now       func() time.Time
	sleep     SleepFunc
	wg        sync.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithSleep replaces the pacing wait.
func WithSleep(sleep SleepFunc) SchedulerOption {
	return func(s *Scheduler) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// WithSchedulerClock replaces time.Now for timestamps and estimates.
func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler creates a scheduler. Jobs run under baseCtx; cancelling it
// fails running jobs at their next admission or pacing wait.
func NewScheduler(baseCtx context.Context, registry *Registry, limiter *Limiter, artifacts *ArtifactStore, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		registry:  registry,
		limiter:   limiter,
		artifacts: artifacts,
		baseCtx:   baseCtx,
		now:       time.Now,
		sleep:     sleepOrCancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the job and launches its goroutine. It returns the queued
// snapshot without waiting for any send.
func (s *Scheduler) Start(plan Plan) (domain.JobProgress, error) {
	if plan.Sender == nil {
		return domain.JobProgress{}, errors.New("dispatch: plan has no sender")
	}
	if len(plan.Recipients) == 0 {
		return domain.JobProgress{}, ErrNoRecipients
	}
	if plan.BatchSize < 1 {
		plan.BatchSize = 1
	}
	if plan.BatchDelay < 0 {
		plan.BatchDelay = 0
	}
	plan.Recipients = append([]domain.RecipientUnit(nil), plan.Recipients...)
	plan.Observers = append([]Observer(nil), plan.Observers...)

	job := s.registry.Create(len(plan.Recipients), JobOptions{
		Source:     plan.Source,
		CampaignID: plan.CampaignID,
		DryRun:     plan.DryRun,
		BatchSize:  plan.BatchSize,
		BatchDelay: plan.BatchDelay,
	})

	s.wg.Add(1)
	go s.run(job.JobID, plan)

	return job, nil
}

// Wait blocks until every started job has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

type counters struct {
	processed int
	sent      int
	errors    int
}

func (s *Scheduler) run(jobID string, plan Plan) {
	defer s.wg.Done()
	if closer, ok := plan.Sink.(io.Closer); ok {
		defer closer.Close()
	}

	ctx := logger.ForJob(s.baseCtx, logger.JobScope{
		JobID:      jobID,
		Source:     plan.Source,
		CampaignID: plan.CampaignID,
	})

	startedAt := s.now()
	defer func() {
		if rec := recover(); rec != nil {
			logger.CtxError(ctx, "Dispatch loop panicked: %v\n%s", rec, debug.Stack())
			s.finish(ctx, jobID, plan, domain.TerminalFailed, fmt.Sprintf("dispatch loop panicked: %v", rec), startedAt)
		}
	}()

	n := len(plan.Recipients)
	batchSize := plan.BatchSize
	delay := plan.BatchDelay
	totalBatches := (n + batchSize - 1) / batchSize
	initial := time.Duration(max(0, totalBatches-1)) * delay

	snap, _ := s.registry.Update(jobID, func(p *domain.JobProgress) {
		eta := startedAt.Add(initial)
		p.Status = domain.JobStatusRunning
		p.StartedAt = &startedAt
		p.UpdatedAt = startedAt
		p.EstimatedRemainingMs = initial.Milliseconds()
		p.EstimatedCompletionAt = &eta
	})
	s.notifyProgress(ctx, plan, snap)

	logger.With(logger.Fields{
		logger.FieldCount: n,
	}).Info(ctx, "Dispatch started: batches=%d, batch_size=%d, batch_delay=%s", totalBatches, batchSize, delay)

	cancelled := s.registry.cancelSignal(jobID)
	var c counters

	for i := 0; i < n; i += batchSize {
		if s.registry.CancelRequested(jobID) {
			s.cancel(ctx, jobID, plan, i, startedAt)
			return
		}

		end := min(i+batchSize, n)
		for j := i; j < end; j++ {
			if s.registry.CancelRequested(jobID) {
				s.cancel(ctx, jobID, plan, j, startedAt)
				return
			}
			if err := s.process(ctx, jobID, plan, &c, plan.Recipients[j], totalBatches); err != nil {
				s.finish(ctx, jobID, plan, domain.TerminalFailed, err.Error(), startedAt)
				return
			}
		}

		if end < n && delay > 0 {
			if err := s.sleep(ctx, delay, cancelled); err != nil {
				s.finish(ctx, jobID, plan, domain.TerminalFailed, fmt.Sprintf("batch pacing interrupted: %v", err), startedAt)
				return
			}
		}
	}

	s.materialize(ctx, jobID, plan)
	s.finish(ctx, jobID, plan, domain.TerminalCompleted, "", startedAt)
}

// process sends to one recipient. Send failures are recorded on the job;
// only limiter admission failures are returned.
func (s *Scheduler) process(ctx context.Context, jobID string, plan Plan, c *counters, unit domain.RecipientUnit, totalBatches int) error {
	err := s.limiter.Do(ctx, func(ctx context.Context) error {
		return safeSend(ctx, plan.Sender, unit)
	})
	if errors.Is(err, ErrAdmission) {
		return err
	}

	now := s.now()
	c.processed++
	waits := max(0, totalBatches-c.processed/plan.BatchSize-1)
	remaining := time.Duration(waits) * plan.BatchDelay
	eta := now.Add(remaining)
	name := unit.Name
	if name == "" {
		name = unit.Email
	}

	event := domain.RecentEvent{
		Timestamp:   now,
		ClientName:  name,
		ClientEmail: unit.Email,
		Status:      domain.OutcomeAccepted,
	}
	lastStatus := "sent"

	if err == nil {
		c.sent++
		if plan.Sink != nil {
			plan.Sink.MarkAccepted(unit, now)
		}
	} else {
		c.errors++
		event.Status = domain.OutcomeError
		event.Error = err.Error()
		lastStatus = "error"
		if plan.Sink != nil {
			plan.Sink.MarkError(unit, now, err.Error())
		}
		logger.Recipient(unit.Email).Warn(ctx, "Send failed: %v", err)
	}

	snap, _ := s.registry.Update(jobID, func(p *domain.JobProgress) {
		p.Processed = c.processed
		p.Sent = c.sent
		p.Errors = c.errors
		p.LastTo = unit.Email
		p.LastClientName = name
		p.LastStatus = lastStatus
		if event.Status == domain.OutcomeError {
			p.LastError = event.Error
			p.Failures = append(p.Failures, domain.FailureRecord{
				ClientName:  name,
				ClientEmail: unit.Email,
				Error:       event.Error,
			})
		}
		p.RecentEvents = append(p.RecentEvents, event)
		p.UpdatedAt = now
		p.EstimatedRemainingMs = remaining.Milliseconds()
		p.EstimatedCompletionAt = &eta
	})
	s.notifyProgress(ctx, plan, snap)
	return nil
}

// cancel marks every recipient from index from onward as cancelled,
// materializes the partial result and finishes the job.
func (s *Scheduler) cancel(ctx context.Context, jobID string, plan Plan, from int, startedAt time.Time) {
	if plan.Sink != nil {
		now := s.now()
		for _, unit := range plan.Recipients[from:] {
			plan.Sink.MarkCancelled(unit, now)
		}
	}
	logger.CtxInfo(ctx, "Dispatch cancelled: skipped=%d", len(plan.Recipients)-from)
	s.materialize(ctx, jobID, plan)
	s.finish(ctx, jobID, plan, domain.TerminalCancelled, "", startedAt)
}

func (s *Scheduler) materialize(ctx context.Context, jobID string, plan Plan) {
	if plan.Sink == nil || s.artifacts == nil {
		return
	}
	art, err := plan.Sink.Materialize(jobID)
	if err != nil {
		logger.CtxWarn(ctx, "Failed to materialize result: %v", err)
		return
	}
	if err := s.artifacts.Put(ctx, jobID, art); err != nil {
		logger.CtxWarn(ctx, "Failed to store result: %v", err)
	}
}

func (s *Scheduler) finish(ctx context.Context, jobID string, plan Plan, status domain.TerminalStatus, errMsg string, startedAt time.Time) {
	snap, ok := s.registry.Complete(jobID, status, errMsg)
	if !ok {
		return
	}

	entry := logger.With(logger.Fields{logger.FieldStatus: string(snap.Status)}).
		WithTally(snap.Processed, snap.Sent, snap.Errors).
		WithDuration(s.now().Sub(startedAt))
	if status == domain.TerminalFailed {
		entry.Error(ctx, "Dispatch failed: %s", errMsg)
	} else {
		entry.Info(ctx, "Dispatch finished: total=%d", snap.Total)
	}

	for _, o := range plan.Observers {
		s.safeObserve(ctx, func() { o.JobFinished(ctx, snap) })
	}
}

func (s *Scheduler) notifyProgress(ctx context.Context, plan Plan, snap domain.JobProgress) {
	for _, o := range plan.Observers {
		s.safeObserve(ctx, func() { o.JobProgressed(ctx, snap) })
	}
}

func (s *Scheduler) safeObserve(ctx context.Context, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.CtxWarn(ctx, "Job observer panicked: %v", rec)
		}
	}()
	fn()
}

// safeSend converts a panicking sender into a recipient failure.
func safeSend(ctx context.Context, sender Sender, unit domain.RecipientUnit) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("send panicked: %v", rec)
		}
	}()
	return sender.Send(ctx, unit)
}

func sleepOrCancel(ctx context.Context, d time.Duration, cancel <-chan struct{}) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-cancel:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
