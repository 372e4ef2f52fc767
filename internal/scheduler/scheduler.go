package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"call-evaluator-go/internal/logger"
	"call-evaluator-go/internal/types"
)

// ConflictResolver reports whether a record already exists under key.
type ConflictResolver interface {
	Lookup(ctx context.Context, key string) (types.Location, bool, error)
}

// Runner executes the pipeline for one job.
type Runner interface {
	Run(ctx context.Context, job types.Job) (*types.EvaluationRecord, error)
}

// DecisionGateway presents an overwrite prompt to the owner. The answer
// comes back later through Scheduler.Deliver.
type DecisionGateway interface {
	Ask(ctx context.Context, prompt types.Prompt) error
}

// Notifier receives progress and outcome events for submitters.
type Notifier interface {
	Notify(ctx context.Context, ev types.Event)
}

var (
	ErrClosed        = errors.New("scheduler closed")
	ErrInvalidChoice = errors.New("invalid decision choice")
)

type Option func(*Scheduler)

// WithDecisionTimeout bounds the wait for a decision; expiry counts as skip.
func WithDecisionTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.decisionTimeout = d }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// Scheduler runs each owner's jobs one at a time in submission order. Owners
// are independent: each active owner has its own worker goroutine that
// exits when the owner's queue is empty.
type Scheduler struct {
	store    *JobStore
	resolver ConflictResolver
	runner   Runner
	gateway  DecisionGateway
	notifier Notifier
	log      *logger.Logger

	decisionTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeMu sync.RWMutex
	closed  bool
}

func New(resolver ConflictResolver, runner Runner, gateway DecisionGateway, notifier Notifier, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		store:    NewJobStore(),
		resolver: resolver,
		runner:   runner,
		gateway:  gateway,
		notifier: notifier,
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.New()
	}
	s.log = s.log.Component("scheduler")
	return s
}

// Submission is the result of Submit.
type Submission struct {
	Job    types.Job `json:"job"`
	Queued bool      `json:"queued"` // true when other jobs run first
	Ahead  int       `json:"ahead"`
}

// Submit enqueues job for its owner and wakes the owner's worker if idle.
// It never waits for running jobs.
func (s *Scheduler) Submit(job types.Job) (Submission, error) {
	if job.Owner == "" {
		return Submission{}, fmt.Errorf("submit: owner is required")
	}
	if job.DisplayName == "" {
		return Submission{}, fmt.Errorf("submit: display name is required")
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}

	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return Submission{}, ErrClosed
	}

	wake, ahead := s.store.Enqueue(job)
	if wake {
		s.wg.Add(1)
		go s.drain(job.Owner)
	} else {
		s.notify(types.Event{Kind: types.EventQueued, Job: job, Position: ahead})
	}
	s.log.WithJob(job).WithField("ahead", ahead).Info("job submitted")
	return Submission{Job: job, Queued: !wake, Ahead: ahead}, nil
}

// Deliver applies an overwrite decision. A decision that does not match the
// owner's suspended job returns types.ErrStaleDecision and changes nothing.
func (s *Scheduler) Deliver(d types.Decision) error {
	if !d.Choice.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidChoice, d.Choice)
	}
	job, target, err := s.store.ResolveSuspended(d.Owner, d.JobID, d.Choice)
	if err != nil {
		s.log.WithFields(map[string]interface{}{
			"owner":  d.Owner,
			"job_id": d.JobID,
			"choice": d.Choice,
		}).Debug("stale decision ignored")
		return err
	}
	s.log.WithJob(job).WithField("choice", d.Choice).WithField("target", target.String()).Info("decision delivered")
	return nil
}

// Snapshot returns the current view of owner's queue.
func (s *Scheduler) Snapshot(owner string) Snapshot {
	return s.store.Snapshot(owner)
}

// Close stops accepting jobs, asks workers to stop and waits for them.
// Jobs still pending are reported as failed.
func (s *Scheduler) Close() {
	s.closeMu.Lock()
	s.closed = true
	s.closeMu.Unlock()
	s.cancel()
	s.wg.Wait()
}

// drain is the worker of one owner. It loops until the queue is empty.
func (s *Scheduler) drain(owner string) {
	defer s.wg.Done()
	for {
		if err := s.ctx.Err(); err != nil {
			for _, job := range s.store.DrainPending(owner) {
				s.finish(job, types.EventFailed, nil, fmt.Errorf("not started: %w", err))
			}
			s.store.Forget(owner)
			return
		}
		job, ok := s.store.DequeueNext(owner)
		if !ok {
			s.store.Forget(owner)
			return
		}
		s.process(job)
	}
}

func (s *Scheduler) process(job types.Job) {
	log := s.log.WithJob(job)
	s.notify(types.Event{Kind: types.EventStarted, Job: job})

	target, found, err := s.resolver.Lookup(s.ctx, job.DisplayName)
	if err != nil {
		// Proceed as a fresh record; a duplicate row is possible.
		log.WithError(err).Warn("conflict check failed, continuing as new record")
		s.notify(types.Event{
			Kind:  types.EventConflictCheckFailed,
			Job:   job,
			Error: fmt.Errorf("%w: %w", types.ErrConflictCheck, err).Error(),
		})
		found = false
	}

	if found {
		log.WithField("existing", target.String()).Info("duplicate found, awaiting decision")
		if s.await(job, target) == types.ChoiceSkip {
			s.finish(job, types.EventSkipped, nil, nil)
			return
		}
		job = job.WithOverwrite(target)
	}

	record, err := s.runner.Run(s.ctx, job)
	if err != nil {
		log.WithError(err).Error("job failed")
		s.finish(job, types.EventFailed, nil, err)
		return
	}
	log.WithField("total_score", record.TotalScore).Info("job succeeded")
	s.finish(job, types.EventSucceeded, record, nil)
}

// await parks job in the suspended slot and blocks until a decision, the
// decision timeout or shutdown.
func (s *Scheduler) await(job types.Job, target types.Location) types.Choice {
	log := s.log.WithJob(job)
	decisions, err := s.store.TrySuspend(job.Owner, job, target)
	if err != nil {
		log.WithError(err).Error("cannot suspend job, skipping")
		return types.ChoiceSkip
	}

	prompt := types.Prompt{Job: job, Existing: target, AskedAt: time.Now()}
	if err := s.gateway.Ask(s.ctx, prompt); err != nil {
		log.WithError(err).Error("decision prompt not delivered, skipping")
		return s.expire(job, decisions)
	}

	var timeout <-chan time.Time
	if s.decisionTimeout > 0 {
		t := time.NewTimer(s.decisionTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case choice := <-decisions:
		return choice
	case <-timeout:
		log.WithField("timeout", s.decisionTimeout.String()).Warn("decision timed out, skipping")
		choice := s.expire(job, decisions)
		if choice == types.ChoiceSkip {
			s.notify(types.Event{Kind: types.EventDecisionExpired, Job: job, Target: &target})
		}
		return choice
	case <-s.ctx.Done():
		return s.expire(job, decisions)
	}
}

// expire resolves the job's own suspension as skip. When a real decision
// got there first, that decision is already in the channel and wins.
func (s *Scheduler) expire(job types.Job, decisions <-chan types.Choice) types.Choice {
	_, _, _ = s.store.ResolveSuspended(job.Owner, job.ID, types.ChoiceSkip)
	return <-decisions
}

func (s *Scheduler) finish(job types.Job, kind types.EventKind, record *types.EvaluationRecord, err error) {
	ev := types.Event{Kind: kind, Job: job, Record: record, Target: job.OverwriteTarget}
	if err != nil {
		ev.Error = err.Error()
	}
	s.notify(ev)
}

func (s *Scheduler) notify(ev types.Event) {
	if s.notifier == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	// Notifications must still go out while shutting down.
	s.notifier.Notify(context.WithoutCancel(s.ctx), ev)
}
