package scheduler

import (
	"fmt"
	"sync"

	"call-evaluator-go/internal/types"
)

type State string

const (
	StateIdle             State = "idle"
	StateRunning          State = "running"
	StateAwaitingDecision State = "awaiting_decision"
)

type suspension struct {
	job      types.Job
	target   types.Location
	decision chan types.Choice // cap 1, written once on resolve
}

// ownerState is the queue of one owner. Only the owner's worker dequeues
// and suspends; Enqueue and ResolveSuspended hand data in under mu.
type ownerState struct {
	mu        sync.Mutex
	pending   []types.Job
	active    bool
	current   *types.Job
	suspended *suspension
}

// JobStore keeps, per owner, the pending FIFO, the active flag and the
// suspended job. The registry lock only guards the owner map.
type JobStore struct {
	mu     sync.Mutex
	owners map[string]*ownerState
}

func NewJobStore() *JobStore {
	return &JobStore{owners: make(map[string]*ownerState)}
}

func (s *JobStore) lookup(owner string) *ownerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owners[owner]
}

// Enqueue appends job to its owner's queue. wake is true when the owner was
// inactive; the caller must then start the owner's worker. ahead is the
// number of jobs in front of this one, including the one in flight.
func (s *JobStore) Enqueue(job types.Job) (wake bool, ahead int) {
	// The registry lock is held across the append so Forget cannot detach
	// the state between lookup and append.
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.owners[job.Owner]
	if !ok {
		st = &ownerState{}
		s.owners[job.Owner] = st
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	ahead = len(st.pending)
	if st.current != nil {
		ahead++
	}
	st.pending = append(st.pending, job)
	if !st.active {
		st.active = true
		return true, ahead
	}
	return false, ahead
}

// DequeueNext pops the head of the owner's queue. On an empty queue it
// clears the active flag in the same critical section.
func (s *JobStore) DequeueNext(owner string) (types.Job, bool) {
	st := s.lookup(owner)
	if st == nil {
		return types.Job{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.pending) == 0 {
		st.active = false
		st.current = nil
		return types.Job{}, false
	}
	job := st.pending[0]
	st.pending[0] = types.Job{}
	st.pending = st.pending[1:]
	st.current = &job
	return job, true
}

// DrainPending removes and returns every pending job and marks the owner inactive.
func (s *JobStore) DrainPending(owner string) []types.Job {
	st := s.lookup(owner)
	if st == nil {
		return nil
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	dropped := st.pending
	st.pending = nil
	st.active = false
	st.current = nil
	return dropped
}

// TrySuspend parks job awaiting a decision. The returned channel receives
// exactly one choice.
func (s *JobStore) TrySuspend(owner string, job types.Job, target types.Location) (<-chan types.Choice, error) {
	st := s.lookup(owner)
	if st == nil {
		return nil, fmt.Errorf("suspend %s: owner %q has no queue", job.ID, owner)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if !st.active {
		return nil, fmt.Errorf("suspend %s: owner %q is not active", job.ID, owner)
	}
	if st.suspended != nil {
		return nil, fmt.Errorf("suspend %s: owner %q already awaits a decision for %s", job.ID, owner, st.suspended.job.ID)
	}
	sp := &suspension{job: job, target: target, decision: make(chan types.Choice, 1)}
	st.suspended = sp
	return sp.decision, nil
}

// ResolveSuspended clears the owner's suspended slot if it holds jobID and
// hands choice to the waiting worker. Anything else is a stale decision.
func (s *JobStore) ResolveSuspended(owner, jobID string, choice types.Choice) (types.Job, types.Location, error) {
	st := s.lookup(owner)
	if st == nil {
		return types.Job{}, types.Location{}, types.ErrStaleDecision
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	sp := st.suspended
	if sp == nil || sp.job.ID != jobID {
		return types.Job{}, types.Location{}, types.ErrStaleDecision
	}
	st.suspended = nil
	sp.decision <- choice
	return sp.job, sp.target, nil
}

// Forget drops the owner's state when it has nothing left to do.
func (s *JobStore) Forget(owner string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.owners[owner]
	if !ok {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.active || len(st.pending) > 0 || st.suspended != nil {
		return false
	}
	delete(s.owners, owner)
	return true
}

// Snapshot is a read-only view of one owner's queue.
type Snapshot struct {
	Owner     string        `json:"owner"`
	State     State         `json:"state"`
	Current   *types.Job    `json:"current,omitempty"`
	Suspended *types.Prompt `json:"suspended,omitempty"`
	Pending   []types.Job   `json:"pending"`
}

func (s *JobStore) Snapshot(owner string) Snapshot {
	snap := Snapshot{Owner: owner, State: StateIdle, Pending: []types.Job{}}
	st := s.lookup(owner)
	if st == nil {
		return snap
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	snap.Pending = append(snap.Pending, st.pending...)
	if st.current != nil {
		cur := *st.current
		snap.Current = &cur
	}
	switch {
	case st.suspended != nil:
		snap.State = StateAwaitingDecision
		snap.Suspended = &types.Prompt{Job: st.suspended.job, Existing: st.suspended.target}
	case st.active:
		snap.State = StateRunning
	}
	return snap
}

// Owners lists the owners that currently hold state.
func (s *JobStore) Owners() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.owners))
	for o := range s.owners {
		out = append(out, o)
	}
	return out
}
