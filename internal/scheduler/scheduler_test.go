package scheduler

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-evaluator-go/internal/logger"
	"call-evaluator-go/internal/types"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type harness struct {
	sched    *Scheduler
	resolver *fakeResolver
	runner   *fakeRunner
	gateway  *fakeGateway
	events   *recordingNotifier
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		resolver: newFakeResolver(),
		runner:   newFakeRunner(),
		gateway:  newFakeGateway(),
		events:   &recordingNotifier{},
	}
	opts = append([]Option{WithLogger(logger.Discard())}, opts...)
	h.sched = New(h.resolver, h.runner, h.gateway, h.events, opts...)
	t.Cleanup(h.sched.Close)
	return h
}

func (h *harness) submit(t *testing.T, owner, name string) types.Job {
	t.Helper()
	sub, err := h.sched.Submit(types.Job{Owner: owner, DisplayName: name, SourceRef: "https://audio.local/" + name})
	require.NoError(t, err)
	return sub.Job
}

func (h *harness) waitTerminal(t *testing.T, owner string, n int) []string {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(h.events.terminal(owner)) >= n
	}, waitFor, tick)
	return h.events.terminal(owner)
}

func (h *harness) waitPrompt(t *testing.T) types.Prompt {
	t.Helper()
	select {
	case p := <-h.gateway.prompts:
		return p
	case <-time.After(waitFor):
		t.Fatal("no decision prompt issued")
		return types.Prompt{}
	}
}

func (h *harness) waitIdle(t *testing.T, owner string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.sched.Snapshot(owner).State == StateIdle
	}, waitFor, tick)
}

func TestScheduler_RunsJobsInSubmissionOrder(t *testing.T) {
	h := newHarness(t)
	release := h.runner.hold("a.mp3")

	h.submit(t, "u1", "a.mp3")
	h.submit(t, "u1", "b.mp3")
	h.submit(t, "u1", "c.mp3")
	release()

	got := h.waitTerminal(t, "u1", 3)
	assert.Equal(t, []string{"a.mp3:succeeded", "b.mp3:succeeded", "c.mp3:succeeded"}, got)
	h.waitIdle(t, "u1")
}

func TestScheduler_SubmitWhileActiveIsQueued(t *testing.T) {
	h := newHarness(t)
	release := h.runner.hold("a.mp3")
	defer release()

	first, err := h.sched.Submit(types.Job{Owner: "u1", DisplayName: "a.mp3"})
	require.NoError(t, err)
	assert.False(t, first.Queued)
	assert.NotEmpty(t, first.Job.ID)

	<-h.runner.started
	second, err := h.sched.Submit(types.Job{Owner: "u1", DisplayName: "b.mp3"})
	require.NoError(t, err)
	assert.True(t, second.Queued)
	assert.Equal(t, 1, second.Ahead)

	third, err := h.sched.Submit(types.Job{Owner: "u1", DisplayName: "c.mp3"})
	require.NoError(t, err)
	assert.Equal(t, 2, third.Ahead)

	assert.Len(t, h.runner.jobs(), 1)
	assert.Equal(t, 2, h.events.count(types.EventQueued))

	snap := h.sched.Snapshot("u1")
	assert.Equal(t, StateRunning, snap.State)
	require.NotNil(t, snap.Current)
	assert.Equal(t, "a.mp3", snap.Current.DisplayName)
	assert.Len(t, snap.Pending, 2)
}

func TestScheduler_NeverRunsTwoJobsForOneOwner(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 50; i++ {
		h.submit(t, "u1", fmt.Sprintf("call-%02d.mp3", i))
	}
	h.waitTerminal(t, "u1", 50)
	assert.Equal(t, 1, h.runner.max("u1"))

	got := h.events.terminal("u1")
	for i, g := range got {
		assert.Equal(t, fmt.Sprintf("call-%02d.mp3:succeeded", i), g)
	}
}

func TestScheduler_OwnersRunIndependently(t *testing.T) {
	h := newHarness(t)
	release := h.runner.hold("slow.mp3")
	defer release()

	h.submit(t, "u1", "slow.mp3")
	h.submit(t, "u2", "fast.mp3")

	assert.Equal(t, []string{"fast.mp3:succeeded"}, h.waitTerminal(t, "u2", 1))
	assert.Empty(t, h.events.terminal("u1"))

	release()
	assert.Equal(t, []string{"slow.mp3:succeeded"}, h.waitTerminal(t, "u1", 1))
}

func TestScheduler_ConflictSuspendsUntilOverwrite(t *testing.T) {
	h := newHarness(t)
	existing := types.Location{Sheet: "Evaluations", Row: 5}
	h.resolver.existing["b.mp3"] = existing

	h.submit(t, "u1", "a.mp3")
	b := h.submit(t, "u1", "b.mp3")
	h.submit(t, "u1", "c.mp3")

	prompt := h.waitPrompt(t)
	assert.Equal(t, b.ID, prompt.Job.ID)
	assert.Equal(t, existing, prompt.Existing)

	// A finished before the prompt; C is untouched while B waits.
	assert.Equal(t, []string{"a.mp3:succeeded"}, h.events.terminal("u1"))
	snap := h.sched.Snapshot("u1")
	assert.Equal(t, StateAwaitingDecision, snap.State)
	require.NotNil(t, snap.Suspended)
	assert.Equal(t, b.ID, snap.Suspended.Job.ID)
	require.Len(t, snap.Pending, 1)
	assert.Equal(t, "c.mp3", snap.Pending[0].DisplayName)
	assert.Len(t, h.runner.jobs(), 1)

	require.NoError(t, h.sched.Deliver(types.Decision{Owner: "u1", JobID: b.ID, Choice: types.ChoiceOverwrite}))

	got := h.waitTerminal(t, "u1", 3)
	assert.Equal(t, []string{"a.mp3:succeeded", "b.mp3:succeeded", "c.mp3:succeeded"}, got)

	ran := h.runner.jobs()
	require.Len(t, ran, 3)
	require.NotNil(t, ran[1].OverwriteTarget)
	assert.Equal(t, existing, *ran[1].OverwriteTarget)
	assert.Nil(t, ran[2].OverwriteTarget)
}

func TestScheduler_ConflictSkip(t *testing.T) {
	h := newHarness(t)
	h.resolver.existing["b.mp3"] = types.Location{Sheet: "Evaluations", Row: 2}

	h.submit(t, "u1", "a.mp3")
	b := h.submit(t, "u1", "b.mp3")
	h.submit(t, "u1", "c.mp3")

	h.waitPrompt(t)
	require.NoError(t, h.sched.Deliver(types.Decision{Owner: "u1", JobID: b.ID, Choice: types.ChoiceSkip}))

	got := h.waitTerminal(t, "u1", 3)
	assert.Equal(t, []string{"a.mp3:succeeded", "b.mp3:skipped", "c.mp3:succeeded"}, got)
	for _, j := range h.runner.jobs() {
		assert.NotEqual(t, "b.mp3", j.DisplayName)
	}
}

func TestScheduler_DuplicateDecisionAppliedOnce(t *testing.T) {
	h := newHarness(t)
	h.resolver.existing["a.mp3"] = types.Location{Sheet: "Evaluations", Row: 3}
	a := h.submit(t, "u1", "a.mp3")
	h.waitPrompt(t)

	d := types.Decision{Owner: "u1", JobID: a.ID, Choice: types.ChoiceOverwrite}
	first := h.sched.Deliver(d)
	second := h.sched.Deliver(d)
	require.NoError(t, first)
	assert.ErrorIs(t, second, types.ErrStaleDecision)

	h.waitTerminal(t, "u1", 1)
	h.waitIdle(t, "u1")

	// Re-delivering after the slot is cleared never re-runs the job.
	assert.ErrorIs(t, h.sched.Deliver(d), types.ErrStaleDecision)
	assert.ErrorIs(t, h.sched.Deliver(types.Decision{Owner: "u1", JobID: a.ID, Choice: types.ChoiceSkip}), types.ErrStaleDecision)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, h.runner.jobs(), 1)
	assert.Len(t, h.events.terminal("u1"), 1)
}

func TestScheduler_StaleDecisionHasNoEffect(t *testing.T) {
	h := newHarness(t)

	err := h.sched.Deliver(types.Decision{Owner: "nobody", JobID: "x", Choice: types.ChoiceOverwrite})
	assert.ErrorIs(t, err, types.ErrStaleDecision)

	// Wrong job id while another job is suspended.
	h.resolver.existing["a.mp3"] = types.Location{Sheet: "Evaluations", Row: 3}
	a := h.submit(t, "u1", "a.mp3")
	h.waitPrompt(t)
	before := h.sched.Snapshot("u1")

	err = h.sched.Deliver(types.Decision{Owner: "u1", JobID: "other", Choice: types.ChoiceOverwrite})
	assert.ErrorIs(t, err, types.ErrStaleDecision)
	err = h.sched.Deliver(types.Decision{Owner: "u2", JobID: a.ID, Choice: types.ChoiceOverwrite})
	assert.ErrorIs(t, err, types.ErrStaleDecision)

	assert.Equal(t, before, h.sched.Snapshot("u1"))
	assert.Empty(t, h.runner.jobs())
}

func TestScheduler_RejectsInvalidChoice(t *testing.T) {
	h := newHarness(t)
	err := h.sched.Deliver(types.Decision{Owner: "u1", JobID: "x", Choice: "maybe"})
	assert.ErrorIs(t, err, ErrInvalidChoice)
}

func TestScheduler_ConflictCheckErrorProceeds(t *testing.T) {
	h := newHarness(t)
	h.resolver.err["a.mp3"] = errors.New("sheet unreachable")

	h.submit(t, "u1", "a.mp3")
	h.submit(t, "u1", "b.mp3")

	got := h.waitTerminal(t, "u1", 2)
	assert.Equal(t, []string{"a.mp3:succeeded", "b.mp3:succeeded"}, got)
	assert.Equal(t, 1, h.events.count(types.EventConflictCheckFailed))
	assert.Empty(t, h.gateway.prompts)

	for _, ev := range h.events.all() {
		if ev.Kind == types.EventConflictCheckFailed {
			assert.Contains(t, ev.Error, "sheet unreachable")
		}
	}
}

func TestScheduler_FailedJobDoesNotBlockBacklog(t *testing.T) {
	h := newHarness(t)
	h.runner.fail["b.mp3"] = fmt.Errorf("%w: connection reset", types.ErrFetch)

	h.submit(t, "u1", "a.mp3")
	h.submit(t, "u1", "b.mp3")
	h.submit(t, "u1", "c.mp3")

	got := h.waitTerminal(t, "u1", 3)
	assert.Equal(t, []string{"a.mp3:succeeded", "b.mp3:failed", "c.mp3:succeeded"}, got)

	for _, ev := range h.events.all() {
		if ev.Kind == types.EventFailed {
			assert.Contains(t, ev.Error, "connection reset")
		}
	}
}

func TestScheduler_DecisionTimeoutSkips(t *testing.T) {
	h := newHarness(t, WithDecisionTimeout(30*time.Millisecond))
	h.resolver.existing["a.mp3"] = types.Location{Sheet: "Evaluations", Row: 9}

	a := h.submit(t, "u1", "a.mp3")
	h.submit(t, "u1", "b.mp3")

	got := h.waitTerminal(t, "u1", 2)
	assert.Equal(t, []string{"a.mp3:skipped", "b.mp3:succeeded"}, got)
	assert.Equal(t, 1, h.events.count(types.EventDecisionExpired))

	// The late answer is stale.
	assert.ErrorIs(t, h.sched.Deliver(types.Decision{Owner: "u1", JobID: a.ID, Choice: types.ChoiceOverwrite}), types.ErrStaleDecision)
}

func TestScheduler_PromptFailureSkips(t *testing.T) {
	h := newHarness(t)
	h.gateway.err = errors.New("webhook down")
	h.resolver.existing["a.mp3"] = types.Location{Sheet: "Evaluations", Row: 2}

	h.submit(t, "u1", "a.mp3")
	h.submit(t, "u1", "b.mp3")

	got := h.waitTerminal(t, "u1", 2)
	assert.Equal(t, []string{"a.mp3:skipped", "b.mp3:succeeded"}, got)
}

func TestScheduler_LongBacklogCompletes(t *testing.T) {
	h := newHarness(t)
	const n = 3000
	for i := 0; i < n; i++ {
		h.submit(t, "u1", fmt.Sprintf("%04d.mp3", i))
	}
	require.Eventually(t, func() bool {
		return len(h.events.terminal("u1")) == n
	}, 10*time.Second, 10*time.Millisecond)
	h.waitIdle(t, "u1")
}

func TestScheduler_IdleOwnerWakesAgain(t *testing.T) {
	h := newHarness(t)
	h.submit(t, "u1", "a.mp3")
	h.waitTerminal(t, "u1", 1)
	h.waitIdle(t, "u1")

	h.submit(t, "u1", "b.mp3")
	assert.Equal(t, []string{"a.mp3:succeeded", "b.mp3:succeeded"}, h.waitTerminal(t, "u1", 2))
}

func TestScheduler_CloseFailsPendingAndRejectsSubmit(t *testing.T) {
	h := newHarness(t)
	h.resolver.existing["a.mp3"] = types.Location{Sheet: "Evaluations", Row: 2}
	a := h.submit(t, "u1", "a.mp3")
	h.submit(t, "u1", "b.mp3")
	h.waitPrompt(t)

	h.sched.Close()

	assert.Equal(t, []string{"a.mp3:skipped", "b.mp3:failed"}, h.events.terminal("u1"))
	assert.Empty(t, h.runner.jobs())
	assert.ErrorIs(t, h.sched.Deliver(types.Decision{Owner: "u1", JobID: a.ID, Choice: types.ChoiceOverwrite}), types.ErrStaleDecision)

	_, err := h.sched.Submit(types.Job{Owner: "u1", DisplayName: "c.mp3"})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestScheduler_SubmitValidates(t *testing.T) {
	h := newHarness(t)
	_, err := h.sched.Submit(types.Job{DisplayName: "a.mp3"})
	assert.Error(t, err)
	_, err = h.sched.Submit(types.Job{Owner: "u1"})
	assert.Error(t, err)
}
