package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-evaluator-go/internal/gateway"
	"call-evaluator-go/internal/logger"
	"call-evaluator-go/internal/scheduler"
	"call-evaluator-go/internal/sheet"
	"call-evaluator-go/internal/types"
)

type stubScheduler struct {
	submitted []types.Job
	submitErr error
	deliverFn func(types.Decision) error
}

func (s *stubScheduler) Submit(job types.Job) (scheduler.Submission, error) {
	if s.submitErr != nil {
		return scheduler.Submission{}, s.submitErr
	}
	job.ID = "job-1"
	s.submitted = append(s.submitted, job)
	return scheduler.Submission{Job: job, Queued: len(s.submitted) > 1, Ahead: len(s.submitted) - 1}, nil
}

func (s *stubScheduler) Deliver(d types.Decision) error {
	if s.deliverFn != nil {
		return s.deliverFn(d)
	}
	return nil
}

func (s *stubScheduler) Snapshot(owner string) scheduler.Snapshot {
	return scheduler.Snapshot{Owner: owner, State: scheduler.StateIdle, Pending: []types.Job{}}
}

type stubEvaluations struct {
	evals []sheet.Evaluation
	err   error
}

func (s stubEvaluations) Evaluations(context.Context) ([]sheet.Evaluation, error) {
	return s.evals, s.err
}

func newTestServer(sched Scheduler, evals Evaluations) (http.Handler, *gateway.Hub) {
	hub := gateway.NewHub(10, "", logger.Discard())
	return New(sched, hub, evals, logger.Discard()).Handler(), hub
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestSubmit(t *testing.T) {
	sched := &stubScheduler{}
	h, _ := newTestServer(sched, stubEvaluations{})

	rr := do(t, h, http.MethodPost, "/jobs", `{"owner":"u1","source_url":"https://files.local/a/2025-03-14%20call.ogg","submitter":"Ivan"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)

	var sub scheduler.Submission
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sub))
	assert.Equal(t, "job-1", sub.Job.ID)
	assert.False(t, sub.Queued)
	require.Len(t, sched.submitted, 1)
	assert.Equal(t, "2025-03-14 call.ogg", sched.submitted[0].DisplayName)
	assert.Equal(t, "Ivan", sched.submitted[0].Submitter)
}

func TestSubmit_Validation(t *testing.T) {
	h, _ := newTestServer(&stubScheduler{}, stubEvaluations{})

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/jobs", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/jobs", `{"owner":"u1"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/jobs", `{"owner":"u1","source_url":"https://files.local/"}`).Code)
}

func TestSubmit_Closed(t *testing.T) {
	h, _ := newTestServer(&stubScheduler{submitErr: scheduler.ErrClosed}, stubEvaluations{})
	rr := do(t, h, http.MethodPost, "/jobs", `{"owner":"u1","source_url":"/tmp/a.mp3"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestDecide(t *testing.T) {
	var got types.Decision
	sched := &stubScheduler{deliverFn: func(d types.Decision) error {
		got = d
		switch {
		case !d.Choice.Valid():
			return scheduler.ErrInvalidChoice
		case d.JobID == "old":
			return types.ErrStaleDecision
		}
		return nil
	}}
	h, _ := newTestServer(sched, stubEvaluations{})

	rr := do(t, h, http.MethodPost, "/decisions", `{"owner":"u1","job_id":"b","choice":"overwrite"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, types.Decision{Owner: "u1", JobID: "b", Choice: types.ChoiceOverwrite}, got)

	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/decisions", `{"owner":"u1","job_id":"old","choice":"skip"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/decisions", `{"owner":"u1","job_id":"b","choice":"maybe"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/decisions", `{"choice":"skip"}`).Code)
}

func TestSnapshotAndInbox(t *testing.T) {
	h, hub := newTestServer(&stubScheduler{}, stubEvaluations{})
	hub.Notify(context.Background(), types.Event{Kind: types.EventSucceeded, Job: types.Job{ID: "a", Owner: "u1"}})

	rr := do(t, h, http.MethodGet, "/owners/u1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var snap scheduler.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	assert.Equal(t, "u1", snap.Owner)
	assert.Equal(t, scheduler.StateIdle, snap.State)

	rr = do(t, h, http.MethodGet, "/owners/u1/inbox", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var ib gateway.Inbox
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ib))
	require.Len(t, ib.Events, 1)
	assert.Equal(t, types.EventSucceeded, ib.Events[0].Kind)
}

func TestReport(t *testing.T) {
	evals := stubEvaluations{evals: []sheet.Evaluation{{
		Manager: "Olga",
		Total:   15,
		Scores: map[types.Category]types.Score{
			types.CategoryGreeting: types.Points(10),
			types.CategoryClosing:  types.Points(0),
		},
	}}}
	h, _ := newTestServer(&stubScheduler{}, evals)

	rr := do(t, h, http.MethodGet, "/report", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var rep Report
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rep))
	assert.Equal(t, 1, rep.Insight.Calls)
	assert.Contains(t, rep.Action.Insight, "closing")
}

func TestReport_Error(t *testing.T) {
	h, _ := newTestServer(&stubScheduler{}, stubEvaluations{err: errors.New("locked")})
	assert.Equal(t, http.StatusInternalServerError, do(t, h, http.MethodGet, "/report", "").Code)
}

func TestHealthAndRouting(t *testing.T) {
	h, _ := newTestServer(&stubScheduler{}, stubEvaluations{})
	rr := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/jobs", "").Code)
}

type existingResolver map[string]types.Location

func (r existingResolver) Lookup(_ context.Context, key string) (types.Location, bool, error) {
	loc, ok := r[key]
	return loc, ok, nil
}

type echoRunner struct{}

func (echoRunner) Run(_ context.Context, job types.Job) (*types.EvaluationRecord, error) {
	return &types.EvaluationRecord{ManagerName: job.Submitter}, nil
}

// A duplicate is answered through the API and the prompt leaves the inbox.
func TestDecisionRoundTrip(t *testing.T) {
	hub := gateway.NewHub(10, "", logger.Discard())
	sched := scheduler.New(
		existingResolver{"dup.ogg": {Sheet: "Evaluations", Row: 4}},
		echoRunner{}, hub, hub,
		scheduler.WithLogger(logger.Discard()),
	)
	defer sched.Close()
	h := New(sched, hub, stubEvaluations{}, logger.Discard()).Handler()

	rr := do(t, h, http.MethodPost, "/jobs", `{"owner":"u1","source_url":"/calls/dup.ogg"}`)
	require.Equal(t, http.StatusAccepted, rr.Code)
	var sub scheduler.Submission
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sub))

	require.Eventually(t, func() bool {
		return len(hub.Inbox("u1").Prompts) == 1
	}, 2*time.Second, 10*time.Millisecond)

	body := `{"owner":"u1","job_id":"` + sub.Job.ID + `","choice":"overwrite"}`
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/decisions", body).Code)
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/decisions", body).Code)

	require.Eventually(t, func() bool {
		ib := hub.Inbox("u1")
		if len(ib.Prompts) != 0 || len(ib.Events) == 0 {
			return false
		}
		last := ib.Events[len(ib.Events)-1]
		return last.Kind == types.EventSucceeded && last.Target != nil && last.Target.Row == 4
	}, 2*time.Second, 10*time.Millisecond)
}
