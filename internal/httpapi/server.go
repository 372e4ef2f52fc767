package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"call-evaluator-go/internal/actionable"
	"call-evaluator-go/internal/aggregator"
	"call-evaluator-go/internal/gateway"
	"call-evaluator-go/internal/logger"
	"call-evaluator-go/internal/scheduler"
	"call-evaluator-go/internal/sheet"
	"call-evaluator-go/internal/types"
)

type Scheduler interface {
	Submit(job types.Job) (scheduler.Submission, error)
	Deliver(d types.Decision) error
	Snapshot(owner string) scheduler.Snapshot
}

type Inboxes interface {
	Inbox(owner string) gateway.Inbox
}

type Evaluations interface {
	Evaluations(ctx context.Context) ([]sheet.Evaluation, error)
}

type SubmitRequest struct {
	Owner       string `json:"owner"`
	SourceURL   string `json:"source_url"`
	DisplayName string `json:"display_name"`
	Submitter   string `json:"submitter"`
}

type DecisionRequest struct {
	Owner  string       `json:"owner"`
	JobID  string       `json:"job_id"`
	Choice types.Choice `json:"choice"`
}

type Report struct {
	Insight aggregator.Insight    `json:"insight"`
	Action  actionable.ActionCard `json:"action"`
}

type Server struct {
	sched   Scheduler
	inboxes Inboxes
	evals   Evaluations
	log     *logger.Logger

	// concurrent report requests share one workbook read
	reports singleflight.Group
}

func New(sched Scheduler, inboxes Inboxes, evals Evaluations, log *logger.Logger) *Server {
	if log == nil {
		log = logger.New()
	}
	return &Server{sched: sched, inboxes: inboxes, evals: evals, log: log.Component("http")}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.health)
	mux.HandleFunc("POST /jobs", s.submit)
	mux.HandleFunc("POST /decisions", s.decide)
	mux.HandleFunc("GET /owners/{owner}", s.snapshot)
	mux.HandleFunc("GET /owners/{owner}/inbox", s.inbox)
	mux.HandleFunc("GET /report", s.report)
	return s.withLogging(mux)
}

type ctxKey struct{}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqLog := s.log.WithRequest(r)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), ctxKey{}, reqLog)))
		reqLog.WithField("status", rec.status).WithField("duration_ms", time.Since(start).Milliseconds()).Info("request handled")
	})
}

func (s *Server) reqLog(r *http.Request) *logrus.Entry {
	if e, ok := r.Context().Value(ctxKey{}).(*logrus.Entry); ok {
		return e
	}
	return s.log.Entry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	fmt.Fprint(w, "ok")
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	reqLog := s.reqLog(r).WithField("handler", "submit")

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Owner == "" || req.SourceURL == "" {
		writeError(w, http.StatusBadRequest, "owner and source_url are required")
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = nameFromURL(req.SourceURL)
	}
	if req.DisplayName == "" {
		writeError(w, http.StatusBadRequest, "display_name is required")
		return
	}

	sub, err := s.sched.Submit(types.Job{
		Owner:       req.Owner,
		SourceRef:   req.SourceURL,
		DisplayName: req.DisplayName,
		Submitter:   req.Submitter,
	})
	if err != nil {
		reqLog.WithError(err).Warn("submit rejected")
		status := http.StatusBadRequest
		if errors.Is(err, scheduler.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, sub)
}

func (s *Server) decide(w http.ResponseWriter, r *http.Request) {
	reqLog := s.reqLog(r).WithField("handler", "decide")

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Owner == "" || req.JobID == "" {
		writeError(w, http.StatusBadRequest, "owner and job_id are required")
		return
	}

	err := s.sched.Deliver(types.Decision{Owner: req.Owner, JobID: req.JobID, Choice: req.Choice})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
	case errors.Is(err, types.ErrStaleDecision):
		reqLog.WithField("job_id", req.JobID).Info("stale decision")
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, scheduler.ErrInvalidChoice):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		reqLog.WithError(err).Error("decision failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Snapshot(r.PathValue("owner")))
}

func (s *Server) inbox(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.inboxes.Inbox(r.PathValue("owner")))
}

func (s *Server) report(w http.ResponseWriter, r *http.Request) {
	v, err, _ := s.reports.Do("report", func() (any, error) {
		evals, err := s.evals.Evaluations(context.WithoutCancel(r.Context()))
		if err != nil {
			return nil, err
		}
		ins := aggregator.Aggregate(evals)
		return Report{Insight: ins, Action: actionable.Generate(ins)}, nil
	})
	if err != nil {
		s.reqLog(r).WithError(err).Error("report failed")
		writeError(w, http.StatusInternalServerError, "cannot read evaluations")
		return
	}
	writeJSON(w, http.StatusOK, v.(Report))
}

// nameFromURL returns the last path segment of a URL or file path.
func nameFromURL(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	name := path.Base(p)
	if unescaped, err := url.PathUnescape(name); err == nil {
		name = unescaped
	}
	if name == "." || name == "/" {
		return ""
	}
	return name
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
