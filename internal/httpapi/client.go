package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"call-evaluator-go/internal/gateway"
	"call-evaluator-go/internal/scheduler"
	"call-evaluator-go/internal/types"
)

// StatusError is a non-2xx reply from the service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Client talks to a running service over HTTP.
type Client struct {
	base       string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		base:       strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) Submit(ctx context.Context, req SubmitRequest) (scheduler.Submission, error) {
	var sub scheduler.Submission
	err := c.do(ctx, http.MethodPost, "/jobs", req, &sub)
	return sub, err
}

// Decide delivers a decision. A stale decision comes back as a
// *StatusError with Code 409.
func (c *Client) Decide(ctx context.Context, owner, jobID string, choice types.Choice) error {
	return c.do(ctx, http.MethodPost, "/decisions", DecisionRequest{Owner: owner, JobID: jobID, Choice: choice}, nil)
}

func (c *Client) Snapshot(ctx context.Context, owner string) (scheduler.Snapshot, error) {
	var snap scheduler.Snapshot
	err := c.do(ctx, http.MethodGet, "/owners/"+url.PathEscape(owner), nil, &snap)
	return snap, err
}

func (c *Client) Inbox(ctx context.Context, owner string) (gateway.Inbox, error) {
	var ib gateway.Inbox
	err := c.do(ctx, http.MethodGet, "/owners/"+url.PathEscape(owner)+"/inbox", nil, &ib)
	return ib, err
}

func (c *Client) Report(ctx context.Context) (Report, error) {
	var rep Report
	err := c.do(ctx, http.MethodGet, "/report", nil, &rep)
	return rep, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &StatusError{Code: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
