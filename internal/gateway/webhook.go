package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"call-evaluator-go/internal/logger"
	"call-evaluator-go/internal/types"
)

const (
	messagePrompt = "prompt"
	messageEvent  = "event"
)

type message struct {
	Type   string        `json:"type"`
	Owner  string        `json:"owner"`
	Prompt *types.Prompt `json:"prompt,omitempty"`
	Event  *types.Event  `json:"event,omitempty"`
	At     time.Time     `json:"at"`
}

// webhook posts messages in order per owner. Each owner with undelivered
// messages has one sender goroutine that exits once its queue is empty.
type webhook struct {
	url        string
	httpClient *http.Client
	maxRetry   time.Duration
	log        *logger.Logger

	mu     sync.Mutex
	queues map[string][]message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newWebhook(url string, timeout time.Duration, log *logger.Logger) *webhook {
	ctx, cancel := context.WithCancel(context.Background())
	return &webhook{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		maxRetry:   30 * time.Second,
		log:        log,
		queues:     make(map[string][]message),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// send queues m behind the owner's undelivered messages. It never blocks.
func (w *webhook) send(m message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	q, running := w.queues[m.Owner]
	w.queues[m.Owner] = append(q, m)
	if !running {
		w.wg.Add(1)
		go w.drain(m.Owner)
	}
}

func (w *webhook) drain(owner string) {
	defer w.wg.Done()
	for {
		w.mu.Lock()
		q := w.queues[owner]
		if len(q) == 0 {
			delete(w.queues, owner)
			w.mu.Unlock()
			return
		}
		m := q[0]
		w.queues[owner] = q[1:]
		w.mu.Unlock()

		// a message that exhausts its retries is dropped so later ones still go out
		if err := w.post(m); err != nil {
			w.log.WithError(err).WithField("owner", m.Owner).WithField("type", m.Type).Warn("webhook delivery failed")
		}
	}
}

func (w *webhook) post(m message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}

	op := func() error {
		req, err := http.NewRequestWithContext(w.ctx, http.MethodPost, w.url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("webhook status %d", resp.StatusCode)
		case resp.StatusCode >= 300:
			// Permanent: receiver rejected the message
			return backoff.Permanent(fmt.Errorf("webhook status %d", resp.StatusCode))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxElapsedTime = w.maxRetry
	return backoff.Retry(op, backoff.WithContext(b, w.ctx))
}

// close waits for in-flight deliveries, abandoning them once ctx is done.
func (w *webhook) close(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		w.cancel()
		<-done
	}
	w.cancel()
}
