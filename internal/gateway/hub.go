package gateway

import (
	"context"
	"sync"
	"time"

	"call-evaluator-go/internal/logger"
	"call-evaluator-go/internal/types"
)

// DefaultMaxOwners bounds how many owner inboxes are kept in memory.
const DefaultMaxOwners = 1000

// Inbox is what an owner sees: recent events, oldest first, and the
// overwrite prompts still waiting for an answer.
type Inbox struct {
	Owner   string         `json:"owner"`
	Events  []types.Event  `json:"events"`
	Prompts []types.Prompt `json:"prompts"`
}

type inbox struct {
	events  []types.Event
	prompts []types.Prompt
	seen    uint64 // hub sequence number of the last write
}

// Hub delivers prompts and notifications to submitters. It keeps a bounded
// in-memory inbox per owner and optionally mirrors everything to a webhook.
//
// At most maxOwners inboxes are kept. When a new owner arrives at the cap,
// the least recently written inbox without open prompts is dropped.
type Hub struct {
	mu        sync.Mutex
	inboxes   map[string]*inbox
	size      int
	maxOwners int
	seq       uint64

	hook *webhook
	log  *logger.Logger
}

type Option func(*Hub)

func WithMaxOwners(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.maxOwners = n
		}
	}
}

func NewHub(size int, webhookURL string, log *logger.Logger, opts ...Option) *Hub {
	if size <= 0 {
		size = 100
	}
	if log == nil {
		log = logger.New()
	}
	log = log.Component("gateway")
	h := &Hub{
		inboxes:   make(map[string]*inbox),
		size:      size,
		maxOwners: DefaultMaxOwners,
		log:       log,
	}
	for _, opt := range opts {
		opt(h)
	}
	if webhookURL != "" {
		h.hook = newWebhook(webhookURL, 10*time.Second, log)
	}
	return h
}

// Ask records the prompt in the owner's inbox. Delivery to the webhook is
// asynchronous; the answer arrives separately as a Decision.
func (h *Hub) Ask(ctx context.Context, p types.Prompt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	ib := h.inboxFor(p.Job.Owner)
	ib.prompts = append(ib.prompts, p)
	// queued under the lock so the webhook sees inbox order
	h.forward(message{Type: messagePrompt, Owner: p.Job.Owner, Prompt: &p})
	h.mu.Unlock()

	h.log.WithJob(p.Job).WithField("existing", p.Existing.String()).Info("overwrite prompt issued")
	return nil
}

// Notify appends ev to the owner's inbox. A terminal or expiry event closes
// any prompt still open for the same job.
func (h *Hub) Notify(_ context.Context, ev types.Event) {
	h.mu.Lock()
	ib := h.inboxFor(ev.Job.Owner)
	ib.events = append(ib.events, ev)
	if over := len(ib.events) - h.size; over > 0 {
		ib.events = append([]types.Event(nil), ib.events[over:]...)
	}
	if ev.Kind.Terminal() || ev.Kind == types.EventDecisionExpired {
		ib.prompts = dropPrompt(ib.prompts, ev.Job.ID)
	}
	h.forward(message{Type: messageEvent, Owner: ev.Job.Owner, Event: &ev})
	h.mu.Unlock()

	h.log.WithJob(ev.Job).WithField("kind", ev.Kind).Debug("notification")
}

// Inbox returns a copy of owner's inbox.
func (h *Hub) Inbox(owner string) Inbox {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := Inbox{Owner: owner, Events: []types.Event{}, Prompts: []types.Prompt{}}
	if ib, ok := h.inboxes[owner]; ok {
		out.Events = append(out.Events, ib.events...)
		out.Prompts = append(out.Prompts, ib.prompts...)
	}
	return out
}

// Owners returns how many inboxes are held.
func (h *Hub) Owners() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.inboxes)
}

// Close waits for pending webhook deliveries until ctx is done.
func (h *Hub) Close(ctx context.Context) {
	if h.hook != nil {
		h.hook.close(ctx)
	}
}

// caller holds h.mu
func (h *Hub) forward(m message) {
	if h.hook == nil {
		return
	}
	m.At = time.Now()
	h.hook.send(m)
}

// caller holds h.mu
func (h *Hub) inboxFor(owner string) *inbox {
	h.seq++
	ib, ok := h.inboxes[owner]
	if !ok {
		if len(h.inboxes) >= h.maxOwners {
			h.evict()
		}
		ib = &inbox{}
		h.inboxes[owner] = ib
	}
	ib.seen = h.seq
	return ib
}

// evict drops the least recently written inbox with no open prompt. Owners
// waiting on a decision are never dropped, so the cap can be exceeded while
// every held inbox has a prompt.
func (h *Hub) evict() {
	var victim string
	var oldest uint64
	for owner, ib := range h.inboxes {
		if len(ib.prompts) > 0 {
			continue
		}
		if victim == "" || ib.seen < oldest {
			victim, oldest = owner, ib.seen
		}
	}
	if victim != "" {
		delete(h.inboxes, victim)
	}
}

func dropPrompt(prompts []types.Prompt, jobID string) []types.Prompt {
	out := prompts[:0]
	for _, p := range prompts {
		if p.Job.ID != jobID {
			out = append(out, p)
		}
	}
	return out
}
