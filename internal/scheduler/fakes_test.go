package scheduler

import (
	"context"
	"sync"

	"call-evaluator-go/internal/types"
)

type fakeResolver struct {
	mu       sync.Mutex
	existing map[string]types.Location
	err      map[string]error
	calls    []string
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{existing: map[string]types.Location{}, err: map[string]error{}}
}

func (f *fakeResolver) Lookup(_ context.Context, key string) (types.Location, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	if err := f.err[key]; err != nil {
		return types.Location{}, false, err
	}
	loc, ok := f.existing[key]
	return loc, ok, nil
}

type fakeRunner struct {
	mu         sync.Mutex
	ran        []types.Job
	running    map[string]int
	maxRunning map[string]int
	fail       map[string]error
	gates      map[string]chan struct{}
	started    chan types.Job
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		running:    map[string]int{},
		maxRunning: map[string]int{},
		fail:       map[string]error{},
		gates:      map[string]chan struct{}{},
		started:    make(chan types.Job, 1024),
	}
}

// hold makes the run of name block until the returned func is called.
func (f *fakeRunner) hold(name string) func() {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[name] = ch
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (f *fakeRunner) Run(ctx context.Context, job types.Job) (*types.EvaluationRecord, error) {
	f.mu.Lock()
	f.running[job.Owner]++
	if f.running[job.Owner] > f.maxRunning[job.Owner] {
		f.maxRunning[job.Owner] = f.running[job.Owner]
	}
	f.ran = append(f.ran, job)
	gate := f.gates[job.DisplayName]
	err := f.fail[job.DisplayName]
	f.mu.Unlock()

	select {
	case f.started <- job:
	default:
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	f.mu.Lock()
	f.running[job.Owner]--
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &types.EvaluationRecord{ManagerName: job.Submitter, TotalScore: 42}, nil
}

func (f *fakeRunner) jobs() []types.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.Job(nil), f.ran...)
}

func (f *fakeRunner) max(owner string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxRunning[owner]
}

type fakeGateway struct {
	prompts chan types.Prompt
	err     error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{prompts: make(chan types.Prompt, 64)}
}

func (f *fakeGateway) Ask(_ context.Context, p types.Prompt) error {
	if f.err != nil {
		return f.err
	}
	f.prompts <- p
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []types.Event
}

func (r *recordingNotifier) Notify(_ context.Context, ev types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingNotifier) all() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Event(nil), r.events...)
}

// terminal returns "name:kind" for every finalized job, in order.
func (r *recordingNotifier) terminal(owner string) []string {
	var out []string
	for _, ev := range r.all() {
		if ev.Kind.Terminal() && ev.Job.Owner == owner {
			out = append(out, ev.Job.DisplayName+":"+string(ev.Kind))
		}
	}
	return out
}

func (r *recordingNotifier) count(kind types.EventKind) int {
	n := 0
	for _, ev := range r.all() {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}
