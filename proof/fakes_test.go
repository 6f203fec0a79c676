package proof

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeTimer struct {
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeSink is a single threaded sink driven by virtual time. Nothing runs
// until drain or advance is called.
type fakeSink struct {
	clock  *fakeClock
	queue  []func()
	timers []*fakeTimer
}

func newFakeSink(clock *fakeClock) *fakeSink {
	return &fakeSink{clock: clock}
}

func (s *fakeSink) Execute(fn func()) {
	s.queue = append(s.queue, fn)
}

func (s *fakeSink) RunAfter(d time.Duration, fn func()) Timer {
	t := &fakeTimer{at: s.clock.Now().Add(d), fn: fn}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeSink) drain() {
	for len(s.queue) > 0 {
		fn := s.queue[0]
		s.queue = s.queue[1:]
		fn()
	}
}

// advance moves the clock forward and runs every timer that became due.
func (s *fakeSink) advance(d time.Duration) {
	s.clock.add(d)
	now := s.clock.Now()
	for _, t := range s.timers {
		if t.stopped || t.fired || t.at.After(now) {
			continue
		}
		t.fired = true
		s.Execute(t.fn)
	}
	s.drain()
}

func (s *fakeSink) pendingTimers() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// inlinePool runs jobs on the submitting goroutine.
type inlinePool struct {
	submitted int
	err       error
}

func (p *inlinePool) Submit(_ context.Context, job func()) error {
	if p.err != nil {
		return p.err
	}
	p.submitted++
	job()
	return nil
}

type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Get(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}

// classifierFunc adapts a func to Classifier.
type classifierFunc func(req Request, body string) Outcome

func (f classifierFunc) Classify(req Request, body string) Outcome {
	return f(req, body)
}

type recorder struct {
	results []Outcome
	faults  []string
	errs    []error
}

func (r *recorder) onResult(o Outcome) {
	r.results = append(r.results, o)
}

func (r *recorder) onFault(msg string, err error) {
	r.faults = append(r.faults, msg)
	r.errs = append(r.errs, err)
}

func (r *recorder) last() Outcome {
	return r.results[len(r.results)-1]
}
