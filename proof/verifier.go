package proof

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/txproof/proof/metrics"
)

// Fixed polling policy. A verifier polls every RepeatPeriod while the tx is
// pending and gives up once MaxObservationWindow has passed since the first
// request.
const (
	RepeatPeriod         = 90 * time.Second
	MaxObservationWindow = 12 * time.Hour
)

type Transport interface {
	// Get returns the raw response text. Any connect error, non-2xx status or
	// unreadable body is reported as an error.
	Get(ctx context.Context, path string) (string, error)
}

// Classifier must be pure: identical inputs give identical outcomes.
type Classifier interface {
	Classify(req Request, body string) Outcome
}

type ResultHandler func(outcome Outcome)

type FaultHandler func(msg string, err error)

// Verifier polls one proof service for one trade until the tx is confirmed,
// fails, errors or MaxObservationWindow elapses.
type Verifier struct {
	logger     *logrus.Logger
	req        Request
	transport  Transport
	classifier Classifier
	pool       Submitter
	sink       Sink
	metrics    metrics.ProofMetrics
	now        func() time.Time
	submitCtx  context.Context

	firstRequest time.Time
	terminated   atomic.Bool

	mu     sync.Mutex
	result *Outcome
	timer  Timer
}

type Option func(*Verifier)

func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}

func WithMetrics(m metrics.ProofMetrics) Option {
	return func(v *Verifier) {
		if m != nil {
			v.metrics = m
		}
	}
}

// WithSubmitContext bounds how long Start may block on a saturated pool. Once
// ctx is done, submissions fail through the fault path.
func WithSubmitContext(ctx context.Context) Option {
	return func(v *Verifier) {
		v.submitCtx = ctx
	}
}

func NewVerifier(
	logger *logrus.Logger,
	req Request,
	transport Transport,
	classifier Classifier,
	pool Submitter,
	sink Sink,
	opts ...Option,
) *Verifier {
	v := &Verifier{
		logger:     logger.WithField("pkg", "proof.verifier").Logger,
		req:        req,
		transport:  transport,
		classifier: classifier,
		pool:       pool,
		sink:       sink,
		metrics:    metrics.NewNilProofMetrics(),
		now:        time.Now,
		submitCtx:  context.Background(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.firstRequest = v.now()
	return v
}

// Start issues one request and, while the tx stays pending, keeps re-issuing
// it every RepeatPeriod. It is a no-op once the verifier has terminated.
func (v *Verifier) Start(onResult ResultHandler, onFault FaultHandler) {
	if v.terminated.Load() {
		// a re-poll may still be scheduled when the owner asked us to stop
		v.logger.WithFields(v.req.Fields()).Warnf("not starting %s as we have already terminated", v.req)
		return
	}
	if v.isTimeoutReached() {
		v.sink.Execute(func() {
			v.handleTimeout(onResult)
		})
		return
	}

	err := v.pool.Submit(v.submitCtx, func() {
		v.poll(onResult, onFault)
	})
	if err != nil {
		msg := fmt.Sprintf("%s could not be scheduled: %v", v.req, err)
		v.sink.Execute(func() {
			v.handleFault(msg, err, onResult, onFault)
		})
	}
}

// Terminate stops polling. An in-flight request is not aborted but its result
// is dropped. Safe to call from any goroutine, any number of times.
func (v *Verifier) Terminate() {
	if !v.terminated.CompareAndSwap(false, true) {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
}

func (v *Verifier) Terminated() bool {
	return v.terminated.Load()
}

// Result returns the last observed outcome, nil before the first one.
func (v *Verifier) Result() *Outcome {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.result == nil {
		return nil
	}
	r := *v.result
	return &r
}

func (v *Verifier) Request() Request {
	return v.req
}

func (v *Verifier) FirstRequest() time.Time {
	return v.firstRequest
}

func (v *Verifier) poll(onResult ResultHandler, onFault FaultHandler) {
	path := v.req.OutputsPath()
	v.logger.WithFields(v.req.Fields()).Infof("param %s for %s", path, v.req.ShortID())

	start := time.Now()
	v.metrics.RecordRequest(v.req.ServiceAddress)
	body, err := v.transport.Get(context.Background(), path)
	v.metrics.RecordRequestDuration(v.req.ServiceAddress, time.Since(start).Seconds())
	if err != nil {
		v.metrics.RecordTransportError(v.req.ServiceAddress)
		msg := fmt.Sprintf("%s failed with error %v", v.req, err)
		v.sink.Execute(func() {
			v.handleFault(msg, err, onResult, onFault)
		})
		return
	}
	v.logger.WithFields(v.req.Fields()).Debugf("response from %s: %s", v.req.ShortID(), body)

	outcome := v.classifier.Classify(v.req, body)
	v.logger.WithFields(v.req.Fields()).Infof("result from %s: %s", v.req.ShortID(), outcome)
	v.sink.Execute(func() {
		v.handle(outcome, onResult, onFault)
	})
}

// handle runs on the sink.
func (v *Verifier) handle(outcome Outcome, onResult ResultHandler, onFault FaultHandler) {
	v.setResult(outcome)

	if v.terminated.Load() {
		v.logger.WithFields(v.req.Fields()).Warnf("received %s but %s was terminated already, not processing it", outcome, v.req)
		return
	}

	switch outcome.Status {
	case StatusPending:
		if v.isTimeoutReached() {
			v.handleTimeout(onResult)
			return
		}
		v.schedule(onResult, onFault)
		deliver(onResult, outcome)
	case StatusSuccess:
		v.logger.WithFields(v.req.Fields()).Infof("%s succeeded", v.req)
		deliver(onResult, outcome)
		v.Terminate()
	case StatusFailed, StatusError:
		deliver(onResult, outcome)
		v.Terminate()
	default:
		v.logger.WithFields(v.req.Fields()).Warnf("unexpected result %s", outcome)
	}
}

// handleTimeout runs on the sink.
func (v *Verifier) handleTimeout(onResult ResultHandler) {
	if v.terminated.Load() {
		return
	}
	v.logger.WithFields(v.req.Fields()).Warnf(
		"%s took too long without a success or failure/error result, giving up; "+
			"the transaction might never have been published", v.req)
	timeout := NoResultsTimeout()
	v.setResult(timeout)
	deliver(onResult, timeout)
	v.Terminate()
}

// handleFault runs on the sink.
func (v *Verifier) handleFault(msg string, err error, onResult ResultHandler, onFault FaultHandler) {
	if v.terminated.Load() {
		v.logger.WithFields(v.req.Fields()).Warnf("%s was terminated already, dropping fault: %s", v.req, msg)
		return
	}
	if onFault != nil {
		onFault(msg, err)
	}
	outcome := ConnectionFailure(msg)
	v.setResult(outcome)
	deliver(onResult, outcome)
	v.Terminate()
}

func (v *Verifier) schedule(onResult ResultHandler, onFault FaultHandler) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.terminated.Load() {
		return
	}
	v.timer = v.sink.RunAfter(RepeatPeriod, func() {
		v.Start(onResult, onFault)
	})
}

func (v *Verifier) setResult(outcome Outcome) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.result = &outcome
}

func (v *Verifier) isTimeoutReached() bool {
	return v.now().Sub(v.firstRequest) > MaxObservationWindow
}

func deliver(onResult ResultHandler, outcome Outcome) {
	if onResult != nil {
		onResult(outcome)
	}
}
