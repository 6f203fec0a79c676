package proof

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type Timer interface {
	// Stop reports whether the call prevented the timer from firing.
	Stop() bool
}

// Sink is a serialized execution context: funcs posted to it never run
// concurrently with each other.
type Sink interface {
	Execute(fn func())
	RunAfter(d time.Duration, fn func()) Timer
}

// SerialSink runs posted funcs one by one on a single goroutine. The queue is
// unbounded so that callbacks may post further work without deadlocking.
type SerialSink struct {
	logger *logrus.Logger

	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func NewSerialSink(logger *logrus.Logger) *SerialSink {
	s := &SerialSink{
		logger: logger.WithField("pkg", "proof.sink").Logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *SerialSink) Execute(fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("sink closed, dropping task")
		return
	}
	s.queue = append(s.queue, fn)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *SerialSink) RunAfter(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, func() {
		s.Execute(fn)
	})
}

// Close drops queued funcs and stops the loop. Timers that fire later are
// ignored.
func (s *SerialSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.queue = nil
	close(s.done)
}

func (s *SerialSink) loop() {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		fn := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.run(fn)
	}
}

func (s *SerialSink) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("sink task panicked: %v", r)
		}
	}()
	fn()
}
