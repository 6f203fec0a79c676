package proof

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Shared by all verifiers of the process, it bounds the number of outbound
// connections to proof services.
const (
	PoolWorkers    = 3
	PoolQueueDepth = 5
	PoolKeepAlive  = 10 * time.Minute
)

var ErrPoolClosed = errors.New("pool is closed")

type Submitter interface {
	// Submit blocks while the queue is full.
	Submit(ctx context.Context, job func()) error
}

type Pool struct {
	logger     *logrus.Logger
	maxWorkers int
	keepAlive  time.Duration
	jobs       chan func()
	done       chan struct{}

	mu      sync.Mutex
	workers int
	waiting int
	closed  bool
	eg      errgroup.Group
}

func NewPool(logger *logrus.Logger, workers, queueDepth int, keepAlive time.Duration) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueDepth < 0 {
		queueDepth = 0
	}
	return &Pool{
		logger:     logger.WithField("pkg", "proof.pool").Logger,
		maxWorkers: workers,
		keepAlive:  keepAlive,
		jobs:       make(chan func(), queueDepth),
		done:       make(chan struct{}),
	}
}

func NewDefaultPool(logger *logrus.Logger) *Pool {
	return NewPool(logger, PoolWorkers, PoolQueueDepth, PoolKeepAlive)
}

func (p *Pool) Submit(ctx context.Context, job func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if p.workers < p.maxWorkers {
		p.workers++
		p.eg.Go(p.work)
	}
	// enqueue under the lock when possible so an idle worker can't exit
	// between the check above and the send
	select {
	case p.jobs <- job:
		p.mu.Unlock()
		return nil
	default:
	}
	// idle workers stay alive while a submitter waits on the queue
	p.waiting++
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.waiting--
		p.mu.Unlock()
	}()

	select {
	case p.jobs <- job:
		return nil
	case <-p.done:
		return ErrPoolClosed
	case <-ctx.Done():
		return fmt.Errorf("pool queue full: %w", ctx.Err())
	}
}

// Workers returns the number of live workers.
func (p *Pool) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

// Shutdown stops accepting jobs, runs what is already queued and waits for the
// workers to exit.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.done)
	}
	p.mu.Unlock()

	waitCh := make(chan error, 1)
	go func() {
		waitCh <- p.eg.Wait()
	}()

	select {
	case err := <-waitCh:
		if err != nil {
			return fmt.Errorf("p.eg.Wait: %w", err)
		}
		p.logger.Info("pool stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) work() error {
	timer := time.NewTimer(p.keepAlive)
	defer timer.Stop()

	for {
		select {
		case job := <-p.jobs:
			p.run(job)
			timer.Reset(p.keepAlive)
		case <-timer.C:
			p.mu.Lock()
			if len(p.jobs) > 0 || p.waiting > 0 {
				p.mu.Unlock()
				timer.Reset(p.keepAlive)
				continue
			}
			p.workers--
			p.mu.Unlock()
			return nil
		case <-p.done:
			p.drain()
			return nil
		}
	}
}

func (p *Pool) drain() {
	for {
		select {
		case job := <-p.jobs:
			p.run(job)
		default:
			return
		}
	}
}

func (p *Pool) run(job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("job panicked: %v", r)
		}
	}()
	job()
}
