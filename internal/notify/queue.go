package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	wderr "github.com/hamed0406/vmwatchdog/internal/errors"
)

const (
	DefaultQueueSize   = 100
	DefaultSendTimeout = 10 * time.Second
)

var (
	ErrQueueFull   = errors.New("alert queue full")
	ErrQueueClosed = errors.New("alert queue closed")
)

type job struct {
	title, text string
}

// Queue hands alerts to background workers so a slow sink never holds up
// the caller. Send only enqueues; delivery failures are logged by the worker.
type Queue struct {
	next    Notifier
	log     *zap.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	jobs   chan job

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueue starts workers that forward to next. Each delivery gets its own
// timeout and does not inherit the caller's context, so alerts enqueued
// right before shutdown still go out while Close drains.
func NewQueue(next Notifier, size, workers int, timeout time.Duration, log *zap.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if workers <= 0 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	base, cancel := context.WithCancel(context.Background())
	q := &Queue{
		next:    next,
		log:     log,
		timeout: timeout,
		jobs:    make(chan job, size),
		base:    base,
		cancel:  cancel,
	}
	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.work()
	}
	return q
}

// Send enqueues without blocking. It fails with ErrQueueFull when the buffer
// is at capacity and ErrQueueClosed after Close.
func (q *Queue) Send(_ context.Context, title, text string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job{title, text}:
		return nil
	default:
		q.log.Warn("alert_dropped", zap.String("title", title), zap.Int("capacity", cap(q.jobs)))
		return ErrQueueFull
	}
}

// Len reports how many alerts are waiting.
func (q *Queue) Len() int {
	return len(q.jobs)
}

// Close stops accepting alerts and waits for the workers to deliver what is
// queued. When ctx ends first, in-flight sends are cancelled and the rest
// are discarded.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.cancel()
		return nil
	case <-ctx.Done():
		q.cancel()
		<-done
		return ctx.Err()
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for j := range q.jobs {
		if q.base.Err() != nil {
			continue
		}
		q.deliver(j)
	}
}

func (q *Queue) deliver(j job) {
	ctx, cancel := context.WithTimeout(q.base, q.timeout)
	defer cancel()
	if err := q.next.Send(ctx, j.title, j.text); err != nil {
		q.log.Error("alert_delivery_failed",
			zap.String("title", j.title),
			zap.Error(wderr.NewDeliveryError("deliver queued alert", err)),
		)
	}
}
