package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultWorkers    = 4
	DefaultBufferSize = 256
	sendTimeout       = 30 * time.Second
)

// ErrDispatcherClosed is returned by Close when called twice.
var ErrDispatcherClosed = errors.New("notify: dispatcher closed")

type Deliverer interface {
	Deliver(ctx context.Context, n Notification) error
}

// AsyncDispatcher hands notifications to a fixed pool of workers over a
// bounded queue. Dispatch never blocks; a full queue drops the notification.
type AsyncDispatcher struct {
	courier Deliverer
	log     *slog.Logger
	onDrop  func(Notification)

	mu     sync.RWMutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
}

type job struct {
	ctx context.Context
	n   Notification
}

type AsyncOption func(*AsyncDispatcher)

// WithDropHook is called for every notification rejected by a full queue.
func WithDropHook(fn func(Notification)) AsyncOption {
	return func(d *AsyncDispatcher) { d.onDrop = fn }
}

func NewAsyncDispatcher(courier Deliverer, workers, buffer int, log *slog.Logger, opts ...AsyncOption) *AsyncDispatcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	if log == nil {
		log = slog.Default()
	}
	d := &AsyncDispatcher{
		courier: courier,
		log:     log.With(slog.String("component", "notify")),
		queue:   make(chan job, buffer),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	return d
}

// Dispatch detaches n from the request's cancellation and queues it.
func (d *AsyncDispatcher) Dispatch(ctx context.Context, n Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(ctx, n, "dispatcher closed")
		return
	}
	select {
	case d.queue <- job{ctx: context.WithoutCancel(ctx), n: n}:
	default:
		d.drop(ctx, n, "queue full")
	}
}

func (d *AsyncDispatcher) drop(ctx context.Context, n Notification, reason string) {
	d.log.WarnContext(ctx, "notification dropped",
		slog.String("reason", reason),
		slog.String("template", n.Template),
		slog.String("recipient", n.Recipient),
	)
	if d.onDrop != nil {
		d.onDrop(n)
	}
}

func (d *AsyncDispatcher) work() {
	defer d.wg.Done()
	for j := range d.queue {
		ctx, cancel := context.WithTimeout(j.ctx, sendTimeout)
		_ = d.courier.Deliver(ctx, j.n)
		cancel()
	}
}

// Close stops accepting notifications and waits for queued ones to be
// delivered, or for ctx to end.
func (d *AsyncDispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrDispatcherClosed
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ Dispatcher = (*AsyncDispatcher)(nil)
