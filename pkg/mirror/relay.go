package mirror

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// Defaults for [RelayOptions].
const (
	DefaultQueueSize      = 1024
	DefaultPublishTimeout = 5 * time.Second
	DefaultDrainTimeout   = 10 * time.Second
)

var (
	// ErrQueueFull is returned by [Relay.Send] when the publisher has fallen
	// behind. The event is dropped.
	ErrQueueFull = errors.New("mirror: queue full")

	// ErrRelayClosed is returned by [Relay.Send] after [Relay.Close].
	ErrRelayClosed = errors.New("mirror: relay closed")
)

// Publisher delivers one encoded event to an external system.
type Publisher interface {
	Publish(ctx context.Context, msg []byte) error
	Close() error
}

// RelayOptions tunes a [Relay]. Zero fields use the package defaults.
type RelayOptions struct {
	QueueSize      int
	PublishTimeout time.Duration // per message
	DrainTimeout   time.Duration // how long Close waits for queued messages
	Logger         *log.Logger
}

// Relay moves events from the hub to a [Publisher] on a worker goroutine.
// Send only enqueues, so the broadcaster never waits on the network.
// Relay satisfies fanout.Subscriber and is attached to the hub as a sink.
type Relay struct {
	name   string
	pub    Publisher
	opts   RelayOptions
	logger *log.Logger

	mu     sync.RWMutex // guards closed against concurrent Send
	closed bool
	queue  chan []byte
	cancel context.CancelFunc
	group  *errgroup.Group

	published, failed uint64 // guarded by statsMu
	statsMu           sync.Mutex
}

// NewRelay starts a relay that forwards to pub.
func NewRelay(name string, pub Publisher, opts RelayOptions) *Relay {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = DefaultPublishTimeout
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)
	r := &Relay{
		name:   name,
		pub:    pub,
		opts:   opts,
		logger: opts.Logger.With("mirror", name),
		queue:  make(chan []byte, opts.QueueSize),
		cancel: cancel,
		group:  g,
	}
	g.Go(func() error { return r.run(ctx) })
	return r
}

// Name returns the mirror name used in logs.
func (r *Relay) Name() string { return r.name }

// Send enqueues msg. It fails with [ErrQueueFull] instead of blocking.
func (r *Relay) Send(msg []byte) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRelayClosed
	}
	select {
	case r.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events, publishes what is already queued (bounded by
// the drain timeout) and closes the publisher.
func (r *Relay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	timer := time.AfterFunc(r.opts.DrainTimeout, r.cancel)
	defer timer.Stop()

	err := r.group.Wait()
	r.cancel()
	if cerr := r.pub.Close(); cerr != nil && err == nil {
		err = cerr
	}

	published, failed := r.Stats()
	r.logger.Debug("mirror closed", "published", published, "failed", failed)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stats returns how many events were published and how many failed.
func (r *Relay) Stats() (published, failed uint64) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	return r.published, r.failed
}

func (r *Relay) run(ctx context.Context) error {
	for msg := range r.queue {
		if ctx.Err() != nil {
			// drain timeout hit: count what is left as lost
			r.record(false)
			continue
		}
		pctx, cancel := context.WithTimeout(ctx, r.opts.PublishTimeout)
		err := r.pub.Publish(pctx, msg)
		cancel()
		if err != nil {
			r.logger.Warn("publish failed", "err", err)
		}
		r.record(err == nil)
	}
	return nil
}

func (r *Relay) record(ok bool) {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()
	if ok {
		r.published++
	} else {
		r.failed++
	}
}
