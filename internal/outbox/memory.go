package outbox

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/maauso/clipline/internal/persistence"
)

// ErrOverflowFull is returned by Publish when both the queue and the overflow
// buffer are full.
var ErrOverflowFull = errors.New("outbox: overflow buffer full")

// MemoryOutbox delivers intents from an in-process queue with exponential backoff.
// Publish never waits on the saver: intents that do not fit in the queue are
// parked in an overflow buffer that the worker drains in order.
type MemoryOutbox struct {
	saver          persistence.Saver
	queue          chan Intent
	logger         *slog.Logger
	maxAttempts    int
	baseBackoff    time.Duration
	attemptTimeout time.Duration
	drainTime      time.Duration
	overflowLimit  int

	mu       sync.Mutex
	overflow []Intent
	wake     chan struct{}
}

// Option is a function that configures a MemoryOutbox.
type Option func(*MemoryOutbox)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *MemoryOutbox) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxAttempts sets how many times an intent is tried before it is dropped.
func WithMaxAttempts(n int) Option {
	return func(o *MemoryOutbox) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithBaseBackoff sets the delay before the first retry.
func WithBaseBackoff(d time.Duration) Option {
	return func(o *MemoryOutbox) {
		o.baseBackoff = d
	}
}

// WithAttemptTimeout bounds a single delivery attempt.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *MemoryOutbox) {
		if d > 0 {
			o.attemptTimeout = d
		}
	}
}

// WithOverflowLimit caps how many intents may wait behind a full queue.
func WithOverflowLimit(n int) Option {
	return func(o *MemoryOutbox) {
		if n > 0 {
			o.overflowLimit = n
		}
	}
}

// WithBufferSize sets the queue capacity.
func WithBufferSize(n int) Option {
	return func(o *MemoryOutbox) {
		if n > 0 {
			o.queue = make(chan Intent, n)
		}
	}
}

// NewMemoryOutbox creates an outbox that delivers to saver.
func NewMemoryOutbox(saver persistence.Saver, opts ...Option) *MemoryOutbox {
	o := &MemoryOutbox{
		saver:          saver,
		queue:          make(chan Intent, 256),
		logger:         slog.Default(),
		maxAttempts:    5,
		baseBackoff:    500 * time.Millisecond,
		attemptTimeout: 10 * time.Second,
		drainTime:      5 * time.Second,
		overflowLimit:  4096,
		wake:           make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Publish enqueues an intent without blocking. Once the queue is full,
// intents go to the overflow buffer; ErrOverflowFull is returned when that
// is full too.
func (o *MemoryOutbox) Publish(_ context.Context, in Intent) error {
	o.mu.Lock()
	if len(o.overflow) == 0 {
		select {
		case o.queue <- in:
			o.mu.Unlock()
			return nil
		default:
		}
	}
	if len(o.overflow) >= o.overflowLimit {
		o.mu.Unlock()
		o.logger.Error("outbox intent dropped",
			slog.String("intent_id", in.ID),
			slog.String("kind", string(in.Kind)),
			slog.String("campaign_id", in.CampaignID),
			slog.String("error", ErrOverflowFull.Error()),
		)
		return ErrOverflowFull
	}
	o.overflow = append(o.overflow, in)
	n := len(o.overflow)
	o.mu.Unlock()

	if n == 1 {
		o.logger.Warn("outbox queue full, buffering intents", slog.Int("capacity", cap(o.queue)))
	}
	select {
	case o.wake <- struct{}{}:
	default:
	}
	return nil
}

// pending returns the number of intents not yet handed to the saver.
func (o *MemoryOutbox) pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue) + len(o.overflow)
}

// refill moves overflowed intents into the queue while there is room.
func (o *MemoryOutbox) refill() {
	o.mu.Lock()
	defer o.mu.Unlock()
	moved := 0
loop:
	for _, in := range o.overflow {
		select {
		case o.queue <- in:
			moved++
		default:
			break loop
		}
	}
	o.overflow = slices.Delete(o.overflow, 0, moved)
}

// Run delivers intents until ctx is cancelled, then drains what is left
// within a short grace period.
func (o *MemoryOutbox) Run(ctx context.Context) {
	for {
		select {
		case in := <-o.queue:
			o.deliver(ctx, in)
		case <-o.wake:
		case <-ctx.Done():
			o.drain(context.WithoutCancel(ctx))
			return
		}
		o.refill()
	}
}

func (o *MemoryOutbox) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, o.drainTime)
	defer cancel()

	o.logger.Info("outbox draining", slog.Int("pending", o.pending()))
	for ctx.Err() == nil {
		o.refill()
		select {
		case in := <-o.queue:
			o.deliver(ctx, in)
			continue
		default:
		}
		return
	}
	if n := o.pending(); n > 0 {
		o.logger.Warn("outbox drain incomplete", slog.Int("pending", n))
	}
}

// deliver tries an intent up to maxAttempts times.
func (o *MemoryOutbox) deliver(ctx context.Context, in Intent) {
	backoff := o.baseBackoff
	var err error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		actx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
		err = Deliver(actx, o.saver, in)
		cancel()
		if err == nil {
			return
		}
		if errors.Is(err, ErrUnknownKind) {
			break
		}

		o.logger.Warn("outbox delivery failed",
			slog.String("intent_id", in.ID),
			slog.String("kind", string(in.Kind)),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)

		if attempt == o.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			o.logger.Error("outbox delivery abandoned",
				slog.String("intent_id", in.ID),
				slog.String("error", ctx.Err().Error()),
			)
			return
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	o.logger.Error("outbox intent dropped",
		slog.String("intent_id", in.ID),
		slog.String("kind", string(in.Kind)),
		slog.String("campaign_id", in.CampaignID),
		slog.String("error", err.Error()),
	)
}

// Compile-time check that MemoryOutbox implements Publisher.
var _ Publisher = (*MemoryOutbox)(nil)
