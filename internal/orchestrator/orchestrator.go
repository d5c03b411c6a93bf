// Package orchestrator drives productions to completion. A single loop owns
// every tick: the sequencer launches the next eligible clip of each
// production and the reconciler folds remote job status back into the store.
// Registration, retry and removal are commands executed by the same loop.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maauso/clipline/internal/gateway"
	"github.com/maauso/clipline/internal/outbox"
	"github.com/maauso/clipline/internal/production"
)

// Static errors for orchestrator operations.
var (
	// ErrNotRetryable is returned when retrying a clip that has not failed.
	ErrNotRetryable = errors.New("clip is not in FAILED state")
	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("orchestrator already running")
)

// errStale aborts a mutation whose premise no longer holds.
var errStale = errors.New("clip changed since it was read")

// Orchestrator owns the production store and the tick loop.
type Orchestrator struct {
	store      production.Store
	gateway    gateway.Gateway
	publisher  outbox.Publisher
	broker     *Broker
	logger     *slog.Logger
	interval   time.Duration
	staleAfter time.Duration
	maxSubmits int
	maxPolls   int
	now        func() time.Time

	// tickMu serializes ticks and commands. Fields below it are guarded by it.
	tickMu          sync.Mutex
	lastOutstanding map[string]map[string]string
	staleWarned     map[string]struct{}

	commands chan command
	kick     chan struct{}
	started  atomic.Bool
	stopped  chan struct{}
}

type command struct {
	fn   func() error
	done chan error
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTickInterval sets how often the loop ticks.
func WithTickInterval(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithStaleAfter sets how long a clip may process before it is reported stale.
func WithStaleAfter(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.staleAfter = d
	}
}

// WithMaxConcurrentSubmits bounds launches across productions within a tick.
func WithMaxConcurrentSubmits(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxSubmits = n
		}
	}
}

// WithMaxConcurrentPolls bounds status queries within a tick.
func WithMaxConcurrentPolls(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxPolls = n
		}
	}
}

// WithPublisher sets where persistence intents go. Without one, intents are dropped.
func WithPublisher(p outbox.Publisher) Option {
	return func(o *Orchestrator) {
		o.publisher = p
	}
}

// WithBroker sets the change notification broker.
func WithBroker(b *Broker) Option {
	return func(o *Orchestrator) {
		if b != nil {
			o.broker = b
		}
	}
}

// WithClock sets the time source used for clip timestamps and staleness.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an Orchestrator over store that runs jobs through gw.
func New(store production.Store, gw gateway.Gateway, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:           store,
		gateway:         gw,
		logger:          slog.Default(),
		interval:        6 * time.Second,
		staleAfter:      5 * time.Minute,
		maxSubmits:      3,
		maxPolls:        8,
		now:             time.Now,
		lastOutstanding: make(map[string]map[string]string),
		staleWarned:     make(map[string]struct{}),
		commands:        make(chan command),
		kick:            make(chan struct{}, 1),
		stopped:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.broker == nil {
		o.broker = NewBroker(0, o.logger)
	}
	return o
}

// Broker returns the change notification broker.
func (o *Orchestrator) Broker() *Broker {
	return o.broker
}

// Run ticks every interval and executes commands until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(o.stopped)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	o.logger.Info("orchestrator started",
		slog.Duration("interval", o.interval),
		slog.Int("max_concurrent_submits", o.maxSubmits),
		slog.Int("max_concurrent_polls", o.maxPolls),
	)

	o.tickLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator stopped")
			return nil
		case <-ticker.C:
			o.tickLogged(ctx)
		case <-o.kick:
			o.tickLogged(ctx)
		case cmd := <-o.commands:
			o.tickMu.Lock()
			err := cmd.fn()
			o.tickMu.Unlock()
			cmd.done <- err
		}
	}
}

func (o *Orchestrator) tickLogged(ctx context.Context) {
	if err := o.Tick(ctx); err != nil && ctx.Err() == nil {
		o.logger.Error("tick failed", slog.String("error", err.Error()))
	}
}

// Tick runs the sequencer and then the reconciler once. Concurrent calls
// serialize.
func (o *Orchestrator) Tick(ctx context.Context) error {
	o.tickMu.Lock()
	defer o.tickMu.Unlock()

	prods, err := o.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list productions: %w", err)
	}
	o.sequence(ctx, prods)

	prods, err = o.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list productions: %w", err)
	}
	o.reconcile(ctx, prods)

	prods, err = o.store.List(ctx)
	if err != nil {
		return fmt.Errorf("list productions: %w", err)
	}
	o.publishOutstanding(ctx, prods)
	return nil
}

// Register adds a production. A registered production is launched on the
// next tick.
func (o *Orchestrator) Register(ctx context.Context, p *production.Production, replace bool) error {
	err := o.do(ctx, func() error {
		if err := o.store.Register(ctx, p, replace); err != nil {
			return err
		}
		if replace {
			delete(o.lastOutstanding, p.CampaignID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	o.logger.Info("production registered",
		slog.String("campaign_id", p.CampaignID),
		slog.String("kind", string(p.Kind)),
		slog.Int("clips", len(p.Clips)),
	)
	if snap, err := o.store.Get(ctx, p.CampaignID); err == nil {
		o.notify(EventRegistered, snap)
	}
	o.wake()
	return nil
}

// Retry returns a FAILED clip to PENDING so the sequencer launches it again.
// Sibling clips are untouched.
func (o *Orchestrator) Retry(ctx context.Context, campaignID, clipID string) error {
	var snap *production.Production
	err := o.do(ctx, func() error {
		var err error
		snap, err = o.store.Mutate(ctx, campaignID, clipID, func(c *production.Clip) error {
			if c.Status != production.StatusFailed {
				return fmt.Errorf("%w: clip %s is %s", ErrNotRetryable, c.ID, c.Status)
			}
			c.Status = production.StatusPending
			c.JobID = ""
			c.ResultURL = ""
			c.Error = ""
			c.SubmittedAt = time.Time{}
			c.CompletedAt = time.Time{}
			return nil
		})
		return err
	})
	if err != nil {
		return err
	}

	o.logger.Info("clip retry requested",
		slog.String("campaign_id", campaignID),
		slog.String("clip_id", clipID),
	)
	o.notify(EventClipUpdated, snap)
	o.wake()
	return nil
}

// Remove deletes a production. Jobs still running remotely are abandoned.
func (o *Orchestrator) Remove(ctx context.Context, campaignID string) error {
	err := o.do(ctx, func() error {
		if err := o.store.Remove(ctx, campaignID); err != nil {
			return err
		}
		if len(o.lastOutstanding[campaignID]) > 0 {
			o.publish(ctx, outbox.NewOutstandingJobs(campaignID, map[string]string{}))
		}
		delete(o.lastOutstanding, campaignID)
		return nil
	})
	if err != nil {
		return err
	}

	o.logger.Info("production removed", slog.String("campaign_id", campaignID))
	o.broker.Publish(Event{Type: EventRemoved, CampaignID: campaignID, LastUpdate: o.now()})
	return nil
}

// Get returns a snapshot of the production.
func (o *Orchestrator) Get(ctx context.Context, campaignID string) (*production.Production, error) {
	return o.store.Get(ctx, campaignID)
}

// Production returns the read model of a production.
func (o *Orchestrator) Production(ctx context.Context, campaignID string) (ProductionView, error) {
	p, err := o.store.Get(ctx, campaignID)
	if err != nil {
		return ProductionView{}, err
	}
	return NewProductionView(p, o.now(), o.staleAfter), nil
}

// List returns the read models of every production.
func (o *Orchestrator) List(ctx context.Context) ([]ProductionView, error) {
	prods, err := o.store.List(ctx)
	if err != nil {
		return nil, err
	}
	now := o.now()
	views := make([]ProductionView, len(prods))
	for i, p := range prods {
		views[i] = NewProductionView(p, now, o.staleAfter)
	}
	return views, nil
}

// do executes fn on the loop goroutine when the loop is running and
// directly under the tick lock otherwise.
func (o *Orchestrator) do(ctx context.Context, fn func() error) error {
	if !o.running() {
		o.tickMu.Lock()
		defer o.tickMu.Unlock()
		return fn()
	}

	cmd := command{fn: fn, done: make(chan error, 1)}
	select {
	case o.commands <- cmd:
	case <-o.stopped:
		o.tickMu.Lock()
		defer o.tickMu.Unlock()
		return fn()
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) running() bool {
	select {
	case <-o.stopped:
		return false
	default:
		return o.started.Load()
	}
}

// wake requests an immediate tick from the loop.
func (o *Orchestrator) wake() {
	select {
	case o.kick <- struct{}{}:
	default:
	}
}

// publishOutstanding emits an outstanding jobs intent for every production
// whose running job set changed since the last tick.
func (o *Orchestrator) publishOutstanding(ctx context.Context, prods []*production.Production) {
	seen := make(map[string]struct{}, len(prods))
	for _, p := range prods {
		seen[p.CampaignID] = struct{}{}
		jobs := p.Outstanding()
		prev, ok := o.lastOutstanding[p.CampaignID]
		if ok && maps.Equal(prev, jobs) {
			continue
		}
		if !ok && len(jobs) == 0 {
			o.lastOutstanding[p.CampaignID] = jobs
			continue
		}
		o.lastOutstanding[p.CampaignID] = jobs
		o.publish(ctx, outbox.NewOutstandingJobs(p.CampaignID, jobs))
	}
	for id := range o.lastOutstanding {
		if _, ok := seen[id]; !ok {
			delete(o.lastOutstanding, id)
		}
	}
}

func (o *Orchestrator) publish(ctx context.Context, in outbox.Intent) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, in); err != nil {
		o.logger.Error("failed to publish persistence intent",
			slog.String("campaign_id", in.CampaignID),
			slog.String("kind", string(in.Kind)),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) notify(t EventType, p *production.Production) {
	o.broker.Publish(Event{
		Type:       t,
		CampaignID: p.CampaignID,
		Clips:      clipViews(p, o.now(), o.staleAfter),
		LastUpdate: p.LastUpdate,
	})
}
