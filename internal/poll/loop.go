// Package poll drives the fetch/reconcile cycle of one telemetry category.
package poll

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/scene-reconciler/core"
	"github.com/signalsfoundry/scene-reconciler/internal/fetch"
	"github.com/signalsfoundry/scene-reconciler/internal/logging"
	"github.com/signalsfoundry/scene-reconciler/internal/observability"
	"github.com/signalsfoundry/scene-reconciler/timectrl"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultDelay is waited after every cycle when no delay is configured.
const DefaultDelay = time.Second

// State is the position of a loop within its cycle.
type State int32

const (
	Idle State = iota
	Fetching
	Processing
	FetchFailed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Processing:
		return "processing"
	case FetchFailed:
		return "fetch_failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Cycle outcomes reported to observers and hooks.
const (
	OutcomeOK          = "ok"
	OutcomeFetchFailed = "fetch_failed"
	OutcomeNotFound    = "not_found"
	OutcomeMalformed   = "malformed"
	OutcomeCancelled   = "cancelled"
)

// Handler reconciles one fetched body into the scene.
type Handler interface {
	Apply(ctx context.Context, body []byte) (core.Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, body []byte) (core.Result, error)

func (f HandlerFunc) Apply(ctx context.Context, body []byte) (core.Result, error) {
	return f(ctx, body)
}

// Observer receives one call per finished cycle.
type Observer interface {
	CycleFinished(category, outcome string, took time.Duration, skipped int)
}

// Loop runs fetch then reconcile, waits a fixed delay, and repeats until
// stopped. A Loop never overlaps itself.
type Loop struct {
	name     string
	fetcher  fetch.Fetcher
	handler  Handler
	delay    time.Duration
	clock    timectrl.Clock
	log      logging.Logger
	observer Observer
	tracer   trace.Tracer
	hook     func(outcome string)
	optional bool

	state  atomic.Int32
	cycles atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option customises a Loop.
type Option func(*Loop)

// WithDelay sets the pause after each cycle.
func WithDelay(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.delay = d
		}
	}
}

// WithClock replaces the clock used to wait between cycles.
func WithClock(c timectrl.Clock) Option {
	return func(l *Loop) {
		if c != nil {
			l.clock = c
		}
	}
}

func WithLogger(log logging.Logger) Option {
	return func(l *Loop) {
		if log != nil {
			l.log = log
		}
	}
}

func WithObserver(o Observer) Option {
	return func(l *Loop) { l.observer = o }
}

func WithTracer(t trace.Tracer) Option {
	return func(l *Loop) {
		if t != nil {
			l.tracer = t
		}
	}
}

// WithCycleHook registers fn to be called with the outcome of every cycle.
func WithCycleHook(fn func(outcome string)) Option {
	return func(l *Loop) { l.hook = fn }
}

// WithNotFoundTolerated marks the endpoint as optional: a 404 ends the cycle
// as OutcomeNotFound instead of a fetch failure.
func WithNotFoundTolerated() Option {
	return func(l *Loop) { l.optional = true }
}

// New builds a loop for the named category.
func New(name string, fetcher fetch.Fetcher, handler Handler, opts ...Option) *Loop {
	l := &Loop{
		name:    name,
		fetcher: fetcher,
		handler: handler,
		delay:   DefaultDelay,
		clock:   timectrl.RealClock{},
		log:     logging.Noop(),
		tracer:  observability.Tracer(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loop) Name() string { return l.name }

// State reports where the loop currently is in its cycle.
func (l *Loop) State() State { return State(l.state.Load()) }

// Cycles reports how many cycles have completed.
func (l *Loop) Cycles() uint64 { return l.cycles.Load() }

// Run cycles until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	for {
		l.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-l.clock.After(l.delay):
		}
	}
}

// Start runs the loop in its own goroutine.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done != nil {
		return fmt.Errorf("poll loop %s already started", l.name)
	}
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		l.Run(ctx)
	}(l.done)
	return nil
}

// Stop cancels a started loop and waits for its goroutine to return. It is
// safe to call more than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// RunOnce performs a single cycle and returns its outcome.
func (l *Loop) RunOnce(ctx context.Context) string {
	start := time.Now()
	ctx, log := logging.WithCycleLogger(ctx, l.log, l.name)
	ctx, span := l.tracer.Start(ctx, "poll."+l.name, trace.WithAttributes(
		attribute.String("scene.category", l.name),
		attribute.String("scene.cycle_id", logging.CycleIDFromContext(ctx)),
	))
	defer span.End()

	var res core.Result
	outcome := l.cycle(ctx, log, span, &res)

	l.state.Store(int32(Idle))
	l.cycles.Add(1)
	span.SetAttributes(attribute.String("scene.outcome", outcome))
	if outcome != OutcomeCancelled && l.observer != nil {
		l.observer.CycleFinished(l.name, outcome, time.Since(start), res.Skipped)
	}
	if l.hook != nil {
		l.hook(outcome)
	}
	return outcome
}

func (l *Loop) cycle(ctx context.Context, log logging.Logger, span trace.Span, res *core.Result) string {
	l.state.Store(int32(Fetching))
	body, err := l.fetcher.Fetch(ctx)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			log.Debug(ctx, "poll cycle cancelled", logging.Err(err))
			return OutcomeCancelled
		case l.optional && errors.Is(err, fetch.ErrNotFound):
			log.Debug(ctx, "endpoint not available", logging.Err(err))
			return OutcomeNotFound
		default:
			l.state.Store(int32(FetchFailed))
			span.RecordError(err)
			span.SetStatus(codes.Error, "fetch failed")
			log.Warn(ctx, "fetch failed", logging.Err(err))
			return OutcomeFetchFailed
		}
	}

	l.state.Store(int32(Processing))
	*res, err = l.handler.Apply(ctx, body)
	if err != nil {
		span.RecordError(err)
		log.Warn(ctx, "snapshot not processed", logging.Err(err), logging.Int("bytes", len(body)))
		return OutcomeMalformed
	}
	span.SetAttributes(
		attribute.Int("scene.created", res.Created),
		attribute.Int("scene.updated", res.Updated),
		attribute.Int("scene.removed", res.Removed),
	)
	if res.Changed() || res.Skipped > 0 {
		log.Debug(ctx, "poll cycle reconciled",
			logging.Int("created", res.Created),
			logging.Int("updated", res.Updated),
			logging.Int("removed", res.Removed),
			logging.Int("faded", res.Faded),
			logging.Int("skipped", res.Skipped),
		)
	}
	return OutcomeOK
}
