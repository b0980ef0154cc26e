package core

import (
	"time"

	"github.com/signalsfoundry/scene-reconciler/internal/logging"
	"github.com/signalsfoundry/scene-reconciler/timectrl"
)

// Result counts what one reconciliation pass did.
type Result struct {
	Created int
	Updated int
	Removed int
	Faded   int
	// Skipped counts items that could not be decoded, validated or
	// converted; their siblings are still processed.
	Skipped int
}

// Changed reports whether the pass touched the scene.
func (r Result) Changed() bool {
	return r.Created+r.Updated+r.Removed+r.Faded > 0
}

// LegendRecorder receives the track counters after every track pass.
type LegendRecorder interface {
	SetTrackCounts(total, adsb, radarOnly int)
}

// Default decay windows.
const (
	DefaultEllipsoidMaxAge    = 10 * time.Second
	DefaultEllipsoidBaseAlpha = 0.5
	DefaultAdsbMaxAge         = 10 * time.Second
)

type options struct {
	clock      timectrl.Clock
	logger     logging.Logger
	visibility *Visibility
	recorder   LegendRecorder
	maxAge     time.Duration
	baseAlpha  float64
}

// Option configures a reconciler.
type Option func(*options)

// WithClock sets the time source used to stamp and age entities.
func WithClock(c timectrl.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger sets the fallback logger used when the context carries none.
func WithLogger(l logging.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithVisibility shares a set of display toggles.
func WithVisibility(v *Visibility) Option {
	return func(o *options) {
		if v != nil {
			o.visibility = v
		}
	}
}

// WithLegendRecorder publishes track counters after every pass.
func WithLegendRecorder(r LegendRecorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithMaxAge overrides the decay window of an aged category.
func WithMaxAge(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.maxAge = d
		}
	}
}

// WithBaseAlpha overrides the starting alpha of a fading category.
func WithBaseAlpha(a float64) Option {
	return func(o *options) {
		if a > 0 && a <= 1 {
			o.baseAlpha = a
		}
	}
}

func newOptions(maxAge time.Duration, baseAlpha float64, opts []Option) options {
	o := options{
		clock:     timectrl.RealClock{},
		logger:    logging.Noop(),
		maxAge:    maxAge,
		baseAlpha: baseAlpha,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.visibility == nil {
		o.visibility = NewVisibility()
	}
	return o
}
