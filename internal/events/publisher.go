// Package events publishes track lifecycle changes to Kafka.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/signalsfoundry/scene-reconciler/internal/logging"
	"github.com/signalsfoundry/scene-reconciler/internal/observability"
	"github.com/signalsfoundry/scene-reconciler/kb"
)

const (
	DefaultQueueSize = 1024
	DefaultBatchSize = 100
	DefaultFlush     = time.Second
	drainTimeout     = 2 * time.Second
)

// Writer is the subset of *kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TrackEvent is the JSON value of every published message. Messages are
// keyed by track id so that one track's events stay ordered.
type TrackEvent struct {
	Type      string    `json:"type"`
	TrackID   string    `json:"track_id"`
	Category  string    `json:"category"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Altitude  float64   `json:"altitude"`
	Time      time.Time `json:"time"`
}

// FromEvent converts a store event.
func FromEvent(ev kb.Event) TrackEvent {
	return TrackEvent{
		Type:      ev.Type.String(),
		TrackID:   ev.Identity,
		Category:  string(ev.Category),
		Latitude:  ev.Position.Latitude,
		Longitude: ev.Position.Longitude,
		Altitude:  ev.Position.Altitude,
		Time:      ev.Time.UTC(),
	}
}

// NewKafkaWriter builds a hash-balanced writer for topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

// Publisher queues store events and writes them to Kafka in batches. The
// queue is bounded; events arriving while it is full are dropped and counted
// so that a slow broker never stalls reconciliation.
type Publisher struct {
	w       Writer
	log     logging.Logger
	metrics *observability.DeliveryCollector

	batchSize int
	flush     time.Duration
	queue     chan kafka.Message

	mu          sync.Mutex
	unsubscribe []func()
}

type Option func(*Publisher)

func WithLogger(log logging.Logger) Option {
	return func(p *Publisher) {
		if log != nil {
			p.log = log
		}
	}
}

func WithMetrics(m *observability.DeliveryCollector) Option {
	return func(p *Publisher) { p.metrics = m }
}

func WithQueueSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.queue = make(chan kafka.Message, n)
		}
	}
}

func WithBatchSize(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithFlushInterval bounds how long a partial batch waits.
func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.flush = d
		}
	}
}

// New builds a publisher writing to w.
func New(w Writer, opts ...Option) *Publisher {
	p := &Publisher{
		w:         w,
		log:       logging.Noop(),
		batchSize: DefaultBatchSize,
		flush:     DefaultFlush,
		queue:     make(chan kafka.Message, DefaultQueueSize),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Attach subscribes the publisher to store events.
func (p *Publisher) Attach(store *kb.KnowledgeBase) {
	unsub := store.Subscribe(func(ev kb.Event) { p.Enqueue(ev) })
	p.mu.Lock()
	p.unsubscribe = append(p.unsubscribe, unsub)
	p.mu.Unlock()
}

// Enqueue queues ev without blocking. It reports false when the event was
// dropped.
func (p *Publisher) Enqueue(ev kb.Event) bool {
	value, err := json.Marshal(FromEvent(ev))
	if err != nil {
		p.metrics.EventDropped()
		return false
	}
	msg := kafka.Message{Key: []byte(ev.Identity), Value: value, Time: ev.Time}
	select {
	case p.queue <- msg:
		return true
	default:
		p.metrics.EventDropped()
		return false
	}
}

// Run writes queued events until ctx is cancelled, then drains what is left
// within a short deadline.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.flush)
	defer ticker.Stop()

	batch := make([]kafka.Message, 0, p.batchSize)
	write := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		err := p.w.WriteMessages(ctx, batch...)
		p.metrics.EventsWritten(len(batch), err)
		if err != nil {
			p.log.Warn(ctx, "publishing track events failed", logging.Int("events", len(batch)), logging.Err(err))
		}
		batch = make([]kafka.Message, 0, p.batchSize)
	}

	for {
		select {
		case <-ctx.Done():
			for drained := false; !drained; {
				select {
				case msg := <-p.queue:
					batch = append(batch, msg)
				default:
					drained = true
				}
			}
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			write(drainCtx)
			cancel()
			return
		case msg := <-p.queue:
			batch = append(batch, msg)
			if len(batch) >= p.batchSize {
				write(ctx)
			}
		case <-ticker.C:
			write(ctx)
		}
	}
}

// Close detaches from every store and closes the writer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	unsubs := p.unsubscribe
	p.unsubscribe = nil
	p.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
	return p.w.Close()
}
