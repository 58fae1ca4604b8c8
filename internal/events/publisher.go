// Package events streams IVR decisions to Kafka.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/lukasbauer/ivrnav/internal/logging"
)

// DecisionEvent is the message published for every decision.
type DecisionEvent struct {
	CallID          string    `json:"call_id"`
	StateID         string    `json:"state_id"`
	Action          string    `json:"action"`
	Digit           string    `json:"digit,omitempty"`
	AvailableDigits []string  `json:"available_digits,omitempty"`
	Reason          string    `json:"reason,omitempty"`
	Signal          string    `json:"signal"`
	NavLevel        int       `json:"ivr_level"`
	RetryCount      int       `json:"ivr_retry_count"`
	Timestamp       time.Time `json:"timestamp"`
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers []string
	Topic   string
}

const (
	queueSize    = 1024
	maxBatchSize = 100
	writeTimeout = 5 * time.Second
)

// ErrQueueFull is reported when an async event is dropped.
var ErrQueueFull = errors.New("decision event queue is full")

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes decision events keyed by call id. Async events go through
// one queue drained by one goroutine, so a call's events reach the writer in
// decision order and land ordered within their partition.
type Publisher struct {
	writer  messageWriter
	topic   string
	enabled bool
	logger  zerolog.Logger
	onError func(error)

	mu     sync.RWMutex
	closed bool
	queue  chan DecisionEvent
	done   chan struct{}
}

// New creates a publisher. Without brokers it runs in log-only mode.
func New(cfg Config, logger zerolog.Logger) *Publisher {
	logger = logging.WithComponent(logger, "kafka_publisher")

	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		logger.Info().Msg("kafka disabled, decision events are logged only")
		return &Publisher{topic: cfg.Topic, logger: logger}
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    &kafka.Transport{Dial: dialer.DialFunc},
	}

	logger.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Msg("kafka publisher initialized")

	return newPublisher(writer, cfg.Topic, logger)
}

func newPublisher(w messageWriter, topic string, logger zerolog.Logger) *Publisher {
	p := &Publisher{
		writer:  w,
		topic:   topic,
		enabled: true,
		logger:  logger,
		queue:   make(chan DecisionEvent, queueSize),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// OnError registers a callback for failed async publishes. Call it before
// the first PublishAsync.
func (p *Publisher) OnError(fn func(error)) {
	p.onError = fn
}

// Enabled reports whether events reach Kafka.
func (p *Publisher) Enabled() bool {
	return p.enabled
}

func (p *Publisher) message(event DecisionEvent) (kafka.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal decision event: %w", err)
	}

	p.logger.Debug().
		Str("topic", p.topic).
		Str("call_id", event.CallID).
		RawJSON("payload", payload).
		Msg("publishing decision event")

	return kafka.Message{
		Key:   []byte(event.CallID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte("ivr.decision")},
			{Key: "action", Value: []byte(event.Action)},
		},
	}, nil
}

// Publish writes one event synchronously.
func (p *Publisher) Publish(ctx context.Context, event DecisionEvent) error {
	msg, err := p.message(event)
	if err != nil {
		return err
	}
	if !p.enabled || p.writer == nil {
		return nil
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write to kafka topic %s: %w", p.topic, err)
	}
	return nil
}

// PublishAsync queues an event without blocking the request path. When the
// queue is full the event is dropped and reported through OnError.
func (p *Publisher) PublishAsync(event DecisionEvent) {
	if !p.enabled {
		return
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}

	select {
	case p.queue <- event:
	default:
		p.logger.Warn().Str("call_id", event.CallID).Msg("decision event dropped, queue full")
		p.reportError(ErrQueueFull)
	}
}

// run drains the queue in order, batching whatever is already waiting.
func (p *Publisher) run() {
	defer close(p.done)

	batch := make([]DecisionEvent, 0, maxBatchSize)
	for event := range p.queue {
		batch = append(batch[:0], event)
	fill:
		for len(batch) < maxBatchSize {
			select {
			case next, ok := <-p.queue:
				if !ok {
					break fill
				}
				batch = append(batch, next)
			default:
				break fill
			}
		}
		p.writeBatch(batch)
	}
}

func (p *Publisher) writeBatch(batch []DecisionEvent) {
	msgs := make([]kafka.Message, 0, len(batch))
	for _, event := range batch {
		msg, err := p.message(event)
		if err != nil {
			p.reportError(err)
			continue
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		err = fmt.Errorf("write to kafka topic %s: %w", p.topic, err)
		p.logger.Error().Err(err).Int("events", len(msgs)).Msg("failed to publish decision events")
		p.reportError(err)
	}
}

func (p *Publisher) reportError(err error) {
	if p.onError != nil {
		p.onError(err)
	}
}

// Close stops accepting events, flushes the queue and closes the writer.
func (p *Publisher) Close() error {
	if !p.enabled {
		return nil
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.writer.Close()
}
