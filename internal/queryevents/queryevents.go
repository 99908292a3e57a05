// Package queryevents publishes one Kafka message per finished weather query.
package queryevents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/mohammed-shakir/meteo-query/internal/logger"
	"github.com/mohammed-shakir/meteo-query/pkg/meteo"
)

type Event struct {
	ID         string    `json:"id"`
	Shape      string    `json:"shape"`
	Target     string    `json:"target,omitempty"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	DurationMS float64   `json:"duration_ms"`
	Bytes      int       `json:"bytes"`
	RequestID  string    `json:"request_id,omitempty"`
	Scenario   string    `json:"scenario,omitempty"`
	TS         time.Time `json:"ts"`
}

type Publisher struct {
	topic   string
	events  chan Event
	prod    sarama.AsyncProducer
	logger  *slog.Logger
	stopped chan struct{}
}

func NewPublisher(brokers []string, topic string, queueSize int, log *slog.Logger) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("queryevents: no brokers configured")
	}
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.ClientID = "meteo-query"
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false
	cfg.Producer.RequiredAcks = sarama.WaitForLocal

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("queryevents: create async producer: %w", err)
	}
	return newPublisher(prod, topic, queueSize, log), nil
}

func newPublisher(prod sarama.AsyncProducer, topic string, queueSize int, log *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	p := &Publisher{
		topic:   topic,
		events:  make(chan Event, queueSize),
		prod:    prod,
		logger:  log,
		stopped: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.logger.Warn("queryevents: marshal", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.Shape),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		for err := range p.prod.Errors() {
			if err != nil {
				p.logger.Warn("queryevents: producer error", "err", err)
			}
		}
	}()

	return p
}

// Publish enqueues ev without blocking; when the queue is full the event is
// dropped.
func (p *Publisher) Publish(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	select {
	case p.events <- ev:
	default:
		p.logger.Debug("queryevents: queue full, dropping event", "shape", ev.Shape)
	}
}

// Hook adapts the publisher to meteo.WithQueryHook.
func (p *Publisher) Hook(scenario string) func(context.Context, meteo.QueryEvent) {
	return func(ctx context.Context, qe meteo.QueryEvent) {
		ev := Event{
			Shape:      qe.Shape,
			Target:     qe.Target,
			Outcome:    meteo.Outcome(qe.Err),
			DurationMS: float64(qe.Duration.Microseconds()) / 1000,
			Bytes:      qe.Bytes,
			RequestID:  logger.RequestID(ctx),
			Scenario:   scenario,
		}
		if qe.Err != nil {
			ev.Error = qe.Err.Error()
		}
		p.Publish(ev)
	}
}

// Close drains queued events and closes the producer.
func (p *Publisher) Close() error {
	close(p.events)
	<-p.stopped

	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("queryevents: close producer: %w", err)
	}
	return nil
}
