package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/flowmint/txfabric/component"
	"github.com/flowmint/txfabric/event"
	"github.com/flowmint/txfabric/logger"
	"github.com/flowmint/txfabric/util"
)

// KafkaPublisher publishes events through a kafka-go Writer. The writer is
// initialized lazily so the service can start while the broker is still
// coming up.
type KafkaPublisher struct {
	cfg    Config
	log    *logger.Logger
	init   *component.BaseLazyComponent
	mu     sync.RWMutex
	writer *kafkago.Writer
	closed bool
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a lazily-initialized Kafka publisher.
func NewKafkaPublisher(cfg Config, log *logger.Logger) (*KafkaPublisher, error) {
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("broker config: %w", err)
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("broker is disabled")
	}

	p := &KafkaPublisher{cfg: cfg, log: log.WithComponent("kafka_publisher")}
	p.init = component.NewBaseLazyComponent("kafka-writer", p.initWriter)
	return p, nil
}

// initWriter creates the underlying kafka.Writer. Serialized by the lazy
// component, so it runs at most once per successful initialization.
func (p *KafkaPublisher) initWriter(_ context.Context) error {
	transport, err := createTransport(&p.cfg)
	if err != nil {
		return fmt.Errorf("broker transport: %w", err)
	}

	w := &kafkago.Writer{
		Addr:         kafkago.TCP(p.cfg.Brokers...),
		Transport:    transport,
		Balancer:     &kafkago.LeastBytes{},
		BatchSize:    p.cfg.BatchSize,
		BatchTimeout: parseDuration(p.cfg.BatchTimeout),
		RequiredAcks: kafkago.RequiredAcks(p.cfg.RequiredAcks),
		Compression:  resolveCompression(p.cfg.Compression),
		WriteTimeout: parseDuration(p.cfg.WriteTimeout),
		ErrorLogger: kafkago.LoggerFunc(func(msg string, args ...interface{}) {
			p.log.Error("writer: "+msg, map[string]interface{}{
				"args": fmt.Sprintf("%v", args),
			})
		}),
	}

	p.mu.Lock()
	p.writer = w
	p.mu.Unlock()

	fields := map[string]interface{}{
		"brokers":     p.cfg.Brokers,
		"compression": p.cfg.Compression,
		"batch_size":  p.cfg.BatchSize,
	}
	if p.cfg.EnableSASL {
		fields["sasl_user"] = util.MaskSecret(p.cfg.Username, 2)
	}
	p.log.Info("Kafka publisher initialized", fields)

	return nil
}

// Publish sends the event to the topic, keyed by aggregate id. Delivery is
// at-least-once: transient write failures are retried with linear backoff.
func (p *KafkaPublisher) Publish(ctx context.Context, topic string, e event.Event) error {
	if err := p.init.Initialize(ctx); err != nil {
		return err
	}

	p.mu.RLock()
	writer, closed := p.writer, p.closed
	p.mu.RUnlock()
	if closed {
		return fmt.Errorf("publisher is closed")
	}

	msg, err := buildMessage(topic, e)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= p.cfg.Retries; attempt++ {
		if err := writer.WriteMessages(ctx, msg); err == nil {
			return nil
		} else {
			lastErr = err
			if attempt < p.cfg.Retries {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
				}
			}
		}
	}
	return fmt.Errorf("publish after %d retries: %w", p.cfg.Retries, lastErr)
}

// buildMessage converts an event to its wire form.
func buildMessage(topic string, e event.Event) (kafkago.Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("marshal event %s: %w", e.ID, err)
	}

	return kafkago.Message{
		Topic: topic,
		Key:   []byte(e.AggregateID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event-id", Value: []byte(e.ID)},
			{Key: "event-kind", Value: []byte(e.Kind)},
			{Key: "content-type", Value: []byte("application/json")},
		},
		Time: e.Timestamp,
	}, nil
}

// Stats returns writer statistics.
func (p *KafkaPublisher) Stats() kafkago.WriterStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.writer != nil {
		return p.writer.Stats()
	}
	return kafkago.WriterStats{}
}

// Close shuts down the publisher.
func (p *KafkaPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.log.Info("Kafka publisher closing")
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
