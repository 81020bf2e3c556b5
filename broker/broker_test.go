package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowmint/txfabric/event"
	"github.com/flowmint/txfabric/logger"
)

func testEvent() event.Event {
	return event.Event{
		ID:          "evt-1",
		Kind:        "payment.created",
		AggregateID: "pay-1",
		Timestamp:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Data:        map[string]any{"amount": float64(100)},
	}
}

func TestBuildMessage(t *testing.T) {
	e := testEvent()
	msg, err := buildMessage("payments", e)
	if err != nil {
		t.Fatalf("buildMessage failed: %v", err)
	}

	if msg.Topic != "payments" {
		t.Errorf("expected topic payments, got %s", msg.Topic)
	}
	if string(msg.Key) != "pay-1" {
		t.Errorf("partition key must be the aggregate id, got %s", msg.Key)
	}
	if !msg.Time.Equal(e.Timestamp) {
		t.Errorf("message time must be the event timestamp")
	}

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["event-id"] != "evt-1" || headers["event-kind"] != "payment.created" {
		t.Errorf("unexpected headers: %v", headers)
	}
	if headers["content-type"] != "application/json" {
		t.Errorf("expected JSON content type, got %q", headers["content-type"])
	}
}

func TestNewKafkaPublisher_DisabledFails(t *testing.T) {
	if _, err := NewKafkaPublisher(Config{Enabled: false}, logger.NewDefault("broker-test")); err == nil {
		t.Error("expected error for disabled config")
	}
}

func TestNewKafkaPublisher_InvalidSASL(t *testing.T) {
	cfg := Config{
		Enabled:       true,
		Brokers:       []string{"localhost:9092"},
		EnableSASL:    true,
		SASLMechanism: "GSSAPI",
	}
	if _, err := NewKafkaPublisher(cfg, logger.NewDefault("broker-test")); err == nil {
		t.Error("expected error for unsupported SASL mechanism")
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{Enabled: true}
	cfg.ApplyDefaults()

	if len(cfg.Brokers) == 0 {
		t.Error("expected default brokers")
	}
	if cfg.Topic == "" {
		t.Error("expected default topic")
	}
	if cfg.RequiredAcks != -1 {
		t.Errorf("expected acks from all replicas by default, got %d", cfg.RequiredAcks)
	}
}

func TestMemoryPublisher_RecordsInOrder(t *testing.T) {
	p := NewMemoryPublisher()
	ctx := context.Background()

	first := testEvent()
	second := testEvent()
	second.ID = "evt-2"

	if err := p.Publish(ctx, "payments", first); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := p.Publish(ctx, "payments", second); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	got := p.Published()
	if len(got) != 2 {
		t.Fatalf("expected 2 published, got %d", len(got))
	}
	if got[0].Event.ID != "evt-1" || got[1].Event.ID != "evt-2" {
		t.Errorf("publish order not preserved: %+v", got)
	}
}

func TestMemoryPublisher_FailPublish(t *testing.T) {
	p := NewMemoryPublisher()
	boom := errors.New("broker down")
	p.FailPublish = boom

	if err := p.Publish(context.Background(), "payments", testEvent()); !errors.Is(err, boom) {
		t.Errorf("expected injected failure, got %v", err)
	}
	if len(p.Published()) != 0 {
		t.Error("failed publish must not be recorded")
	}
}
