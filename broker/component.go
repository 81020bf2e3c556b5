package broker

import (
	"context"
	"fmt"
	"strings"

	"github.com/flowmint/txfabric/component"
	"github.com/flowmint/txfabric/logger"
)

// Component wraps a KafkaPublisher and implements component.Component for
// lifecycle management.
type Component struct {
	publisher *KafkaPublisher
	cfg       Config
	log       *logger.Logger
}

// NewComponent creates a broker component for use with the component registry.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	return &Component{
		cfg: cfg,
		log: log.WithComponent("broker"),
	}
}

// Publisher returns the underlying publisher, or nil if not started.
func (c *Component) Publisher() *KafkaPublisher {
	return c.publisher
}

var _ component.Component = (*Component)(nil)

// Name returns the component name.
func (c *Component) Name() string { return "broker" }

// Start creates the publisher. The underlying writer connects lazily on the
// first publish, so Start does not require a reachable broker.
func (c *Component) Start(_ context.Context) error {
	publisher, err := NewKafkaPublisher(c.cfg, c.log)
	if err != nil {
		return fmt.Errorf("broker start: %w", err)
	}
	c.publisher = publisher
	c.log.Info("Broker component started")
	return nil
}

// Stop closes the publisher.
func (c *Component) Stop(_ context.Context) error {
	if c.publisher == nil {
		return nil
	}
	c.log.Info("Broker component stopping")
	return c.publisher.Close()
}

// Health reports the publisher state. The writer's health is only observable
// through publish outcomes, so a created publisher counts as healthy.
func (c *Component) Health(_ context.Context) component.Health {
	if c.publisher == nil {
		return component.Health{
			Name:    c.Name(),
			Status:  component.StatusUnhealthy,
			Message: "publisher not initialized",
		}
	}
	return component.Health{
		Name:   c.Name(),
		Status: component.StatusHealthy,
	}
}

// Describe returns infrastructure summary info for the startup display.
func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    "Kafka",
		Type:    "broker",
		Details: fmt.Sprintf("%s topic=%s", strings.Join(c.cfg.Brokers, ","), c.cfg.Topic),
	}
}
