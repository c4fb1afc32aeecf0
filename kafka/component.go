package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/KOMKZ/go-yogan-admission/component"
	"github.com/KOMKZ/go-yogan-admission/limiter"
	"github.com/KOMKZ/go-yogan-admission/logger"
	"go.uber.org/zap"
)

// Component Kafka rejection publisher
//
// Reads the "kafka" section; when absent or disabled the component stays
// idle and GetSink returns nil.
// Depends on: config, logger
type Component struct {
	config    Config
	publisher *Publisher
	producer  sarama.SyncProducer
	logger    *logger.CtxZapLogger
}

// Option configures the component
type Option func(*Component)

// WithProducer uses producer instead of dialing the brokers
func WithProducer(producer sarama.SyncProducer) Option {
	return func(c *Component) {
		c.producer = producer
	}
}

// NewComponent creates the Kafka component
func NewComponent(opts ...Option) *Component {
	c := &Component{logger: logger.GetLogger("yogan")}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name component name
func (c *Component) Name() string {
	return component.ComponentKafka
}

// DependsOn config and logger
func (c *Component) DependsOn() []string {
	return []string{component.ComponentConfig, component.ComponentLogger}
}

// Init reads and validates the configuration
func (c *Component) Init(ctx context.Context, loader component.ConfigLoader) error {
	if !loader.IsSet("kafka") {
		c.logger.DebugCtx(ctx, "Kafka not configured, skipping")
		return nil
	}
	if err := loader.Unmarshal("kafka", &c.config); err != nil {
		return fmt.Errorf("read kafka config: %w", err)
	}
	c.config.ApplyDefaults()
	if err := c.config.Validate(); err != nil {
		return fmt.Errorf("validate kafka config: %w", err)
	}
	return nil
}

// Start connects the producer
func (c *Component) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	if c.producer != nil {
		c.publisher = NewPublisherWithProducer(c.producer, c.logger)
	} else {
		publisher, err := NewPublisher(c.config, c.logger)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		c.publisher = publisher
	}

	c.logger.InfoCtx(ctx, "✅ Kafka publisher started",
		zap.Strings("brokers", c.config.Brokers),
		zap.String("topic", c.config.Topic))
	return nil
}

// Stop closes the producer
func (c *Component) Stop(ctx context.Context) error {
	if c.publisher == nil {
		return nil
	}
	err := c.publisher.Close()
	c.publisher = nil
	if err != nil {
		return fmt.Errorf("close kafka publisher: %w", err)
	}
	c.logger.InfoCtx(ctx, "✅ Kafka publisher stopped")
	return nil
}

// GetPublisher nil until started
func (c *Component) GetPublisher() *Publisher {
	return c.publisher
}

// GetSink returns a rejection sink for the configured topic, nil when idle
func (c *Component) GetSink() *RejectionSink {
	if c.publisher == nil {
		return nil
	}
	return NewRejectionSink(c.publisher, c.config.Topic)
}

// SinkFactory hands the limiter an async publisher sink once Kafka has started.
// Publishing runs on a worker pool so a slow broker never holds a request.
func (c *Component) SinkFactory(workers int) limiter.SinkFactory {
	return func(limiter.Config) (limiter.RejectionSink, error) {
		sink := c.GetSink()
		if sink == nil {
			return nil, nil
		}
		return limiter.NewAsyncSink(sink, workers, c.config.Producer.Timeout, c.logger)
	}
}

// GetConfig returns the loaded configuration
func (c *Component) GetConfig() Config {
	return c.config
}
