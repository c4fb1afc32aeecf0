package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/IBM/sarama"
	"github.com/KOMKZ/go-yogan-admission/logger"
	"go.uber.org/zap"
)

// ErrPublisherClosed returned by Publish after Close
var ErrPublisherClosed = errors.New("kafka publisher is closed")

// Message a record to publish
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Publisher synchronous producer
type Publisher struct {
	producer sarama.SyncProducer
	logger   *logger.CtxZapLogger

	mu     sync.RWMutex
	closed bool
}

// NewPublisher connects a synchronous producer to the configured brokers
func NewPublisher(cfg Config, ctxLogger *logger.CtxZapLogger) (*Publisher, error) {
	saramaCfg, err := buildSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("create sync producer failed: %w", err)
	}
	return NewPublisherWithProducer(producer, ctxLogger), nil
}

// NewPublisherWithProducer wraps an existing producer
func NewPublisherWithProducer(producer sarama.SyncProducer, ctxLogger *logger.CtxZapLogger) *Publisher {
	if ctxLogger == nil {
		ctxLogger = logger.GetLogger("yogan")
	}
	return &Publisher{producer: producer, logger: ctxLogger}
}

// Publish sends msg and waits for the broker acknowledgement
func (p *Publisher) Publish(ctx context.Context, msg *Message) (partition int32, offset int64, err error) {
	if msg == nil {
		return 0, 0, errors.New("message cannot be nil")
	}
	if msg.Topic == "" {
		return 0, 0, errors.New("topic cannot be empty")
	}
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return 0, 0, ErrPublisherClosed
	}

	record := &sarama.ProducerMessage{
		Topic: msg.Topic,
		Value: sarama.ByteEncoder(msg.Value),
	}
	if len(msg.Key) > 0 {
		record.Key = sarama.ByteEncoder(msg.Key)
	}
	for k, v := range msg.Headers {
		record.Headers = append(record.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	partition, offset, err = p.producer.SendMessage(record)
	if err != nil {
		p.logger.ErrorCtx(ctx, "Kafka send failed", zap.String("topic", msg.Topic), zap.Error(err))
		return 0, 0, fmt.Errorf("send message failed: %w", err)
	}

	p.logger.DebugCtx(ctx, "Kafka message sent",
		zap.String("topic", msg.Topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return partition, offset, nil
}

// Close shuts the producer down; further Publish calls fail
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close producer failed: %w", err)
	}
	return nil
}

// buildSaramaConfig translates Config into a sarama configuration
func buildSaramaConfig(cfg Config) (*sarama.Config, error) {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID

	version, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, fmt.Errorf("invalid kafka version %q: %w", cfg.Version, err)
	}
	sc.Version = version

	p := cfg.Producer
	switch p.RequiredAcks {
	case 0:
		sc.Producer.RequiredAcks = sarama.NoResponse
	case -1:
		sc.Producer.RequiredAcks = sarama.WaitForAll
	default:
		sc.Producer.RequiredAcks = sarama.WaitForLocal
	}
	sc.Producer.Timeout = p.Timeout
	sc.Producer.Retry.Max = p.RetryMax
	sc.Producer.Retry.Backoff = p.RetryBackoff
	if p.MaxMessageBytes > 0 {
		sc.Producer.MaxMessageBytes = p.MaxMessageBytes
	}
	// required by SyncProducer
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true

	switch strings.ToLower(p.Compression) {
	case CompressionGzip:
		sc.Producer.Compression = sarama.CompressionGZIP
	case CompressionSnappy:
		sc.Producer.Compression = sarama.CompressionSnappy
	case CompressionLZ4:
		sc.Producer.Compression = sarama.CompressionLZ4
	case CompressionZstd:
		sc.Producer.Compression = sarama.CompressionZSTD
	default:
		sc.Producer.Compression = sarama.CompressionNone
	}

	if p.Idempotent {
		sc.Producer.Idempotent = true
		sc.Producer.RequiredAcks = sarama.WaitForAll
		sc.Net.MaxOpenRequests = 1
		if sc.Producer.Retry.Max < 1 {
			sc.Producer.Retry.Max = 1
		}
	}

	if s := cfg.SASL; s != nil && s.Enabled {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User = s.Username
		sc.Net.SASL.Password = s.Password
		switch s.Mechanism {
		case MechanismScramSHA256:
			sc.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
			sc.Net.SASL.SCRAMClientGeneratorFunc = newSCRAMClient(sha256Generator)
		case MechanismScramSHA512:
			sc.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
			sc.Net.SASL.SCRAMClientGeneratorFunc = newSCRAMClient(sha512Generator)
		default:
			sc.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		}
	}

	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sarama config: %w", err)
	}
	return sc, nil
}
