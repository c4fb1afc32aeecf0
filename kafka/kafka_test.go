package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/KOMKZ/go-yogan-admission/component"
	"github.com/KOMKZ/go-yogan-admission/config"
	"github.com/KOMKZ/go-yogan-admission/limiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadConfig(t *testing.T, yaml string) *config.Loader {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	loader, err := config.NewLoaderBuilder().WithConfigPath(dir).Build()
	require.NoError(t, err)
	return loader
}

func testRejection() limiter.Rejection {
	return limiter.Rejection{
		Policy:       "per-user",
		PartitionKey: "user:42",
		LimiterID:    "per-user:token_bucket",
		Reason:       limiter.ReasonLimitExceeded,
		RetryAfter:   1500 * time.Millisecond,
		HasRetry:     true,
		At:           time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Request: &limiter.Request{
			Endpoint: "GET /ratelimit/rate-limit/per-user",
			UserID:   "42",
			ClientIP: "10.0.0.1",
		},
	}
}

func TestRejectionSink_PublishesEvent(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, "admission.rejections", msg.Topic)

		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "per-user:user:42", string(key))

		value, err := msg.Value.Encode()
		require.NoError(t, err)
		var event map[string]interface{}
		require.NoError(t, json.Unmarshal(value, &event))
		assert.Equal(t, "per-user", event["policy"])
		assert.Equal(t, "limit_exceeded", event["reason"])
		assert.EqualValues(t, 1500, event["retry_after_ms"])
		assert.Equal(t, "42", event["user_id"])
		assert.Equal(t, "10.0.0.1", event["client_ip"])

		headers := map[string]string{}
		for _, h := range msg.Headers {
			headers[string(h.Key)] = string(h.Value)
		}
		assert.Equal(t, "application/json", headers["content-type"])
		return nil
	})

	publisher := NewPublisherWithProducer(producer, nil)
	sink := NewRejectionSink(publisher, "admission.rejections")
	require.NoError(t, sink.OnRejected(context.Background(), testRejection()))
	require.NoError(t, publisher.Close())
}

func TestRejectionEvent_NoRetryHint(t *testing.T) {
	rej := testRejection()
	rej.HasRetry = false
	rej.Request = nil

	data, err := json.Marshal(NewRejectionEvent(context.Background(), rej))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "retry_after_ms")
	assert.NotContains(t, string(data), "endpoint")
}

func TestPublisher_SendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	publisher := NewPublisherWithProducer(producer, nil)
	_, _, err := publisher.Publish(context.Background(), &Message{Topic: "t", Value: []byte("x")})
	assert.True(t, errors.Is(err, sarama.ErrNotLeaderForPartition))
	require.NoError(t, publisher.Close())
}

func TestPublisher_Closed(t *testing.T) {
	publisher := NewPublisherWithProducer(mocks.NewSyncProducer(t, nil), nil)
	require.NoError(t, publisher.Close())
	require.NoError(t, publisher.Close())

	_, _, err := publisher.Publish(context.Background(), &Message{Topic: "t"})
	assert.ErrorIs(t, err, ErrPublisherClosed)
}

func TestPublisher_InvalidMessage(t *testing.T) {
	publisher := NewPublisherWithProducer(mocks.NewSyncProducer(t, nil), nil)
	defer publisher.Close()

	_, _, err := publisher.Publish(context.Background(), nil)
	assert.Error(t, err)
	_, _, err = publisher.Publish(context.Background(), &Message{})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = publisher.Publish(ctx, &Message{Topic: "t"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestComponent_Lifecycle(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndSucceed()

	c := NewComponent(WithProducer(producer))
	var _ component.Component = c
	ctx := context.Background()

	require.NoError(t, c.Init(ctx, loadConfig(t, `
kafka:
  enabled: true
  brokers: ["localhost:9092"]
  topic: rejections
`)))
	require.NoError(t, c.Start(ctx))

	sink := c.GetSink()
	require.NotNil(t, sink)
	require.NoError(t, sink.OnRejected(ctx, testRejection()))

	cfg := c.GetConfig()
	assert.Equal(t, "rejections", cfg.Topic)
	assert.Equal(t, 1, cfg.Producer.RequiredAcks)
	assert.Equal(t, CompressionNone, cfg.Producer.Compression)

	require.NoError(t, c.Stop(ctx))
	assert.Nil(t, c.GetSink())
}

func TestComponent_NotConfigured(t *testing.T) {
	c := NewComponent()
	ctx := context.Background()
	require.NoError(t, c.Init(ctx, loadConfig(t, "limiter:\n  enabled: false\n")))
	require.NoError(t, c.Start(ctx))
	assert.Nil(t, c.GetSink())
	assert.NoError(t, c.Stop(ctx))
}

func TestComponent_SinkFactory(t *testing.T) {
	ctx := context.Background()

	idle := NewComponent()
	require.NoError(t, idle.Init(ctx, loadConfig(t, "limiter:\n  enabled: false\n")))
	sink, err := idle.SinkFactory(2)(limiter.DefaultConfig())
	require.NoError(t, err)
	assert.Nil(t, sink, "idle component builds no sink")

	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndSucceed()
	c := NewComponent(WithProducer(producer))
	require.NoError(t, c.Init(ctx, loadConfig(t, "kafka:\n  enabled: true\n  brokers: [\"localhost:9092\"]\n")))
	require.NoError(t, c.Start(ctx))
	defer c.Stop(ctx)

	sink, err = c.SinkFactory(2)(limiter.DefaultConfig())
	require.NoError(t, err)
	async, ok := sink.(*limiter.AsyncSink)
	require.True(t, ok)
	require.NoError(t, async.OnRejected(ctx, testRejection()))
	async.Close()
}

func TestComponent_InvalidConfig(t *testing.T) {
	c := NewComponent()
	err := c.Init(context.Background(), loadConfig(t, `
kafka:
  enabled: true
  brokers: []
`))
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{Enabled: true, Brokers: []string{"b:9092"}}
	cfg.ApplyDefaults()
	assert.NoError(t, cfg.Validate())

	bad := cfg
	bad.Producer.RequiredAcks = 2
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Producer.Compression = "brotli"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.SASL = &SASLConfig{Enabled: true, Mechanism: "GSSAPI", Username: "u", Password: "p"}
	assert.Error(t, bad.Validate())

	bad.SASL.Enabled = false
	assert.NoError(t, bad.Validate())

	assert.NoError(t, (&Config{}).Validate(), "disabled config is valid")
}

func TestBuildSaramaConfig(t *testing.T) {
	cfg := Config{Enabled: true, Brokers: []string{"b:9092"}}
	cfg.Producer.Compression = CompressionZstd
	cfg.Producer.Idempotent = true
	cfg.SASL = &SASLConfig{Enabled: true, Mechanism: MechanismScramSHA512, Username: "u", Password: "p"}
	cfg.ApplyDefaults()

	sc, err := buildSaramaConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, sarama.WaitForAll, sc.Producer.RequiredAcks)
	assert.Equal(t, sarama.CompressionZSTD, sc.Producer.Compression)
	assert.True(t, sc.Producer.Return.Successes)
	assert.Equal(t, 1, sc.Net.MaxOpenRequests)
	assert.Equal(t, sarama.SASLMechanism(sarama.SASLTypeSCRAMSHA512), sc.Net.SASL.Mechanism)
	require.NotNil(t, sc.Net.SASL.SCRAMClientGeneratorFunc)
	assert.IsType(t, &scramClient{}, sc.Net.SASL.SCRAMClientGeneratorFunc())

	cfg.Version = "not-a-version"
	_, err = buildSaramaConfig(cfg)
	assert.Error(t, err)
}

func TestSCRAMClient_Begin(t *testing.T) {
	client := newSCRAMClient(sha256Generator)()
	require.NoError(t, client.Begin("user", "pencil", ""))

	first, err := client.Step("")
	require.NoError(t, err)
	assert.Contains(t, first, "n=user")
	assert.False(t, client.Done())
}
