package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/KOMKZ/go-yogan-admission/limiter"
	"go.opentelemetry.io/otel/trace"
)

// RejectionEvent the JSON record written per denied admission
type RejectionEvent struct {
	Policy       string    `json:"policy"`
	Partition    string    `json:"partition"`
	LimiterID    string    `json:"limiter_id"`
	Reason       string    `json:"reason"`
	RetryAfterMs *int64    `json:"retry_after_ms,omitempty"`
	At           time.Time `json:"at"`
	Endpoint     string    `json:"endpoint,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	ClientIP     string    `json:"client_ip,omitempty"`
	TraceID      string    `json:"trace_id,omitempty"`
}

// RejectionSink publishes rejections to a topic, keyed by policy and
// partition so events of one partition stay ordered
type RejectionSink struct {
	publisher *Publisher
	topic     string
}

var _ limiter.RejectionSink = (*RejectionSink)(nil)

// NewRejectionSink creates a sink writing to topic
func NewRejectionSink(publisher *Publisher, topic string) *RejectionSink {
	return &RejectionSink{publisher: publisher, topic: topic}
}

// OnRejected implements limiter.RejectionSink
func (s *RejectionSink) OnRejected(ctx context.Context, rej limiter.Rejection) error {
	event := NewRejectionEvent(ctx, rej)
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal rejection event failed: %w", err)
	}

	_, _, err = s.publisher.Publish(ctx, &Message{
		Topic: s.topic,
		Key:   []byte(event.Policy + ":" + event.Partition),
		Value: value,
		Headers: map[string]string{
			"content-type": "application/json",
			"reason":       event.Reason,
		},
	})
	return err
}

// NewRejectionEvent flattens a rejection into its published form
func NewRejectionEvent(ctx context.Context, rej limiter.Rejection) RejectionEvent {
	event := RejectionEvent{
		Policy:    rej.Policy,
		Partition: rej.PartitionKey,
		LimiterID: rej.LimiterID,
		Reason:    string(rej.Reason),
		At:        rej.At.UTC(),
	}
	if rej.HasRetry {
		ms := rej.RetryAfter.Milliseconds()
		event.RetryAfterMs = &ms
	}
	if req := rej.Request; req != nil {
		event.Endpoint = req.Endpoint
		event.UserID = req.UserID
		event.ClientIP = req.ClientIP
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		event.TraceID = sc.TraceID().String()
	}
	return event
}
