package limiter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStatsSink counts rejections in Redis hashes.
// It records statistics only; limiter state never leaves the process.
//
// Keys:
//
//	<prefix>:total                 field <reason>
//	<prefix>:policy:<policy>       field <reason>
//	<prefix>:minute:<yyyymmddhhmm> field <policy>:<reason> (expires after ttl)
type RedisStatsSink struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisStatsOption configures a RedisStatsSink
type RedisStatsOption func(*RedisStatsSink)

// WithStatsPrefix sets the key prefix
func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsSink) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

// WithStatsTTL sets the expiry of the per-minute buckets
func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsSink) { s.ttl = d }
}

// NewRedisStatsSink creates a Redis statistics sink
func NewRedisStatsSink(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStatsSink {
	s := &RedisStatsSink{
		rdb:    rdb,
		prefix: "admission:stats",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnRejected implements RejectionSink
func (s *RedisStatsSink) OnRejected(ctx context.Context, rej Rejection) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := rej.At
	if at.IsZero() {
		at = time.Now()
	}
	reason := string(rej.Reason)
	if reason == "" {
		reason = string(ReasonLimitExceeded)
	}

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", reason, 1)
	if rej.Policy != "" {
		pipe.HIncrBy(ctx, s.prefix+":policy:"+rej.Policy, reason, 1)
	}

	bucketKey := s.minuteKey(at)
	pipe.HIncrBy(ctx, bucketKey, rej.Policy+":"+reason, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, bucketKey, s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record rejection stats: %w", err)
	}
	return nil
}

// Totals returns the rejection counters of a policy (empty policy for all policies)
func (s *RedisStatsSink) Totals(ctx context.Context, policy string) (map[Reason]int64, error) {
	key := s.prefix + ":total"
	if policy != "" {
		key = s.prefix + ":policy:" + policy
	}

	raw, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[Reason]int64, len(raw))
	for field, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse counter %s: %w", field, err)
		}
		out[Reason(field)] = n
	}
	return out, nil
}

// minuteKey per-minute bucket key
func (s *RedisStatsSink) minuteKey(at time.Time) string {
	return fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
}

// RedisStatsFactory builds an async Redis stats sink when stats are enabled
// and the client is available at Start
func RedisStatsFactory(client func() redis.UniversalClient) SinkFactory {
	return func(cfg Config) (RejectionSink, error) {
		if !cfg.Stats.Enabled || client == nil {
			return nil, nil
		}
		rdb := client()
		if rdb == nil {
			return nil, nil
		}
		stats := NewRedisStatsSink(rdb,
			WithStatsPrefix(cfg.Stats.KeyPrefix),
			WithStatsTTL(cfg.Stats.TTL))
		return NewAsyncSink(stats, cfg.Stats.Workers, 0, nil)
	}
}
