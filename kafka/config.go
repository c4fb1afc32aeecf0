package kafka

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	CompressionNone   = "none"
	CompressionGzip   = "gzip"
	CompressionSnappy = "snappy"
	CompressionLZ4    = "lz4"
	CompressionZstd   = "zstd"

	MechanismPlain       = "PLAIN"
	MechanismScramSHA256 = "SCRAM-SHA-256"
	MechanismScramSHA512 = "SCRAM-SHA-512"
)

// Config Kafka rejection event publishing
type Config struct {
	Enabled bool `mapstructure:"enabled"`

	// Brokers cluster addresses
	Brokers []string `mapstructure:"brokers"`

	// Version Kafka protocol version (e.g. "3.8.0")
	Version string `mapstructure:"version"`

	ClientID string `mapstructure:"client_id"`

	// Topic rejection events are written to
	Topic string `mapstructure:"topic"`

	Producer ProducerConfig `mapstructure:"producer"`

	// SASL optional authentication
	SASL *SASLConfig `mapstructure:"sasl"`
}

// ProducerConfig producer settings
type ProducerConfig struct {
	// RequiredAcks 0=NoResponse, 1=WaitForLocal, -1=WaitForAll
	RequiredAcks int `mapstructure:"required_acks"`

	Timeout      time.Duration `mapstructure:"timeout"`
	RetryMax     int           `mapstructure:"retry_max"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`

	// MaxMessageBytes single message limit
	MaxMessageBytes int `mapstructure:"max_message_bytes"`

	// Compression none, gzip, snappy, lz4, zstd
	Compression string `mapstructure:"compression"`

	// Idempotent forces acks=-1 and a single in-flight request
	Idempotent bool `mapstructure:"idempotent"`
}

// SASLConfig SASL authentication
type SASLConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Mechanism PLAIN, SCRAM-SHA-256, SCRAM-SHA-512
	Mechanism string `mapstructure:"mechanism"`

	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Validate configuration; a disabled config is always valid
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Brokers, validation.Required, validation.Each(validation.Required)),
		validation.Field(&c.Topic, validation.Required),
		validation.Field(&c.Producer),
		validation.Field(&c.SASL),
	)
}

// Validate producer settings
func (c ProducerConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.RequiredAcks, validation.Min(-1), validation.Max(1)),
		validation.Field(&c.MaxMessageBytes, validation.Min(0)),
		validation.Field(&c.Compression, validation.In(
			"", CompressionNone, CompressionGzip, CompressionSnappy, CompressionLZ4, CompressionZstd)),
	)
}

// Validate SASL settings, skipped when disabled
func (c *SASLConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Mechanism, validation.Required,
			validation.In(MechanismPlain, MechanismScramSHA256, MechanismScramSHA512)),
		validation.Field(&c.Username, validation.Required),
		validation.Field(&c.Password, validation.Required),
	)
}

// ApplyDefaults fills zero values
func (c *Config) ApplyDefaults() {
	if c.Version == "" {
		c.Version = "3.8.0"
	}
	if c.ClientID == "" {
		c.ClientID = "yogan-admission"
	}
	if c.Topic == "" {
		c.Topic = "admission.rejections"
	}

	p := &c.Producer
	if p.RequiredAcks == 0 && !p.Idempotent {
		p.RequiredAcks = 1
	}
	if p.Timeout == 0 {
		p.Timeout = 10 * time.Second
	}
	if p.RetryMax == 0 {
		p.RetryMax = 3
	}
	if p.RetryBackoff == 0 {
		p.RetryBackoff = 100 * time.Millisecond
	}
	if p.MaxMessageBytes == 0 {
		p.MaxMessageBytes = 1 << 20
	}
	if p.Compression == "" {
		p.Compression = CompressionNone
	}
}
