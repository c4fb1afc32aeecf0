package httpclient

import (
	"net/http"
	"time"

	"github.com/KOMKZ/go-yogan-admission/retry"
)

type config struct {
	baseURL   string
	timeout   time.Duration
	transport http.RoundTripper
	headers   map[string]string
	retryOpts []retry.Option
}

// Option configures the client
type Option func(*config)

// WithBaseURL prefix for relative request URLs
func WithBaseURL(baseURL string) Option {
	return func(c *config) {
		c.baseURL = baseURL
	}
}

// WithTimeout per attempt timeout
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithTransport replaces the default transport
func WithTransport(transport http.RoundTripper) Option {
	return func(c *config) {
		c.transport = transport
	}
}

// WithHeader default header sent with every request
func WithHeader(key, value string) Option {
	return func(c *config) {
		if c.headers == nil {
			c.headers = make(map[string]string)
		}
		c.headers[key] = value
	}
}

// WithRetry retries failed requests; 429/503 answers wait out their Retry-After
func WithRetry(opts ...retry.Option) Option {
	return func(c *config) {
		c.retryOpts = append(c.retryOpts, opts...)
	}
}

// AdmissionRetry retries admission denials that carry a Retry-After hint
// and transient network errors, never longer than maxWait per hint
func AdmissionRetry(attempts int, maxWait time.Duration) Option {
	return WithRetry(
		retry.MaxAttempts(attempts),
		retry.MaxHint(maxWait),
		retry.Condition(retry.Or(retry.RetryOnHint(), retry.RetryOnTemporaryError())),
		retry.Backoff(retry.ExponentialBackoff(200*time.Millisecond)),
	)
}
