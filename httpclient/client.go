package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/KOMKZ/go-yogan-admission/retry"
)

// Client HTTP client aware of admission denials
type Client struct {
	httpClient *http.Client
	config     *config
}

// NewClient creates a client
func NewClient(opts ...Option) *Client {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	transport := cfg.transport
	if transport == nil {
		transport = http.DefaultTransport.(*http.Transport).Clone()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.timeout, Transport: transport},
		config:     cfg,
	}
}

// Get sends a GET request; non-2xx answers are returned as *StatusError
// together with the response
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, url, headers)
}

// Do sends a body-less request, retrying according to WithRetry
func (c *Client) Do(ctx context.Context, method, url string, headers map[string]string) (*Response, error) {
	start := time.Now()
	attempts := 0
	var last *Response

	run := func(ctx context.Context) (*Response, error) {
		attempts++
		resp, err := c.once(ctx, method, url, headers)
		if err != nil {
			return nil, err
		}
		last = resp
		if !resp.IsSuccess() {
			return resp, newStatusError(resp, time.Now())
		}
		return resp, nil
	}

	var err error
	if len(c.config.retryOpts) > 0 {
		_, err = retry.DoWithData(ctx, run, c.config.retryOpts...)
	} else {
		_, err = run(ctx)
	}

	if last != nil {
		last.Duration = time.Since(start)
		last.Attempts = attempts
	}
	return last, err
}

func (c *Client) once(ctx context.Context, method, url string, headers map[string]string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(url), nil)
	if err != nil {
		return nil, fmt.Errorf("build http request failed: %w", err)
	}
	for k, v := range c.config.headers {
		req.Header.Set(k, v)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response failed: %w", err)
	}
	return &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       body,
	}, nil
}

func (c *Client) resolve(url string) string {
	if c.config.baseURL == "" || strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return url
	}
	return strings.TrimRight(c.config.baseURL, "/") + "/" + strings.TrimLeft(url, "/")
}
