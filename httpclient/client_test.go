package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KOMKZ/go-yogan-admission/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func deniedThen(t *testing.T, denials int32, retryAfter string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "probe", r.Header.Get("X-Client"))
		if calls.Add(1) <= denials {
			if retryAfter != "" {
				w.Header().Set("Retry-After", retryAfter)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"code":42001,"msg":"Too many requests, please retry later"}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":0,"data":{"tick":1}}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestClient_RetriesWithHint(t *testing.T) {
	srv, calls := deniedThen(t, 2, "0")
	client := NewClient(WithBaseURL(srv.URL), WithHeader("X-Client", "probe"), AdmissionRetry(3, time.Second))

	resp, err := client.Get(context.Background(), "/ratelimit/fixed", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, resp.Attempts)
	assert.Equal(t, int32(3), calls.Load())

	var body struct {
		Data map[string]int `json:"data"`
	}
	require.NoError(t, resp.JSON(&body))
	assert.Equal(t, 1, body.Data["tick"])
}

func TestClient_NoHintNoRetry(t *testing.T) {
	srv, calls := deniedThen(t, 5, "")
	client := NewClient(WithBaseURL(srv.URL), WithHeader("X-Client", "probe"), AdmissionRetry(3, time.Second))

	resp, err := client.Get(context.Background(), "ratelimit/fixed", nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 42001, statusErr.Code)
	_, hinted := statusErr.RetryAfter()
	assert.False(t, hinted)
}

func TestClient_HintLongerThanLimit(t *testing.T) {
	srv, calls := deniedThen(t, 5, "120")
	client := NewClient(WithBaseURL(srv.URL), WithHeader("X-Client", "probe"), AdmissionRetry(3, time.Second))

	_, err := client.Get(context.Background(), "/x", nil)
	assert.ErrorIs(t, err, retry.ErrHintTooLong)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_WithoutRetry(t *testing.T) {
	srv, calls := deniedThen(t, 1, "1")
	client := NewClient()

	resp, err := client.Get(context.Background(), srv.URL+"/x", map[string]string{"X-Client": "probe"})
	require.Error(t, err)
	assert.Equal(t, 1, resp.Attempts)
	assert.Equal(t, int32(1), calls.Load())

	d, ok := retry.HintFrom(err)
	assert.True(t, ok)
	assert.Equal(t, time.Second, d)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	d, ok := parseRetryAfter("12", now)
	assert.True(t, ok)
	assert.Equal(t, 12*time.Second, d)

	d, ok = parseRetryAfter(now.Add(30*time.Second).Format(http.TimeFormat), now)
	assert.True(t, ok)
	assert.Equal(t, 30*time.Second, d)

	d, ok = parseRetryAfter(now.Add(-time.Minute).Format(http.TimeFormat), now)
	assert.True(t, ok)
	assert.Zero(t, d)

	for _, bad := range []string{"", "-1", "soon"} {
		_, ok = parseRetryAfter(bad, now)
		assert.False(t, ok, bad)
	}
}
