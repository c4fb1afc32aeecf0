package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/KOMKZ/go-yogan-admission/httpclient"
	"github.com/KOMKZ/go-yogan-admission/httpx"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type probeOptions struct {
	baseURL     string
	path        string
	count       int
	concurrency int
	token       string
	attempts    int
	maxWait     time.Duration
	timeout     time.Duration
}

// probeSummary outcome counts of one probe run
type probeSummary struct {
	mu       sync.Mutex
	ok       int
	denied   int
	failures int
	retries  int
}

func (s *probeSummary) add(resp *httpclient.Response, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if resp != nil && resp.Attempts > 1 {
		s.retries += resp.Attempts - 1
	}
	var statusErr *httpclient.StatusError
	switch {
	case err == nil:
		s.ok++
	case errors.As(err, &statusErr):
		s.denied++
	default:
		s.failures++
	}
}

func newProbeCmd() *cobra.Command {
	opts := &probeOptions{}

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Send a burst of requests to a demo endpoint and report admissions",
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := runProbe(cmd.Context(), cmd.OutOrStdout(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok=%d denied=%d failed=%d retries=%d\n",
				summary.ok, summary.denied, summary.failures, summary.retries)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.baseURL, "url", "http://127.0.0.1:8080", "server base URL")
	cmd.Flags().StringVar(&opts.path, "path", "/ratelimit/rate-limit/fixed", "endpoint path")
	cmd.Flags().IntVarP(&opts.count, "count", "n", 10, "number of requests")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", 1, "requests in flight")
	cmd.Flags().StringVar(&opts.token, "token", "", "bearer token for the per-user endpoint")
	cmd.Flags().IntVar(&opts.attempts, "attempts", 1, "attempts per request; denials with Retry-After are retried")
	cmd.Flags().DurationVar(&opts.maxWait, "max-wait", 15*time.Second, "longest Retry-After honoured")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "per-attempt timeout")
	return cmd
}

func runProbe(ctx context.Context, out io.Writer, opts *probeOptions) (*probeSummary, error) {
	if opts.count <= 0 {
		return nil, errors.New("count must be positive")
	}

	clientOpts := []httpclient.Option{
		httpclient.WithBaseURL(opts.baseURL),
		httpclient.WithTimeout(opts.timeout),
	}
	if opts.token != "" {
		clientOpts = append(clientOpts, httpclient.WithHeader("Authorization", "Bearer "+opts.token))
	}
	if opts.attempts > 1 {
		clientOpts = append(clientOpts, httpclient.AdmissionRetry(opts.attempts, opts.maxWait))
	}
	client := httpclient.NewClient(clientOpts...)

	summary := &probeSummary{}
	var outMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.concurrency, 1))
	for i := 1; i <= opts.count; i++ {
		g.Go(func() error {
			resp, err := client.Get(gctx, opts.path, nil)
			summary.add(resp, err)

			outMu.Lock()
			defer outMu.Unlock()
			fmt.Fprintf(out, "#%d %s\n", i, describe(resp, err))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summary, nil
}

func describe(resp *httpclient.Response, err error) string {
	if resp == nil {
		return "error: " + err.Error()
	}
	line := fmt.Sprintf("status=%d attempts=%d took=%s", resp.StatusCode, resp.Attempts, resp.Duration.Round(time.Millisecond))
	if err != nil {
		return line + " " + err.Error()
	}
	var body httpx.Response
	if resp.JSON(&body) == nil && body.Data != nil {
		line += fmt.Sprintf(" data=%v", body.Data)
	}
	return line
}
