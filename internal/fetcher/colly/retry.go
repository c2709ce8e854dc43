package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultRetryBackoff = 250 * time.Millisecond

// retryTransport repeats a request on network errors, attempt timeouts and
// 5xx responses so callers see one result per fetch. Each attempt, body read
// included, runs under its own timeout.
type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
	timeout    time.Duration
}

func newRetryTransport(base http.RoundTripper, maxRetries int, backoff, timeout time.Duration) *retryTransport {
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	return &retryTransport{base: base, maxRetries: maxRetries, backoff: backoff, timeout: timeout}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("retry transport received nil request")
	}
	for attempt := 0; ; attempt++ {
		resp, err := t.attempt(req)
		if req.Context().Err() != nil || !shouldRetry(resp, err) || attempt >= t.maxRetries {
			if err != nil {
				return nil, fmt.Errorf("roundtrip after %d attempts: %w", attempt+1, err)
			}
			return resp, nil
		}
		if resp != nil {
			drain(resp)
		}
		if err := sleepWithContext(req.Context(), t.delay(attempt)); err != nil {
			return nil, err
		}
	}
}

func (t *retryTransport) attempt(req *http.Request) (*http.Response, error) {
	if t.timeout <= 0 {
		return t.base.RoundTrip(cloneRequest(req.Context(), req))
	}
	ctx, cancel := context.WithTimeout(req.Context(), t.timeout)
	resp, err := t.base.RoundTrip(cloneRequest(ctx, req))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// budget is the longest a request can take across every attempt and backoff.
func (t *retryTransport) budget() time.Duration {
	if t.timeout <= 0 {
		return 0
	}
	total := time.Duration(t.maxRetries+1) * t.timeout
	for i := 0; i < t.maxRetries; i++ {
		total += t.delay(i)
	}
	return total
}

func (t *retryTransport) delay(attempt int) time.Duration {
	d := t.backoff << attempt
	if maxDelay := 8 * t.backoff; d > maxDelay || d <= 0 {
		return maxDelay
	}
	return d
}

func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	return resp.StatusCode >= http.StatusInternalServerError
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func cloneRequest(ctx context.Context, req *http.Request) *http.Request {
	clone := req.Clone(ctx)
	clone.Body = req.Body
	return clone
}

// cancelOnClose releases an attempt's timeout once the body is done.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry backoff sleep: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
