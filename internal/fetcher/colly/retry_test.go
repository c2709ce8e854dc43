package collyfetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type roundTripResult struct {
	status int
	err    error
}

type stubRoundTripper struct {
	results []roundTripResult
	calls   int
}

func (s *stubRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	s.calls++
	res := s.results[idx]
	if res.err != nil {
		return nil, res.err
	}
	return &http.Response{
		StatusCode: res.status,
		Body:       io.NopCloser(strings.NewReader("body")),
		Header:     make(http.Header),
		Request:    req,
	}, nil
}

func TestRetryTransportRecoversFromNetworkError(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{
		{err: errors.New("connection reset by peer")},
		{status: http.StatusOK},
	}}
	rt := newRetryTransport(base, 3, time.Millisecond, 0)

	resp, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://mikanani.me/", nil))
	if err != nil {
		t.Fatalf("RoundTrip returned error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if base.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", base.calls)
	}
}

func TestRetryTransportReturnsLastServerError(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{{status: http.StatusInternalServerError}}}
	rt := newRetryTransport(base, 3, time.Millisecond, 0)

	resp, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://mikanani.me/", nil))
	if err != nil {
		t.Fatalf("RoundTrip returned error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected final 500 to surface, got %d", resp.StatusCode)
	}
	if base.calls != 4 {
		t.Fatalf("expected 4 attempts, got %d", base.calls)
	}
}

func TestRetryTransportDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{{status: http.StatusNotFound}}}
	rt := newRetryTransport(base, 3, time.Millisecond, 0)

	resp, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://mikanani.me/x", nil))
	if err != nil {
		t.Fatalf("RoundTrip returned error: %v", err)
	}
	defer resp.Body.Close()
	if base.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", base.calls)
	}
}

func TestRetryTransportStopsOnCancellation(t *testing.T) {
	t.Parallel()

	base := &stubRoundTripper{results: []roundTripResult{{err: context.Canceled}}}
	rt := newRetryTransport(base, 3, time.Millisecond, 0)

	_, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://mikanani.me/", nil))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if base.calls != 1 {
		t.Fatalf("expected a single attempt, got %d", base.calls)
	}
}

func TestRetryTransportDelayIsCapped(t *testing.T) {
	t.Parallel()

	rt := newRetryTransport(http.DefaultTransport, 10, 10*time.Millisecond, 0)
	if got := rt.delay(0); got != 10*time.Millisecond {
		t.Fatalf("delay(0) = %v", got)
	}
	if got := rt.delay(2); got != 40*time.Millisecond {
		t.Fatalf("delay(2) = %v", got)
	}
	if got := rt.delay(9); got != 80*time.Millisecond {
		t.Fatalf("delay(9) = %v", got)
	}
}

func TestRetryTransportBudgetCoversEveryAttempt(t *testing.T) {
	t.Parallel()

	rt := newRetryTransport(http.DefaultTransport, 3, 10*time.Millisecond, time.Second)
	// 4 attempts plus 10ms + 20ms + 40ms of backoff.
	if got, want := rt.budget(), 4*time.Second+70*time.Millisecond; got != want {
		t.Fatalf("budget() = %v, want %v", got, want)
	}
	if got := newRetryTransport(http.DefaultTransport, 3, 0, 0).budget(); got != 0 {
		t.Fatalf("budget() without attempt timeout = %v, want 0", got)
	}
}

func TestRetryTransportRetriesAttemptTimeout(t *testing.T) {
	t.Parallel()

	var calls int
	base := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			<-req.Context().Done()
			return nil, req.Context().Err()
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader("body")),
			Header:     make(http.Header),
			Request:    req,
		}, nil
	})
	rt := newRetryTransport(base, 2, time.Millisecond, 20*time.Millisecond)

	resp, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "https://mikanani.me/", nil))
	if err != nil {
		t.Fatalf("RoundTrip returned error: %v", err)
	}
	defer resp.Body.Close()
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
