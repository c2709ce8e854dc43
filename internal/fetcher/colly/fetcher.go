// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/mikan-crawler/internal/crawler"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// PoolSize bounds open and idle connections per host.
	PoolSize   int
	MaxRetries int
	// RetryBackoff is the first delay of the retry ladder; it doubles per attempt.
	RetryBackoff time.Duration
	// MaxBodyBytes caps a response body; 0 disables the cap.
	MaxBodyBytes int
}

// Fetcher implements crawler.Fetcher using the Colly collector. One Fetcher
// serves every task of a run and is safe for concurrent use.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 128
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.MaxBodySize(cfg.MaxBodyBytes),
	)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	// Clones share the backend, so transport and timeout are set once here.
	// Timeout bounds each attempt; the client deadline covers all of them.
	transport := newRetryTransport(newHTTPTransport(cfg.PoolSize), cfg.MaxRetries, cfg.RetryBackoff, cfg.Timeout)
	c.SetRequestTimeout(transport.budget())
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET and returns the whole body. Failures wrap
// crawler.ErrTransport.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var (
		body     []byte
		fetchErr error
	)
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, &body, &fetchErr)

	if err := f.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", crawler.ErrTransport, url, err)
	}
	return body, nil
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, body *[]byte, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport(poolSize int) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          poolSize,
		MaxIdleConnsPerHost:   poolSize,
		MaxConnsPerHost:       poolSize,
		IdleConnTimeout:       90 * time.Second,
	}
}
