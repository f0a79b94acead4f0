package thread

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/pevans/threadmood/metrics"
)

// ErrNetwork is returned when a page cannot be fetched.
var ErrNetwork = errors.New("network error")

// FetchError describes a failed page request. StatusCode is zero when no
// response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Is reports FetchError as ErrNetwork for errors.Is.
func (e *FetchError) Is(target error) bool {
	return target == ErrNetwork
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the request could succeed. Client
// errors are permanent, except for timeouts and rate limiting.
func (e *FetchError) Retryable() bool {
	if errors.Is(e.Err, context.Canceled) {
		return false
	}
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return false
	default:
		return true
	}
}

// Fetcher retrieves the raw content of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetchConfig holds HTTP and retry settings for page requests.
type FetchConfig struct {
	// Timeout per request attempt
	Timeout time.Duration `yaml:"timeout"`
	// User-Agent header sent with every request
	UserAgent string `yaml:"user_agent"`
	// Retries after the first attempt; 0 disables retrying
	MaxRetries int `yaml:"max_retries"`
	// Delay before the first retry, doubled for each further retry
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	// Upper bound for the retry delay
	MaxBackoff time.Duration `yaml:"max_backoff"`
	// Largest response body accepted
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// DefaultFetchConfig returns the default request settings.
func DefaultFetchConfig() *FetchConfig {
	return &FetchConfig{
		Timeout:        30 * time.Second,
		UserAgent:      "threadmood/1.0 (forum thread sentiment scraper)",
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		MaxBodyBytes:   16 << 20,
	}
}

// HTTPFetcher fetches pages over HTTP, retrying transient failures with
// exponential backoff.
type HTTPFetcher struct {
	client *http.Client
	config *FetchConfig
	retry  retrypolicy.RetryPolicy[[]byte]
}

// NewHTTPFetcher creates a fetcher. A nil config uses DefaultFetchConfig.
func NewHTTPFetcher(config *FetchConfig) *HTTPFetcher {
	if config == nil {
		config = DefaultFetchConfig()
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout: config.Timeout,
		},
		config: config,
		retry:  newRetryPolicy(config),
	}
}

func newRetryPolicy(config *FetchConfig) retrypolicy.RetryPolicy[[]byte] {
	builder := retrypolicy.NewBuilder[[]byte]().
		HandleIf(func(_ []byte, err error) bool {
			var fetchErr *FetchError
			if errors.As(err, &fetchErr) {
				return fetchErr.Retryable()
			}
			return false
		}).
		WithMaxRetries(config.MaxRetries).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[[]byte]) {
			metrics.FetchRetries.Inc()
			slog.Warn("Retrying page fetch",
				"attempt", e.Attempts(),
				"error", e.LastError(),
			)
		})

	switch {
	case config.InitialBackoff > 0 && config.MaxBackoff > config.InitialBackoff:
		builder = builder.WithBackoff(config.InitialBackoff, config.MaxBackoff)
	case config.InitialBackoff > 0:
		builder = builder.WithDelay(config.InitialBackoff)
	}

	return builder.Build()
}

// Fetch retrieves url, retrying transient failures. The returned error
// matches ErrNetwork.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()

	body, err := failsafe.With[[]byte](f.retry).
		WithContext(ctx).
		Get(func() ([]byte, error) {
			return f.fetchOnce(ctx, url)
		})

	metrics.FetchDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.PageFetches.WithLabelValues("failure").Inc()
		if errors.Is(err, ErrNetwork) {
			return nil, err
		}
		return nil, &FetchError{URL: url, Err: err}
	}

	metrics.PageFetches.WithLabelValues("success").Inc()
	return body, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if f.config.UserAgent != "" {
		req.Header.Set("User-Agent", f.config.UserAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	limit := f.config.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultFetchConfig().MaxBodyBytes
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("failed to read body: %w", err)}
	}

	return body, nil
}
