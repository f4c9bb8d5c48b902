package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ppiankov/cogito/internal/extract"
	"github.com/ppiankov/cogito/internal/util"
	"github.com/ppiankov/cogito/internal/worker"
)

// ErrDisallowed is returned when robots.txt forbids a fetch
var ErrDisallowed = errors.New("disallowed by robots.txt")

const (
	fetchAttempts = 3
	maxFetchLinks = 20
)

// fetchSleepFunc is swapped out by tests
var fetchSleepFunc = func(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// StatusError is a non-2xx fetch response
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.Code, e.Status)
}

// Fetcher retrieves web pages for the web_fetch tool. It honours robots.txt
// and a per-host rate limit when those are configured.
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	robots     *util.RobotsChecker
	limiter    *worker.Limiter
	logger     *slog.Logger
}

// FetchResult is a fetched page reduced to visible text
type FetchResult struct {
	URL         string         `json:"url"`
	Title       string         `json:"title"`
	ContentType string         `json:"content_type"`
	StatusCode  int            `json:"status_code"`
	Text        string         `json:"text"`
	Truncated   bool           `json:"truncated"`
	Links       []extract.Link `json:"links,omitempty"`
}

// NewFetcher creates a fetcher. robots and limiter may be nil.
func NewFetcher(timeout time.Duration, userAgent string, maxBytes int64, robots *util.RobotsChecker, limiter *worker.Limiter, logger *slog.Logger) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = 2_000_000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		userAgent: userAgent,
		maxBytes:  maxBytes,
		robots:    robots,
		limiter:   limiter,
		logger:    logger,
	}
}

// FetchWithRetry fetches rawURL, retrying transient failures with backoff
func (f *Fetcher) FetchWithRetry(ctx context.Context, rawURL string) (*FetchResult, error) {
	var lastErr error
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		result, err := f.Fetch(ctx, rawURL)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isRetryableFetchError(err) || attempt == fetchAttempts {
			break
		}

		backoff := time.Duration(attempt*attempt) * 500 * time.Millisecond
		f.logger.Debug("retrying fetch", "url", rawURL, "attempt", attempt, "backoff", backoff, "error", err)
		if err := fetchSleepFunc(ctx, backoff); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// Fetch retrieves rawURL once
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*FetchResult, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("create request: invalid URL %q", rawURL)
	}

	var crawlDelay time.Duration
	if f.robots != nil {
		allowed, delay, err := f.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return nil, fmt.Errorf("robots: %w", err)
		}
		if !allowed {
			return nil, fmt.Errorf("%s: %w", rawURL, ErrDisallowed)
		}
		crawlDelay = delay
	}
	if f.limiter != nil {
		if err := f.limiter.WaitWithDelay(ctx, strings.ToLower(parsed.Host), crawlDelay); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	// One extra byte tells us whether the body was cut
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	truncated := int64(len(body)) > f.maxBytes
	if truncated {
		body = body[:f.maxBytes]
	}

	finalURL := resp.Request.URL.String()
	contentType := resp.Header.Get("Content-Type")
	text := string(body)
	var links []extract.Link
	if strings.Contains(contentType, "html") || extract.LooksLikeHTML(text) {
		visible, err := extract.VisibleText(text)
		if err != nil {
			return nil, fmt.Errorf("extract text: %w", err)
		}
		links, err = extract.Links(text, finalURL, maxFetchLinks)
		if err != nil {
			f.logger.Debug("link extraction failed", "url", finalURL, "error", err)
		}
		text = visible
	}

	return &FetchResult{
		URL:         finalURL,
		Title:       extractSubject(finalURL),
		ContentType: contentType,
		StatusCode:  resp.StatusCode,
		Text:        text,
		Truncated:   truncated,
		Links:       links,
	}, nil
}

// isRetryableFetchError treats 5xx, 429 and transport failures as transient
func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return strings.HasPrefix(err.Error(), "fetch: ")
}

// extractSubject turns the last URL path segment into a readable title
func extractSubject(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	path := strings.Trim(parsed.Path, "/")
	if path == "" {
		return parsed.Host
	}

	segments := strings.Split(path, "/")
	last := segments[len(segments)-1]
	last = strings.ReplaceAll(last, "_", " ")
	last = strings.ReplaceAll(last, "-", " ")
	if idx := strings.LastIndex(last, "."); idx > 0 {
		last = last[:idx]
	}

	return last
}
