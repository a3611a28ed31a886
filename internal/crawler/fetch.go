package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/cgportillo/project-cpxrtillo/pkg/config"
	apperrors "github.com/cgportillo/project-cpxrtillo/pkg/errors"
	"github.com/cgportillo/project-cpxrtillo/pkg/resilience"
)

// Fetcher downloads the HTML body of a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

const maxRedirects = 3

// HTTPFetcher fetches over HTTP, retrying transport errors and 5xx/429
// responses with backoff. Other statuses and non-HTML content fail at once.
type HTTPFetcher struct {
	client    *http.Client
	retry     resilience.RetryConfig
	timeout   time.Duration
	maxBody   int64
	userAgent string
}

func NewHTTPFetcher(cfg config.CrawlConfig) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		retry: resilience.RetryConfig{
			MaxAttempts:  cfg.FetchAttempts,
			InitialDelay: cfg.RetryDelay,
			MaxDelay:     5 * time.Second,
		},
		timeout:   cfg.FetchTimeout,
		maxBody:   cfg.MaxBodyBytes,
		userAgent: cfg.UserAgent,
	}
}

// Fetch returns the body of url. Failures wrap apperrors.ErrFetchFailed or
// apperrors.ErrNotHTML.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	var body string
	err := resilience.Retry(ctx, "fetch", f.retry, func() error {
		var err error
		body, err = f.fetchOnce(ctx, url)
		return err
	})
	if err != nil {
		if errors.Is(err, apperrors.ErrNotHTML) {
			return "", fmt.Errorf("fetching %s: %w", url, err)
		}
		return "", fmt.Errorf("%w %s: %w", apperrors.ErrFetchFailed, url, err)
	}
	return body, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) (string, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", resilience.Permanent(err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("unexpected status %d", resp.StatusCode)
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return "", err
		}
		return "", resilience.Permanent(err)
	}
	if !isHTML(resp.Header.Get("Content-Type")) {
		return "", resilience.Permanent(fmt.Errorf("%w: %q", apperrors.ErrNotHTML, resp.Header.Get("Content-Type")))
	}

	var r io.Reader = resp.Body
	if f.maxBody > 0 {
		r = io.LimitReader(resp.Body, f.maxBody)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	return string(data), nil
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
