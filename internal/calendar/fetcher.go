package calendar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MaxFeedSize bounds the size of a downloaded calendar feed
const MaxFeedSize = 5 << 20

// Fetcher downloads a raw iCalendar document
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches feeds over HTTP(S) with a bounded timeout
type HTTPFetcher struct {
	client  *http.Client
	timeout time.Duration
}

// NewHTTPFetcher creates a new HTTP fetcher
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Fetch downloads the feed at url. webcal:// URLs are fetched over https.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, NormalizeFeedURL(url), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/calendar, */*;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch calendar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("calendar feed returned non-2xx status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxFeedSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar: %w", err)
	}
	if len(body) > MaxFeedSize {
		return nil, fmt.Errorf("calendar feed exceeds %d bytes", MaxFeedSize)
	}
	return body, nil
}

// NormalizeFeedURL rewrites webcal:// to https://
func NormalizeFeedURL(url string) string {
	url = strings.TrimSpace(url)
	if len(url) >= len("webcal://") && strings.EqualFold(url[:len("webcal://")], "webcal://") {
		return "https://" + url[len("webcal://"):]
	}
	return url
}
