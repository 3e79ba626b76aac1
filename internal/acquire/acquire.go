// Package acquire downloads source pages and turns them into record sets.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"concursobot/internal/model"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 5 * 1024 * 1024

// ErrBodyTooLarge is returned for a response body over the size cap.
var ErrBodyTooLarge = errors.New("response body too large")

// ErrNoItems is returned when a page or feed yields no item at all, which
// usually means a maintenance page or a changed layout.
var ErrNoItems = errors.New("no items found")

// Acquirer produces the current content of one source.
type Acquirer interface {
	Acquire(ctx context.Context) (*model.Acquisition, error)
}

// AcquisitionError reports a failed acquisition. The stored snapshot is left
// untouched when it occurs.
type AcquisitionError struct {
	URL string
	Err error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire %s: %v", e.URL, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Page is a downloaded document.
type Page struct {
	URL         string
	ContentType string
	Body        []byte
}

// Fetcher downloads source pages.
type Fetcher struct {
	client    HTTPClient
	userAgent string
	maxBody   int64
}

// NewFetcher creates a Fetcher with the given HTTP client.
func NewFetcher(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:    client,
		userAgent: "ConcursoBot/1.0",
		maxBody:   maxBodySize,
	}
}

// DefaultClient returns the HTTP client used outside of tests.
func DefaultClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}

// Get downloads url. Any status other than 200 is an error.
func (f *Fetcher) Get(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBody {
		return nil, fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, f.maxBody)
	}
	return &Page{
		URL:         url,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
