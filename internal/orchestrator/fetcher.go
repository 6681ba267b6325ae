package orchestrator

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// DefaultMaxBodyBytes bounds how much of a single source's response body is
// read before the fetch is aborted for that source only (spec §4.6 step 1).
const DefaultMaxBodyBytes = 256 << 20 // 256 MiB

// Fetcher abstracts the HTTP GET the orchestrator performs per source. It
// exists so tests can substitute a canned response instead of a live
// listener, and so the core never imports net/http directly beyond this one
// adapter (spec §1: "a clock/HTTP-fetcher abstraction").
type Fetcher interface {
	Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}

// HTTPFetcher is the production Fetcher: a plain http.Client GET with a
// bounded response reader.
type HTTPFetcher struct {
	Client       *http.Client
	MaxBodyBytes int64
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client:       &http.Client{},
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	max := f.MaxBodyBytes
	if max <= 0 {
		max = DefaultMaxBodyBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, max+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("response exceeds %d byte limit", max)
	}
	return data, nil
}
