package ics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"blairboard/internal/cache"
	"blairboard/internal/config"
	appLog "blairboard/internal/log"
	"blairboard/internal/metrics"
)

const (
	defaultFetchTimeout = 15 * time.Second
	defaultCacheTTL     = 15 * time.Minute
)

// Source represents a single ICS subscription source.
type Source struct {
	// ID is the cache key and the CalendarID of produced events.
	ID   string
	Name string
	// URL is the ICS endpoint.
	URL     string
	Colour  string
	Enabled bool
}

// SourcesFromConfig converts configured calendars, keeping their order.
func SourcesFromConfig(cals []config.CalendarSource) []Source {
	out := make([]Source, 0, len(cals))
	for _, c := range cals {
		out = append(out, Source{
			ID:      c.ID,
			Name:    c.Name,
			URL:     c.URL,
			Colour:  c.Colour,
			Enabled: c.Enabled,
		})
	}
	return out
}

// FetchResult contains the outcome of fetching a single ICS source.
type FetchResult struct {
	Source    Source
	Body      []byte // ICS payload (either freshly fetched or from cache)
	FromCache bool
}

// Options configures a Fetcher. Zero values get defaults.
type Options struct {
	// Timeout bounds each upstream request.
	Timeout time.Duration
	// CacheTTL is how long a downloaded payload is reused.
	CacheTTL time.Duration
	// Cache stores raw payloads by source ID. A private cache is created
	// when nil.
	Cache *cache.TTL[[]byte]
	// Client overrides the HTTP client; its Timeout is left untouched.
	Client *http.Client
	// Metrics may be nil.
	Metrics *metrics.Metrics
	// MaxOccurrencesPerEvent caps recurrence expansion.
	MaxOccurrencesPerEvent int
}

// Fetcher downloads ICS feeds, keeps raw payloads in a TTL cache, and
// expands them into events.
type Fetcher struct {
	client         *http.Client
	cache          *cache.TTL[[]byte]
	ttl            time.Duration
	metrics        *metrics.Metrics
	maxOccurrences int
}

// NewFetcher creates a new ICS Fetcher.
func NewFetcher(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultFetchTimeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.Cache == nil {
		opts.Cache = cache.New[[]byte]()
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Fetcher{
		client:         client,
		cache:          opts.Cache,
		ttl:            opts.CacheTTL,
		metrics:        opts.Metrics,
		maxOccurrences: opts.MaxOccurrencesPerEvent,
	}
}

// FetchOne returns the payload for src from the cache, downloading and
// caching it on a miss.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	if body, ok := f.cache.Get(src.ID); ok {
		f.metrics.CacheLookup(true)
		appLog.Debug("ics cache hit", "id", src.ID)
		return FetchResult{Source: src, Body: body, FromCache: true}, nil
	}
	f.metrics.CacheLookup(false)

	body, err := f.download(ctx, src)
	if err != nil {
		return FetchResult{}, err
	}
	f.cache.Set(src.ID, body, f.ttl)

	return FetchResult{Source: src, Body: body}, nil
}

// Refresh downloads every enabled source concurrently regardless of cache
// state and stores the fresh payloads. Errors are logged and returned in
// source order; a failed source keeps its previous cache entry.
func (f *Fetcher) Refresh(ctx context.Context, sources []Source) []error {
	failures := make([]error, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		if !src.Enabled {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			body, err := f.download(ctx, src)
			if err != nil {
				appLog.Error("ics refresh failed", err, "id", src.ID, "url", redactURL(src.URL))
				failures[i] = fmt.Errorf("source %s: %w", src.ID, err)
				return
			}
			f.cache.Set(src.ID, body, f.ttl)
		}()
	}
	wg.Wait()

	errs := make([]error, 0)
	for _, err := range failures {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Invalidate drops the cached payload for one source.
func (f *Fetcher) Invalidate(id string) {
	f.cache.Invalidate(id)
}

// InvalidateAll drops every cached payload.
func (f *Fetcher) InvalidateAll() {
	f.cache.InvalidateAll()
}

func (f *Fetcher) download(ctx context.Context, src Source) ([]byte, error) {
	if src.URL == "" {
		return nil, errors.New("source URL is empty")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/calendar, */*;q=0.5")

	appLog.Info("ics fetch start", "id", src.ID, "url", redactURL(src.URL))

	started := time.Now()
	body, err := f.do(req)
	f.metrics.ObserveFetch(src.ID, time.Since(started), err)
	if err != nil {
		return nil, err
	}

	appLog.Info("ics fetch success", "id", src.ID, "url", redactURL(src.URL), "bytes", len(body))
	return body, nil
}

func (f *Fetcher) do(req *http.Request) ([]byte, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("HTTP %s", resp.Status)
	}

	return io.ReadAll(resp.Body)
}

// redactURL hides sensitive parts of an ICS URL for logging purposes.
func redactURL(u string) string {
	// Very simple redaction to avoid logging query strings / paths in full.
	// Example:
	//   https://example.com/path/to/private.ics?token=abcd
	// -> https://example.com/...(redacted)
	const redactedSuffix = "/...(redacted)"

	// Find scheme separator.
	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "ics://...(redacted)"
	}

	// Find next slash after host.
	j := i
	for j < len(u) && u[j] != '/' && u[j] != '?' {
		j++
	}

	return u[:j] + redactedSuffix
}
