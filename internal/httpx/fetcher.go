package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"
)

// FetchError is a typed fetch failure. Permanent failures (4xx, malformed
// URLs, robots denials) are not worth retrying; everything else is assumed
// transient.
type FetchError struct {
	URL       string
	Status    int
	Permanent bool
	Err       error
}

func (e *FetchError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s failure (status %d)", e.URL, kind, e.Status)
	}
	return fmt.Sprintf("fetch %s: %s failure (status %d): %v", e.URL, kind, e.Status, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err is a fetch failure not worth retrying.
func IsPermanent(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Permanent
}

// Options configures a Fetcher.
type Options struct {
	UserAgent     string
	Timeout       time.Duration
	Headers       map[string]string
	RespectRobots bool
	HostDelay     time.Duration // min interval between requests to one host
}

// Fetcher retrieves page bodies with per-host rate limits and optional
// robots.txt checks. It never retries; retry policy belongs to the caller so
// per-category backoff can differ.
type Fetcher struct {
	client        *http.Client
	ua            string
	headers       map[string]string
	respectRobots bool
	hostDelay     time.Duration
	mu            sync.Mutex
	limiters      map[string]*rate.Limiter
	robotsCache   map[string]*robotstxt.RobotsData
}

func New(opts Options) *Fetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = "boardwatch/1.0"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.HostDelay <= 0 {
		opts.HostDelay = 2 * time.Second
	}
	return &Fetcher{
		client:        &http.Client{Timeout: opts.Timeout},
		ua:            opts.UserAgent,
		headers:       opts.Headers,
		respectRobots: opts.RespectRobots,
		hostDelay:     opts.HostDelay,
		limiters:      map[string]*rate.Limiter{},
		robotsCache:   map[string]*robotstxt.RobotsData{},
	}
}

// Fetch retrieves the body at rawURL, applying the configured headers,
// timeout and host politeness. Non-2xx statuses and network failures return a
// *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, &FetchError{URL: rawURL, Permanent: true, Err: err}
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	if u.Host == "" {
		return nil, &FetchError{URL: rawURL, Permanent: true, Err: errors.New("url has no host")}
	}

	if f.respectRobots && !f.allowed(ctx, u) {
		return nil, &FetchError{URL: rawURL, Permanent: true, Err: errors.New("blocked by robots.txt")}
	}

	if err := f.limiterFor(u.Hostname()).Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Permanent: true, Err: err}
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", f.ua)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		permanent := resp.StatusCode >= 400 && resp.StatusCode < 500 &&
			resp.StatusCode != http.StatusTooManyRequests
		return nil, &FetchError{URL: rawURL, Status: resp.StatusCode, Permanent: permanent}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Status: resp.StatusCode, Err: err}
	}
	return body, nil
}

func (f *Fetcher) limiterFor(host string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.limiters[host]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Every(f.hostDelay), 1)
	f.limiters[host] = l
	return l
}

func (f *Fetcher) allowed(ctx context.Context, u *url.URL) bool {
	data, err := f.robotsFor(ctx, u)
	if err != nil {
		return true // fail open rather than blocking the board entirely
	}
	group := data.FindGroup(f.ua)
	if group == nil {
		group = data.FindGroup("*")
	}
	if group == nil {
		return true
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

func (f *Fetcher) robotsFor(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	host := u.Hostname()
	f.mu.Lock()
	if data, ok := f.robotsCache[host]; ok {
		f.mu.Unlock()
		return data, nil
	}
	f.mu.Unlock()

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.ua)

	if err := f.limiterFor(host).Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.robotsCache[host] = data
	f.mu.Unlock()
	return data, nil
}
