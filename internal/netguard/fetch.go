package netguard

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultMaxRedirects bounds the redirect chain.
const DefaultMaxRedirects = 5

// FetchOptions configures a guarded GET.
type FetchOptions struct {
	// MaxRedirects caps redirect hops; 0 uses the default.
	MaxRedirects int

	// AllowHosts bypasses vetting for exact normalized hostnames.
	AllowHosts []string

	// AllowPrivateNetwork disables all vetting. Only for explicit opt-in.
	AllowPrivateNetwork bool

	// Timeout bounds the whole fetch; 0 means no client timeout beyond ctx.
	Timeout time.Duration

	// MaxBodyBytes caps the response body read; 0 means unlimited.
	MaxBodyBytes int64

	// Client overrides the HTTP client. Redirect handling stays manual.
	Client *http.Client
}

// FetchResult is the outcome of a guarded GET.
type FetchResult struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	FinalURL   string
	Redirects  int
}

// Fetcher performs SSRF-guarded HTTP GETs.
type Fetcher struct {
	opts   FetchOptions
	client *http.Client
}

// NewFetcher creates a fetcher. The underlying client never follows
// redirects itself; every hop is vetted by the fetcher.
func NewFetcher(opts FetchOptions) *Fetcher {
	if opts.MaxRedirects <= 0 {
		opts.MaxRedirects = DefaultMaxRedirects
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &Fetcher{opts: opts, client: client}
}

// vetURL validates scheme and host for one hop.
func (f *Fetcher) vetURL(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q not allowed", ErrInvalidURL, u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidURL)
	}
	if f.opts.AllowPrivateNetwork {
		return nil
	}
	host := NormalizeHostname(u.Hostname())
	for _, allowed := range f.opts.AllowHosts {
		if NormalizeHostname(allowed) == host {
			return nil
		}
	}
	return ValidatePublicHostname(u.Hostname())
}

// Get fetches rawURL, following up to MaxRedirects hops with cycle detection
// and per-hop vetting.
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*FetchResult, error) {
	current, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	seen := map[string]bool{}
	redirects := 0

	for {
		if err := f.vetURL(current); err != nil {
			return nil, err
		}
		key := current.String()
		if seen[key] {
			return nil, fmt.Errorf("%w: redirect cycle at %s", ErrRedirect, key)
		}
		seen[key] = true

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
		}

		if isRedirect(resp.StatusCode) {
			location := resp.Header.Get("Location")
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			if location == "" {
				return nil, fmt.Errorf("%w: redirect without location", ErrRedirect)
			}
			if redirects >= f.opts.MaxRedirects {
				return nil, fmt.Errorf("%w: more than %d redirects", ErrRedirect, f.opts.MaxRedirects)
			}
			next, err := current.Parse(location)
			if err != nil {
				return nil, fmt.Errorf("%w: bad location %q: %v", ErrRedirect, location, err)
			}
			current = next
			redirects++
			continue
		}

		var reader io.Reader = resp.Body
		if f.opts.MaxBodyBytes > 0 {
			reader = io.LimitReader(resp.Body, f.opts.MaxBodyBytes)
		}
		body, err := io.ReadAll(reader)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
		}
		return &FetchResult{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       body,
			FinalURL:   current.String(),
			Redirects:  redirects,
		}, nil
	}
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}
