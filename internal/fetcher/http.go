package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/publicsuffix"

	"github.com/williampepple1/site-scraper/internal/config"
	"github.com/williampepple1/site-scraper/internal/proxy"
)

// ErrBodyTooLarge is returned when a response exceeds scraper.max_body_size.
var ErrBodyTooLarge = errors.New("response body too large")

// HTTPFetcher implements static fetching over a shared http.Client. It is
// safe for concurrent use.
type HTTPFetcher struct {
	client      *http.Client
	transport   *http.Transport
	userAgents  []string
	maxBodySize int64
	logger      *slog.Logger

	mu      sync.RWMutex
	headers http.Header
	basic   *url.Userinfo

	closeOnce sync.Once
}

// NewHTTPFetcher creates a static fetcher from the scraper and proxy sections
// of cfg.
func NewHTTPFetcher(cfg *config.AppConfig, logger *slog.Logger) (*HTTPFetcher, error) {
	timeout := cfg.Scraper.Timeout
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}
	maxBody := cfg.Scraper.MaxBodySize
	if maxBody <= 0 {
		maxBody = config.DefaultMaxBodySize
	}
	agents := cfg.Scraper.UserAgents
	if len(agents) == 0 {
		agents = config.DefaultUserAgents
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	proxy.NewManager(&cfg.Proxies).ApplyToTransport(transport)

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			Jar:       jar,
		},
		transport:   transport,
		userAgents:  agents,
		maxBodySize: maxBody,
		logger:      loggerOrDefault(logger),
		headers:     http.Header{},
	}, nil
}

// Fetch downloads rawURL with a GET request. Non-2xx responses are returned
// as a FetchError of kind KindHTTPStatus. Redirects are followed and the
// final URL is reported.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string, _ Options) (*FetchResult, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &ValidationError{Field: "url", Value: rawURL, Reason: err.Error()}
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := f.do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Kind: KindHTTPStatus, URL: u.String(), StatusCode: resp.StatusCode}
	}
	return &FetchResult{
		FinalURL:   resp.FinalURL,
		RawHTML:    string(resp.Body),
		FetchedAt:  time.Now(),
		StatusCode: resp.StatusCode,
	}, nil
}

// response is a fully read HTTP response.
type response struct {
	StatusCode int
	FinalURL   string
	Header     http.Header
	Body       []byte
}

// do sends req with the session headers and a random user agent and reads
// the whole decoded body. Any status code is returned without error.
func (f *HTTPFetcher) do(req *http.Request) (*response, error) {
	req.Header.Set("User-Agent", f.userAgents[rand.IntN(len(f.userAgents))])
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	f.mu.RLock()
	for k, v := range f.headers {
		req.Header[k] = v
	}
	if f.basic != nil {
		pw, _ := f.basic.Password()
		req.SetBasicAuth(f.basic.Username(), pw)
	}
	f.mu.RUnlock()

	target := req.URL.String()
	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(target, err)
	}
	body, err := f.readBody(resp)
	if err != nil {
		if errors.Is(err, ErrBodyTooLarge) {
			return nil, fmt.Errorf("fetch %s: %w", target, err)
		}
		return nil, classify(target, err)
	}

	finalURL := target
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	f.logger.Debug("fetched", "url", target, "final_url", finalURL, "status", resp.StatusCode,
		"bytes", len(body), "elapsed", time.Since(start))

	return &response{
		StatusCode: resp.StatusCode,
		FinalURL:   finalURL,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	body, err := io.ReadAll(io.LimitReader(reader, f.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodySize {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, f.maxBodySize)
	}
	return body, nil
}

// postForm submits values as an urlencoded form.
func (f *HTTPFetcher) postForm(ctx context.Context, rawURL string, values url.Values) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.do(req)
}

func (f *HTTPFetcher) postJSON(ctx context.Context, rawURL string, payload []byte) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return f.do(req)
}

// SetBasicAuth attaches credentials to every later request. A nil user
// clears them.
func (f *HTTPFetcher) SetBasicAuth(user *url.Userinfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.basic = user
}

// SetHeader attaches a header to every later request.
func (f *HTTPFetcher) SetHeader(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headers.Set(key, value)
}

// Close releases idle connections. It is safe to call more than once.
func (f *HTTPFetcher) Close() error {
	f.closeOnce.Do(func() {
		f.transport.CloseIdleConnections()
	})
	return nil
}
