package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError reports bad input rejected before any network work.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// Kind classifies a FetchError.
type Kind int

const (
	KindTimeout Kind = iota + 1
	KindConnectionFailed
	KindHTTPStatus
	KindRendererUnavailable
	KindRendererFailed
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnectionFailed:
		return "connection failed"
	case KindHTTPStatus:
		return "http status"
	case KindRendererUnavailable:
		return "renderer unavailable"
	case KindRendererFailed:
		return "renderer failed"
	default:
		return "unknown"
	}
}

// FetchError is returned by both backends when a page could not be retrieved.
type FetchError struct {
	Kind       Kind
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Kind == KindHTTPStatus:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err wraps a FetchError of the given kind.
func IsKind(err error, kind Kind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}

// ValidateURL parses raw and accepts only absolute http(s) URLs with a host.
func ValidateURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, &ValidationError{Field: "url", Reason: "empty"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &ValidationError{Field: "url", Value: raw, Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &ValidationError{Field: "url", Value: raw, Reason: "scheme must be http or https"}
	}
	if u.Host == "" {
		return nil, &ValidationError{Field: "url", Value: raw, Reason: "missing host"}
	}
	return u, nil
}

// classify maps a transport error onto a FetchError. Caller cancellation is
// passed through untouched so crawls can tell it apart from a failed page.
func classify(rawURL string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
		return &FetchError{Kind: KindTimeout, URL: rawURL, Err: err}
	}
	return &FetchError{Kind: KindConnectionFailed, URL: rawURL, Err: err}
}
