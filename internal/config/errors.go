package config

import "errors"

// Configuration validation errors returned by AppConfig.Validate.
var (
	ErrInvalidTimeout     = errors.New("invalid timeout: must be positive")
	ErrInvalidWorkers     = errors.New("invalid workers: must be positive")
	ErrInvalidDelay       = errors.New("invalid rate limit: must be non-negative")
	ErrInvalidMaxPages    = errors.New("invalid max pages: must be non-negative")
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")
	ErrInvalidSettleDelay = errors.New("invalid browser wait time: must be non-negative")
	ErrUnsupportedFormat  = errors.New("unsupported output format: use json or markdown")
	ErrNoProxies          = errors.New("proxies enabled but the proxy list is empty")
)
