package proxy

import (
	"math/rand/v2"
	"net/http"
	"net/url"

	"github.com/williampepple1/site-scraper/internal/config"
)

// Manager handles proxy configuration and rotation
type Manager struct {
	Config *config.ProxyConfig
}

// NewManager creates a new proxy manager
func NewManager(config *config.ProxyConfig) *Manager {
	return &Manager{
		Config: config,
	}
}

// Enabled reports whether requests should go through a proxy.
func (m *Manager) Enabled() bool {
	return m != nil && m.Config != nil && m.Config.Enabled && len(m.Config.List) > 0
}

// GetProxyURL returns a proxy URL from the configuration, or nil when
// proxying is disabled.
func (m *Manager) GetProxyURL() (*url.URL, error) {
	if !m.Enabled() {
		return nil, nil
	}

	// Select a proxy
	proxyStr := m.Config.List[0]
	if m.Config.Rotate && len(m.Config.List) > 1 {
		proxyStr = m.Config.List[rand.IntN(len(m.Config.List))]
	}

	proxyURL, err := url.Parse(proxyStr)
	if err != nil {
		return nil, err
	}

	if m.Config.Auth.Username != "" && m.Config.Auth.Password != "" {
		proxyURL.User = url.UserPassword(m.Config.Auth.Username, m.Config.Auth.Password)
	}

	return proxyURL, nil
}

// ProxyFunc returns a function suitable for http.Transport.Proxy. With
// rotation enabled every request picks its own proxy, so one transport can
// be shared by concurrent workers.
func (m *Manager) ProxyFunc() func(*http.Request) (*url.URL, error) {
	if !m.Enabled() {
		return http.ProxyFromEnvironment
	}
	return func(*http.Request) (*url.URL, error) {
		return m.GetProxyURL()
	}
}

// ApplyToTransport installs the proxy function on transport.
func (m *Manager) ApplyToTransport(transport *http.Transport) {
	transport.Proxy = m.ProxyFunc()
}
