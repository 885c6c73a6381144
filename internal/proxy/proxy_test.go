package proxy

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/williampepple1/site-scraper/internal/config"
)

func TestGetProxyURL(t *testing.T) {
	t.Parallel()

	t.Run("disabled returns nil", func(t *testing.T) {
		t.Parallel()

		m := NewManager(&config.ProxyConfig{List: []string{"http://p1:8080"}})
		u, err := m.GetProxyURL()
		require.NoError(t, err)
		assert.Nil(t, u)
	})

	t.Run("first entry without rotation", func(t *testing.T) {
		t.Parallel()

		m := NewManager(&config.ProxyConfig{Enabled: true, List: []string{"http://p1:8080", "http://p2:8080"}})
		u, err := m.GetProxyURL()
		require.NoError(t, err)
		assert.Equal(t, "p1:8080", u.Host)
	})

	t.Run("rotation stays within the list", func(t *testing.T) {
		t.Parallel()

		m := NewManager(&config.ProxyConfig{Enabled: true, Rotate: true, List: []string{"http://p1:8080", "http://p2:8080"}})
		for range 20 {
			u, err := m.GetProxyURL()
			require.NoError(t, err)
			assert.Contains(t, []string{"p1:8080", "p2:8080"}, u.Host)
		}
	})

	t.Run("credentials are attached", func(t *testing.T) {
		t.Parallel()

		cfg := &config.ProxyConfig{Enabled: true, List: []string{"http://p1:8080"}}
		cfg.Auth.Username = "user"
		cfg.Auth.Password = "pass"
		u, err := NewManager(cfg).GetProxyURL()
		require.NoError(t, err)
		pw, ok := u.User.Password()
		assert.True(t, ok)
		assert.Equal(t, "user", u.User.Username())
		assert.Equal(t, "pass", pw)
	})

	t.Run("invalid proxy url", func(t *testing.T) {
		t.Parallel()

		m := NewManager(&config.ProxyConfig{Enabled: true, List: []string{"http://bad host:80"}})
		_, err := m.GetProxyURL()
		assert.Error(t, err)
	})
}

func TestApplyToTransport(t *testing.T) {
	t.Parallel()

	transport := &http.Transport{}
	m := NewManager(&config.ProxyConfig{Enabled: true, List: []string{"http://p1:8080"}})
	m.ApplyToTransport(transport)
	require.NotNil(t, transport.Proxy)

	req, err := http.NewRequest(http.MethodGet, "http://example.com", nil)
	require.NoError(t, err)
	u, err := transport.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "p1:8080", u.Host)
}
