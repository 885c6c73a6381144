package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/williampepple1/site-scraper/internal/log"
)

// chromePath finds a Chrome binary or skips the test.
func chromePath(t *testing.T) string {
	t.Helper()
	if p := os.Getenv("CHROME_BIN_PATH"); p != "" {
		return p
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no chrome binary found")
	return ""
}

func TestBrowserFetcher(t *testing.T) {
	bin := chromePath(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html><head><title>js</title></head><body><div id="out"></div>
<script>setTimeout(function(){document.getElementById("out").textContent="rendered";}, 50);</script>
</body></html>`)
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig()
	cfg.Browser.Enabled = true
	cfg.Browser.ExecPath = bin
	cfg.Browser.NoSandbox = true
	cfg.Scraper.Timeout = 20 * time.Second

	f, err := New(cfg, log.Discard())
	require.NoError(t, err)
	require.True(t, Rendered(f))
	require.NotNil(t, Static(f))

	res, err := f.Fetch(context.Background(), srv.URL, Options{SettleDelay: 500 * time.Millisecond})
	require.NoError(t, err)
	assert.Contains(t, res.RawHTML, "rendered")
	assert.Equal(t, 0, res.StatusCode)
	assert.Equal(t, srv.URL+"/", res.FinalURL)

	assert.NoError(t, f.Close())
	assert.NoError(t, f.Close())
}

func TestBrowserFetcherUnavailable(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Browser.Enabled = true
	cfg.Browser.ExecPath = "/nonexistent/chrome"

	_, err := New(cfg, log.Discard())
	assert.True(t, IsKind(err, KindRendererUnavailable), "got %v", err)
}
