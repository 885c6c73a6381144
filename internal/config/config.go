package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// AppName is used for XDG directory paths.
const AppName = "site-scraper"

// DefaultConfigFile is the configuration file name looked up in the XDG config dir.
const DefaultConfigFile = "config.yaml"

// Default values shared by CreateDefault and the CLI flags.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultCrawlDelay   = 1 * time.Second
	DefaultMaxPages     = 100
	MaxPagesCeiling     = 100
	DefaultWorkers      = 1
	DefaultMaxBodySize  = 10 * 1024 * 1024
	DefaultSettleDelay  = 0
	DefaultSitemapDepth = 5
)

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// AppConfig holds the complete application configuration
type AppConfig struct {
	Scraper    ScraperConfig    `yaml:"scraper"`
	IO         IOConfig         `yaml:"io"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Proxies    ProxyConfig      `yaml:"proxies"`
	Browser    BrowserConfig    `yaml:"browser"`
	Auth       AuthConfig       `yaml:"auth"`
	Store      StoreConfig      `yaml:"store"`
}

// ScraperConfig holds the fetch and crawl configuration
type ScraperConfig struct {
	Workers        int           `yaml:"workers"`
	RateLimit      time.Duration `yaml:"rate_limit"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxPages       int           `yaml:"max_pages"`
	SameDomainOnly bool          `yaml:"same_domain_only"`
	MaxBodySize    int64         `yaml:"max_body_size"`
	SitemapDepth   int           `yaml:"sitemap_depth"`
	UserAgents     []string      `yaml:"user_agents,omitempty"`
}

// IOConfig holds the input/output configuration
type IOConfig struct {
	InputFile    string `yaml:"input_file"`
	OutputFile   string `yaml:"output_file"`
	OutputDir    string `yaml:"output_dir"`
	OutputFormat string `yaml:"output_format"`
}

// ExtractionConfig holds the data extraction configuration
type ExtractionConfig struct {
	Selectors map[string]string `yaml:"selectors"`
	XPath     map[string]string `yaml:"xpath"`
	Regex     map[string]string `yaml:"regex"`
}

// Empty reports whether no field of any kind is configured.
func (e ExtractionConfig) Empty() bool {
	return len(e.Selectors) == 0 && len(e.XPath) == 0 && len(e.Regex) == 0
}

// ProxyConfig holds the proxy configuration
type ProxyConfig struct {
	Enabled bool     `yaml:"enabled"`
	Rotate  bool     `yaml:"rotate"`
	List    []string `yaml:"list"`
	Auth    struct {
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"auth"`
}

// BrowserConfig holds the browser configuration for JavaScript rendering
type BrowserConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Headless  bool          `yaml:"headless"`
	UserAgent string        `yaml:"user_agent"`
	WaitTime  time.Duration `yaml:"wait_time"`
	ExecPath  string        `yaml:"exec_path"`
	MaxTabs   int           `yaml:"max_tabs"`
	NoSandbox bool          `yaml:"no_sandbox"`
}

// AuthConfig describes an optional login performed before scraping
type AuthConfig struct {
	URL         string            `yaml:"url"`
	Strategy    string            `yaml:"strategy"`
	Credentials map[string]string `yaml:"credentials"`
	Extra       map[string]string `yaml:"extra_fields"`
}

// StoreConfig controls the SQLite run archive
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// Load loads the configuration from a YAML file
func Load(filename string) (*AppConfig, error) {
	data, err := os.ReadFile(filename) //nolint:gosec // user supplied config path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	config := CreateDefault()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}

	// Set default user agents if none provided
	if len(config.Scraper.UserAgents) == 0 {
		config.Scraper.UserAgents = DefaultUserAgents
	}

	return config, nil
}

// FindConfigFile returns path if it exists, otherwise the XDG config file
// when present, otherwise an empty string.
func FindConfigFile(path string) string {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		return ""
	}
	candidate := filepath.Join(XDGConfigDir(), DefaultConfigFile)
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}

// CreateDefault creates a default configuration
func CreateDefault() *AppConfig {
	return &AppConfig{
		Scraper: ScraperConfig{
			Workers:        DefaultWorkers,
			RateLimit:      DefaultCrawlDelay,
			Timeout:        DefaultTimeout,
			MaxPages:       DefaultMaxPages,
			SameDomainOnly: true,
			MaxBodySize:    DefaultMaxBodySize,
			SitemapDepth:   DefaultSitemapDepth,
			UserAgents:     DefaultUserAgents,
		},
		IO: IOConfig{
			OutputFormat: "json",
		},
		Extraction: ExtractionConfig{
			Selectors: map[string]string{},
			XPath:     map[string]string{},
			Regex:     map[string]string{},
		},
		Proxies: ProxyConfig{
			Rotate: true,
			List:   []string{},
		},
		Browser: BrowserConfig{
			Headless:  true,
			UserAgent: DefaultUserAgents[0],
			WaitTime:  DefaultSettleDelay,
			MaxTabs:   1,
		},
	}
}

// Validate checks the configuration and returns the first problem found.
func (c *AppConfig) Validate() error {
	if c.Scraper.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Scraper.Workers <= 0 {
		return ErrInvalidWorkers
	}
	if c.Scraper.RateLimit < 0 {
		return ErrInvalidDelay
	}
	if c.Scraper.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if c.Scraper.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.Browser.WaitTime < 0 {
		return ErrInvalidSettleDelay
	}
	switch c.IO.OutputFormat {
	case "", "json", "markdown":
	default:
		return ErrUnsupportedFormat
	}
	if c.Proxies.Enabled && len(c.Proxies.List) == 0 {
		return ErrNoProxies
	}
	return nil
}

// EffectiveMaxPages clamps the requested page budget to MaxPagesCeiling.
// Zero or negative values select DefaultMaxPages.
func EffectiveMaxPages(requested int) int {
	if requested <= 0 {
		return DefaultMaxPages
	}
	if requested > MaxPagesCeiling {
		return MaxPagesCeiling
	}
	return requested
}

// XDGDataDir returns the directory results and the run archive default to.
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the directory searched for DefaultConfigFile.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}
