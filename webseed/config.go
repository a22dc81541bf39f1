package webseed

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config for a Manager. Zero values of optional fields fall back to the
// values in DefaultConfig.
type Config struct {
	// MaxWebSeedConnections caps concurrent connections across all URL
	// seeds of the torrent.
	MaxWebSeedConnections int `yaml:"max_web_seed_connections"`
	// URLSeedWaitRetry is the initial delay before retrying a seed after a
	// transient failure. The delay doubles on each consecutive failure.
	URLSeedWaitRetry time.Duration `yaml:"urlseed_wait_retry"`
	// WebSeedInactivityTimeout closes a connection when no bytes are
	// received for this duration.
	WebSeedInactivityTimeout time.Duration `yaml:"web_seed_inactivity_timeout"`
	// ConnectTimeout is the time to wait for a TCP connection to open.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	// CloseRedundantConnections drops idle keep-alive connections when a
	// download batch completes.
	CloseRedundantConnections bool `yaml:"close_redundant_connections"`
	// MaxRetryAttempts disables a seed after this many consecutive
	// connect-class failures.
	MaxRetryAttempts int `yaml:"max_retry_attempts"`
	// ParallelWrites limits concurrent piece writes to storage.
	ParallelWrites int `yaml:"parallel_writes"`
	// DownloadRateLimit in bytes per second shared by all connections.
	// Zero means unlimited.
	DownloadRateLimit int64 `yaml:"download_rate_limit"`
	// UserAgent sent in HTTP requests.
	UserAgent string `yaml:"user_agent"`

	// Proxy routes all web seed traffic through an upstream proxy.
	Proxy ProxyConfig `yaml:"proxy"`
}

// ProxyConfig describes an upstream proxy.
type ProxyConfig struct {
	// Type is one of "none", "http", "https", "socks5".
	Type     string `yaml:"type"`
	Hostname string `yaml:"hostname"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// ProxyHostnames makes the proxy resolve origin hostnames instead of
	// resolving them locally.
	ProxyHostnames bool `yaml:"proxy_hostnames"`
}

// DefaultConfig for Manager.
var DefaultConfig = Config{
	MaxWebSeedConnections:     3,
	URLSeedWaitRetry:          5 * time.Second,
	WebSeedInactivityTimeout:  20 * time.Second,
	ConnectTimeout:            10 * time.Second,
	CloseRedundantConnections: true,
	MaxRetryAttempts:          5,
	ParallelWrites:            4,
	UserAgent:                 "webseed/1",
}

// LoadConfig returns the config in filename merged over DefaultConfig.
// A missing file is not an error.
func LoadConfig(filename string) (Config, error) {
	c := DefaultConfig
	f, err := os.Open(filename)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return c, err
	}
	defer f.Close()
	d := yaml.NewDecoder(f)
	d.SetStrict(true)
	err = d.Decode(&c)
	return c, err
}

func (c *Config) fillDefaults() {
	if c.MaxWebSeedConnections == 0 {
		c.MaxWebSeedConnections = DefaultConfig.MaxWebSeedConnections
	}
	if c.URLSeedWaitRetry == 0 {
		c.URLSeedWaitRetry = DefaultConfig.URLSeedWaitRetry
	}
	if c.WebSeedInactivityTimeout == 0 {
		c.WebSeedInactivityTimeout = DefaultConfig.WebSeedInactivityTimeout
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConfig.ConnectTimeout
	}
	if c.MaxRetryAttempts == 0 {
		c.MaxRetryAttempts = DefaultConfig.MaxRetryAttempts
	}
	if c.ParallelWrites == 0 {
		c.ParallelWrites = DefaultConfig.ParallelWrites
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultConfig.UserAgent
	}
}
