// Package crawler holds the settings that drive a crawl run: which hosts to
// visit, how fast, and how many advertisements to collect.
package crawler

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values
const (
	DefaultBaseDomain     = "nmls.ru"
	DefaultScheme         = "https"
	DefaultUserAgent      = "nmls-crawler/1.0"
	DefaultDelay          = 1 * time.Second
	DefaultParallelism    = 2
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxItems       = 1000
	DefaultMaxPages       = 1000

	DefaultAutoThrottleStartDelay        = 1 * time.Second
	DefaultAutoThrottleMaxDelay          = 60 * time.Second
	DefaultAutoThrottleTargetConcurrency = 1.0
)

// Config represents the crawler configuration.
type Config struct {
	// BaseDomain is the registrable domain all region subdomains hang off.
	BaseDomain string `yaml:"base_domain"`
	// Scheme is used to build region and seed URLs.
	Scheme string `yaml:"scheme"`
	// SpecificRegion restricts the run to RegionSubdomain.
	SpecificRegion bool `yaml:"specific_region"`
	// RegionSubdomain is the region crawled when SpecificRegion is set, e.g. "nn".
	RegionSubdomain string `yaml:"region_subdomain"`
	// UserAgent is sent with every request
	UserAgent string `yaml:"user_agent"`
	// RespectRobotsTxt indicates whether to respect robots.txt
	RespectRobotsTxt bool `yaml:"respect_robots_txt"`
	// Delay is the delay between requests
	Delay time.Duration `yaml:"delay"`
	// RandomDelay is the random delay to add to the base delay
	RandomDelay time.Duration `yaml:"random_delay"`
	// Parallelism is the number of concurrent requests per domain
	Parallelism int `yaml:"parallelism"`
	// RequestTimeout is the timeout for each request
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// MaxItems stops issuing new fetches once this many advertisements
	// were extracted (0 = no limit).
	MaxItems int `yaml:"max_items"`
	// MaxPages bounds the listing pages planned for one section.
	MaxPages int `yaml:"max_pages"`
	// MaxRequests caps total requests per crawl (0 = no limit)
	MaxRequests uint32 `yaml:"max_requests"`
	// AutoThrottle adapts the delay to server latency.
	AutoThrottle AutoThrottleConfig `yaml:"autothrottle"`
	// ProxyURLs is the list of proxy URLs (HTTP or SOCKS5) for round-robin rotation
	ProxyURLs []string `yaml:"proxy_urls"`
	// ArchiveHTML uploads detail page HTML to the archive.
	ArchiveHTML bool `yaml:"archive_html"`
}

// AutoThrottleConfig holds adaptive delay settings.
type AutoThrottleConfig struct {
	Enabled           bool          `yaml:"enabled"`
	StartDelay        time.Duration `yaml:"start_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	TargetConcurrency float64       `yaml:"target_concurrency"`
}

// New creates a crawler configuration with default values.
func New() *Config {
	return &Config{
		BaseDomain:       DefaultBaseDomain,
		Scheme:           DefaultScheme,
		UserAgent:        DefaultUserAgent,
		RespectRobotsTxt: true,
		Delay:            DefaultDelay,
		Parallelism:      DefaultParallelism,
		RequestTimeout:   DefaultRequestTimeout,
		MaxItems:         DefaultMaxItems,
		MaxPages:         DefaultMaxPages,
		AutoThrottle: AutoThrottleConfig{
			Enabled:           true,
			StartDelay:        DefaultAutoThrottleStartDelay,
			MaxDelay:          DefaultAutoThrottleMaxDelay,
			TargetConcurrency: DefaultAutoThrottleTargetConcurrency,
		},
	}
}

// LoadFromViper reads the "crawler" section over the defaults.
func LoadFromViper(v *viper.Viper) *Config {
	cfg := New()

	if v.IsSet("crawler.base_domain") {
		cfg.BaseDomain = v.GetString("crawler.base_domain")
	}
	if v.IsSet("crawler.scheme") {
		cfg.Scheme = v.GetString("crawler.scheme")
	}
	if v.IsSet("crawler.specific_region") {
		cfg.SpecificRegion = v.GetBool("crawler.specific_region")
	}
	if v.IsSet("crawler.region_subdomain") {
		cfg.RegionSubdomain = v.GetString("crawler.region_subdomain")
	}
	if v.IsSet("crawler.user_agent") {
		cfg.UserAgent = v.GetString("crawler.user_agent")
	}
	if v.IsSet("crawler.respect_robots_txt") {
		cfg.RespectRobotsTxt = v.GetBool("crawler.respect_robots_txt")
	}
	if v.IsSet("crawler.delay") {
		cfg.Delay = v.GetDuration("crawler.delay")
	}
	if v.IsSet("crawler.random_delay") {
		cfg.RandomDelay = v.GetDuration("crawler.random_delay")
	}
	if v.IsSet("crawler.parallelism") {
		cfg.Parallelism = v.GetInt("crawler.parallelism")
	}
	if v.IsSet("crawler.request_timeout") {
		cfg.RequestTimeout = v.GetDuration("crawler.request_timeout")
	}
	if v.IsSet("crawler.max_items") {
		cfg.MaxItems = v.GetInt("crawler.max_items")
	}
	if v.IsSet("crawler.max_pages") {
		cfg.MaxPages = v.GetInt("crawler.max_pages")
	}
	if v.IsSet("crawler.max_requests") {
		cfg.MaxRequests = v.GetUint32("crawler.max_requests")
	}
	if v.IsSet("crawler.autothrottle.enabled") {
		cfg.AutoThrottle.Enabled = v.GetBool("crawler.autothrottle.enabled")
	}
	if v.IsSet("crawler.autothrottle.start_delay") {
		cfg.AutoThrottle.StartDelay = v.GetDuration("crawler.autothrottle.start_delay")
	}
	if v.IsSet("crawler.autothrottle.max_delay") {
		cfg.AutoThrottle.MaxDelay = v.GetDuration("crawler.autothrottle.max_delay")
	}
	if v.IsSet("crawler.autothrottle.target_concurrency") {
		cfg.AutoThrottle.TargetConcurrency = v.GetFloat64("crawler.autothrottle.target_concurrency")
	}
	if v.IsSet("crawler.proxy_urls") {
		cfg.ProxyURLs = v.GetStringSlice("crawler.proxy_urls")
	}
	if v.IsSet("crawler.archive_html") {
		cfg.ArchiveHTML = v.GetBool("crawler.archive_html")
	}

	cfg.BaseDomain = strings.ToLower(strings.TrimSpace(cfg.BaseDomain))
	cfg.RegionSubdomain = strings.ToLower(strings.TrimSpace(cfg.RegionSubdomain))
	return cfg
}

// Validate validates the crawler configuration.
func (c *Config) Validate() error {
	if c.BaseDomain == "" {
		return errors.New("base_domain is required")
	}
	if c.Scheme != "http" && c.Scheme != "https" {
		return errors.New("scheme must be http or https")
	}
	if c.SpecificRegion && c.RegionSubdomain == "" {
		return errors.New("region_subdomain is required when specific_region is set")
	}
	if c.Parallelism < 1 {
		return errors.New("parallelism must be positive")
	}
	if c.Delay < 0 {
		return errors.New("delay must be non-negative")
	}
	if c.RandomDelay < 0 {
		return errors.New("random_delay must be non-negative")
	}
	if c.RequestTimeout < 0 {
		return errors.New("request_timeout must be non-negative")
	}
	if c.MaxItems < 0 {
		return errors.New("max_items must be non-negative")
	}
	if c.MaxPages < 1 {
		return errors.New("max_pages must be positive")
	}
	return c.AutoThrottle.Validate()
}

// Validate validates the autothrottle settings.
func (c *AutoThrottleConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.StartDelay <= 0 {
		return errors.New("autothrottle start_delay must be positive")
	}
	if c.MaxDelay < c.StartDelay {
		return errors.New("autothrottle max_delay must not be below start_delay")
	}
	if c.TargetConcurrency <= 0 {
		return errors.New("autothrottle target_concurrency must be positive")
	}
	return nil
}

// SeedURL is the page a run starts from.
func (c *Config) SeedURL() string {
	if c.SpecificRegion {
		return c.RegionURL(c.RegionSubdomain + "." + c.BaseDomain)
	}
	return c.RegionURL(c.BaseDomain)
}

// RegionURL is the home page of host.
func (c *Config) RegionURL(host string) string {
	return c.Scheme + "://" + host + "/"
}
