package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/pevans/eventfed/discovery"
	"github.com/pevans/eventfed/instagram"
	"github.com/pevans/eventfed/scraper"
	"github.com/robfig/cron/v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Defaults used when neither the config file nor the environment sets a
// value.
const (
	DefaultAddr         = ":8080"
	DefaultScheduleSpec = "0 * * * *"
	DefaultTimezone     = "America/New_York"
	DefaultDSN          = "eventfed.db"
	DefaultTimeout      = 60 * time.Second
	DefaultWaitTimeout  = 30 * time.Second
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ScrapeConfig configures the page scraper.
type ScrapeConfig struct {
	URL          string                 `yaml:"url"`
	Timeout      time.Duration          `yaml:"timeout"`
	WaitTimeout  time.Duration          `yaml:"wait_timeout"`
	SingleFlight bool                   `yaml:"single_flight"`
	UserAgent    string                 `yaml:"user_agent"`
	ChromePath   string                 `yaml:"chrome_path"`
	Selectors    scraper.SelectorConfig `yaml:"selectors"`
}

// ScheduleConfig configures the periodic scrape.
type ScheduleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Spec     string `yaml:"spec"`
	Timezone string `yaml:"timezone"`
}

// StorageConfig configures the event store.
type StorageConfig struct {
	DSN string `yaml:"dsn"`
}

// InstagramConfig configures the Graph API client.
type InstagramConfig struct {
	BaseURL     string `yaml:"base_url"`
	AccessToken string `yaml:"access_token"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// FileConfig represents the structure of eventfed.yaml.
type FileConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Scrape    ScrapeConfig    `yaml:"scrape"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Storage   StorageConfig   `yaml:"storage"`
	Instagram InstagramConfig `yaml:"instagram"`
	Feeds     []string        `yaml:"feeds"`
	Log       LogConfig       `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() *FileConfig {
	return &FileConfig{
		Server: ServerConfig{Addr: DefaultAddr},
		Scrape: ScrapeConfig{
			URL:         discovery.DefaultTargetURL,
			Timeout:     DefaultTimeout,
			WaitTimeout: DefaultWaitTimeout,
			Selectors:   scraper.DefaultSelectorConfig(),
		},
		Schedule: ScheduleConfig{
			Enabled:  true,
			Spec:     DefaultScheduleSpec,
			Timezone: DefaultTimezone,
		},
		Storage:   StorageConfig{DSN: DefaultDSN},
		Instagram: InstagramConfig{BaseURL: instagram.DefaultBaseURL},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// ApplyEnv overrides file values with environment variables. EVENTFED_ADDR
// takes precedence over PORT.
func (c *FileConfig) ApplyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	if addr := os.Getenv("EVENTFED_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if u := os.Getenv("EVENTFED_SCRAPE_URL"); u != "" {
		c.Scrape.URL = u
	}
	if dsn := os.Getenv("EVENTFED_DB"); dsn != "" {
		c.Storage.DSN = dsn
	}
	if spec := os.Getenv("EVENTFED_SCHEDULE"); spec != "" {
		c.Schedule.Spec = spec
	}
	if tz := os.Getenv("EVENTFED_TIMEZONE"); tz != "" {
		c.Schedule.Timezone = tz
	}
	if token := os.Getenv("INSTAGRAM_ACCESS_TOKEN"); token != "" {
		c.Instagram.AccessToken = token
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}
}

// Validate checks the configuration. Every error wraps ErrInvalidConfig.
func (c *FileConfig) Validate() error {
	if c.Server.Addr == "" {
		return invalid("server.addr is required")
	}

	if err := validateHTTPURL(c.Scrape.URL); err != nil {
		return invalid("scrape.url: %v", err)
	}
	if c.Scrape.Timeout <= 0 {
		return invalid("scrape.timeout must be positive")
	}
	if c.Scrape.WaitTimeout <= 0 {
		return invalid("scrape.wait_timeout must be positive")
	}
	if err := c.Scrape.Selectors.Validate(); err != nil {
		return invalid("scrape.selectors: %v", err)
	}

	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return invalid("schedule.timezone: %v", err)
	}
	if _, err := cron.ParseStandard(c.Schedule.Spec); err != nil {
		return invalid("schedule.spec: %v", err)
	}

	if c.Storage.DSN == "" {
		return invalid("storage.dsn is required")
	}

	for i, feed := range c.Feeds {
		if err := validateHTTPURL(feed); err != nil {
			return invalid("feeds[%d]: %v", i, err)
		}
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("must be an http or https URL")
	}
	if u.Host == "" {
		return errors.New("must include a host")
	}
	return nil
}
