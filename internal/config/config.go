// Package config loads the settings of the canonical redirect server.
//
// Settings are read from an optional YAML (or JSON) file and then overridden
// by CANONICAL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"code.soquee.net/canonical"
	"code.soquee.net/canonical/rewrite"
	"code.soquee.net/canonical/update"
)

// Config holds all configuration of the server.
type Config struct {
	// Listen is the address the HTTP server binds.
	Listen string `yaml:"listen"`
	// Database is the path of the sqlite content store.
	Database string `yaml:"database"`
	// HostVersion is the version of the host platform the update manifest
	// is consulted for.
	HostVersion string `yaml:"host_version"`
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Site       canonical.Site     `yaml:"site"`
	Rewrite    canonical.Rewrite  `yaml:"rewrite"`
	Taxonomies []rewrite.Taxonomy `yaml:"taxonomies"`
	Update     Update             `yaml:"update"`
}

// Update configures the background update check.
type Update struct {
	Enabled  bool          `yaml:"enabled"`
	URL      string        `yaml:"url"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	Retries  int           `yaml:"retries"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Listen:          ":8080",
		Database:        "data/canonical.db",
		HostVersion:     "5.1",
		ShutdownTimeout: 10 * time.Second,
		Site: canonical.Site{
			Home: "http://localhost:8080",
		},
		Rewrite: canonical.Rewrite{
			Structure: "/%year%/%monthnum%/%postname%/",
		},
		Update: Update{
			Enabled:  true,
			URL:      update.DefaultURL,
			Interval: 12 * time.Hour,
			Timeout:  10 * time.Second,
			Retries:  3,
		},
	}
}

// Load reads the configuration file at path, if path is not empty, and
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// JSON documents are valid YAML.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	c.Listen = getEnv("CANONICAL_LISTEN", c.Listen)
	c.Database = getEnv("CANONICAL_DATABASE", c.Database)
	c.HostVersion = getEnv("CANONICAL_HOST_VERSION", c.HostVersion)
	c.Site.Home = getEnv("CANONICAL_HOME", c.Site.Home)
	c.Rewrite.Structure = getEnv("CANONICAL_PERMALINK_STRUCTURE", c.Rewrite.Structure)
	c.Update.URL = getEnv("CANONICAL_UPDATE_URL", c.Update.URL)

	var err error
	if c.ShutdownTimeout, err = getEnvDuration("CANONICAL_SHUTDOWN_TIMEOUT", c.ShutdownTimeout); err != nil {
		return err
	}
	if c.Update.Interval, err = getEnvDuration("CANONICAL_UPDATE_INTERVAL", c.Update.Interval); err != nil {
		return err
	}
	if c.Update.Enabled, err = getEnvBool("CANONICAL_UPDATE_ENABLED", c.Update.Enabled); err != nil {
		return err
	}
	if c.Update.Retries, err = getEnvInt("CANONICAL_UPDATE_RETRIES", c.Update.Retries); err != nil {
		return err
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address must not be empty")
	}
	if c.Database == "" {
		return errors.New("database path must not be empty")
	}
	u, err := url.Parse(c.Site.Home)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("site home must be an absolute http(s) URL, got %q", c.Site.Home)
	}
	if s := c.Rewrite.Structure; s != "" && !strings.HasPrefix(s, "/") {
		return fmt.Errorf("permalink structure must start with /, got %q", s)
	}
	switch c.Site.ShowOnFront {
	case "", canonical.ShowPosts:
	case canonical.ShowPage:
		if c.Site.PageOnFront <= 0 {
			return errors.New("a static front page requires page_on_front")
		}
	default:
		return fmt.Errorf("show_on_front must be %q or %q, got %q", canonical.ShowPosts, canonical.ShowPage, c.Site.ShowOnFront)
	}
	switch c.Site.DefaultCommentsPage {
	case "", canonical.CommentsNewest, canonical.CommentsOldest:
	default:
		return fmt.Errorf("default_comments_page must be %q or %q, got %q",
			canonical.CommentsNewest, canonical.CommentsOldest, c.Site.DefaultCommentsPage)
	}
	for _, t := range c.Taxonomies {
		if t.Name == "" {
			return errors.New("taxonomies must be named")
		}
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout must not be negative, got %v", c.ShutdownTimeout)
	}
	if c.Update.Enabled {
		if c.HostVersion == "" {
			return errors.New("host_version is required for update checks")
		}
		if c.Update.Interval < time.Minute {
			return fmt.Errorf("update interval must be at least 1m, got %v", c.Update.Interval)
		}
		if c.Update.Retries < 0 || c.Update.Retries > 10 {
			return fmt.Errorf("update retries must be 0-10, got %d", c.Update.Retries)
		}
	}
	return nil
}

// Links returns the link builder of the configured site.
func (c *Config) Links() canonical.Links {
	return canonical.Links{Site: c.Site.WithDefaults(), Rewrite: c.Rewrite.WithDefaults()}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s must be a boolean, got %q", key, v)
	}
	return b, nil
}

func getEnvInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return i, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s must be a duration, got %q", key, v)
	}
	return d, nil
}
