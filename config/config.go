// Package config loads the site profiles, browser/retry/update settings
// and per-site credentials. Values come from a config yml file or
// environment variables or both. Selector tables are load-bearing for the
// adapters, so missing required keys are a fatal load error, never a
// silent default.
package config

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/tracuuvn/tracuu/types"
)

// Debug turns on debug logging and failure screenshots.
var Debug bool

type contextKey string

// LoggerCtxKey is the context key under which a scoped logger travels.
const LoggerCtxKey contextKey = "logger"

func GetLogLevel() slog.Level {
	if Debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// LoginSelectors locate the login form elements of one site.
type LoginSelectors struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Submit   string `yaml:"submit"`
	// Marker is an element that only exists once login succeeded.
	Marker string `yaml:"marker,omitempty"`
	// Failure marks a rejected-credentials message, when the site has one.
	Failure string `yaml:"failure,omitempty"`
}

// QueryForm describes one lookup form on a site.
type QueryForm struct {
	// URL of the form page. May contain a {keyword} placeholder for sites
	// queried by URL parameter. Empty means the session stays wherever
	// login left it.
	URL string `yaml:"url,omitempty"`
	// Fields maps a request field name (or an adapter-derived name such as
	// plate_p1) to the input selector it is typed into.
	Fields map[string]string `yaml:"fields,omitempty"`
	// Presets are literal values filled before the request fields, e.g. a
	// category dropdown that must be switched to vehicles.
	Presets map[string]string `yaml:"presets,omitempty"`
	Submit  string            `yaml:"submit,omitempty"`
	// Result/Empty/Failure are CSS markers used to classify the page after
	// submitting: results rendered, known "not found", known error.
	Result  string `yaml:"result"`
	Empty   string `yaml:"empty,omitempty"`
	Failure string `yaml:"failure,omitempty"`
}

// SiteProfile is the full per-site configuration. Immutable after load,
// one per configured site, keyed by ID.
type SiteProfile struct {
	ID       string                   `yaml:"id"`
	BaseURL  string                   `yaml:"base_url"`
	LoginURL string                   `yaml:"login_url,omitempty"` // defaults to base_url
	Priority int                      `yaml:"priority"`
	Login    LoginSelectors           `yaml:"login"`
	Queries  map[types.Kind]QueryForm `yaml:"queries"`
}

// LoginPage returns the URL the login flow starts on.
func (p SiteProfile) LoginPage() string {
	if p.LoginURL != "" {
		return p.LoginURL
	}
	return p.BaseURL
}

// Supports reports whether the site serves the given lookup kind.
func (p SiteProfile) Supports(kind types.Kind) bool {
	_, ok := p.Queries[kind]
	return ok
}

type BrowserConfig struct {
	Headless         bool   `yaml:"headless" env:"TRACUU_HEADLESS"`
	ProfileDir       string `yaml:"profile_dir" env:"TRACUU_PROFILE_DIR" env-default:".browser-profile"`
	UserAgent        string `yaml:"user_agent,omitempty"`
	NavTimeoutMS     int    `yaml:"nav_timeout_ms" env-default:"20000"`
	ElementTimeoutMS int    `yaml:"element_timeout_ms" env-default:"4000"`
	ScreenshotDir    string `yaml:"screenshot_dir" env-default:"screenshots"`
}

func (c BrowserConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutMS) * time.Millisecond
}

func (c BrowserConfig) ElementTimeout() time.Duration {
	return time.Duration(c.ElementTimeoutMS) * time.Millisecond
}

type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts" env-default:"3"`
	BackoffMS   int `yaml:"backoff_ms" env-default:"1500"`
}

func (c RetryConfig) Backoff() time.Duration {
	return time.Duration(c.BackoffMS) * time.Millisecond
}

type UpdateConfig struct {
	ManifestURL string `yaml:"manifest_url" env:"TRACUU_MANIFEST_URL"`
	// InstallDir is the directory tree the update swap replaces.
	InstallDir string `yaml:"install_dir" env-default:"app"`
}

// Config is the overall structure of the configuration file.
type Config struct {
	Browser   BrowserConfig `yaml:"browser"`
	Retry     RetryConfig   `yaml:"retry"`
	Update    UpdateConfig  `yaml:"update"`
	HistoryDB string        `yaml:"history_db" env:"TRACUU_HISTORY_DB" env-default:"tracuu.db"`
	LockFile  string        `yaml:"lock_file" env-default:".tracuu.lock"`
	Sites     []SiteProfile `yaml:"sites"`
}

func NewConfig(configPath string) (*Config, error) {
	var config Config
	if err := cleanenv.ReadConfig(configPath, &config); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	if len(c.Sites) == 0 {
		return fmt.Errorf("config: no sites configured")
	}
	seen := map[string]bool{}
	for _, p := range c.Sites {
		if p.ID == "" {
			return fmt.Errorf("config: site with empty id")
		}
		if seen[p.ID] {
			return fmt.Errorf("config: duplicate site id %q", p.ID)
		}
		seen[p.ID] = true
		if p.BaseURL == "" {
			return fmt.Errorf("config: site %s: base_url is required", p.ID)
		}
		if p.Login.Username == "" || p.Login.Password == "" || p.Login.Submit == "" {
			return fmt.Errorf("config: site %s: login selectors username, password and submit are required", p.ID)
		}
		if len(p.Queries) == 0 {
			return fmt.Errorf("config: site %s: no query forms configured", p.ID)
		}
		for kind, q := range p.Queries {
			if kind != types.KindPlate && kind != types.KindTitle && kind != types.KindPerson {
				return fmt.Errorf("config: site %s: unknown lookup kind %q", p.ID, kind)
			}
			if q.Result == "" {
				return fmt.Errorf("config: site %s/%s: result marker is required", p.ID, kind)
			}
			if len(q.Fields) == 0 && q.URL == "" {
				return fmt.Errorf("config: site %s/%s: either field selectors or a query url is required", p.ID, kind)
			}
		}
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("config: retry.max_attempts must be at least 1")
	}
	return nil
}

// SitesFor returns the sites serving the given kind in fixed priority
// order (lowest priority value first).
func (c *Config) SitesFor(kind types.Kind) []SiteProfile {
	var out []SiteProfile
	for _, p := range c.Sites {
		if p.Supports(kind) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// Site returns the profile with the given id.
func (c *Config) Site(id string) (SiteProfile, bool) {
	for _, p := range c.Sites {
		if p.ID == id {
			return p, true
		}
	}
	return SiteProfile{}, false
}
