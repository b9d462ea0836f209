package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"blairboard/internal/model"
)

var (
	// ErrNoCalendars is returned by Validate when no calendar is configured.
	ErrNoCalendars = errors.New("at least one calendar must be configured")
	// ErrCreated is returned by Store.Get after a first-run template was
	// written, so the caller can tell the user where to fill it in.
	ErrCreated = errors.New("config file created; add calendars and restart")
)

// CalendarSource describes a single iCalendar subscription.
type CalendarSource struct {
	// ID is an internal identifier used as cache key and in event payloads.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label shown in the UI.
	Name string `yaml:"name" json:"name"`
	// URL is the ICS subscription endpoint. It is a secret and never leaves
	// the server.
	URL             string `yaml:"url" json:"url"`
	Colour          string `yaml:"colour" json:"colour"`
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	HideTimedEvents bool   `yaml:"hideTimedEvents" json:"hideTimedEvents"`
}

// DisplayConfig controls views and the time grid.
type DisplayConfig struct {
	DefaultView  model.View   `yaml:"defaultView" json:"defaultView"`
	EnabledViews []model.View `yaml:"enabledViews" json:"enabledViews"`
	// AgendaDays is how many days (starting today) the agenda panel lists.
	AgendaDays int `yaml:"agendaDays" json:"agendaDays"`
	// WeekStartsOn is 0 for Sunday, 1 for Monday.
	WeekStartsOn  int    `yaml:"weekStartsOn" json:"weekStartsOn"`
	TimeFormat    string `yaml:"timeFormat" json:"timeFormat"`
	GridStartHour int    `yaml:"gridStartHour" json:"gridStartHour"`
	GridEndHour   int    `yaml:"gridEndHour" json:"gridEndHour"`
}

// WeekStart returns WeekStartsOn as a time.Weekday.
func (d DisplayConfig) WeekStart() time.Weekday {
	return time.Weekday(d.WeekStartsOn)
}

// RefreshConfig holds polling and caching intervals.
type RefreshConfig struct {
	ClientPollIntervalMinutes int `yaml:"clientPollIntervalMinutes" json:"clientPollIntervalMinutes"`
	ServerCacheTTLMinutes     int `yaml:"serverCacheTTLMinutes" json:"serverCacheTTLMinutes"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// ServerConfig holds process-level settings that clients never see.
type ServerConfig struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`
	// OriginSecret, if set, must be echoed by clients in X-Origin-Secret.
	OriginSecret string `yaml:"originSecret"`
	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basicAuth,omitempty"`
	// WarmCron is a cron spec for background cache warm-up. Empty derives
	// "@every <serverCacheTTLMinutes>m"; "off" disables warm-up.
	WarmCron string `yaml:"warmCron"`
	// FetchTimeoutSeconds bounds each upstream calendar request.
	FetchTimeoutSeconds int `yaml:"fetchTimeoutSeconds"`
}

// Config is the top-level application configuration.
type Config struct {
	Calendars []CalendarSource `yaml:"calendars"`
	Display   DisplayConfig    `yaml:"display"`
	Refresh   RefreshConfig    `yaml:"refresh"`
	// Timezone is the IANA zone all events are displayed in.
	Timezone string       `yaml:"timezone"`
	Server   ServerConfig `yaml:"server"`
}

// ClientCalendar is the per-calendar view sent to clients; it omits URL.
type ClientCalendar struct {
	ID              string `yaml:"id" json:"id"`
	Name            string `yaml:"name" json:"name"`
	Colour          string `yaml:"colour" json:"colour"`
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	HideTimedEvents bool   `yaml:"hideTimedEvents" json:"hideTimedEvents"`
}

// ClientConfig is the sanitized configuration returned alongside events.
type ClientConfig struct {
	Display   DisplayConfig    `yaml:"display" json:"display"`
	Calendars []ClientCalendar `yaml:"calendars" json:"calendars"`
	Refresh   RefreshConfig    `yaml:"refresh" json:"refresh"`
	Timezone  string           `yaml:"timezone" json:"timezone"`
}

// DefaultConfig returns an in-memory default configuration. It has no
// calendars, so it does not validate on its own.
func DefaultConfig() *Config {
	return &Config{
		Calendars: []CalendarSource{},
		Display: DisplayConfig{
			DefaultView:   model.ViewWeek,
			EnabledViews:  append([]model.View(nil), model.AllViews...),
			AgendaDays:    2,
			WeekStartsOn:  1,
			TimeFormat:    "12h",
			GridStartHour: 6,
			GridEndHour:   22,
		},
		Refresh: RefreshConfig{
			ClientPollIntervalMinutes: 5,
			ServerCacheTTLMinutes:     15,
		},
		Timezone: "Europe/London",
		Server: ServerConfig{
			Listen:              "127.0.0.1:8080",
			FetchTimeoutSeconds: 15,
		},
	}
}

// Normalize fills in empty string and slice fields. Numeric fields get their
// defaults from DefaultConfig before decoding, so explicit zeros survive and
// are rejected by Validate where they are out of range.
func (c *Config) Normalize() {
	if c.Display.DefaultView == "" {
		c.Display.DefaultView = model.ViewWeek
	}
	if len(c.Display.EnabledViews) == 0 {
		c.Display.EnabledViews = append([]model.View(nil), model.AllViews...)
	}
	if c.Display.TimeFormat == "" {
		c.Display.TimeFormat = "12h"
	}
	if c.Timezone == "" {
		c.Timezone = "Europe/London"
	}
	if c.Server.Listen == "" {
		c.Server.Listen = "127.0.0.1:8080"
	}
	if c.Server.FetchTimeoutSeconds <= 0 {
		c.Server.FetchTimeoutSeconds = 15
	}
	if c.Calendars == nil {
		c.Calendars = []CalendarSource{}
	}
}

// Validate checks the configuration contract and reports every violation.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Calendars) == 0 {
		errs = append(errs, ErrNoCalendars)
	}
	seen := make(map[string]bool, len(c.Calendars))
	for i, cal := range c.Calendars {
		if cal.ID == "" {
			errs = append(errs, fmt.Errorf("calendars[%d]: id is required", i))
		} else if seen[cal.ID] {
			errs = append(errs, fmt.Errorf("calendars[%d]: duplicate id %q", i, cal.ID))
		}
		seen[cal.ID] = true
		if cal.Name == "" {
			errs = append(errs, fmt.Errorf("calendars[%d]: name is required", i))
		}
		if err := validateURL(cal.URL); err != nil {
			errs = append(errs, fmt.Errorf("calendars[%d]: url: %w", i, err))
		}
	}

	d := c.Display
	if !d.DefaultView.Valid() {
		errs = append(errs, fmt.Errorf("display.defaultView: unknown view %q", d.DefaultView))
	}
	if len(d.EnabledViews) == 0 {
		errs = append(errs, errors.New("display.enabledViews: at least one view is required"))
	}
	for _, v := range d.EnabledViews {
		if !v.Valid() {
			errs = append(errs, fmt.Errorf("display.enabledViews: unknown view %q", v))
		}
	}
	if d.AgendaDays < 1 || d.AgendaDays > 14 {
		errs = append(errs, fmt.Errorf("display.agendaDays: %d not in [1, 14]", d.AgendaDays))
	}
	if d.WeekStartsOn != 0 && d.WeekStartsOn != 1 {
		errs = append(errs, fmt.Errorf("display.weekStartsOn: %d must be 0 or 1", d.WeekStartsOn))
	}
	if d.TimeFormat != "12h" && d.TimeFormat != "24h" {
		errs = append(errs, fmt.Errorf("display.timeFormat: %q must be 12h or 24h", d.TimeFormat))
	}
	if d.GridStartHour < 0 || d.GridStartHour > 23 {
		errs = append(errs, fmt.Errorf("display.gridStartHour: %d not in [0, 23]", d.GridStartHour))
	}
	if d.GridEndHour < 1 || d.GridEndHour > 24 {
		errs = append(errs, fmt.Errorf("display.gridEndHour: %d not in [1, 24]", d.GridEndHour))
	}
	if d.GridStartHour >= d.GridEndHour {
		errs = append(errs, fmt.Errorf("display: gridStartHour %d must be before gridEndHour %d", d.GridStartHour, d.GridEndHour))
	}

	if c.Refresh.ClientPollIntervalMinutes < 1 {
		errs = append(errs, fmt.Errorf("refresh.clientPollIntervalMinutes: %d must be >= 1", c.Refresh.ClientPollIntervalMinutes))
	}
	if c.Refresh.ServerCacheTTLMinutes < 1 {
		errs = append(errs, fmt.Errorf("refresh.serverCacheTTLMinutes: %d must be >= 1", c.Refresh.ServerCacheTTLMinutes))
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}

	return errors.Join(errs...)
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q is not http or https", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is empty")
	}
	return nil
}

// Location resolves Timezone. Validate has already checked it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CacheTTL is how long a fetched calendar payload stays fresh.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Refresh.ServerCacheTTLMinutes) * time.Minute
}

// FetchTimeout bounds a single upstream request.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Server.FetchTimeoutSeconds) * time.Second
}

// WarmSchedule returns the cron spec for cache warm-up, or "" when disabled.
func (c *Config) WarmSchedule() string {
	switch c.Server.WarmCron {
	case "off":
		return ""
	case "":
		return fmt.Sprintf("@every %dm", c.Refresh.ServerCacheTTLMinutes)
	default:
		return c.Server.WarmCron
	}
}

// EnabledCalendars returns the calendars with Enabled set, in config order.
func (c *Config) EnabledCalendars() []CalendarSource {
	out := make([]CalendarSource, 0, len(c.Calendars))
	for _, cal := range c.Calendars {
		if cal.Enabled {
			out = append(out, cal)
		}
	}
	return out
}

// ClientConfig strips feed URLs and server settings.
func (c *Config) ClientConfig() ClientConfig {
	cals := make([]ClientCalendar, 0, len(c.Calendars))
	for _, cal := range c.Calendars {
		cals = append(cals, ClientCalendar{
			ID:              cal.ID,
			Name:            cal.Name,
			Colour:          cal.Colour,
			Enabled:         cal.Enabled,
			HideTimedEvents: cal.HideTimedEvents,
		})
	}
	return ClientConfig{
		Display:   c.Display,
		Calendars: cals,
		Refresh:   c.Refresh,
		Timezone:  c.Timezone,
	}
}

// ApplyEnv overrides file values from the environment.
//
//	BLAIRBOARD_LISTEN  server.listen
//	ORIGIN_SECRET      server.originSecret
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("BLAIRBOARD_LISTEN"); v != "" {
		c.Server.Listen = v
	}
	if v := getenv("ORIGIN_SECRET"); v != "" {
		c.Server.OriginSecret = v
	}
}

// Load loads configuration from the given YAML (or JSON) path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config together with ErrCreated
//   - If the file exists:
//   - decode on top of DefaultConfig so absent keys keep their defaults
//   - normalize
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, ErrCreated
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".blairboard-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
