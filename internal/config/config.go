package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"relcal/internal/dom"
	appLog "relcal/internal/log"
	"relcal/internal/schedule"
)

// ICSConfig describes a single ICS subscription source for the agenda.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the settings page.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// ChromeConfig controls the browser relcal drives.
type ChromeConfig struct {
	Headless bool `yaml:"headless" json:"headless"`
	// UserDataDir keeps the signed-in calendar session between runs.
	UserDataDir string `yaml:"user_data_dir" json:"user_data_dir"`
	ExecPath    string `yaml:"exec_path" json:"exec_path"`
	// TimeoutSec bounds the initial page load.
	TimeoutSec int `yaml:"timeout_sec" json:"timeout_sec"`
}

// Config is the top-level application configuration. The two user-facing
// toggles live in the separate settings file (see SettingsPath).
type Config struct {
	// Listen is the HTTP listen address of the settings page. Empty
	// disables it.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used for "now". Empty means the system zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// CalendarURL is opened by `relcal watch`.
	CalendarURL string `yaml:"calendar_url" json:"calendar_url"`

	// SettingsPath is the YAML file holding enableExtension and
	// showYearsForLongPeriods.
	SettingsPath string `yaml:"settings_path" json:"settings_path"`

	// DebounceMS is the quiet interval after the last change signal.
	DebounceMS int `yaml:"debounce_ms" json:"debounce_ms"`

	// MinPassIntervalMS is the minimum gap between coalesced passes.
	MinPassIntervalMS int `yaml:"min_pass_interval_ms" json:"min_pass_interval_ms"`

	// RefreshCron re-runs a pass on a schedule so labels age with time.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Anchor is "title" or "start"; see dom.Anchor.
	Anchor string `yaml:"anchor" json:"anchor"`

	Selectors dom.Selectors `yaml:"selectors" json:"selectors"`

	Chrome ChromeConfig `yaml:"chrome" json:"chrome"`

	// ICS sources and window for `relcal agenda`.
	ICS          []ICSConfig `yaml:"ics" json:"ics"`
	HorizonDays  int         `yaml:"horizon_days" json:"horizon_days"`
	BackfillDays int         `yaml:"backfill_days" json:"backfill_days"`
	ICSCacheDir  string      `yaml:"ics_cache_dir" json:"ics_cache_dir"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultPath is ~/.config/relcal/config.yaml, or a relative path when
// the home directory is unknown.
func DefaultPath() string {
	return filepath.Join(baseDir(), "config.yaml")
}

func baseDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "relcal"
	}
	return filepath.Join(dir, "relcal")
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:            "127.0.0.1:8719",
		Timezone:          "",
		CalendarURL:       "https://calendar.google.com/calendar/r",
		SettingsPath:      filepath.Join(baseDir(), "settings.yaml"),
		DebounceMS:        600,
		MinPassIntervalMS: 250,
		RefreshCron:       schedule.DefaultTickSpec,
		Anchor:            string(dom.AnchorTitle),
		Selectors:         dom.DefaultSelectors(),
		Chrome: ChromeConfig{
			Headless:    false,
			UserDataDir: filepath.Join(baseDir(), "chrome"),
			TimeoutSec:  120,
		},
		ICS:          []ICSConfig{},
		HorizonDays:  14,
		BackfillDays: 1,
		ICSCacheDir:  filepath.Join(baseDir(), "ics-cache"),
		LogLevel:     "info",
		BasicAuth:    nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.CalendarURL == "" {
		c.CalendarURL = def.CalendarURL
	}
	if c.SettingsPath == "" {
		c.SettingsPath = def.SettingsPath
	}
	if c.DebounceMS <= 0 {
		c.DebounceMS = def.DebounceMS
	}
	if c.MinPassIntervalMS < 0 {
		c.MinPassIntervalMS = 0
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if err := schedule.ValidateSpec(c.RefreshCron); err != nil {
		// Unknown value; fall back rather than refusing to start.
		appLog.Error("invalid refresh schedule; using default", err, "refresh", c.RefreshCron)
		c.RefreshCron = def.RefreshCron
	}
	c.Anchor = string(dom.ParseAnchor(c.Anchor))
	c.Selectors.Normalize()
	if c.Chrome.TimeoutSec <= 0 {
		c.Chrome.TimeoutSec = def.Chrome.TimeoutSec
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = def.HorizonDays
	}
	if c.BackfillDays < 0 {
		c.BackfillDays = 0
	}
	if c.ICSCacheDir == "" {
		c.ICSCacheDir = def.ICSCacheDir
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}

// Debounce is DebounceMS as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// MinPassInterval is MinPassIntervalMS as a duration.
func (c *Config) MinPassInterval() time.Duration {
	return time.Duration(c.MinPassIntervalMS) * time.Millisecond
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	return ResolveLocationOrLocal(c.Timezone)
}

// ResolveLocationOrLocal loads an IANA zone, logging and falling back to
// time.Local on failure.
func ResolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes the given configuration atomically (temp file + rename)
// with 0600 permissions, creating the parent directory if needed.
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

	tmp, err := os.CreateTemp(dir, ".relcal-config-*.tmp")
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
