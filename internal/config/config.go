package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Source kinds for the refresh pipeline.
const (
	SourcePattern = "pattern"
	SourceImage   = "image"
	SourceURL     = "url"
)

// SPIConfig selects the SPI port the controller is wired to.
type SPIConfig struct {
	// Bus is a periph spireg name ("" for the first port, e.g. /dev/spidev0.0).
	Bus string `yaml:"bus" json:"bus"`
	// Hz is the SPI clock. The ST7789 accepts up to ~62.5 MHz writes.
	Hz int64 `yaml:"hz" json:"hz"`
	// Mode is the SPI mode (0-3).
	Mode int `yaml:"mode" json:"mode"`
}

// PinsConfig names the GPIO lines as periph gpioreg names ("GPIO25").
// Empty RST or Backlight means the line is not wired.
type PinsConfig struct {
	DC        string `yaml:"dc" json:"dc"`
	RST       string `yaml:"rst" json:"rst"`
	Backlight string `yaml:"backlight" json:"backlight"`
}

// SourceConfig describes what the refresh pipeline puts on the panel.
type SourceConfig struct {
	// Kind is one of "pattern", "image" or "url".
	Kind string `yaml:"kind" json:"kind"`
	// Image is a PNG/JPEG/GIF path used when Kind is "image".
	Image string `yaml:"image" json:"image"`
	// URL is captured with headless Chromium when Kind is "url".
	URL string `yaml:"url" json:"url"`
	// WaitSelector, if set, must be visible before the capture is taken.
	WaitSelector string `yaml:"wait_selector" json:"wait_selector"`
	// TimeoutSec bounds a single capture.
	TimeoutSec int `yaml:"timeout_sec" json:"timeout_sec"`
}

// BatteryConfig enables the battery status bar.
type BatteryConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Bus is a periph i2creg name ("" for the default bus).
	Bus string `yaml:"bus" json:"bus"`
	// Addr is the 7-bit I2C address of the battery controller.
	Addr uint16 `yaml:"addr" json:"addr"`
	// Mock reports made-up values instead of touching I2C.
	Mock bool `yaml:"mock" json:"mock"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the control API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the control API. Empty disables it.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron is a cron-style schedule string (e.g. "*/5 * * * *")
	// for re-running the pipeline. Empty disables periodic refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	SPI     SPIConfig     `yaml:"spi" json:"spi"`
	Pins    PinsConfig    `yaml:"pins" json:"pins"`
	Source  SourceConfig  `yaml:"source" json:"source"`
	Battery BatteryConfig `yaml:"battery" json:"battery"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// Defaults for a Raspberry Pi wired like Adafruit's 1.3" TFT bonnet guide.
const (
	defaultListen     = "127.0.0.1:8080"
	defaultLogLevel   = "info"
	defaultRefresh    = "*/5 * * * *"
	defaultSPIHz      = 40_000_000
	defaultDC         = "GPIO25"
	defaultRST        = "GPIO27"
	defaultBacklight  = "GPIO22"
	defaultTimeoutSec = 30
	defaultBatteryAdr = 0x57
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		LogLevel:    defaultLogLevel,
		RefreshCron: defaultRefresh,
		SPI: SPIConfig{
			Hz: defaultSPIHz,
		},
		Pins: PinsConfig{
			DC:        defaultDC,
			RST:       defaultRST,
			Backlight: defaultBacklight,
		},
		Source: SourceConfig{
			Kind:       SourcePattern,
			TimeoutSec: defaultTimeoutSec,
		},
		Battery: BatteryConfig{
			Addr: defaultBatteryAdr,
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly. Listen and RefreshCron
// are left alone: empty means disabled.
func (c *Config) Normalize() {
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.SPI.Hz <= 0 {
		c.SPI.Hz = defaultSPIHz
	}
	if c.SPI.Mode < 0 || c.SPI.Mode > 3 {
		c.SPI.Mode = 0
	}
	if c.Pins.DC == "" {
		c.Pins.DC = defaultDC
	}
	switch c.Source.Kind {
	case SourcePattern, SourceImage, SourceURL:
		// ok
	default:
		// Unknown kind; fall back to the test pattern so the panel shows something.
		c.Source.Kind = SourcePattern
	}
	if c.Source.TimeoutSec <= 0 {
		c.Source.TimeoutSec = defaultTimeoutSec
	}
	if c.Battery.Addr == 0 {
		c.Battery.Addr = defaultBatteryAdr
	}
}

// Validate reports settings that cannot work at all.
func (c *Config) Validate() error {
	switch {
	case c.Source.Kind == SourceImage && c.Source.Image == "":
		return errors.New("config: source.image is required for kind \"image\"")
	case c.Source.Kind == SourceURL && c.Source.URL == "":
		return errors.New("config: source.url is required for kind \"url\"")
	case c.Battery.Addr > 0x7F:
		return fmt.Errorf("config: battery.addr %#x is not a 7-bit address", c.Battery.Addr)
	}
	return nil
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
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically
// (temp file + rename in the same directory) with 0600 permissions.
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

	tmp, err := os.CreateTemp(dir, ".tftpanel-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
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

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
