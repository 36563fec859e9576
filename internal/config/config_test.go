package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadCreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Errorf("first-run config = %+v, want defaults", cfg)
	}

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if perm := fi.Mode().Perm(); perm != 0o600 {
		t.Errorf("config perms = %o, want 600", perm)
	}
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
spi:
  bus: SPI1.0
pins:
  rst: ""
source:
  kind: slideshow
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SPI.Bus != "SPI1.0" || cfg.SPI.Hz != defaultSPIHz {
		t.Errorf("spi = %+v", cfg.SPI)
	}
	if cfg.Pins.DC != defaultDC || cfg.Pins.RST != "" {
		t.Errorf("pins = %+v, want default DC and no RST", cfg.Pins)
	}
	if cfg.Source.Kind != SourcePattern || cfg.Source.TimeoutSec != defaultTimeoutSec {
		t.Errorf("source = %+v", cfg.Source)
	}
	if cfg.Listen != "" || cfg.RefreshCron != "" {
		t.Errorf("listen/refresh should stay disabled: %q %q", cfg.Listen, cfg.RefreshCron)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("spi: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load should fail on invalid YAML")
	}
	if _, err := Load(""); err == nil {
		t.Error("Load should fail on an empty path")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Source = SourceConfig{Kind: SourceURL, URL: "http://127.0.0.1:3000/", WaitSelector: "#ready", TimeoutSec: 10}
	cfg.BasicAuth = &BasicAuthConfig{Username: "admin", Password: "secret"}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(got, cfg) {
		t.Errorf("round trip = %+v, want %+v", got, cfg)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"image without path", func(c *Config) { c.Source.Kind = SourceImage }, true},
		{"image with path", func(c *Config) { c.Source.Kind, c.Source.Image = SourceImage, "/tmp/a.png" }, false},
		{"url without url", func(c *Config) { c.Source.Kind = SourceURL }, true},
		{"10-bit battery address", func(c *Config) { c.Battery.Addr = 0x200 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveRejectsNil(t *testing.T) {
	if err := Save(filepath.Join(t.TempDir(), "c.yaml"), nil); err == nil {
		t.Error("Save(nil) should fail")
	}
}
