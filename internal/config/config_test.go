package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"relcal/internal/dom"
	"relcal/internal/schedule"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DebounceMS != 600 || cfg.Anchor != string(dom.AnchorTitle) {
		t.Errorf("unexpected defaults: %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}
}

func TestLoadNormalizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
timezone: Asia/Seoul
debounce_ms: -5
min_pass_interval_ms: -1
refresh: "every now and then"
anchor: START
selectors:
  event: "[data-id]"
horizon_days: 0
ics:
  - id: home
    url: https://example.com/home.ics
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Debounce() != 600*time.Millisecond {
		t.Errorf("debounce = %v", cfg.Debounce())
	}
	if cfg.MinPassInterval() != 0 {
		t.Errorf("min interval = %v", cfg.MinPassInterval())
	}
	if cfg.RefreshCron != schedule.DefaultTickSpec {
		t.Errorf("refresh = %q, want default", cfg.RefreshCron)
	}
	if cfg.Anchor != string(dom.AnchorStart) {
		t.Errorf("anchor = %q", cfg.Anchor)
	}
	if cfg.Selectors.Event != "[data-id]" {
		t.Errorf("event selector = %q", cfg.Selectors.Event)
	}
	if cfg.Selectors.LabelAttr == "" || len(cfg.Selectors.Title) == 0 {
		t.Errorf("selectors not filled from defaults: %+v", cfg.Selectors)
	}
	if cfg.HorizonDays != 14 {
		t.Errorf("horizon = %d", cfg.HorizonDays)
	}
	if len(cfg.ICS) != 1 || cfg.ICS[0].ID != "home" {
		t.Errorf("ics = %+v", cfg.ICS)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Listen = ":9999"
	cfg.BasicAuth = &BasicAuthConfig{Username: "u", Password: "p"}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Listen != ":9999" || got.BasicAuth == nil || got.BasicAuth.Username != "u" {
		t.Errorf("round trip lost fields: %+v", got)
	}
}

func TestResolveLocationOrLocal(t *testing.T) {
	if ResolveLocationOrLocal("") != time.Local {
		t.Error("empty name should be time.Local")
	}
	if ResolveLocationOrLocal("Not/AZone") != time.Local {
		t.Error("bad name should fall back to time.Local")
	}
	if loc := ResolveLocationOrLocal("UTC"); loc.String() != "UTC" {
		t.Errorf("UTC resolved to %v", loc)
	}
}

func TestSaveRejectsEmpty(t *testing.T) {
	if err := Save("", DefaultConfig()); err == nil {
		t.Error("expected error for empty path")
	}
	if err := Save(filepath.Join(t.TempDir(), "c.yaml"), nil); err == nil {
		t.Error("expected error for nil config")
	}
}
