package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig(\"\") failed: %v", err)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("unexpected log defaults: %+v", cfg.Log)
	}
	if cfg.Backend != "" {
		t.Errorf("expected empty backend default, got %q", cfg.Backend)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "touchpanel.toml")
	body := `
backend = "mock"

[log]
level = "debug"

[timeouts]
activation = "90s"
scan_cooldown = "5s"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig(%q) failed: %v", path, err)
	}
	if cfg.Backend != "mock" {
		t.Errorf("backend = %q, want mock", cfg.Backend)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("log format should keep its default, got %q", cfg.Log.Format)
	}

	timing := cfg.Timeouts.netctl()
	if timing.ActivationTimeout != 90*time.Second {
		t.Errorf("activation timeout = %s, want 90s", timing.ActivationTimeout)
	}
	if timing.ScanCooldown != 5*time.Second {
		t.Errorf("scan cooldown = %s, want 5s", timing.ScanCooldown)
	}
	if timing.InteractiveWait != 0 {
		t.Errorf("unset timeout should stay zero for the defaults to apply, got %s", timing.InteractiveWait)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadConfigBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "touchpanel.toml")
	body := "[timeouts]\nactivation = \"ninety\"\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected a parse error for a bad duration")
	}
}
