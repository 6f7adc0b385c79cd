package main

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/touchpanel/touchpanel/netctl"
)

// duration wraps time.Duration so toml can parse "30s" style values.
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

// Timeouts overrides the coordinator's timing constants. Zero values keep
// the defaults.
type Timeouts struct {
	InteractiveAuth duration `toml:"interactive_auth"`
	Activation      duration `toml:"activation"`
	ScanCooldown    duration `toml:"scan_cooldown"`
	SnapshotStale   duration `toml:"snapshot_stale"`
}

func (t Timeouts) netctl() netctl.Config {
	return netctl.Config{
		InteractiveWait:   time.Duration(t.InteractiveAuth),
		ActivationTimeout: time.Duration(t.Activation),
		ScanCooldown:      time.Duration(t.ScanCooldown),
		SnapshotStale:     time.Duration(t.SnapshotStale),
	}
}

// Config is the optional touchpanel.toml file.
type Config struct {
	Backend string `toml:"backend"`
	Log     struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
	Timeouts Timeouts `toml:"timeouts"`
}

// LoadConfig reads the config file at path over the defaults. An empty path
// returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}
