package netctl

import "time"

// Timeout and pacing defaults. NetworkManager documents no bounds for these,
// so they are explicit, overridable constants rather than guesses buried in
// call sites.
const (
	// DefaultInteractiveWait bounds how long an interactive polkit prompt
	// may stay pending before the call fails.
	DefaultInteractiveWait = 30 * time.Second
	// DefaultActivationTimeout bounds the Activating phase of a connection
	// attempt. Longer than a bare association because NetworkManager's
	// activation includes DHCP.
	DefaultActivationTimeout = 45 * time.Second
	// DefaultScanCooldown is the minimum interval between daemon scan
	// requests. Scanning is hardware-expensive and rate-limited by the
	// daemon itself.
	DefaultScanCooldown = 10 * time.Second
	// DefaultSnapshotStale is how old a snapshot may get before
	// ListNetworks triggers a background refresh.
	DefaultSnapshotStale = 30 * time.Second
	// DefaultScanSettle is how long to wait after a scan request before
	// reading results back, since the daemon completes scans
	// asynchronously.
	DefaultScanSettle = 1500 * time.Millisecond
)

// Config carries the coordinator's timing knobs. The zero value of any field
// falls back to the matching default.
type Config struct {
	InteractiveWait   time.Duration
	ActivationTimeout time.Duration
	ScanCooldown      time.Duration
	SnapshotStale     time.Duration
	ScanSettle        time.Duration
}

func (c Config) withDefaults() Config {
	if c.InteractiveWait <= 0 {
		c.InteractiveWait = DefaultInteractiveWait
	}
	if c.ActivationTimeout <= 0 {
		c.ActivationTimeout = DefaultActivationTimeout
	}
	if c.ScanCooldown <= 0 {
		c.ScanCooldown = DefaultScanCooldown
	}
	if c.SnapshotStale <= 0 {
		c.SnapshotStale = DefaultSnapshotStale
	}
	if c.ScanSettle <= 0 {
		c.ScanSettle = DefaultScanSettle
	}
	return c
}
