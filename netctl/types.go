package netctl

import "time"

// RadioState is the state of the wireless radio as reported by the daemon.
// It is only ever mutated from daemon signals or a re-query after a
// successful enable/disable call, never inferred from a pending request.
type RadioState int

const (
	RadioUnknown RadioState = iota
	RadioOff
	// RadioDisabledByPolicy means the hardware switch or system policy has
	// the radio off; a plain enable call will not bring it back.
	RadioDisabledByPolicy
	RadioOn
)

func (s RadioState) String() string {
	switch s {
	case RadioOff:
		return "off"
	case RadioDisabledByPolicy:
		return "disabled-by-policy"
	case RadioOn:
		return "on"
	default:
		return "unknown"
	}
}

// SecurityType represents the security capability of an access point.
type SecurityType int

const (
	SecurityUnknown SecurityType = iota
	SecurityOpen
	SecurityPersonal
	SecurityEnterprise
)

func (s SecurityType) String() string {
	switch s {
	case SecurityOpen:
		return "open"
	case SecurityPersonal:
		return "personal"
	case SecurityEnterprise:
		return "enterprise"
	default:
		return "unknown"
	}
}

// AccessPoint is a single discoverable wireless network candidate.
//
// SSID is not globally unique; BSSID (the hardware address) is the stable
// identity used to disambiguate duplicates with the same name.
type AccessPoint struct {
	SSID      string
	BSSID     string
	Strength  uint8 // 0-100
	Frequency uint32 // MHz
	Security  SecurityType
	Known     bool // a saved profile exists for this network
	Active    bool // currently the active access point
}

// ScanSnapshot is an immutable view of the access points visible at Taken.
// Snapshots are replaced wholesale on each completed scan, never mutated in
// place, so a consumer holding one never sees a half-updated list.
type ScanSnapshot struct {
	AccessPoints []AccessPoint
	Taken        time.Time
	// Stale is set when the snapshot was served past its freshness window
	// and a background refresh could not replace it.
	Stale bool
}

// StaleBy reports whether the snapshot is older than the given threshold.
func (s ScanSnapshot) StaleBy(threshold time.Duration, now time.Time) bool {
	return s.Taken.IsZero() || now.Sub(s.Taken) > threshold
}

// ConnectionTarget is a user-chosen access point plus optional credential
// material. The secret crosses the daemon boundary exactly once and is wiped
// from the target immediately after the activation call returns.
type ConnectionTarget struct {
	SSID     string
	BSSID    string
	Secret   string
	Security SecurityType
	Hidden   bool
}

// Handle identifies an in-daemon active connection (a D-Bus object path for
// the NetworkManager implementation). Empty means no activation was issued.
type Handle string
