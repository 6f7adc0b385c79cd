//go:build linux

// Package networkmanager implements the netctl.Daemon contract over
// NetworkManager's D-Bus API.
package networkmanager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gonetworkmanager "github.com/Wifx/gonetworkmanager/v3"
	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"github.com/touchpanel/touchpanel/netctl"
)

const (
	nmBusName    = "org.freedesktop.NetworkManager"
	nmObjectPath = "/org/freedesktop/NetworkManager"

	// NM_802_11_AP_SEC_KEY_MGMT_802_1X from NetworkManager's
	// nm-dbus-interface.h; gonetworkmanager does not name this bit.
	secKeyMgmt8021X = 0x200
)

// Daemon talks to NetworkManager. It holds no retry or timeout policy; every
// method is a single daemon round trip.
type Daemon struct {
	nm       gonetworkmanager.NetworkManager
	settings gonetworkmanager.Settings
	bus      *dbus.Conn
	logger   *slog.Logger

	events chan netctl.Event
	done   chan struct{}

	mu          sync.Mutex
	active      map[netctl.Handle]gonetworkmanager.ActiveConnection
	nextHandle  int
	subscribers map[uint64]chan<- netctl.Event
	nextSub     uint64
}

// New connects to the system bus and starts the signal pump.
func New(logger *slog.Logger) (*Daemon, error) {
	nm, err := gonetworkmanager.NewNetworkManager()
	if err != nil {
		return nil, fmt.Errorf("create network manager client: %w", netctl.ErrUnavailable)
	}
	settings, err := gonetworkmanager.NewSettings()
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", netctl.ErrUnavailable)
	}
	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", netctl.ErrUnavailable)
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Daemon{
		nm:          nm,
		settings:    settings,
		bus:         bus,
		logger:      logger,
		events:      make(chan netctl.Event, 64),
		done:        make(chan struct{}),
		active:      make(map[netctl.Handle]gonetworkmanager.ActiveConnection),
		subscribers: make(map[uint64]chan<- netctl.Event),
	}
	if err := d.watchSignals(); err != nil {
		return nil, err
	}
	go d.pump()
	return d, nil
}

// watchSignals subscribes to NetworkManager property changes on the system
// bus so radio and access point changes reach us without polling.
func (d *Daemon) watchSignals() error {
	err := d.bus.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
		dbus.WithMatchPathNamespace(dbus.ObjectPath(nmObjectPath)),
	)
	if err != nil {
		return fmt.Errorf("add signal match: %w", netctl.ErrUnavailable)
	}

	signals := make(chan *dbus.Signal, 64)
	d.bus.Signal(signals)
	go func() {
		for {
			select {
			case <-d.done:
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				d.handleSignal(sig)
			}
		}
	}()
	return nil
}

func (d *Daemon) handleSignal(sig *dbus.Signal) {
	if sig.Name != "org.freedesktop.DBus.Properties.PropertiesChanged" || len(sig.Body) < 2 {
		return
	}
	iface, ok := sig.Body[0].(string)
	if !ok {
		return
	}
	props, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	switch iface {
	case "org.freedesktop.NetworkManager":
		_, wireless := props["WirelessEnabled"]
		_, hardware := props["WirelessHardwareEnabled"]
		if wireless || hardware {
			state, err := d.RadioState(context.Background())
			if err != nil {
				d.logger.Warn("re-query radio state", "err", err)
				return
			}
			d.emit(netctl.RadioStateEvent{State: state})
		}
	case "org.freedesktop.NetworkManager.Device.Wireless":
		if _, ok := props["AccessPoints"]; ok {
			d.emit(netctl.AccessPointsChangedEvent{})
		} else if _, ok := props["LastScan"]; ok {
			d.emit(netctl.AccessPointsChangedEvent{})
		}
	}
}

// pump delivers events to subscribers in emission order from a single
// goroutine.
func (d *Daemon) pump() {
	for {
		select {
		case <-d.done:
			return
		case ev := <-d.events:
			d.mu.Lock()
			subs := make([]chan<- netctl.Event, 0, len(d.subscribers))
			for _, ch := range d.subscribers {
				subs = append(subs, ch)
			}
			d.mu.Unlock()
			for _, ch := range subs {
				ch <- ev
			}
		}
	}
}

func (d *Daemon) emit(ev netctl.Event) {
	select {
	case d.events <- ev:
	case <-d.done:
	}
}

func (d *Daemon) Subscribe(ch chan<- netctl.Event) (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextSub
	d.nextSub++
	d.subscribers[id] = ch
	return func() {
		d.mu.Lock()
		delete(d.subscribers, id)
		d.mu.Unlock()
	}, nil
}

func (d *Daemon) Close() error {
	close(d.done)
	return nil
}

func (d *Daemon) wirelessDevice() (gonetworkmanager.DeviceWireless, error) {
	devices, err := d.nm.GetDevices()
	if err != nil {
		return nil, fmt.Errorf("get devices: %w", netctl.ErrUnavailable)
	}
	for _, device := range devices {
		if dev, ok := device.(gonetworkmanager.DeviceWireless); ok {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("no wireless device: %w", netctl.ErrNotFound)
}

func (d *Daemon) RequestScan(ctx context.Context) error {
	device, err := d.wirelessDevice()
	if err != nil {
		return err
	}
	if err := device.RequestScan(); err != nil {
		return fmt.Errorf("request scan: %v: %w", err, netctl.ErrDaemonFailure)
	}
	return nil
}

func (d *Daemon) ListAccessPoints(ctx context.Context) (netctl.ScanSnapshot, error) {
	device, err := d.wirelessDevice()
	if err != nil {
		return netctl.ScanSnapshot{}, err
	}

	aps, err := device.GetAccessPoints()
	if err != nil {
		return netctl.ScanSnapshot{}, fmt.Errorf("get access points: %v: %w", err, netctl.ErrDaemonFailure)
	}

	knownSSIDs, err := d.knownSSIDs()
	if err != nil {
		return netctl.ScanSnapshot{}, err
	}
	activeBSSID := d.activeBSSID()

	snapshot := netctl.ScanSnapshot{Taken: time.Now()}
	for _, ap := range aps {
		point, err := readAccessPoint(ap)
		if err != nil {
			// A vanished or malformed AP must not poison the whole
			// snapshot.
			d.logger.Debug("skipping access point", "err", err)
			continue
		}
		point.Known = knownSSIDs[point.SSID]
		point.Active = activeBSSID != "" && point.BSSID == activeBSSID
		snapshot.AccessPoints = append(snapshot.AccessPoints, point)
	}
	return snapshot, nil
}

// readAccessPoint validates one daemon access point into the fixed field set
// the rest of the system understands. Unexpected payloads fail here rather
// than propagating undefined values upward.
func readAccessPoint(ap gonetworkmanager.AccessPoint) (netctl.AccessPoint, error) {
	ssid, err := ap.GetPropertySSID()
	if err != nil || ssid == "" {
		return netctl.AccessPoint{}, fmt.Errorf("access point ssid: %w", netctl.ErrDaemonFailure)
	}
	bssid, err := ap.GetPropertyHWAddress()
	if err != nil || bssid == "" {
		return netctl.AccessPoint{}, fmt.Errorf("access point %q bssid: %w", ssid, netctl.ErrDaemonFailure)
	}
	strength, err := ap.GetPropertyStrength()
	if err != nil {
		return netctl.AccessPoint{}, fmt.Errorf("access point %q strength: %w", ssid, netctl.ErrDaemonFailure)
	}
	frequency, _ := ap.GetPropertyFrequency()

	flags, _ := ap.GetPropertyFlags()
	wpaFlags, _ := ap.GetPropertyWPAFlags()
	rsnFlags, _ := ap.GetPropertyRSNFlags()

	var security netctl.SecurityType
	switch {
	case (uint32(wpaFlags)|uint32(rsnFlags))&secKeyMgmt8021X != 0:
		security = netctl.SecurityEnterprise
	case wpaFlags > 0 || rsnFlags > 0:
		security = netctl.SecurityPersonal
	case uint32(flags)&uint32(gonetworkmanager.Nm80211APFlagsPrivacy) != 0:
		security = netctl.SecurityPersonal
	default:
		security = netctl.SecurityOpen
	}

	return netctl.AccessPoint{
		SSID:      ssid,
		BSSID:     bssid,
		Strength:  strength,
		Frequency: uint32(frequency),
		Security:  security,
	}, nil
}

func (d *Daemon) knownSSIDs() (map[string]bool, error) {
	connections, err := d.settings.ListConnections()
	if err != nil {
		return nil, fmt.Errorf("list known connections: %v: %w", err, netctl.ErrDaemonFailure)
	}
	known := make(map[string]bool)
	for _, conn := range connections {
		if ssid := connectionSSID(conn); ssid != "" {
			known[ssid] = true
		}
	}
	return known, nil
}

func connectionSSID(conn gonetworkmanager.Connection) string {
	s, err := conn.GetSettings()
	if err != nil {
		return ""
	}
	wireless, ok := s["802-11-wireless"]
	if !ok {
		return ""
	}
	ssidBytes, ok := wireless["ssid"].([]byte)
	if !ok {
		return ""
	}
	return string(ssidBytes)
}

func (d *Daemon) activeBSSID() string {
	device, err := d.wirelessDevice()
	if err != nil {
		return ""
	}
	ap, err := device.GetPropertyActiveAccessPoint()
	if err != nil || ap == nil {
		return ""
	}
	bssid, err := ap.GetPropertyHWAddress()
	if err != nil {
		return ""
	}
	return bssid
}

// findAccessPoint resolves the daemon-side access point for a target,
// preferring the BSSID and falling back to the strongest AP with a matching
// SSID.
func (d *Daemon) findAccessPoint(device gonetworkmanager.DeviceWireless, target netctl.ConnectionTarget) (gonetworkmanager.AccessPoint, error) {
	aps, err := device.GetAccessPoints()
	if err != nil {
		return nil, fmt.Errorf("get access points: %v: %w", err, netctl.ErrDaemonFailure)
	}

	var best gonetworkmanager.AccessPoint
	var bestStrength uint8
	for _, ap := range aps {
		ssid, err := ap.GetPropertySSID()
		if err != nil || ssid != target.SSID {
			continue
		}
		if target.BSSID != "" {
			bssid, err := ap.GetPropertyHWAddress()
			if err == nil && bssid == target.BSSID {
				return ap, nil
			}
			continue
		}
		strength, _ := ap.GetPropertyStrength()
		if best == nil || strength > bestStrength {
			best = ap
			bestStrength = strength
		}
	}
	if best == nil {
		return nil, fmt.Errorf("access point for %q: %w", target.SSID, netctl.ErrNotFound)
	}
	return best, nil
}

func (d *Daemon) findProfile(ssid string) gonetworkmanager.Connection {
	connections, err := d.settings.ListConnections()
	if err != nil {
		return nil
	}
	for _, conn := range connections {
		if connectionSSID(conn) == ssid {
			return conn
		}
	}
	return nil
}

// ActivateConnection reuses a saved profile for the target when one exists,
// otherwise creates one from the target's settings. The returned handle
// tracks the daemon's activation progress via DeviceStateEvent.
func (d *Daemon) ActivateConnection(ctx context.Context, target netctl.ConnectionTarget) (netctl.Handle, error) {
	device, err := d.wirelessDevice()
	if err != nil {
		return "", err
	}
	ap, err := d.findAccessPoint(device, target)
	if err != nil {
		return "", err
	}

	var active gonetworkmanager.ActiveConnection
	if profile := d.findProfile(target.SSID); profile != nil && target.Secret == "" {
		active, err = d.nm.ActivateWirelessConnection(profile, device, ap)
	} else {
		active, err = d.nm.AddAndActivateWirelessConnection(buildSettings(device, target), device, ap)
	}
	if err != nil {
		return "", classifyCallError("activate connection", err)
	}

	d.mu.Lock()
	d.nextHandle++
	handle := netctl.Handle(fmt.Sprintf("active-connection-%d", d.nextHandle))
	d.active[handle] = active
	d.mu.Unlock()

	go d.watchActivation(handle, active)
	return handle, nil
}

// buildSettings assembles a fresh NetworkManager connection profile for the
// target. Secrets live in this map only for the duration of the call.
func buildSettings(device gonetworkmanager.DeviceWireless, target netctl.ConnectionTarget) map[string]map[string]interface{} {
	deviceInterface, _ := device.GetPropertyInterface()

	settings := map[string]map[string]interface{}{
		"connection": {
			"id":             target.SSID,
			"uuid":           uuid.New().String(),
			"type":           "802-11-wireless",
			"interface-name": deviceInterface,
			"autoconnect":    true,
		},
		"802-11-wireless": {
			"mode": "infrastructure",
			"ssid": []byte(target.SSID),
		},
		"ipv4": {"method": "auto"},
		"ipv6": {"method": "auto"},
	}
	if target.Hidden {
		settings["802-11-wireless"]["hidden"] = true
	}
	if target.Secret != "" {
		settings["802-11-wireless"]["security"] = "802-11-wireless-security"
		settings["802-11-wireless-security"] = map[string]interface{}{
			"key-mgmt": "wpa-psk",
			"psk":      target.Secret,
		}
	}
	return settings
}

// watchActivation translates the active connection's state changes into
// ordered daemon events. It keeps watching past Activated so a later
// deactivation (link loss, replacement by a newer connection) is reported
// and the handle's mapping released.
func (d *Daemon) watchActivation(handle netctl.Handle, active gonetworkmanager.ActiveConnection) {
	changes := make(chan gonetworkmanager.StateChange, 8)
	exit := make(chan struct{})
	defer close(exit)

	if err := active.SubscribeState(changes, exit); err != nil {
		d.logger.Warn("subscribe activation state", "handle", handle, "err", err)
		d.emit(netctl.DeviceStateEvent{Handle: handle, State: netctl.ActivationUnknown})
		return
	}

	// The connection may already be past the first transitions.
	if state, err := active.GetPropertyState(); err == nil {
		if ev, ok := translateActivation(handle, state); ok {
			d.emit(ev)
			if ev.State == netctl.ActivationDeactivated {
				d.release(handle)
				return
			}
		}
	}

	for {
		select {
		case <-d.done:
			return
		case change := <-changes:
			ev, ok := translateActivation(handle, change.State)
			if !ok {
				continue
			}
			d.emit(ev)
			if ev.State == netctl.ActivationDeactivated {
				d.release(handle)
				return
			}
		}
	}
}

// release drops a handle's active connection mapping once the daemon reports
// it gone.
func (d *Daemon) release(handle netctl.Handle) {
	d.mu.Lock()
	delete(d.active, handle)
	d.mu.Unlock()
}

func translateActivation(handle netctl.Handle, state gonetworkmanager.NmActiveConnectionState) (netctl.DeviceStateEvent, bool) {
	ev := netctl.DeviceStateEvent{Handle: handle}
	switch state {
	case gonetworkmanager.NmActiveConnectionStateActivating:
		ev.State = netctl.ActivationActivating
	case gonetworkmanager.NmActiveConnectionStateActivated:
		ev.State = netctl.ActivationActivated
	case gonetworkmanager.NmActiveConnectionStateDeactivating, gonetworkmanager.NmActiveConnectionStateDeactivated:
		ev.State = netctl.ActivationDeactivated
	default:
		return ev, false
	}
	ev.Reason = ev.State.String()
	return ev, true
}

func (d *Daemon) DeactivateConnection(ctx context.Context, handle netctl.Handle) error {
	d.mu.Lock()
	active, ok := d.active[handle]
	delete(d.active, handle)
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("handle %s: %w", handle, netctl.ErrNotFound)
	}
	if err := d.nm.DeactivateConnection(active); err != nil {
		return classifyCallError("deactivate connection", err)
	}
	return nil
}

func (d *Daemon) ForgetNetwork(ctx context.Context, ssid string) error {
	profile := d.findProfile(ssid)
	if profile == nil {
		return fmt.Errorf("no saved profile for %q: %w", ssid, netctl.ErrNotFound)
	}
	if err := profile.Delete(); err != nil {
		return classifyCallError("delete profile", err)
	}
	return nil
}

func (d *Daemon) SetRadioEnabled(ctx context.Context, enabled bool) error {
	if err := d.nm.SetPropertyWirelessEnabled(enabled); err != nil {
		return classifyCallError("set wireless enabled", err)
	}
	return nil
}

func (d *Daemon) RadioState(ctx context.Context) (netctl.RadioState, error) {
	enabled, err := d.nm.GetPropertyWirelessEnabled()
	if err != nil {
		return netctl.RadioUnknown, fmt.Errorf("wireless enabled: %w", netctl.ErrUnavailable)
	}
	if enabled {
		return netctl.RadioOn, nil
	}
	hardware, err := d.nm.GetPropertyWirelessHardwareEnabled()
	if err != nil {
		return netctl.RadioOff, nil
	}
	if !hardware {
		return netctl.RadioDisabledByPolicy, nil
	}
	return netctl.RadioOff, nil
}

// classifyCallError maps a D-Bus call failure onto the error taxonomy,
// keeping the daemon-provided detail.
func classifyCallError(op string, err error) error {
	if dbusErr, ok := err.(dbus.Error); ok {
		if dbusErr.Name == "org.freedesktop.NetworkManager.PermissionDenied" {
			return fmt.Errorf("%s: %w", op, netctl.ErrPolicyDenied)
		}
	}
	return fmt.Errorf("%s: %v: %w", op, err, netctl.ErrDaemonFailure)
}
