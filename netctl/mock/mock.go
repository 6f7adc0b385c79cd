// Package mock provides fake implementations of the netctl.Daemon and
// netctl.Authorizer contracts, for tests and for running the CLI without a
// real NetworkManager.
package mock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/touchpanel/touchpanel/netctl"
)

// DefaultActionSleep is a delay before every daemon action, to better
// emulate a real-world daemon. Set ActionSleep to 0 during testing.
var DefaultActionSleep = 200 * time.Millisecond

// Daemon is a scripted in-memory implementation of netctl.Daemon.
//
// Error fields, when set, are returned by the matching call. ActivateScript
// controls what activation states are emitted after ActivateConnection; by
// default a handle activates successfully after ActivateDelay.
type Daemon struct {
	ScanError       error
	ListError       error
	ActivateError   error
	DeactivateError error
	ForgetError     error
	SetRadioError   error

	// ActivateScript, when non-nil, replaces the default emission of
	// Activating followed by Activated for a new handle.
	ActivateScript []netctl.ActivationState
	ActivateDelay  time.Duration
	ActionSleep    time.Duration

	scanCount       atomic.Int32
	activateCount   atomic.Int32
	deactivateCount atomic.Int32

	mu           sync.Mutex
	radio        netctl.RadioState
	accessPoints []netctl.AccessPoint
	known        map[string]bool
	nextHandle   int
	lastHandle   netctl.Handle
	lastTarget   netctl.ConnectionTarget
	subscribers  map[uint64]chan<- netctl.Event
	nextSub      uint64
	closed       bool
}

// New creates a mock daemon with the radio on and a handful of networks
// visible.
func New() *Daemon {
	return &Daemon{
		ActionSleep:   DefaultActionSleep,
		ActivateDelay: 50 * time.Millisecond,
		radio:         netctl.RadioOn,
		accessPoints: []netctl.AccessPoint{
			{SSID: "Home", BSSID: "00:11:22:33:44:55", Strength: 80, Frequency: 5180, Security: netctl.SecurityPersonal, Known: true},
			{SSID: "Home", BSSID: "00:11:22:33:44:66", Strength: 55, Frequency: 2412, Security: netctl.SecurityPersonal, Known: true},
			{SSID: "Cafe", BSSID: "AA:BB:CC:DD:EE:FF", Strength: 40, Frequency: 2437, Security: netctl.SecurityOpen},
			{SSID: "Office", BSSID: "11:22:33:44:55:66", Strength: 67, Frequency: 5500, Security: netctl.SecurityEnterprise},
		},
		known:       map[string]bool{"Home": true},
		subscribers: make(map[uint64]chan<- netctl.Event),
	}
}

// ScanCount reports how many scan requests reached the daemon.
func (d *Daemon) ScanCount() int { return int(d.scanCount.Load()) }

// ActivateCount reports how many activation calls reached the daemon.
func (d *Daemon) ActivateCount() int { return int(d.activateCount.Load()) }

// DeactivateCount reports how many deactivation calls reached the daemon.
func (d *Daemon) DeactivateCount() int { return int(d.deactivateCount.Load()) }

// LastHandle returns the handle of the most recent activation.
func (d *Daemon) LastHandle() netctl.Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastHandle
}

// LastTarget returns the target of the most recent activation.
func (d *Daemon) LastTarget() netctl.ConnectionTarget {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastTarget
}

// SetAccessPoints replaces the visible access point set.
func (d *Daemon) SetAccessPoints(aps []netctl.AccessPoint) {
	d.mu.Lock()
	d.accessPoints = append([]netctl.AccessPoint(nil), aps...)
	d.mu.Unlock()
	d.Emit(netctl.AccessPointsChangedEvent{})
}

// SetRadio changes the radio state and emits the matching event, the way a
// hardware switch would.
func (d *Daemon) SetRadio(state netctl.RadioState) {
	d.mu.Lock()
	d.radio = state
	d.mu.Unlock()
	d.Emit(netctl.RadioStateEvent{State: state})
}

// Emit delivers an event to every subscriber in order.
func (d *Daemon) Emit(ev netctl.Event) {
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

// EmitDeviceState reports activation progress for a handle.
func (d *Daemon) EmitDeviceState(handle netctl.Handle, state netctl.ActivationState) {
	d.Emit(netctl.DeviceStateEvent{Handle: handle, State: state})
}

func (d *Daemon) sleep(ctx context.Context) error {
	if d.ActionSleep <= 0 {
		return nil
	}
	select {
	case <-time.After(d.ActionSleep):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Daemon) RequestScan(ctx context.Context) error {
	if err := d.sleep(ctx); err != nil {
		return err
	}
	if d.ScanError != nil {
		return d.ScanError
	}
	d.scanCount.Add(1)
	return nil
}

func (d *Daemon) ListAccessPoints(ctx context.Context) (netctl.ScanSnapshot, error) {
	if err := d.sleep(ctx); err != nil {
		return netctl.ScanSnapshot{}, err
	}
	if d.ListError != nil {
		return netctl.ScanSnapshot{}, d.ListError
	}
	d.mu.Lock()
	aps := append([]netctl.AccessPoint(nil), d.accessPoints...)
	d.mu.Unlock()
	return netctl.ScanSnapshot{AccessPoints: aps, Taken: time.Now()}, nil
}

func (d *Daemon) ActivateConnection(ctx context.Context, target netctl.ConnectionTarget) (netctl.Handle, error) {
	if err := d.sleep(ctx); err != nil {
		return "", err
	}
	if d.ActivateError != nil {
		return "", d.ActivateError
	}
	d.activateCount.Add(1)

	d.mu.Lock()
	d.nextHandle++
	handle := netctl.Handle(fmt.Sprintf("/mock/ActiveConnection/%d", d.nextHandle))
	d.lastHandle = handle
	d.lastTarget = target
	d.known[target.SSID] = true
	script := d.ActivateScript
	delay := d.ActivateDelay
	d.mu.Unlock()

	go func() {
		if script == nil {
			script = []netctl.ActivationState{netctl.ActivationActivating, netctl.ActivationActivated}
		}
		for _, state := range script {
			time.Sleep(delay)
			d.EmitDeviceState(handle, state)
		}
	}()

	return handle, nil
}

func (d *Daemon) DeactivateConnection(ctx context.Context, handle netctl.Handle) error {
	if err := d.sleep(ctx); err != nil {
		return err
	}
	if d.DeactivateError != nil {
		return d.DeactivateError
	}
	d.deactivateCount.Add(1)
	d.EmitDeviceState(handle, netctl.ActivationDeactivated)
	return nil
}

func (d *Daemon) ForgetNetwork(ctx context.Context, ssid string) error {
	if err := d.sleep(ctx); err != nil {
		return err
	}
	if d.ForgetError != nil {
		return d.ForgetError
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.known[ssid] {
		return fmt.Errorf("no saved profile for %s: %w", ssid, netctl.ErrNotFound)
	}
	delete(d.known, ssid)
	return nil
}

func (d *Daemon) SetRadioEnabled(ctx context.Context, enabled bool) error {
	if err := d.sleep(ctx); err != nil {
		return err
	}
	if d.SetRadioError != nil {
		return d.SetRadioError
	}
	state := netctl.RadioOff
	if enabled {
		state = netctl.RadioOn
	}
	d.SetRadio(state)
	return nil
}

func (d *Daemon) RadioState(ctx context.Context) (netctl.RadioState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.radio, nil
}

func (d *Daemon) Subscribe(ch chan<- netctl.Event) (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, netctl.ErrUnavailable
	}
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
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.subscribers = make(map[uint64]chan<- netctl.Event)
	return nil
}

// Authorizer is a scripted privilege broker. Decisions maps action ids to
// the first (non-interactive) answer; InteractiveResult is what an
// interactive check resolves to after InteractiveDelay.
type Authorizer struct {
	mu                sync.Mutex
	Decisions         map[string]netctl.Decision
	InteractiveResult netctl.Decision
	InteractiveDelay  time.Duration
	CheckError        error

	checks []string
}

// NewAuthorizer creates an authorizer that allows everything.
func NewAuthorizer() *Authorizer {
	return &Authorizer{
		Decisions:         make(map[string]netctl.Decision),
		InteractiveResult: netctl.DecisionAllowed,
	}
}

// Checks returns the action ids checked so far, in order.
func (a *Authorizer) Checks() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.checks...)
}

func (a *Authorizer) Check(ctx context.Context, actionID string, interactive bool) (netctl.Decision, error) {
	a.mu.Lock()
	a.checks = append(a.checks, actionID)
	decision, ok := a.Decisions[actionID]
	err := a.CheckError
	interactiveResult := a.InteractiveResult
	delay := a.InteractiveDelay
	a.mu.Unlock()

	if err != nil {
		return netctl.DecisionUnknown, err
	}
	if !ok {
		decision = netctl.DecisionAllowed
	}
	if !interactive {
		return decision, nil
	}

	// Interactive check: pretend the operator takes a while to answer.
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return netctl.DecisionUnknown, ctx.Err()
		}
	}
	return interactiveResult, nil
}
