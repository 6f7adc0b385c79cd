package netctl

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// stubDaemon is the minimal in-package fake used where tests need to reach
// into coordinator internals.
type stubDaemon struct {
	mu    sync.Mutex
	radio RadioState
	subs  []chan<- Event

	scanCount      int
	activateSecret string
}

func newStubDaemon() *stubDaemon {
	return &stubDaemon{radio: RadioOn}
}

func (d *stubDaemon) RequestScan(ctx context.Context) error {
	d.mu.Lock()
	d.scanCount++
	d.mu.Unlock()
	return nil
}

func (d *stubDaemon) ListAccessPoints(ctx context.Context) (ScanSnapshot, error) {
	return ScanSnapshot{Taken: time.Now()}, nil
}

func (d *stubDaemon) ActivateConnection(ctx context.Context, target ConnectionTarget) (Handle, error) {
	d.mu.Lock()
	d.activateSecret = target.Secret
	subs := append([]chan<- Event(nil), d.subs...)
	d.mu.Unlock()
	// Emit before returning: progress can land before the caller has even
	// seen the handle.
	for _, ch := range subs {
		ch <- DeviceStateEvent{Handle: "h1", State: ActivationActivated}
	}
	return "h1", nil
}

func (d *stubDaemon) DeactivateConnection(ctx context.Context, handle Handle) error { return nil }
func (d *stubDaemon) ForgetNetwork(ctx context.Context, ssid string) error          { return nil }
func (d *stubDaemon) SetRadioEnabled(ctx context.Context, enabled bool) error       { return nil }

func (d *stubDaemon) RadioState(ctx context.Context) (RadioState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.radio, nil
}

func (d *stubDaemon) Subscribe(ch chan<- Event) (func(), error) {
	d.mu.Lock()
	d.subs = append(d.subs, ch)
	d.mu.Unlock()
	return func() {}, nil
}

func (d *stubDaemon) Close() error { return nil }

type allowAll struct{}

func (allowAll) Check(ctx context.Context, actionID string, interactive bool) (Decision, error) {
	return DecisionAllowed, nil
}

// Activation progress that lands before the handle is recorded must be
// buffered for the attempt, not dropped, or an already-activated connection
// would stall into a timeout.
func TestConnectEarlyActivationEvent(t *testing.T) {
	daemon := newStubDaemon()
	cfg := Config{ActivationTimeout: 200 * time.Millisecond}
	c := New(daemon, allowAll{}, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := c.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer c.Close()

	if err := c.Connect(context.Background(), ConnectionTarget{SSID: "Home"}); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}
	if got := c.Status().State; got != AttemptConnected {
		t.Errorf("state = %s, want connected", got)
	}
}

// The credential must cross the daemon boundary once and be wiped from the
// attempt as soon as the activation call returns.
func TestConnectDropsSecret(t *testing.T) {
	daemon := newStubDaemon()
	c := New(daemon, allowAll{}, Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := c.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	defer c.Close()

	target := ConnectionTarget{SSID: "Home", Secret: "pw"}
	if err := c.Connect(context.Background(), target); err != nil {
		t.Fatalf("Connect() failed: %v", err)
	}

	daemon.mu.Lock()
	seen := daemon.activateSecret
	daemon.mu.Unlock()
	if seen != "pw" {
		t.Fatalf("daemon should have received the secret, got %q", seen)
	}

	c.mu.Lock()
	retained := c.attempt.target.Secret
	c.mu.Unlock()
	if retained != "" {
		t.Errorf("secret retained in attempt after activation: %q", retained)
	}
}
