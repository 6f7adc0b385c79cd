package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/touchpanel/touchpanel/netctl"
)

func TestNew(t *testing.T) {
	d := New()
	d.ActionSleep = 0

	state, err := d.RadioState(context.Background())
	if err != nil {
		t.Fatalf("RadioState() failed: %v", err)
	}
	if state != netctl.RadioOn {
		t.Errorf("expected radio on, got %s", state)
	}

	snap, err := d.ListAccessPoints(context.Background())
	if err != nil {
		t.Fatalf("ListAccessPoints() failed: %v", err)
	}
	if len(snap.AccessPoints) == 0 {
		t.Fatal("expected some access points")
	}
}

func TestActivateEmitsProgress(t *testing.T) {
	d := New()
	d.ActionSleep = 0
	d.ActivateDelay = time.Millisecond

	events := make(chan netctl.Event, 16)
	unsubscribe, err := d.Subscribe(events)
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	defer unsubscribe()

	handle, err := d.ActivateConnection(context.Background(), netctl.ConnectionTarget{SSID: "Cafe"})
	if err != nil {
		t.Fatalf("ActivateConnection() failed: %v", err)
	}
	if handle != d.LastHandle() {
		t.Errorf("LastHandle() = %s, want %s", d.LastHandle(), handle)
	}

	want := []netctl.ActivationState{netctl.ActivationActivating, netctl.ActivationActivated}
	for _, expected := range want {
		select {
		case ev := <-events:
			dev, ok := ev.(netctl.DeviceStateEvent)
			if !ok {
				t.Fatalf("unexpected event type %T", ev)
			}
			if dev.Handle != handle {
				t.Errorf("event handle = %s, want %s", dev.Handle, handle)
			}
			if dev.State != expected {
				t.Errorf("event state = %s, want %s", dev.State, expected)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", expected)
		}
	}
}

func TestSetRadioEmits(t *testing.T) {
	d := New()
	d.ActionSleep = 0

	events := make(chan netctl.Event, 1)
	unsubscribe, _ := d.Subscribe(events)
	defer unsubscribe()

	if err := d.SetRadioEnabled(context.Background(), false); err != nil {
		t.Fatalf("SetRadioEnabled() failed: %v", err)
	}

	select {
	case ev := <-events:
		radio, ok := ev.(netctl.RadioStateEvent)
		if !ok {
			t.Fatalf("unexpected event type %T", ev)
		}
		if radio.State != netctl.RadioOff {
			t.Errorf("radio state = %s, want off", radio.State)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for radio event")
	}
}

func TestForgetNetwork(t *testing.T) {
	d := New()
	d.ActionSleep = 0

	if err := d.ForgetNetwork(context.Background(), "Home"); err != nil {
		t.Fatalf("ForgetNetwork() failed: %v", err)
	}
	err := d.ForgetNetwork(context.Background(), "Home")
	if !errors.Is(err, netctl.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown network, got %v", err)
	}
}

func TestAuthorizerScripting(t *testing.T) {
	a := NewAuthorizer()
	a.Decisions[netctl.ActionScan] = netctl.DecisionDenied

	decision, err := a.Check(context.Background(), netctl.ActionScan, false)
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if decision != netctl.DecisionDenied {
		t.Errorf("decision = %s, want denied", decision)
	}

	decision, err = a.Check(context.Background(), netctl.ActionSettingsModify, false)
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if decision != netctl.DecisionAllowed {
		t.Errorf("decision = %s, want allowed", decision)
	}

	checks := a.Checks()
	if len(checks) != 2 || checks[0] != netctl.ActionScan {
		t.Errorf("unexpected check log: %v", checks)
	}
}
