package netctl

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeAuthorizer scripts decisions per action id. The interactive answer
// arrives after interactiveDelay, emulating an operator prompt.
type fakeAuthorizer struct {
	decisions         map[string]Decision
	interactiveResult Decision
	interactiveDelay  time.Duration
	calls             int
}

func (f *fakeAuthorizer) Check(ctx context.Context, actionID string, interactive bool) (Decision, error) {
	f.calls++
	if !interactive {
		if d, ok := f.decisions[actionID]; ok {
			return d, nil
		}
		return DecisionAllowed, nil
	}
	if f.interactiveDelay > 0 {
		select {
		case <-time.After(f.interactiveDelay):
		case <-ctx.Done():
			return DecisionUnknown, ctx.Err()
		}
	}
	return f.interactiveResult, nil
}

func TestGateAllowed(t *testing.T) {
	gate := NewGate(&fakeAuthorizer{}, time.Second)
	if err := gate.Authorize(context.Background(), ActionScan); err != nil {
		t.Fatalf("Authorize() failed: %v", err)
	}
}

func TestGateDenied(t *testing.T) {
	auth := &fakeAuthorizer{decisions: map[string]Decision{ActionSettingsModify: DecisionDenied}}
	gate := NewGate(auth, time.Second)

	err := gate.Authorize(context.Background(), ActionSettingsModify)
	if !errors.Is(err, ErrPolicyDenied) {
		t.Fatalf("expected ErrPolicyDenied, got %v", err)
	}
	if auth.calls != 1 {
		t.Errorf("denied decision should not be re-checked, got %d calls", auth.calls)
	}
}

func TestGateInteractiveApproved(t *testing.T) {
	auth := &fakeAuthorizer{
		decisions:         map[string]Decision{ActionEnableDisableWifi: DecisionInteractive},
		interactiveResult: DecisionAllowed,
		interactiveDelay:  10 * time.Millisecond,
	}
	gate := NewGate(auth, time.Second)

	if err := gate.Authorize(context.Background(), ActionEnableDisableWifi); err != nil {
		t.Fatalf("Authorize() failed: %v", err)
	}
	if auth.calls != 2 {
		t.Errorf("expected a non-interactive and an interactive check, got %d calls", auth.calls)
	}
}

func TestGateInteractiveTimeout(t *testing.T) {
	auth := &fakeAuthorizer{
		decisions:         map[string]Decision{ActionEnableDisableWifi: DecisionInteractive},
		interactiveResult: DecisionAllowed,
		interactiveDelay:  time.Second,
	}
	gate := NewGate(auth, 20*time.Millisecond)

	err := gate.Authorize(context.Background(), ActionEnableDisableWifi)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestGateInteractiveDeniedAfterPrompt(t *testing.T) {
	auth := &fakeAuthorizer{
		decisions:         map[string]Decision{ActionSettingsModify: DecisionInteractive},
		interactiveResult: DecisionDenied,
	}
	gate := NewGate(auth, time.Second)

	err := gate.Authorize(context.Background(), ActionSettingsModify)
	if !errors.Is(err, ErrPolicyDenied) {
		t.Fatalf("expected ErrPolicyDenied, got %v", err)
	}
}
