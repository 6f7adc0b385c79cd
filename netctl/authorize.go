package netctl

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Polkit action identifiers governing the privileged daemon calls. These are
// checked verbatim, one per call; decisions are never cached across distinct
// actions because policy can change between calls.
const (
	ActionScan               = "org.freedesktop.NetworkManager.wifi.scan"
	ActionEnableDisableNet   = "org.freedesktop.NetworkManager.enable-disable-network"
	ActionSettingsModify     = "org.freedesktop.NetworkManager.settings.modify.system"
	ActionEnableDisableWifi  = "org.freedesktop.NetworkManager.enable-disable-wifi"
)

// Decision is the privilege broker's answer for a single action check.
type Decision int

const (
	// DecisionUnknown means the action has not been evaluated. It is
	// distinct from DecisionDenied: an unevaluated action may still be
	// allowed once checked.
	DecisionUnknown Decision = iota
	DecisionAllowed
	DecisionDenied
	// DecisionInteractive means the broker wants to prompt the operator
	// before deciding.
	DecisionInteractive
)

func (d Decision) String() string {
	switch d {
	case DecisionAllowed:
		return "allowed"
	case DecisionDenied:
		return "denied"
	case DecisionInteractive:
		return "interactive"
	default:
		return "unknown"
	}
}

// Authorizer resolves a single action identifier against the privilege
// broker. With interactive set, the call may block while the broker prompts
// the operator; the context bounds that wait.
type Authorizer interface {
	Check(ctx context.Context, actionID string, interactive bool) (Decision, error)
}

// Gate sits in front of every privileged daemon call. A denied decision is
// terminal for that call and surfaced verbatim; an interactive decision makes
// the gate wait for the operator, bounded by InteractiveWait.
type Gate struct {
	auth Authorizer

	// InteractiveWait bounds how long a pending operator prompt is allowed
	// to hang before the call fails with ErrTimeout.
	InteractiveWait time.Duration
}

// NewGate creates a Gate with the given interactive wait bound. A zero wait
// falls back to DefaultInteractiveWait.
func NewGate(auth Authorizer, interactiveWait time.Duration) *Gate {
	if interactiveWait <= 0 {
		interactiveWait = DefaultInteractiveWait
	}
	return &Gate{auth: auth, InteractiveWait: interactiveWait}
}

// Authorize resolves the action and returns nil only for an allowed
// decision. Denials map to ErrPolicyDenied, an expired interactive wait to
// ErrTimeout, and broker transport failures to ErrUnavailable.
func (g *Gate) Authorize(ctx context.Context, actionID string) error {
	decision, err := g.auth.Check(ctx, actionID, false)
	if err != nil {
		return fmt.Errorf("authorization check for %s: %w", actionID, err)
	}

	if decision == DecisionInteractive {
		// The operator may still approve; wait for them, but not forever.
		waitCtx, cancel := context.WithTimeout(ctx, g.InteractiveWait)
		defer cancel()
		decision, err = g.auth.Check(waitCtx, actionID, true)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("interactive authorization for %s: %w", actionID, ErrTimeout)
			}
			return fmt.Errorf("interactive authorization for %s: %w", actionID, err)
		}
	}

	switch decision {
	case DecisionAllowed:
		return nil
	case DecisionDenied:
		return fmt.Errorf("action %s: %w", actionID, ErrPolicyDenied)
	default:
		return fmt.Errorf("action %s resolved to %s: %w", actionID, decision, ErrDaemonFailure)
	}
}
