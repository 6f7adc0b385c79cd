// Package polkit implements the netctl.Authorizer contract against the
// org.freedesktop.PolicyKit1 authority on the system bus.
package polkit

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"github.com/touchpanel/touchpanel/netctl"
)

const (
	authorityDest  = "org.freedesktop.PolicyKit1"
	authorityPath  = "/org/freedesktop/PolicyKit1/Authority"
	authorityIface = "org.freedesktop.PolicyKit1.Authority"

	// CheckAuthorization flags.
	flagNone                 = 0
	flagAllowUserInteraction = 1
)

// Authorizer resolves action ids against polkit. Each call re-resolves the
// decision; nothing is cached, since policy can change between calls.
type Authorizer struct {
	conn    *dbus.Conn
	subject subject
}

// subject is the (kind, details) struct polkit expects for the caller
// identity. We identify ourselves by our unique system bus name.
type subject struct {
	Kind    string
	Details map[string]dbus.Variant
}

// New connects to the system bus and identifies this process to polkit.
func New() (*Authorizer, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect to system bus: %w", netctl.ErrUnavailable)
	}
	names := conn.Names()
	if len(names) == 0 {
		return nil, fmt.Errorf("no bus name assigned: %w", netctl.ErrUnavailable)
	}
	return &Authorizer{
		conn: conn,
		subject: subject{
			Kind: "system-bus-name",
			Details: map[string]dbus.Variant{
				"name": dbus.MakeVariant(names[0]),
			},
		},
	}, nil
}

// Check asks polkit for a decision on the action. With interactive set, the
// authority may put up a prompt and the call blocks until the operator
// answers or ctx expires; expiry cancels the pending check in polkit so no
// stale prompt lingers.
func (a *Authorizer) Check(ctx context.Context, actionID string, interactive bool) (netctl.Decision, error) {
	flags := uint32(flagNone)
	cancellationID := ""
	if interactive {
		flags = flagAllowUserInteraction
		cancellationID = uuid.New().String()
	}

	var result struct {
		IsAuthorized bool
		IsChallenge  bool
		Details      map[string]string
	}

	obj := a.conn.Object(authorityDest, authorityPath)
	call := obj.CallWithContext(ctx, authorityIface+".CheckAuthorization", 0,
		a.subject, actionID, map[string]string{}, flags, cancellationID)
	if call.Err != nil {
		if ctx.Err() != nil {
			if cancellationID != "" {
				// Best effort: tell polkit to drop the prompt.
				obj.Call(authorityIface+".CancelCheckAuthorization", 0, cancellationID)
			}
			return netctl.DecisionUnknown, ctx.Err()
		}
		return netctl.DecisionUnknown, fmt.Errorf("check %s: %v: %w", actionID, call.Err, netctl.ErrUnavailable)
	}
	if err := call.Store(&result); err != nil {
		return netctl.DecisionUnknown, fmt.Errorf("decode authority reply for %s: %v: %w", actionID, err, netctl.ErrDaemonFailure)
	}

	switch {
	case result.IsAuthorized:
		return netctl.DecisionAllowed, nil
	case result.IsChallenge:
		return netctl.DecisionInteractive, nil
	default:
		return netctl.DecisionDenied, nil
	}
}
