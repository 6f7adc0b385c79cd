package netctl

import "context"

// ActivationState mirrors the daemon's view of an activating connection.
type ActivationState int

const (
	ActivationUnknown ActivationState = iota
	ActivationActivating
	ActivationActivated
	ActivationDeactivated
)

func (s ActivationState) String() string {
	switch s {
	case ActivationActivating:
		return "activating"
	case ActivationActivated:
		return "activated"
	case ActivationDeactivated:
		return "deactivated"
	default:
		return "unknown"
	}
}

// Event is a daemon-originated notification. Concrete types are
// RadioStateEvent, DeviceStateEvent and AccessPointsChangedEvent.
// Events are delivered in the order the daemon emitted them; no reordering
// or coalescing happens at the daemon layer.
type Event interface {
	isEvent()
}

// RadioStateEvent reports a change of the wireless radio state.
type RadioStateEvent struct {
	State RadioState
}

// DeviceStateEvent reports an activation state change for a connection
// handle previously returned by ActivateConnection.
type DeviceStateEvent struct {
	Handle Handle
	State  ActivationState
	Reason string
}

// AccessPointsChangedEvent reports that the set of visible access points
// changed. It carries no payload; interested parties rescan.
type AccessPointsChangedEvent struct{}

func (RadioStateEvent) isEvent()          {}
func (DeviceStateEvent) isEvent()         {}
func (AccessPointsChangedEvent) isEvent() {}

// Daemon is the thin typed contract over the network management service.
//
// Implementations hold no business logic: every call may block on I/O and
// none of them retries internally. Retry and timeout policy belongs to the
// layers above, which also makes the whole system testable against a fake
// implementation of this exact interface.
type Daemon interface {
	// RequestScan asks the daemon to rescan. It returns ErrUnavailable if
	// the daemon cannot be reached and does not wait for scan results.
	RequestScan(ctx context.Context) error
	// ListAccessPoints returns the daemon's current set of visible access
	// points as a fresh snapshot.
	ListAccessPoints(ctx context.Context) (ScanSnapshot, error)
	// ActivateConnection starts connecting to the target and returns a
	// handle for tracking activation progress via DeviceStateEvent.
	// The target's secret must not be retained after the call returns.
	ActivateConnection(ctx context.Context, target ConnectionTarget) (Handle, error)
	// DeactivateConnection tears down a previously returned handle.
	DeactivateConnection(ctx context.Context, handle Handle) error
	// ForgetNetwork deletes the saved profile for the given network.
	ForgetNetwork(ctx context.Context, ssid string) error
	// SetRadioEnabled flips the wireless radio. Callers must re-query or
	// wait for a RadioStateEvent rather than assume the new state.
	SetRadioEnabled(ctx context.Context, enabled bool) error
	// RadioState queries the current radio state.
	RadioState(ctx context.Context) (RadioState, error)
	// Subscribe registers a channel for daemon events. Delivery order is
	// the daemon's emission order. The returned function unsubscribes.
	Subscribe(ch chan<- Event) (func(), error)
	// Close releases the daemon connection.
	Close() error
}
