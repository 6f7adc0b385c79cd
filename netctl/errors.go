package netctl

import "errors"

var (
	// ErrUnavailable means the daemon is not reachable. Never retried
	// automatically; the caller may retry.
	ErrUnavailable = errors.New("daemon unavailable")
	// ErrPolicyDenied is terminal for the attempt that received it.
	// Retrying without a policy change cannot succeed.
	ErrPolicyDenied = errors.New("denied by policy")
	// ErrTimeout means a bounded wait (interactive authorization or
	// activation) elapsed.
	ErrTimeout = errors.New("timed out")
	// ErrDaemonFailure carries a daemon-reported failure; the detail is
	// wrapped around it.
	ErrDaemonFailure = errors.New("daemon failure")
	// ErrSuperseded means an attempt was replaced by a newer one. It is
	// informational, not an operator-facing failure.
	ErrSuperseded = errors.New("superseded by a newer attempt")
	// ErrRadioDisabled means the radio is off or blocked by policy.
	ErrRadioDisabled = errors.New("radio unavailable")
	ErrNotFound      = errors.New("not found")
)
