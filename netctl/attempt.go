package netctl

import (
	"context"
	"sync"
)

// AttemptState is the lifecycle state of a connection attempt.
type AttemptState int

const (
	AttemptIdle AttemptState = iota
	AttemptAwaitingAuthorization
	AttemptRequesting
	AttemptActivating
	AttemptConnected
	AttemptDisconnecting
	AttemptFailed
)

func (s AttemptState) String() string {
	switch s {
	case AttemptIdle:
		return "idle"
	case AttemptAwaitingAuthorization:
		return "awaiting-authorization"
	case AttemptRequesting:
		return "requesting"
	case AttemptActivating:
		return "activating"
	case AttemptConnected:
		return "connected"
	case AttemptDisconnecting:
		return "disconnecting"
	case AttemptFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// terminal reports whether no further transitions can happen from s.
func (s AttemptState) terminal() bool {
	return s == AttemptFailed
}

// AttemptStatus is the read-only view of the current connection attempt
// handed to observers. Err is set only in the AttemptFailed state and wraps
// one of the package sentinel errors.
type AttemptStatus struct {
	State AttemptState
	SSID  string
	BSSID string
	Err   error
}

// attempt is one lifecycle instance of trying to reach Connected for a
// chosen target. Exactly one live attempt exists at a time; it is owned by
// the Coordinator and driven by a single goroutine, with activation progress
// fed in through the events channel.
type attempt struct {
	target ConnectionTarget

	ctx    context.Context
	cancel context.CancelFunc

	// events receives activation progress routed from the daemon event
	// loop. Progress can land before the driving goroutine has recorded
	// its handle, so routing is permissive and the driver matches the
	// handle itself.
	events chan DeviceStateEvent

	mu     sync.Mutex
	state  AttemptState
	err    error
	handle Handle
	// done is closed when the attempt reaches Connected or a terminal
	// failure; Connect blocks on it.
	done chan struct{}
}

func newAttempt(parent context.Context, target ConnectionTarget) *attempt {
	ctx, cancel := context.WithCancel(parent)
	return &attempt{
		target: target,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan DeviceStateEvent, 8),
		state:  AttemptAwaitingAuthorization,
		done:   make(chan struct{}),
	}
}

func (a *attempt) status() AttemptStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AttemptStatus{
		State: a.state,
		SSID:  a.target.SSID,
		BSSID: a.target.BSSID,
		Err:   a.err,
	}
}

// setState moves the attempt forward. It refuses to leave a terminal or
// Connected state except for the Connected -> Disconnecting transition, so a
// late activation event cannot resurrect a superseded attempt. Returns
// whether the transition was applied.
func (a *attempt) setState(state AttemptState, err error) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.terminal() {
		return false
	}
	if a.state == AttemptConnected && state != AttemptDisconnecting && state != AttemptFailed {
		return false
	}
	a.state = state
	a.err = err
	if state == AttemptConnected || state.terminal() {
		select {
		case <-a.done:
		default:
			close(a.done)
		}
	}
	return true
}

func (a *attempt) setHandle(h Handle) {
	a.mu.Lock()
	a.handle = h
	a.mu.Unlock()
}

func (a *attempt) getHandle() Handle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handle
}

// live reports whether the attempt is still in a non-terminal state short of
// Connected, i.e. whether a newer connect must supersede it.
func (a *attempt) live() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.state.terminal() && a.state != AttemptConnected
}

// deliver routes an activation event to the driving goroutine without
// blocking the event loop.
func (a *attempt) deliver(ev DeviceStateEvent) {
	select {
	case a.events <- ev:
	default:
	}
}
