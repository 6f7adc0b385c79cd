package netctl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Change is a state transition notification fanned out to observers. Exactly
// one of the fields is set per notification.
type Change struct {
	Radio   *RadioState
	Attempt *AttemptStatus
}

// Observer receives state change notifications. Callbacks run on the
// coordinator's goroutines and must not block.
type Observer func(Change)

// Coordinator is the single API the presentation layer consumes: list
// networks, connect, disconnect, radio power, live status.
//
// The current RadioState and the single live connection attempt are owned
// exclusively by the Coordinator; everything outside reads copies or
// subscribes to change notifications. Daemon signals are consumed by one
// goroutine and applied, in arrival order, under the same mutex that
// serializes caller requests, so a request issued after a signal arrives
// observes the post-signal state.
type Coordinator struct {
	daemon Daemon
	gate   *Gate
	scans  *ScanCoordinator
	cfg    Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	events chan Event
	unsub  func()

	refreshing atomic.Bool

	mu           sync.Mutex
	radio        RadioState
	attempt      *attempt
	observers    map[uint64]Observer
	nextObserver uint64
}

// New assembles a Coordinator over the given daemon and privilege broker.
// Call Start before use and Close when done.
func New(daemon Daemon, auth Authorizer, cfg Config, logger *slog.Logger) *Coordinator {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	gate := NewGate(auth, cfg.InteractiveWait)
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		daemon:    daemon,
		gate:      gate,
		scans:     NewScanCoordinator(daemon, gate, cfg, logger),
		cfg:       cfg,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		observers: make(map[uint64]Observer),
	}
}

// Start queries the initial radio state and begins consuming daemon events.
func (c *Coordinator) Start() error {
	state, err := c.daemon.RadioState(c.ctx)
	if err != nil {
		return fmt.Errorf("query radio state: %w", err)
	}
	c.mu.Lock()
	c.radio = state
	c.mu.Unlock()

	ch := make(chan Event, 32)
	unsub, err := c.daemon.Subscribe(ch)
	if err != nil {
		return fmt.Errorf("subscribe to daemon events: %w", err)
	}
	c.events = ch
	c.unsub = unsub

	c.wg.Add(1)
	go c.loop()

	c.logger.Info("network coordinator started", "radio", state)
	return nil
}

// Close stops event processing and cancels any in-flight attempt. It does
// not close the daemon; the daemon's owner does that.
func (c *Coordinator) Close() error {
	if c.unsub != nil {
		c.unsub()
	}
	c.cancel()
	c.wg.Wait()
	return nil
}

// Observe registers a callback for radio and attempt transitions. The
// callback is immediately invoked with the current state, then on every
// change until the returned unsubscribe function is called.
func (c *Coordinator) Observe(fn Observer) func() {
	c.mu.Lock()
	id := c.nextObserver
	c.nextObserver++
	c.observers[id] = fn
	radio := c.radio
	status := c.currentStatusLocked()
	c.mu.Unlock()

	fn(Change{Radio: &radio})
	fn(Change{Attempt: &status})

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}

// Radio returns the last daemon-reported radio state.
func (c *Coordinator) Radio() RadioState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.radio
}

// Status returns the current connection attempt state, or an idle status if
// no attempt exists.
func (c *Coordinator) Status() AttemptStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentStatusLocked()
}

func (c *Coordinator) currentStatusLocked() AttemptStatus {
	if c.attempt == nil {
		return AttemptStatus{State: AttemptIdle}
	}
	return c.attempt.status()
}

// ListNetworks returns the current scan snapshot. The first call blocks on a
// full scan; afterwards a snapshot older than the staleness threshold is
// returned immediately, flagged stale, while a background refresh runs.
// Unavailable errors during the background refresh are downgraded to the
// stale flag rather than interrupting the caller.
func (c *Coordinator) ListNetworks(ctx context.Context) (ScanSnapshot, error) {
	if c.Radio() != RadioOn {
		return ScanSnapshot{}, fmt.Errorf("list networks: %w", ErrRadioDisabled)
	}

	snap, ok := c.scans.Last()
	if !ok {
		return c.scans.Scan(ctx)
	}
	if snap.StaleBy(c.cfg.SnapshotStale, time.Now()) {
		snap.Stale = true
		c.refreshInBackground()
	}
	return snap, nil
}

func (c *Coordinator) refreshInBackground() {
	if !c.refreshing.CompareAndSwap(false, true) {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.refreshing.Store(false)
		if _, err := c.scans.Scan(c.ctx); err != nil {
			// Stale data is already flagged; surfacing here would
			// interrupt nobody.
			c.logger.Warn("background scan failed", "err", err)
		}
	}()
}

// Connect starts a connection attempt toward the target and blocks until it
// reaches Connected or a terminal failure. A prior non-terminal attempt is
// superseded: cancelled, marked Failed, and its half-formed daemon
// connection deactivated so nothing leaks in the daemon.
func (c *Coordinator) Connect(ctx context.Context, target ConnectionTarget) error {
	c.mu.Lock()
	if c.radio != RadioOn {
		c.mu.Unlock()
		return fmt.Errorf("connect %q: %w", target.SSID, ErrRadioDisabled)
	}
	superseded := c.supersedeLocked()
	a := newAttempt(c.ctx, target)
	c.attempt = a
	c.mu.Unlock()

	if superseded != nil {
		c.notifyAttempt(superseded)
	}
	c.notifyAttempt(a)
	c.wg.Add(1)
	go c.runAttempt(a)

	select {
	case <-a.done:
	case <-a.ctx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	status := a.status()
	switch {
	case status.State == AttemptConnected:
		return nil
	case status.Err != nil:
		return fmt.Errorf("connect %q: %w", target.SSID, status.Err)
	default:
		return fmt.Errorf("connect %q: %w", target.SSID, context.Canceled)
	}
}

// supersedeLocked cancels the current attempt, if it has not yet reached
// Connected or a terminal state, in favor of a newer one. It returns the
// superseded attempt so the caller can notify observers after releasing the
// coordinator lock.
func (c *Coordinator) supersedeLocked() *attempt {
	old := c.attempt
	c.attempt = nil
	if old == nil {
		return nil
	}
	var changed bool
	if old.live() {
		// Record the terminal state before cancelling so the blocked
		// Connect caller always observes the supersession reason.
		changed = old.setState(AttemptFailed, ErrSuperseded)
		old.cancel()
		if handle := old.getHandle(); handle != "" {
			// Deactivate the half-formed connection so it does not
			// leak in the daemon.
			c.deactivateAsync(handle)
		}
	}
	if !changed {
		return nil
	}
	return old
}

func (c *Coordinator) deactivateAsync(handle Handle) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Tearing a connection down is privileged like bringing it up.
		if err := c.gate.Authorize(ctx, ActionEnableDisableNet); err != nil {
			c.logger.Warn("deactivation not authorized", "handle", handle, "err", err)
			return
		}
		if err := c.daemon.DeactivateConnection(ctx, handle); err != nil {
			c.logger.Warn("deactivate superseded connection", "handle", handle, "err", err)
		}
	}()
}

// runAttempt drives a single attempt through authorization, activation
// request and activation wait. Any denial or failure is terminal for this
// attempt; nothing is retried without an explicit new Connect call.
func (c *Coordinator) runAttempt(a *attempt) {
	defer c.wg.Done()

	if err := c.gate.Authorize(a.ctx, ActionSettingsModify); err != nil {
		c.failAttempt(a, err)
		return
	}

	c.transition(a, AttemptRequesting)

	handle, err := c.daemon.ActivateConnection(a.ctx, a.target)
	// The secret has crossed the boundary; drop it regardless of outcome.
	a.target.Secret = ""
	if err != nil {
		c.failAttempt(a, err)
		return
	}
	a.setHandle(handle)
	c.transition(a, AttemptActivating)

	timer := time.NewTimer(c.cfg.ActivationTimeout)
	defer timer.Stop()

	for {
		select {
		case ev := <-a.events:
			if ev.Handle != handle {
				// Progress for a previous handle, not ours.
				continue
			}
			switch ev.State {
			case ActivationActivated:
				if a.setState(AttemptConnected, nil) {
					c.logger.Info("connected", "ssid", a.target.SSID)
					c.notifyAttempt(a)
				}
				return
			case ActivationDeactivated:
				c.failAttempt(a, fmt.Errorf("activation rejected by daemon: %w", ErrDaemonFailure))
				c.deactivateAsync(handle)
				return
			}
			// Still activating; keep waiting.
		case <-timer.C:
			c.failAttempt(a, fmt.Errorf("activation: %w", ErrTimeout))
			c.deactivateAsync(handle)
			return
		case <-a.ctx.Done():
			// Whoever cancelled us already set the terminal state.
			return
		}
	}
}

func (c *Coordinator) transition(a *attempt, state AttemptState) {
	if a.setState(state, nil) {
		c.notifyAttempt(a)
	}
}

func (c *Coordinator) failAttempt(a *attempt, err error) {
	if errors.Is(err, context.Canceled) {
		// Cancelled by supersession, disconnect or shutdown; the
		// canceller already recorded why.
		return
	}
	if a.setState(AttemptFailed, err) {
		c.logger.Warn("connection attempt failed", "ssid", a.target.SSID, "err", err)
		c.notifyAttempt(a)
	}
}

// Disconnect tears down the current attempt or connection. Calling it with
// nothing to tear down is a no-op returning success. Tearing down an active
// connection is a privileged operation; a policy denial leaves the connection
// in place.
func (c *Coordinator) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	a := c.attempt
	c.mu.Unlock()

	if a == nil {
		return nil
	}
	if a.status().State.terminal() {
		// Already failed; clearing the slot is all that is left.
		c.clearAttempt(a)
		return nil
	}

	if err := c.gate.Authorize(ctx, ActionEnableDisableNet); err != nil {
		return err
	}

	c.clearAttempt(a)
	if a.setState(AttemptDisconnecting, nil) {
		c.notifyAttempt(a)
	}
	a.cancel()

	var err error
	if handle := a.getHandle(); handle != "" {
		if derr := c.daemon.DeactivateConnection(ctx, handle); derr != nil {
			err = fmt.Errorf("deactivate connection: %w", derr)
		}
	}

	idle := AttemptStatus{State: AttemptIdle}
	c.notify(Change{Attempt: &idle})
	return err
}

// clearAttempt empties the attempt slot if it still holds a. A newer Connect
// may have replaced it in the meantime; that one is left alone.
func (c *Coordinator) clearAttempt(a *attempt) {
	c.mu.Lock()
	if c.attempt == a {
		c.attempt = nil
	}
	c.mu.Unlock()
}

// SetRadioPower flips the wireless radio. The stored radio state is only
// updated from the daemon's answer, never assumed from the request.
func (c *Coordinator) SetRadioPower(ctx context.Context, enabled bool) error {
	if err := c.gate.Authorize(ctx, ActionEnableDisableWifi); err != nil {
		return err
	}
	if err := c.daemon.SetRadioEnabled(ctx, enabled); err != nil {
		return fmt.Errorf("set radio %t: %w", enabled, err)
	}
	state, err := c.daemon.RadioState(ctx)
	if err != nil {
		return fmt.Errorf("confirm radio state: %w", err)
	}
	c.applyRadioState(state)
	return nil
}

// Forget deletes the saved profile for a network.
func (c *Coordinator) Forget(ctx context.Context, ssid string) error {
	if err := c.gate.Authorize(ctx, ActionSettingsModify); err != nil {
		return err
	}
	if err := c.daemon.ForgetNetwork(ctx, ssid); err != nil {
		return fmt.Errorf("forget %q: %w", ssid, err)
	}
	return nil
}

// loop consumes daemon events in arrival order and applies them to the
// owned state before any caller request that follows.
func (c *Coordinator) loop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-c.events:
			if !ok {
				return
			}
			c.handleEvent(ev)
		}
	}
}

func (c *Coordinator) handleEvent(ev Event) {
	switch ev := ev.(type) {
	case RadioStateEvent:
		c.applyRadioState(ev.State)
	case DeviceStateEvent:
		c.applyDeviceState(ev)
	case AccessPointsChangedEvent:
		c.logger.Debug("access points changed")
	}
}

func (c *Coordinator) applyRadioState(state RadioState) {
	c.mu.Lock()
	if c.radio == state {
		c.mu.Unlock()
		return
	}
	c.radio = state
	a := c.attempt
	if state == RadioOn {
		c.mu.Unlock()
		c.notify(Change{Radio: &state})
		return
	}
	// Radio gone: no attempt may stay in flight, and a connected one is
	// dropped back to idle.
	var dropped *attempt
	if a != nil {
		if a.live() {
			if a.setState(AttemptFailed, ErrRadioDisabled) {
				dropped = a
			}
			a.cancel()
		} else if a.status().State == AttemptConnected {
			a.setState(AttemptDisconnecting, nil)
			dropped = a
			c.attempt = nil
		}
	}
	c.mu.Unlock()

	c.notify(Change{Radio: &state})
	if dropped != nil {
		c.notifyAttempt(dropped)
		if dropped.status().State == AttemptDisconnecting {
			idle := AttemptStatus{State: AttemptIdle}
			c.notify(Change{Attempt: &idle})
		}
	}
}

func (c *Coordinator) applyDeviceState(ev DeviceStateEvent) {
	c.mu.Lock()
	a := c.attempt
	c.mu.Unlock()
	if a == nil {
		return
	}
	handle := a.getHandle()
	if handle != "" && handle != ev.Handle {
		return
	}

	if a.status().State == AttemptConnected && ev.State == ActivationDeactivated {
		// Link lost underneath an established connection.
		c.mu.Lock()
		if c.attempt == a {
			c.attempt = nil
		}
		c.mu.Unlock()
		a.setState(AttemptDisconnecting, nil)
		c.notifyAttempt(a)
		idle := AttemptStatus{State: AttemptIdle}
		c.notify(Change{Attempt: &idle})
		c.logger.Info("connection lost", "ssid", a.target.SSID, "reason", ev.Reason)
		return
	}

	// The attempt may not have recorded its handle yet; deliver anyway and
	// let the driving goroutine match it.
	a.deliver(ev)
}

func (c *Coordinator) notifyAttempt(a *attempt) {
	status := a.status()
	c.notify(Change{Attempt: &status})
}

func (c *Coordinator) notify(change Change) {
	c.mu.Lock()
	observers := make([]Observer, 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	c.mu.Unlock()
	for _, fn := range observers {
		fn(change)
	}
}
