package netctl

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type scanState int

const (
	scanIdle scanState = iota
	scanScanning
	scanCoolingDown
)

// ScanCoordinator throttles and sequences daemon scan requests.
//
// Concurrent callers during an in-flight scan are coalesced onto a single
// daemon request and all receive the same snapshot. After a completed scan
// the coordinator cools down for a minimum interval; requests arriving
// during cooldown are satisfied from the last snapshot instead of blocking.
type ScanCoordinator struct {
	daemon Daemon
	gate   *Gate
	logger *slog.Logger

	cooldown time.Duration
	settle   time.Duration

	group singleflight.Group

	mu        sync.Mutex
	state     scanState
	last      ScanSnapshot
	haveLast  bool
	coolUntil time.Time
}

// NewScanCoordinator wires a scan coordinator over the given daemon and
// authorization gate.
func NewScanCoordinator(daemon Daemon, gate *Gate, cfg Config, logger *slog.Logger) *ScanCoordinator {
	cfg = cfg.withDefaults()
	return &ScanCoordinator{
		daemon:   daemon,
		gate:     gate,
		logger:   logger,
		cooldown: cfg.ScanCooldown,
		settle:   cfg.ScanSettle,
	}
}

// Last returns the most recent snapshot, if any scan has completed.
func (s *ScanCoordinator) Last() (ScanSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.haveLast
}

// Scan returns an up-to-date snapshot, issuing at most one daemon request no
// matter how many callers arrive while it is in flight. During cooldown the
// last snapshot is returned immediately. Scan failures return the
// coordinator to idle and propagate to every waiting caller; they are not
// retried silently.
func (s *ScanCoordinator) Scan(ctx context.Context) (ScanSnapshot, error) {
	s.mu.Lock()
	if s.state == scanCoolingDown && time.Now().Before(s.coolUntil) && s.haveLast {
		snap := s.last
		s.mu.Unlock()
		return snap, nil
	}
	if s.state == scanCoolingDown && !time.Now().Before(s.coolUntil) {
		s.state = scanIdle
	}
	s.mu.Unlock()

	result, err, _ := s.group.Do("scan", func() (interface{}, error) {
		return s.runScan(ctx)
	})
	if err != nil {
		return ScanSnapshot{}, err
	}
	return result.(ScanSnapshot), nil
}

func (s *ScanCoordinator) runScan(ctx context.Context) (ScanSnapshot, error) {
	s.mu.Lock()
	// A caller can slip past the fast path just as a scan completes; the
	// cooldown still applies to it.
	if s.state == scanCoolingDown && time.Now().Before(s.coolUntil) && s.haveLast {
		snap := s.last
		s.mu.Unlock()
		return snap, nil
	}
	s.state = scanScanning
	s.mu.Unlock()

	if err := s.gate.Authorize(ctx, ActionScan); err != nil {
		s.setState(scanIdle)
		return ScanSnapshot{}, err
	}

	if err := s.daemon.RequestScan(ctx); err != nil {
		s.setState(scanIdle)
		return ScanSnapshot{}, err
	}

	// The daemon completes scans asynchronously; give it a moment before
	// reading the access point list back.
	select {
	case <-time.After(s.settle):
	case <-ctx.Done():
		s.setState(scanIdle)
		return ScanSnapshot{}, ctx.Err()
	}

	snap, err := s.daemon.ListAccessPoints(ctx)
	if err != nil {
		s.setState(scanIdle)
		return ScanSnapshot{}, err
	}
	SortAccessPoints(snap.AccessPoints)

	s.mu.Lock()
	s.last = snap
	s.haveLast = true
	s.state = scanCoolingDown
	s.coolUntil = time.Now().Add(s.cooldown)
	s.mu.Unlock()

	s.logger.Debug("scan completed", "accessPoints", len(snap.AccessPoints))
	return snap, nil
}

func (s *ScanCoordinator) setState(st scanState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}
