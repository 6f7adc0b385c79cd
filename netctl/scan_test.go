package netctl

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func newTestScanCoordinator(daemon Daemon, cooldown time.Duration) *ScanCoordinator {
	cfg := Config{
		ScanCooldown: cooldown,
		ScanSettle:   time.Millisecond,
	}
	gate := NewGate(allowAll{}, time.Second)
	return NewScanCoordinator(daemon, gate, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestScanCooldownServesLastSnapshot(t *testing.T) {
	daemon := newStubDaemon()
	s := newTestScanCoordinator(daemon, time.Hour)

	first, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}

	// Well within the cooldown: no new daemon request, same snapshot.
	second, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() during cooldown failed: %v", err)
	}
	if !second.Taken.Equal(first.Taken) {
		t.Error("cooldown should serve the previous snapshot")
	}

	daemon.mu.Lock()
	count := daemon.scanCount
	daemon.mu.Unlock()
	if count != 1 {
		t.Errorf("expected 1 daemon scan, got %d", count)
	}
}

// A caller that slips between the fast-path cooldown check and the coalesced
// scan body must still be served from the cooldown instead of starting a
// fresh daemon scan.
func TestScanCooldownRecheckedBeforeRequest(t *testing.T) {
	daemon := newStubDaemon()
	s := newTestScanCoordinator(daemon, time.Hour)

	first, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}

	snap, err := s.runScan(context.Background())
	if err != nil {
		t.Fatalf("runScan() failed: %v", err)
	}
	if !snap.Taken.Equal(first.Taken) {
		t.Error("expected the cooled-down snapshot to be served")
	}

	daemon.mu.Lock()
	count := daemon.scanCount
	daemon.mu.Unlock()
	if count != 1 {
		t.Errorf("expected 1 daemon scan, got %d", count)
	}
}

func TestScanAfterCooldownRescans(t *testing.T) {
	daemon := newStubDaemon()
	s := newTestScanCoordinator(daemon, 10*time.Millisecond)

	if _, err := s.Scan(context.Background()); err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := s.Scan(context.Background()); err != nil {
		t.Fatalf("Scan() after cooldown failed: %v", err)
	}

	daemon.mu.Lock()
	count := daemon.scanCount
	daemon.mu.Unlock()
	if count != 2 {
		t.Errorf("expected 2 daemon scans, got %d", count)
	}
}

func TestScanDeniedByPolicy(t *testing.T) {
	daemon := newStubDaemon()
	cfg := Config{ScanSettle: time.Millisecond}
	gate := NewGate(&fakeAuthorizer{decisions: map[string]Decision{ActionScan: DecisionDenied}}, time.Second)
	s := NewScanCoordinator(daemon, gate, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if _, err := s.Scan(context.Background()); err == nil {
		t.Fatal("expected policy denial to surface")
	}

	// Denied is not retried silently, and no daemon request was made.
	daemon.mu.Lock()
	count := daemon.scanCount
	daemon.mu.Unlock()
	if count != 0 {
		t.Errorf("expected 0 daemon scans, got %d", count)
	}
	if _, ok := s.Last(); ok {
		t.Error("failed scan should not produce a snapshot")
	}
}
