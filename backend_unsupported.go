//go:build !linux

package main

import (
	"fmt"
	"log/slog"

	"github.com/touchpanel/touchpanel/netctl"
)

// newPlatformBackend returns an error on platforms without NetworkManager;
// the mock backend still works everywhere.
func newPlatformBackend(logger *slog.Logger) (netctl.Daemon, netctl.Authorizer, error) {
	return nil, nil, fmt.Errorf("networkmanager backend requires linux; use -backend mock")
}
