//go:build linux

package main

import (
	"log/slog"

	"github.com/touchpanel/touchpanel/netctl"
	"github.com/touchpanel/touchpanel/netctl/networkmanager"
	"github.com/touchpanel/touchpanel/netctl/polkit"
)

// newPlatformBackend wires the real NetworkManager daemon and polkit broker.
func newPlatformBackend(logger *slog.Logger) (netctl.Daemon, netctl.Authorizer, error) {
	daemon, err := networkmanager.New(logger)
	if err != nil {
		return nil, nil, err
	}
	authorizer, err := polkit.New()
	if err != nil {
		daemon.Close()
		return nil, nil, err
	}
	return daemon, authorizer, nil
}
