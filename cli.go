package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/touchpanel/touchpanel/netctl"
)

func formatAccessPoint(ap netctl.AccessPoint) string {
	parts := []string{
		fmt.Sprintf("%d%%", ap.Strength),
		ap.Security.String(),
	}
	if ap.Frequency >= 5000 {
		parts = append(parts, "5GHz")
	} else if ap.Frequency > 0 {
		parts = append(parts, "2.4GHz")
	}
	if ap.Known {
		parts = append(parts, "known")
	}
	if ap.Active {
		parts = append(parts, "active")
	}
	return strings.Join(parts, ", ")
}

func runList(ctx context.Context, w io.Writer, asJSON bool, c *netctl.Coordinator) error {
	snapshot, err := c.ListNetworks(ctx)
	if err != nil {
		return fmt.Errorf("failed to list networks: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snapshot.AccessPoints)
	}

	for _, ap := range snapshot.AccessPoints {
		fmt.Fprintf(w, "%s\t%s\t%s\n", ap.SSID, ap.BSSID, formatAccessPoint(ap))
	}
	if snapshot.Stale {
		fmt.Fprintln(w, "(stale results; a refresh is running)")
	}
	return nil
}

func runConnect(ctx context.Context, w io.Writer, c *netctl.Coordinator, target netctl.ConnectionTarget) error {
	if err := c.Connect(ctx, target); err != nil {
		return err
	}
	fmt.Fprintf(w, "connected to %s\n", target.SSID)
	return nil
}

func runDisconnect(ctx context.Context, w io.Writer, c *netctl.Coordinator) error {
	if err := c.Disconnect(ctx); err != nil {
		return err
	}
	fmt.Fprintln(w, "disconnected")
	return nil
}

func runRadio(ctx context.Context, w io.Writer, c *netctl.Coordinator, enabled bool) error {
	if err := c.SetRadioPower(ctx, enabled); err != nil {
		return err
	}
	fmt.Fprintf(w, "radio %s\n", c.Radio())
	return nil
}

func runForget(ctx context.Context, w io.Writer, c *netctl.Coordinator, ssid string) error {
	if err := c.Forget(ctx, ssid); err != nil {
		return err
	}
	fmt.Fprintf(w, "forgot %s\n", ssid)
	return nil
}

// runWatch streams state transitions until interrupted.
func runWatch(ctx context.Context, w io.Writer, c *netctl.Coordinator) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	unsubscribe := c.Observe(func(change netctl.Change) {
		switch {
		case change.Radio != nil:
			fmt.Fprintf(w, "radio: %s\n", *change.Radio)
		case change.Attempt != nil:
			status := *change.Attempt
			if status.Err != nil {
				fmt.Fprintf(w, "connection: %s %s (%v)\n", status.State, status.SSID, status.Err)
			} else if status.SSID != "" {
				fmt.Fprintf(w, "connection: %s %s\n", status.State, status.SSID)
			} else {
				fmt.Fprintf(w, "connection: %s\n", status.State)
			}
		}
	})
	defer unsubscribe()

	<-ctx.Done()
	return nil
}
