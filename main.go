package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"

	"github.com/touchpanel/touchpanel/internal/logging"
	"github.com/touchpanel/touchpanel/netctl"
	"github.com/touchpanel/touchpanel/netctl/mock"
)

var (
	// Version is the version of the application. It is set at build time.
	Version string = "dev"
)

func main() {
	var (
		rootFlagSet = flag.NewFlagSet("touchpanel", flag.ExitOnError)
		configPath  = rootFlagSet.String("config", "", "path to config toml file (env: TOUCHPANEL_CONFIG)")
		backendName = rootFlagSet.String("backend", "", "daemon backend: networkmanager or mock (env: TOUCHPANEL_BACKEND)")
		logLevel    = rootFlagSet.String("log-level", "", "log level: debug, info, warn, error")
		version     = rootFlagSet.Bool("version", false, "display version")
	)

	var coordinator *netctl.Coordinator

	listFlagSet := flag.NewFlagSet("list", flag.ExitOnError)
	listJSON := listFlagSet.Bool("json", false, "output in JSON format")
	listCmd := &ffcli.Command{
		Name:      "list",
		ShortHelp: "List visible wifi networks",
		FlagSet:   listFlagSet,
		Exec: func(ctx context.Context, args []string) error {
			return runList(ctx, os.Stdout, *listJSON, coordinator)
		},
	}

	connectFlagSet := flag.NewFlagSet("connect", flag.ExitOnError)
	connectPassphrase := connectFlagSet.String("passphrase", "", "passphrase for the network")
	connectBSSID := connectFlagSet.String("bssid", "", "pick a specific access point by hardware address")
	connectHidden := connectFlagSet.Bool("hidden", false, "network is hidden")
	connectCmd := &ffcli.Command{
		Name:      "connect",
		ShortHelp: "Connect to a wifi network",
		FlagSet:   connectFlagSet,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("connect requires an ssid")
			}
			target := netctl.ConnectionTarget{
				SSID:   args[0],
				BSSID:  *connectBSSID,
				Secret: *connectPassphrase,
				Hidden: *connectHidden,
			}
			return runConnect(ctx, os.Stdout, coordinator, target)
		},
	}

	disconnectCmd := &ffcli.Command{
		Name:      "disconnect",
		ShortHelp: "Disconnect from the current network",
		Exec: func(ctx context.Context, args []string) error {
			return runDisconnect(ctx, os.Stdout, coordinator)
		},
	}

	radioCmd := &ffcli.Command{
		Name:       "radio",
		ShortUsage: "touchpanel radio <on|off>",
		ShortHelp:  "Turn the wifi radio on or off",
		Exec: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("radio requires on or off")
			}
			switch args[0] {
			case "on":
				return runRadio(ctx, os.Stdout, coordinator, true)
			case "off":
				return runRadio(ctx, os.Stdout, coordinator, false)
			default:
				return fmt.Errorf("radio requires on or off, got %q", args[0])
			}
		},
	}

	forgetCmd := &ffcli.Command{
		Name:      "forget",
		ShortHelp: "Delete the saved profile for a network",
		Exec: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("forget requires an ssid")
			}
			return runForget(ctx, os.Stdout, coordinator, args[0])
		},
	}

	shareFlagSet := flag.NewFlagSet("share", flag.ExitOnError)
	sharePassphrase := shareFlagSet.String("passphrase", "", "passphrase to embed in the QR code")
	shareHidden := shareFlagSet.Bool("hidden", false, "network is hidden")
	shareCmd := &ffcli.Command{
		Name:      "share",
		ShortHelp: "Print a QR code for joining a network",
		FlagSet:   shareFlagSet,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("share requires an ssid")
			}
			return runShare(os.Stdout, args[0], *sharePassphrase, *shareHidden)
		},
	}

	watchCmd := &ffcli.Command{
		Name:      "watch",
		ShortHelp: "Stream radio and connection state changes",
		Exec: func(ctx context.Context, args []string) error {
			return runWatch(ctx, os.Stdout, coordinator)
		},
	}

	root := &ffcli.Command{
		ShortUsage:  "touchpanel [flags] <subcommand> [args...]",
		FlagSet:     rootFlagSet,
		Subcommands: []*ffcli.Command{listCmd, connectCmd, disconnectCmd, radioCmd, forgetCmd, shareCmd, watchCmd},
		Exec: func(ctx context.Context, args []string) error {
			return flag.ErrHelp
		},
	}

	err := ff.Parse(rootFlagSet, os.Args[1:],
		ff.WithEnvVarPrefix("TOUCHPANEL"),
		ff.WithIgnoreUndefined(true), // Ignore subcommand flags for now
	)
	if err != nil {
		if err == flag.ErrHelp {
			root.FlagSet.Usage()
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error parsing flags: %v\n", err)
		os.Exit(1)
	}

	if *version {
		fmt.Println(Version)
		os.Exit(0)
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	if *backendName != "" {
		cfg.Backend = *backendName
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	daemon, authorizer, err := buildBackend(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer daemon.Close()

	coordinator = netctl.New(daemon, authorizer, cfg.Timeouts.netctl(), logger)
	if err := coordinator.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer coordinator.Close()

	if err := root.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// buildBackend picks the daemon and privilege broker implementations.
func buildBackend(cfg Config, logger *slog.Logger) (netctl.Daemon, netctl.Authorizer, error) {
	switch cfg.Backend {
	case "mock":
		daemon := mock.New()
		return daemon, mock.NewAuthorizer(), nil
	case "", "networkmanager":
		return newPlatformBackend(logger)
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
