// Command navid is the navid application server: it loads configuration,
// stands up one Driver per configured listener, and dispatches accepted
// connections through the URL Space into registered operations.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"os/user"
	"strconv"
	"syscall"

	"github.com/navispace/navid/internal/admin"
	"github.com/navispace/navid/internal/config"
	"github.com/navispace/navid/internal/logger"
	"github.com/navispace/navid/internal/metrics"
	"github.com/navispace/navid/internal/telemetry"
	"github.com/navispace/navid/pkg/cache"
	"github.com/navispace/navid/pkg/dispatch"
	"github.com/navispace/navid/pkg/driver"
	"github.com/navispace/navid/pkg/scheduler"
	"github.com/navispace/navid/pkg/urlspace"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	configPath  string
	foreground  bool
	runAsUser   string
	runAsGroup  string
	rootDir     string
	serverKey   string
)

func main() {
	root := &cobra.Command{
		Use:   "navid",
		Short: "navid application server",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	root.PersistentFlags().BoolVarP(&foreground, "foreground", "f", false, "stay attached to the controlling terminal")
	root.PersistentFlags().StringVarP(&runAsUser, "user", "u", "", "drop privileges to this user after binding listeners")
	root.PersistentFlags().StringVarP(&runAsGroup, "group", "g", "", "drop privileges to this group after binding listeners")
	root.PersistentFlags().StringVarP(&rootDir, "root", "r", "", "chdir into this directory before serving")
	root.PersistentFlags().StringVarP(&serverKey, "server", "s", "", "override the URL Space server key every driver resolves against")

	root.AddCommand(startCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("navid %s\n", version)
			return nil
		},
	}
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "start the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	if rootDir != "" {
		if err := os.Chdir(rootDir); err != nil {
			return fmt.Errorf("chdir %s: %w", rootDir, err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("initializing profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("metrics enabled", "port", cfg.Metrics.Port)
	}

	if err := dropPrivileges(runAsUser, runAsGroup); err != nil {
		return fmt.Errorf("dropping privileges: %w", err)
	}

	junction := urlspace.NewJunction()
	sched := scheduler.New()
	defer sched.Stop()

	mainCache := cache.New(cfg.Cache.Name, uint64(cfg.Cache.MaxSize), cfg.Cache.TTL, nil)
	caches := map[string]*cache.Cache{mainCache.Name: mainCache}

	if cfg.Scheduler.CacheSweepInterval > 0 {
		sched.ScheduleProcEx(func() {
			logger.Debug("cache sweep fired")
		}, 0, cfg.Scheduler.CacheSweepInterval, nil)
	}

	if cfg.Admin.Enabled {
		adminSrv := admin.NewServer(junction, caches, sched, cfg.Admin.JWTSigningKey)
		go func() {
			logger.Info("admin API listening", "address", cfg.Admin.Address)
			if err := http.ListenAndServe(cfg.Admin.Address, adminSrv.Router()); err != nil && err != http.ErrServerClosed {
				logger.Error("admin API stopped", "error", err)
			}
		}()
	}

	dispatchMetrics := metrics.NewDispatchMetrics()

	var listeners []driver.Listener
	defer func() {
		for _, l := range listeners {
			_ = l.Close()
		}
	}()

	for _, dc := range cfg.Drivers {
		key := dc.Key
		if serverKey != "" {
			key = serverKey
		}

		d := driver.NewTCPDriver(dc.Name, defaultPortOf(dc.Address), "http")
		ln, err := d.Listen(dc.Address)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", dc.Address, err)
		}
		listeners = append(listeners, ln)

		disp := dispatch.New(junction, key)
		if dc.MaxRequestSize > 0 {
			disp.WithLimits(dispatch.Limits{
				MaxRequestURI: int(dc.MaxRequestSize),
				MaxLineLength: dispatch.DefaultLimits.MaxLineLength,
				MaxHeaders:    dispatch.DefaultLimits.MaxHeaders,
			})
		}
		disp.WithBodyLimits(int64(dc.MaxBodySize), int64(cfg.SpoolThreshold), cfg.TmpDir)
		disp.WithKeepalive(dc.MaxKeepaliveRequests)

		if dc.TrustedProxyHeader != "" {
			cidrs, err := parseTrustedProxyCIDRs(dc.TrustedProxyCIDRs)
			if err != nil {
				return fmt.Errorf("driver %s: trusted_proxy_cidrs: %w", dc.Name, err)
			}
			disp.TrustProxyHeader(dc.TrustedProxyHeader, cidrs)
		}

		logger.Info("driver listening", "name", dc.Name, "address", dc.Address, "key", key)
		go acceptLoop(ctx, ln, disp, dispatchMetrics, dc.Key)
	}

	if err := dropPrivileges(runAsUser, runAsGroup); err != nil {
		return fmt.Errorf("dropping privileges: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("navid is running", "drivers", len(cfg.Drivers))
	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case <-ctx.Done():
	}
	return nil
}

func acceptLoop(ctx context.Context, ln driver.Listener, disp *dispatch.Dispatcher, m metrics.DispatchMetrics, driverKey string) {
	for {
		sock, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			logger.Error("accept error", "error", err)
			return
		}
		go func() {
			outcome := disp.Serve(sock)
			if m != nil {
				m.ObserveRequest(driverKey, "", int(outcome), 0)
			}
		}()
	}
}

// parseTrustedProxyCIDRs parses a driver's trusted_proxy_cidrs entries into
// netip.Prefix values for resolvePeer's CIDR gate.
func parseTrustedProxyCIDRs(cidrs []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(c)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", c, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func defaultPortOf(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}

func dropPrivileges(userName, groupName string) error {
	if groupName != "" {
		g, err := user.LookupGroup(groupName)
		if err != nil {
			return fmt.Errorf("looking up group %s: %w", groupName, err)
		}
		gid, err := strconv.Atoi(g.Gid)
		if err != nil {
			return err
		}
		if err := syscall.Setgid(gid); err != nil {
			return fmt.Errorf("setgid %d: %w", gid, err)
		}
	}
	if userName != "" {
		u, err := user.Lookup(userName)
		if err != nil {
			return fmt.Errorf("looking up user %s: %w", userName, err)
		}
		uid, err := strconv.Atoi(u.Uid)
		if err != nil {
			return err
		}
		if err := syscall.Setuid(uid); err != nil {
			return fmt.Errorf("setuid %d: %w", uid, err)
		}
	}
	return nil
}
