package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xww/neutron-monitor-agent/pkg/agent"
	"github.com/xww/neutron-monitor-agent/pkg/config"
	"github.com/xww/neutron-monitor-agent/pkg/driver"
	"github.com/xww/neutron-monitor-agent/pkg/log"
	"github.com/xww/neutron-monitor-agent/pkg/metrics"
	"github.com/xww/neutron-monitor-agent/pkg/remote"
	"github.com/xww/neutron-monitor-agent/pkg/types"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "monitor-agent",
	Short: "Node-resident monitor reconciliation agent",
	Long: `monitor-agent keeps the set of monitors enforced on this host
consistent with the authoritative definition held by the control plane,
combining periodic full resynchronization with event-driven incremental
updates, and reports agent liveness back on a heartbeat.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"monitor-agent version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(driversCmd)

	runCmd.Flags().String("config", "/etc/monitor-agent/agent.yaml", "Path to the agent configuration file")
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitor agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		log.Init(log.Config{
			Level:      cfg.LogLevel,
			JSONOutput: cfg.LogJSON,
		})
		metrics.SetVersion(Version)

		return runAgent(cmd.Context(), cfg)
	},
}

var driversCmd = &cobra.Command{
	Use:   "drivers",
	Short: "List the available monitor drivers",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range driver.Names() {
			fmt.Println(name)
		}
		return nil
	},
}

func runAgent(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	state, err := config.LoadOrCreateState(cfg.DataDir, cfg.Host)
	if err != nil {
		return fmt.Errorf("failed to load agent state: %w", err)
	}

	rc, err := remote.NewHTTPClient(remote.HTTPConfig{
		BaseURL: cfg.ControlPlaneURL,
		Host:    cfg.Host,
	})
	if err != nil {
		return fmt.Errorf("failed to create control plane client: %w", err)
	}

	drv, err := driver.Open(ctx, cfg.Driver, driver.Options{
		DataDir:             cfg.DataDir,
		Remote:              rc,
		PingTimeout:         cfg.PingTimeout(),
		PingInterval:        cfg.PingInterval(),
		PingReportThreshold: cfg.PingReportThreshold(),
	})
	if err != nil {
		return fmt.Errorf("failed to open driver %q: %w", cfg.Driver, err)
	}
	defer drv.Close()

	engine := agent.NewEngine(drv, rc, cfg.ResyncInterval())

	heartbeat := &types.AgentState{
		Binary:     "monitor-agent",
		Host:       cfg.Host,
		Topic:      cfg.Topic,
		AgentType:  cfg.Driver,
		InstanceID: state.InstanceID,
		StartFlag:  true,
	}
	reporter := agent.NewStateReporter(engine, rc, cfg.ReportInterval(), heartbeat)

	poller := remote.NewPoller(rc, cfg.PollInterval())
	dispatcher := agent.NewDispatcher(engine, poller)

	log.Logger.Info().
		Str("host", cfg.Host).
		Str("driver", cfg.Driver).
		Str("control_plane", cfg.ControlPlaneURL).
		Str("instance_id", state.InstanceID).
		Msg("monitor agent starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error { return reporter.Run(gctx) })
	g.Go(func() error { return poller.Run(gctx) })
	g.Go(func() error { return dispatcher.Run(gctx) })

	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.MetricsAddr) })
	}

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	log.Info("monitor agent stopped")
	return nil
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/livez", metrics.LivenessHandler())

	server := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("metrics server error: %w", err)
	}
}
