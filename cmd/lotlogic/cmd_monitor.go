package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/PhotisTheo/LotLogic-sub001/internal/config"
	"github.com/PhotisTheo/LotLogic-sub001/internal/metrics"
	"github.com/PhotisTheo/LotLogic-sub001/internal/ops"
)

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Serve the diagnostics endpoints until interrupted",
		Long: `Runs the standalone diagnostics server (/health and /metrics). Useful as
a liveness target when batches are scheduled externally; compute runs embed
the same server via --metrics-addr.`,
		RunE: runMonitor,
	}
	cmd.Flags().String("config", "", "Path to YAML config file")
	cmd.Flags().String("addr", "", "Listen address (overrides ops.addr)")
	return cmd
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	serverCfg := ops.DefaultServerConfig()
	if cfg.Ops.Addr != "" {
		serverCfg.Addr = cfg.Ops.Addr
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		serverCfg.Addr = addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := ops.NewServer(serverCfg, metrics.NewRegistry(), version)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
