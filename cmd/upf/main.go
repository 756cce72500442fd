// Command upf runs the User Plane Function: a PFCP control endpoint, a
// GTP-U data plane, and an admin/metrics HTTP surface.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ngfabric/upf/internal/config"
	"github.com/ngfabric/upf/internal/dataplane"
	"github.com/ngfabric/upf/internal/gtpu"
	"github.com/ngfabric/upf/internal/metrics"
	"github.com/ngfabric/upf/internal/n6"
	"github.com/ngfabric/upf/internal/pfcp"
	"github.com/ngfabric/upf/internal/server"
	"github.com/ngfabric/upf/internal/session"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "upf",
		Short: "5G User Plane Function",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/upf.yaml", "path to configuration file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the UPF",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("upf %s (built %s)\n", version, buildTime)
			return nil
		},
	}

	root.AddCommand(serveCmd, versionCmd)
	root.RunE = serveCmd.RunE

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(configPath string) error {
	logger := newLogger()
	defer logger.Sync()

	logger.Info("starting upf", zap.String("version", version), zap.String("build_time", buildTime))

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("configuration loaded",
		zap.String("pfcp_address", cfg.PFCPAddress()),
		zap.String("n3_address", cfg.N3Address()),
		zap.String("node_id", cfg.PFCP.NodeID))

	store := session.NewStore(cfg.Forwarding.MaxSessions)

	nodeIPv4, err := nodeIDToIPv4(cfg.PFCP.NodeID)
	if err != nil {
		return fmt.Errorf("parse pfcp.node_id: %w", err)
	}
	startTime := uint32(time.Now().Unix())
	handler := pfcp.NewHandler(store, logger, nodeIPv4, startTime)
	pfcpListener := pfcp.NewListener(handler, logger)

	queue := dataplane.NewQueue(cfg.Forwarding.QueueDepth)

	var device n6.Device
	if cfg.N6.InterfaceName != "" {
		device, err = n6.OpenExisting(cfg.N6.InterfaceName)
		if err != nil {
			logger.Warn("n6 device unavailable, N6 egress will fail until configured", zap.Error(err))
		}
	}

	gtpuServer := gtpu.NewServer(queue, device, logger)
	if err := gtpuServer.ListenN3(cfg.N3Address()); err != nil {
		return fmt.Errorf("listen n3: %w", err)
	}
	if cfg.N9.Enabled {
		if err := gtpuServer.ListenN9(cfg.N9Address()); err != nil {
			return fmt.Errorf("listen n9: %w", err)
		}
	}

	reg := metrics.New()
	handler.SetCounters(reg)
	natCfg := dataplane.NATConfig{PortRangeLo: cfg.N6.NATPortLo, PortRangeHi: cfg.N6.NATPortHi}
	if ip, err := parseIPv4(cfg.N6.PublicIP); err == nil {
		natCfg.PublicIP = ip
	}
	pool := dataplane.NewPool(queue, store, gtpuServer, natCfg, logger, cfg.Forwarding.Workers, reg)

	adminServer := server.NewServer(cfg, store, handler, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 4)
	go func() {
		if err := pfcpListener.Run(ctx, cfg.PFCPAddress()); err != nil {
			errCh <- fmt.Errorf("pfcp listener: %w", err)
		}
	}()
	go gtpuServer.Run(ctx)
	go pool.Run(ctx)
	go func() {
		if err := adminServer.Start(":9096"); err != nil {
			errCh <- fmt.Errorf("admin server: %w", err)
		}
	}()
	if cfg.Observability.Metrics.Enabled {
		metricsServer := metrics.NewServer(reg, cfg.Observability.Metrics.Port, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	logger.Info("upf started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("subsystem failed", zap.Error(err))
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Forwarding.DrainGrace)
	defer shutdownCancel()
	if err := adminServer.Stop(shutdownCtx); err != nil {
		logger.Error("error stopping admin server", zap.Error(err))
	}
	if device != nil {
		_ = device.Close()
	}

	logger.Info("upf shutdown complete")
	return nil
}

// nodeIDToIPv4 parses the configured PFCP Node ID as a dotted-quad IPv4
// address (§6's Node ID type 0, the only form this UPF emits).
func nodeIDToIPv4(nodeID string) ([4]byte, error) {
	ip, err := parseIPv4(nodeID)
	if err != nil {
		return [4]byte{}, err
	}
	var out [4]byte
	copy(out[:], ip)
	return out, nil
}

func parseIPv4(s string) (net.IP, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("invalid ipv4 address %q", s)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("%q is not an ipv4 address", s)
	}
	return ip4, nil
}

func newLogger() *zap.Logger {
	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zap.InfoLevel),
		Encoding:         "json",
		EncoderConfig:    encoderCfg,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	logger, _ := cfg.Build()
	return logger
}
