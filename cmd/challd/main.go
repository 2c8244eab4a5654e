// Command challd is the per-guest challenge sandbox broker daemon: it
// listens on a local Unix socket and, on request, launches a time-limited
// container with an optional WireGuard tunnel into it.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/docker/docker/client"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"challd/internal/alloc"
	"challd/internal/config"
	"challd/internal/daemon"
	"challd/internal/logging"
	"challd/internal/netcfg"
	"challd/internal/sandbox"
	"challd/internal/tunnel"
)

func main() {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	if err := logging.Configure(logging.LevelInfo); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := rootCmd().Execute(); err != nil {
		slog.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	var debug bool

	cmd := &cobra.Command{
		Use:   "challd",
		Short: "Per-guest challenge sandbox broker daemon",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelInfo
			if debug {
				level = logging.LevelDebug
			}
			return logging.Configure(level)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, configPath)
		},
	}

	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	cmd.Flags().StringVar(&configPath, "config", os.Getenv("CHALLD_CONFIG"), "path to YAML config file")
	return cmd
}

// run brings up every shared resource (component B/C, the docker client,
// the address allocator) in order, then blocks serving requests until ctx
// is cancelled.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	sandbox.SetGVisorRuntime(cfg.Features.GVisorRuntime)

	docker, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithHost(cfg.DockerHost),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return fmt.Errorf("connect to docker at %s: %w", cfg.DockerHost, err)
	}
	defer docker.Close()

	dummy, err := netcfg.Create(ctx)
	if err != nil {
		return fmt.Errorf("create dummy link: %w", err)
	}
	defer func() {
		if err := dummy.Close(context.Background()); err != nil {
			slog.Error("delete dummy link", "err", err)
		}
	}()

	tun, err := tunnel.BringUp(ctx, cfg.WireGuardPort, cfg.Endpoint)
	if err != nil {
		return fmt.Errorf("bring up wireguard device: %w", err)
	}

	slots := alloc.New(cfg.MaxInstances)
	d := daemon.New(cfg, sandbox.NewDockerRuntime(docker), dummy, tun, slots)

	slog.Info("challd starting",
		"socket", cfg.SocketPath,
		"max_instances", cfg.MaxInstances,
		"wireguard_port", cfg.WireGuardPort,
		"endpoint", cfg.Endpoint,
	)
	return d.ListenAndServe(ctx)
}
