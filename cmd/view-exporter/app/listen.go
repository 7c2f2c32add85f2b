package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	exporter "github.com/stacklok/view-exporter/internal/app"
	"github.com/stacklok/view-exporter/internal/config"
)

func newListenCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Export every resource and re-export on change notifications",
		Long: `Connect to the local database over its unix socket as --user, export every
resource once and then re-export resources named in notifications on the
"tms" channel. Notifications arriving close together are coalesced so each
resource is fetched at most once per poll window.

When --host is given every written file is copied to the same path on that
host over SFTP, authenticating through the running ssh-agent.

The command only returns on a fatal error or on SIGINT/SIGTERM; a supervisor
is expected to restart it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runListen(cmd.Context(), v)
		},
	}

	cmd.Flags().String("user", "", "Identity used as database user and default SSH user (required)")
	cmd.Flags().String("host", "", "Remote host to mirror written files to")
	cmd.Flags().String("config", "", "Path to configuration file (YAML format)")
	cmd.Flags().String("address", "", "Address of the status HTTP endpoint, e.g. 127.0.0.1:9090")

	for _, name := range []string{"user", "host", "config", "address"} {
		if err := v.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			slog.Error("Failed to bind flag", "flag", name, "error", err)
		}
	}

	return cmd
}

func runListen(ctx context.Context, v *viper.Viper) error {
	if ctx == nil {
		ctx = context.Background()
	}

	identity := v.GetString("user")
	if identity == "" {
		return fmt.Errorf("--user is required")
	}

	cfg, err := loadConfig(v.GetString("config"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exporterApp, err := exporter.NewExporterApp(ctx,
		exporter.WithConfig(cfg),
		exporter.WithIdentity(identity),
		exporter.WithMirrorHost(v.GetString("host")),
		exporter.WithStatusAddress(v.GetString("address")),
	)
	if err != nil {
		return fmt.Errorf("failed to build exporter: %w", err)
	}

	slog.Info("Starting view exporter",
		"user", identity,
		"host", v.GetString("host"),
		"output_dir", config.OutputDir)

	if err := exporterApp.Run(ctx); err != nil {
		return fmt.Errorf("exporter failed: %w", err)
	}
	return nil
}

// loadConfig reads the configuration file, or returns defaults when path is empty
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		slog.Info("No configuration file given, using defaults")
		return &config.Config{}, nil
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	slog.Info("Loaded configuration", "path", path, "resources", len(cfg.Resources))
	return cfg, nil
}
