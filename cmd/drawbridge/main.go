package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/drawbridge/internal/app"
	"github.com/vovakirdan/drawbridge/internal/config"
	"github.com/vovakirdan/drawbridge/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		overrides  config.Config
	)

	cmd := &cobra.Command{
		Use:           "drawbridge",
		Version:       "0.1.0",
		Short:         "IRC to Discord gateway",
		Long:          "drawbridge serves Discord accounts to plain IRC clients over TCP.",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bootstrapLog := log.New(overrides.LogLevel)
			cfg, path, err := config.Load(bootstrapLog, configPath)
			if err != nil {
				return err
			}
			cfg.UpdateFrom(overrides)

			logger := log.New(cfg.LogLevel)
			logger.Info().Str("config", path).Str("listen", cfg.ListenAddr).Msg("starting drawbridge")

			application, err := app.New(&cfg, logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := application.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("gateway exited with error")
				return err
			}
			logger.Info().Msg("gateway stopped")
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "path to config file")
	flags.StringVar(&overrides.ListenAddr, "listen-addr", "", "TCP address for IRC clients")
	flags.StringVar(&overrides.StatusAddr, "status-addr", "", "HTTP address for status endpoints")
	flags.StringVar(&overrides.ServerName, "server-name", "", "hostname presented to IRC clients")
	flags.StringVar(&overrides.APIBaseURL, "api-base-url", "", "Discord REST base URL")
	flags.StringVar(&overrides.GatewayURL, "gateway-url", "", "Discord gateway websocket URL")
	flags.StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")

	return cmd
}
