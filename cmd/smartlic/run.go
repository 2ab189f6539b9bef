package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joshp123/smartlicensing/internal/artifact"
	"github.com/joshp123/smartlicensing/internal/config"
	"github.com/joshp123/smartlicensing/internal/logging"
	"github.com/joshp123/smartlicensing/internal/metrics"
	"github.com/joshp123/smartlicensing/internal/notify"
	"github.com/joshp123/smartlicensing/internal/oauth"
	"github.com/joshp123/smartlicensing/internal/rate"
	"github.com/joshp123/smartlicensing/internal/smartaccount"
	"github.com/joshp123/smartlicensing/internal/workflow"
)

type workflowFunc func(*workflow.Runner, context.Context) error

func workflowCmd(name, short string, run workflowFunc) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := execute(ctx, name, run); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
				return err
			}
			return nil
		},
	}
}

func execute(ctx context.Context, name string, run workflowFunc) error {
	cfg, err := config.Load(config.DefaultEnvFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(name); err != nil {
		return err
	}

	logger, closer, err := logging.New(logging.Config{Debug: cfg.Debug, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer closer.Close()
	slog.SetDefault(logger)

	registry := metrics.Registry(
		oauth.MetricsCollectors(),
		rate.MetricsCollectors(),
		smartaccount.MetricsCollectors(),
		artifact.MetricsCollectors(),
		workflow.MetricsCollectors(),
	)
	defer func() {
		if err := metrics.WriteTextfile(cfg.MetricsFile, registry); err != nil {
			logger.Warn("write metrics textfile failed", "path", cfg.MetricsFile, "err", err)
		}
	}()

	clientCfg := cfg.ClientConfig()
	clientCfg.Logger = logger
	client, err := smartaccount.NewClient(clientCfg)
	if err != nil {
		return err
	}
	logger.Debug("poll budget", "timeout", cfg.PollTimeout(), "unbounded", cfg.Poll.Unbounded)

	writer := artifact.Writer{Logger: logger}
	if cfg.Blob.Enabled() {
		store, err := artifact.NewS3Store(cfg.Blob, cfg.Device.Serial)
		if err != nil {
			return err
		}
		writer.Mirror = store
	}

	events, err := notify.New(cfg.MQTT)
	if err != nil {
		logger.Warn("event publisher unavailable", "broker", cfg.MQTT.Broker, "err", err)
		events = notify.Nop{}
	}
	defer events.Close()

	runner := &workflow.Runner{
		API:         client,
		Device:      cfg.Device,
		LicenseTag:  cfg.LicenseTag,
		UsageFile:   cfg.UsageFile,
		LicenseFile: cfg.LicenseFile,
		AckFile:     cfg.AckFile,
		Artifacts:   writer,
		Events:      events,
		Out:         os.Stdout,
		In:          os.Stdin,
		Logger:      logger,
	}
	return run(runner, ctx)
}
