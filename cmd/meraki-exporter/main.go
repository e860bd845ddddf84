// Command meraki-exporter runs the Meraki dashboard metrics exporter.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rknightion/meraki-dashboard-exporter-sub001/engine"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/config"
	"github.com/rknightion/meraki-dashboard-exporter-sub001/internal/telemetry/logging"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "meraki-exporter",
		Short: "Collects Cisco Meraki dashboard metrics and serves them to Prometheus",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (optional; env vars and defaults always apply)")

	root.AddCommand(serveCmd(), configCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the exporter until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Inspect the effective configuration"}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Print the effective configuration (API key redacted) as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			yaml, err := config.DumpYAML(*cfg)
			if err != nil {
				return err
			}
			fmt.Print(yaml)
			return nil
		},
	})
	return cfgCmd
}

func runServe() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	base := newSlogLogger(cfg.Log)
	log := logging.New(base)

	eng, err := engine.New(cfg, engine.WithLogger(log))
	if err != nil {
		return fmt.Errorf("constructing engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if configPath != "" {
		watcher := config.NewWatcher(configPath,
			func(*config.Config) {
				base.Info("configuration reloaded", "path", configPath)
			},
			func(keys []string) {
				base.Warn("ignored config reload touching restart-only keys", "keys", strings.Join(keys, ","))
			},
		)
		go func() {
			if err := watcher.Start(ctx); err != nil && ctx.Err() == nil {
				base.Warn("config watcher stopped", "error", err.Error())
			}
		}()
	}

	go func() {
		<-ctx.Done()
		base.Info("shutdown signal received, stopping gracefully")
		// A second signal forces an immediate exit for an operator who does
		// not want to wait out the graceful drain.
		hard := make(chan os.Signal, 1)
		signal.Notify(hard, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-hard:
			base.Warn("second signal received, exiting immediately")
			os.Exit(1)
		case <-time.After(15 * time.Second):
		}
	}()

	base.Info("starting exporter", "addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	if err := eng.Run(ctx); err != nil {
		return fmt.Errorf("engine run: %w", err)
	}
	return nil
}

func newSlogLogger(cfg config.LogConfig) *slog.Logger {
	var writer io.Writer = os.Stdout
	if cfg.Filename != "" {
		writer = &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
