package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/storjmonitor/pkg/app"
	"github.com/cuemby/storjmonitor/pkg/config"
	"github.com/cuemby/storjmonitor/pkg/dashboard"
	"github.com/cuemby/storjmonitor/pkg/log"
	"github.com/cuemby/storjmonitor/pkg/metrics"
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
	Use:   "storjmonitor",
	Short: "Storj Monitor - multi-node operational dashboard for storage daemons",
	Long: `Storj Monitor tails per-node storage daemon logs, pairs operation
start and completion records into latencies, stores events in a local
database with hourly roll-ups and retention pruning, and serves a
live-updating dashboard over a websocket.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"storjmonitor version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitor: ingest node logs and serve the dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		nodeFlags, _ := cmd.Flags().GetStringArray("node")

		cfg, err := config.Load(configPath, nodeFlags)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		metrics.SetVersion(Version)

		a, err := app.New(cfg)
		if err != nil {
			return fmt.Errorf("build app: %w", err)
		}
		metrics.RegisterComponent("store", true, "")
		metrics.RegisterComponent("broadcaster", true, "")

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/health", metrics.HealthHandler())
		mux.HandleFunc("/ready", metrics.ReadyHandler())
		mux.HandleFunc("/live", metrics.LivenessHandler())
		mux.HandleFunc("/api/nodes", a.NodesHandler())
		mux.HandleFunc("/ws", dashboard.Handler(a.Hub, a.Store, a.NodeNames()))

		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{Addr: addr, Handler: mux}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go a.Run(ctx)

		go func() {
			log.Logger.Info().Str("addr", addr).Msg("http server listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Logger.Error().Err(err).Msg("http server failed")
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		log.Logger.Info().Msg("shutdown signal received")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Logger.Warn().Err(err).Msg("http server shutdown error")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().String("config", "", "Path to storjmonitor.yaml (optional; env vars and --node flags still apply)")
	serveCmd.Flags().StringArray("node", nil, "Node in NAME:/path/to/log or NAME:host:port form; repeatable")
}
