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

	"github.com/cuemby/loadgen/pkg/cleanup"
	"github.com/cuemby/loadgen/pkg/config"
	"github.com/cuemby/loadgen/pkg/control"
	"github.com/cuemby/loadgen/pkg/generator"
	"github.com/cuemby/loadgen/pkg/log"
	"github.com/cuemby/loadgen/pkg/metrics"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// errInvalidArgs marks an argument-parsing failure, as distinct from an
// execution-time error, so main can pick exit code 2 instead of 1.
var errInvalidArgs = fmt.Errorf("invalid arguments")

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if err == errInvalidArgs {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "loadgen",
	Short: "Load generator for the chat application's user, chat, posts, and profile services",
	Long: `loadgen drives configurable numbers of synthetic users against the chat
application's backend services, either as a standing control plane (--web)
or as a single headless test run (--users/--duration/--ramp).`,
	Version: Version,
	RunE:    run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"loadgen version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	rootCmd.Flags().Bool("web", false, "Start the control plane and metrics server")
	rootCmd.Flags().Int("users", 10, "Number of virtual users for a headless run")
	rootCmd.Flags().String("duration", "60s", "Test duration for a headless run")
	rootCmd.Flags().String("ramp", "5/s", "Ramp-up rate for a headless run")
	rootCmd.Flags().String("config", "", "Path to a YAML configuration file")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func run(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	webMode, _ := cmd.Flags().GetBool("web")
	if webMode {
		return runWeb(cfg)
	}
	return runHeadless(cmd, cfg)
}

func runWeb(cfg *config.Config) error {
	logger := log.WithComponent("main")

	tracker := cleanup.NewTracker(cfg.UserServiceURL, cfg.ChatServiceURL, cfg.PostsServiceURL)

	metricsAddr := fmt.Sprintf(":%d", cfg.MetricsPort)
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsServer := &http.Server{Addr: metricsAddr, Handler: metricsMux}

	go func() {
		logger.Info().Str("addr", metricsAddr).Msg("main: metrics server listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("main: metrics server failed")
		}
	}()

	metricsURL := fmt.Sprintf("http://127.0.0.1:%d/metrics", cfg.MetricsPort)
	controller := control.New(cfg, tracker, metricsURL)

	webAddr := fmt.Sprintf(":%d", cfg.WebPort)
	webServer := &http.Server{Addr: webAddr, Handler: controller.Router()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", webAddr).Msg("main: control plane listening")
		if err := webServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("main: control plane failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("main: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = webServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)

	return nil
}

func runHeadless(cmd *cobra.Command, cfg *config.Config) error {
	logger := log.WithComponent("main")

	users, _ := cmd.Flags().GetInt("users")
	duration, _ := cmd.Flags().GetString("duration")
	ramp, _ := cmd.Flags().GetString("ramp")

	if users <= 0 {
		return errInvalidArgs
	}

	tracker := cleanup.NewTracker(cfg.UserServiceURL, cfg.ChatServiceURL, cfg.PostsServiceURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := generator.Run(ctx, cfg, users, duration, ramp, tracker)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	logger.Info().
		Str("status", report.Status).
		Int("users", report.Users).
		Str("duration", report.Duration).
		Msg("main: run completed")
	return nil
}
