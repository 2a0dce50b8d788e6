package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/blazealert/internal/api"
	"github.com/good-yellow-bee/blazealert/internal/api/health"
	"github.com/good-yellow-bee/blazealert/internal/clock"
	"github.com/good-yellow-bee/blazealert/internal/detector"
	"github.com/good-yellow-bee/blazealert/internal/dispatch"
	"github.com/good-yellow-bee/blazealert/internal/mailer"
	"github.com/good-yellow-bee/blazealert/internal/metrics"
	"github.com/good-yellow-bee/blazealert/pkg/config"
)

var (
	configFile  string
	httpAddr    string
	metricsAddr string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "alertd",
	Short: "BlazeAlert - failure detection and alert delivery daemon",
	Long: `BlazeAlert watches failure reports from background job workers,
escalates repeated failures, and delivers debounced email notifications.`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("alertd %s\n", config.Version)
		fmt.Printf("  commit: %s\n", config.Commit)
		fmt.Printf("  built:  %s\n", config.BuildTime)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&httpAddr, "address", "a", "", "HTTP API listen address")
	rootCmd.PersistentFlags().StringVarP(&metricsAddr, "metrics-address", "m", "", "metrics listen address")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	var cfg *Config

	// Load configuration from file if provided
	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
	}

	// Override with CLI flags
	if httpAddr != "" {
		cfg.Server.HTTPAddress = httpAddr
	}
	if metricsAddr != "" {
		cfg.Server.MetricsAddress = metricsAddr
	}
	cfg.Verbose = verbose

	if cfg.SMTP.Host == "" {
		return fmt.Errorf("smtp.host is required (set it in the config file)")
	}

	// Mail transport
	transport, err := mailer.NewSMTPTransport(cfg.SMTPSettings())
	if err != nil {
		return fmt.Errorf("smtp transport: %w", err)
	}

	renderer, err := mailer.NewRenderer()
	if err != nil {
		return fmt.Errorf("templates: %w", err)
	}

	// Alert dispatcher
	dispatcher, err := dispatch.New(cfg.DispatchConfig(), transport, renderer, clock.Real())
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}

	// Failure detector, escalating into the dispatcher
	det := detector.New(cfg.DetectorSettings(), dispatcher, clock.Real())

	// HTTP API
	apiCfg := &api.Config{
		Address:         cfg.Server.HTTPAddress,
		HTTPTLSEnabled:  cfg.Server.TLS.Enabled,
		HTTPTLSCertFile: cfg.Server.TLS.CertFile,
		HTTPTLSKeyFile:  cfg.Server.TLS.KeyFile,
		RateLimitPerIP:  cfg.Server.RateLimitPerIP,
		Verbose:         cfg.Verbose,
	}
	srv, err := api.New(apiCfg, det, dispatcher)
	if err != nil {
		return fmt.Errorf("create API server: %w", err)
	}
	srv.RegisterHealthChecker(health.NewSMTPChecker(transport))
	srv.RegisterHealthChecker(health.NewDispatcherChecker(dispatcher.Enabled))

	metricsSrv := metrics.NewServer(cfg.Server.MetricsAddress)

	// Setup signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("starting alertd %s", config.Version)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Run(gctx)
	})

	g.Go(func() error {
		errChan := make(chan error, 1)
		go func() {
			if err := metricsSrv.Start(); err != nil {
				errChan <- err
			}
		}()
		select {
		case <-gctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		case err := <-errChan:
			return err
		}
	})

	// Hot reload of detection thresholds and the alerting switch
	if configFile != "" {
		watcher, err := newConfigWatcher(configFile, det, dispatcher)
		if err != nil {
			return fmt.Errorf("config watcher: %w", err)
		}
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	err = g.Wait()

	// Flush pending alert buckets before exiting.
	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if closeErr := dispatcher.Close(closeCtx); closeErr != nil {
		log.Printf("dispatcher close: %v", closeErr)
	}

	if err != nil && err != context.Canceled {
		return fmt.Errorf("run: %w", err)
	}

	log.Printf("alertd stopped")
	return nil
}
