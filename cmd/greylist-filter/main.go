package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mikey/greylist-filter/internal/config"
	"github.com/mikey/greylist-filter/internal/di"
	"github.com/mikey/greylist-filter/internal/metrics"
	"github.com/mikey/greylist-filter/internal/ports"
	"github.com/mikey/greylist-filter/internal/whitelist"
)

func main() {
	configFile := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Build the dependency injection container
	container, err := di.BuildContainer(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	cfg *config.Config,
	logger *zap.Logger,
	emailFilter ports.EmailFilter,
	store ports.GreylistStore,
	holder *whitelist.Holder,
	collector *metrics.Collector,
) error {
	defer logger.Sync()
	defer store.Stop()

	if addr := cfg.GetMetrics().ListenAddress; addr != "" {
		metricsServer := metrics.NewServer(addr, collector, logger)
		if err := metricsServer.Start(); err != nil {
			return err
		}
		defer metricsServer.Stop()
	}

	// Start the filter
	if err := emailFilter.Start(); err != nil {
		logger.Error("Failed to start filter", zap.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	whitelistFile := cfg.GetGreylist().WhitelistFile
	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			// Readers keep the previous list until the new one is complete
			if err := holder.Reload(whitelistFile); err != nil {
				logger.Warn("Whitelist reload failed, keeping current list", zap.Error(err))
			}
			continue
		}
		break
	}
	logger.Info("Shutting down...")

	// Stop the filter
	if err := emailFilter.Stop(); err != nil {
		logger.Error("Failed to stop filter", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	return nil
}
