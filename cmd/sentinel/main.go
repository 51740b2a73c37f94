package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raaihank/prompt-shield/internal/cache"
	"github.com/raaihank/prompt-shield/internal/config"
	"github.com/raaihank/prompt-shield/internal/logger"
	"github.com/raaihank/prompt-shield/internal/metrics"
	"github.com/raaihank/prompt-shield/internal/ner"
	"github.com/raaihank/prompt-shield/internal/privacy"
	"github.com/raaihank/prompt-shield/internal/proxy"
	"github.com/raaihank/prompt-shield/internal/websocket"
	"go.uber.org/zap"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.String("health-check", "", "Check the health endpoint at this address (e.g. localhost:8080) and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("prompt-shield %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck != "" {
		performHealthCheck(*healthCheck)
		return
	}

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting prompt-shield",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.String("config_file", loader.ConfigFile()),
	)

	if err := run(cfg, loader, log); err != nil {
		log.Fatal("prompt-shield stopped with error", zap.Error(err))
	}
}

func run(cfg *config.Config, loader *config.Loader, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	entities := ner.NewLoader(cfg.Privacy.Entities, log)
	defer entities.Close()

	detector, err := privacy.New(cfg.Privacy, log.WithComponent("privacy"),
		privacy.WithEntityRecognizer(entities.Recognizer()))
	if err != nil {
		return fmt.Errorf("failed to create privacy detector: %w", err)
	}

	opts := []proxy.Option{proxy.WithMetrics(metrics.New())}

	if cfg.Cache.Enabled {
		verdicts, err := cache.NewVerdictCache(cfg.Cache, log)
		if err != nil {
			// the API still works without a cache
			log.Warn("Verdict cache unavailable", zap.Error(err))
		} else {
			defer verdicts.Close()
			opts = append(opts, proxy.WithCache(verdicts.WithScope(detector.Fingerprint())))
		}
	}

	if cfg.WebSocket.Enabled {
		hub := websocket.NewHub(cfg.WebSocket, log)
		go hub.Run(ctx)
		opts = append(opts, proxy.WithHub(hub))
	}

	server, err := proxy.New(cfg, detector, log, opts...)
	if err != nil {
		return fmt.Errorf("failed to create proxy server: %w", err)
	}

	// Only the log level is applied live; other changes need a restart.
	loader.Watch(func(next *config.Config) {
		if err := log.SetLevel(next.Logging.Level); err != nil {
			log.Warn("Ignoring invalid log level", zap.Error(err))
			return
		}
		log.Info("Configuration reloaded", zap.String("log_level", next.Logging.Level))
	}, func(err error) {
		log.Warn("Configuration reload rejected", zap.Error(err))
	})

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- server.Start()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		log.Info("Shutdown signal received")

		// Give outstanding requests 30 seconds to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown server gracefully: %w", err)
		}

		log.Info("Server shutdown complete")
		return nil
	}
}

// performHealthCheck performs a health check against the running server
func performHealthCheck(addr string) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get("http://" + addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
}
