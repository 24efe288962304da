// Package main is the entry point for the LumenBridge server.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bbernstein/lumenbridge-go/internal/api"
	"github.com/bbernstein/lumenbridge-go/internal/config"
	"github.com/bbernstein/lumenbridge-go/internal/database"
	"github.com/bbernstein/lumenbridge-go/internal/metrics"
	"github.com/bbernstein/lumenbridge-go/internal/services/capability"
	"github.com/bbernstein/lumenbridge-go/internal/services/discovery"
	"github.com/bbernstein/lumenbridge-go/internal/services/health"
	"github.com/bbernstein/lumenbridge-go/internal/services/ingest"
	"github.com/bbernstein/lumenbridge-go/internal/services/mapping"
	"github.com/bbernstein/lumenbridge-go/internal/services/merger"
	"github.com/bbernstein/lumenbridge-go/internal/services/poller"
	"github.com/bbernstein/lumenbridge-go/internal/services/protocol"
	"github.com/bbernstein/lumenbridge-go/internal/services/pubsub"
	"github.com/bbernstein/lumenbridge-go/internal/services/sender"
	"github.com/bbernstein/lumenbridge-go/internal/store"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Load .env file if present
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	printBanner(cfg)

	// Connect to database
	db, err := database.Connect(database.Config{
		URL:         cfg.DatabaseURL,
		MaxIdleConn: 5,
		MaxOpenConn: 10,
		Debug:       cfg.IsDevelopment(),
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close(db) }()

	log.Println("Running database migrations...")
	if err := store.Migrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database migrations complete")

	st := store.New(db)

	// Observability and events
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	bus := pubsub.New()

	// Capability resolution: catalog for Govee/WiZ, device-reported for LIFX
	catalog, err := capability.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		log.Fatalf("Failed to load capability catalog: %v", err)
	}
	caps := capability.NewResolver(catalog, capability.Reported{})

	// Protocol handlers
	handlers := protocol.NewRegistry()
	handlers.Register(protocol.NewGoveeHandler())
	handlers.Register(protocol.NewLIFXHandler())

	// Mapping engine
	engine := mapping.NewEngine(mapping.Config{
		Debounce:        cfg.Debounce,
		TraceContextIDs: cfg.TraceContextIDs,
		TraceSampleRate: cfg.TraceContextSampleRate,
	}, st, bus, caps, m)
	if err := engine.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start mapping engine: %v", err)
	}

	// Priority merger feeding the engine and the live monitor
	mrg := merger.New(merger.DefaultTimeout, m)
	frameSink := func(frame *ingest.Frame) {
		winner, won := mrg.Ingest(frame)
		if !won {
			return
		}
		engine.HandleFrame(winner)
		bus.Publish(pubsub.TopicDMXOutput, winner)
	}

	sweepStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-sweepStop:
				return
			case <-ticker.C:
				mrg.ExpireStale()
			}
		}
	}()

	// DMX ingress
	artnetListener := ingest.NewArtNetListener(ingest.ArtNetConfig{
		Port:       cfg.ArtNetPort,
		SampleRate: cfg.NoisyLogSampleRate,
	}, frameSink, m)
	if err := artnetListener.Start(); err != nil {
		log.Fatalf("Failed to start Art-Net listener: %v", err)
	}

	sacnListener, err := ingest.NewSACNListener(ingest.SACNConfig{
		Port:       cfg.SACNPort,
		Multicast:  cfg.SACNMulticast,
		Universes:  cfg.SACNUniverses,
		SampleRate: cfg.NoisyLogSampleRate,
	}, frameSink, m)
	if err != nil {
		log.Fatalf("Failed to create sACN listener: %v", err)
	}
	if err := sacnListener.Start(); err != nil {
		log.Fatalf("Failed to start sACN listener: %v", err)
	}

	// Sender workers
	var transport sender.Transport = sender.UDPTransport{}
	if cfg.DryRun {
		log.Println("🔄 Dry-run mode: no device traffic will be sent")
		transport = sender.NopTransport{}
	}
	sendService := sender.New(sender.Config{
		WorkerCount:       cfg.SenderWorkerCount,
		MaxSendRate:       cfg.DeviceMaxSendRate,
		SendBurst:         cfg.DeviceSendBurst,
		BackoffBase:       cfg.DeviceBackoffBase,
		BackoffFactor:     cfg.DeviceBackoffFactor,
		BackoffMax:        cfg.DeviceBackoffMax,
		MaxAttempts:       cfg.DeviceMaxSendAttempts,
		QueuePollInterval: cfg.DeviceQueuePollInterval,
		IdleWait:          cfg.DeviceIdleWait,
		CommandSpacing:    cfg.GoveeCommandSpacing,
		ShutdownGrace:     cfg.ShutdownGrace,
	}, st, handlers, transport, m)
	sendService.Start()

	// Liveness poller
	monitor := health.NewMonitor(cfg.SubsystemFailureThreshold, cfg.SubsystemFailureCooldown)
	pollService := poller.New(poller.Config{
		Enabled:          cfg.DevicePollEnabled,
		Interval:         cfg.DevicePollInterval,
		Timeout:          cfg.DevicePollTimeout,
		OfflineThreshold: cfg.DevicePollOfflineThreshold,
		RatePerSecond:    cfg.DevicePollRatePerSecond,
		RateBurst:        cfg.DevicePollRateBurst,
		BatchSize:        cfg.DevicePollBatchSize,
		DryRun:           cfg.DryRun,
	}, st, handlers, monitor, m)
	pollService.Start()

	// Discovery
	discoveryService := discovery.New(discovery.Config{
		MulticastAddress: cfg.DiscoveryMulticastAddress,
		MulticastPort:    cfg.DiscoveryMulticastPort,
		Interval:         cfg.DiscoveryInterval,
		ResponseTimeout:  cfg.DiscoveryResponseTimeout,
		StaleAfter:       cfg.DiscoveryStaleAfter,
		ManualProbes:     cfg.ManualUnicastProbes,
		DryRun:           cfg.DryRun,
		GoveeListenPort:  discovery.DefaultConfig().GoveeListenPort,
		LIFXListenPort:   discovery.DefaultConfig().LIFXListenPort,
		LIFXBroadcast:    discovery.DefaultConfig().LIFXBroadcast,
	}, st, m)
	if err := discoveryService.Start(); err != nil {
		log.Fatalf("Failed to start discovery: %v", err)
	}

	// Status API
	apiServer := api.New(api.Config{
		CORSOrigin: cfg.CORSOrigin,
		Version:    Version,
		Debug:      cfg.IsDevelopment(),
	}, st, bus, registry)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      apiServer.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on http://localhost:%s\n", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Ingress first so nothing new enters the pipeline, then drain outward.
	artnetListener.Stop()
	sacnListener.Stop()
	close(sweepStop)
	engine.Stop()
	sendService.Stop()
	pollService.Stop()
	discoveryService.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println("============================================")
	fmt.Println("  LumenBridge Go Server")
	fmt.Printf("  Version: %s\n", Version)
	fmt.Printf("  Build:   %s\n", BuildTime)
	fmt.Printf("  Commit:  %s\n", GitCommit)
	fmt.Println("============================================")
	fmt.Printf("  Environment: %s\n", cfg.Env)
	fmt.Printf("  Port:        %s\n", cfg.Port)
	fmt.Printf("  Database:    %s\n", cfg.DatabaseURL)
	fmt.Printf("  Art-Net:     :%d\n", cfg.ArtNetPort)
	fmt.Printf("  sACN:        :%d (universes %v)\n", cfg.SACNPort, cfg.SACNUniverses)
	fmt.Printf("  Dry run:     %v\n", cfg.DryRun)
	fmt.Println("============================================")
}
