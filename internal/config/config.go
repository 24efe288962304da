// Package config provides configuration management for the LumenBridge server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values for the bridge.
type Config struct {
	// Server configuration
	Port string
	Env  string

	// Database configuration
	DatabaseURL string

	// DMX ingress configuration
	ArtNetPort    int
	SACNPort      int
	SACNMulticast bool
	SACNUniverses []uint16

	// Discovery configuration
	DiscoveryMulticastAddress string
	DiscoveryMulticastPort    int
	DiscoveryInterval         time.Duration
	DiscoveryResponseTimeout  time.Duration
	DiscoveryStaleAfter       time.Duration
	ManualUnicastProbes       bool

	// Mapping engine configuration
	Debounce               time.Duration
	TraceContextIDs        bool
	TraceContextSampleRate float64
	NoisyLogSampleRate     float64

	// Sender configuration
	DeviceMaxSendRate       float64 // tokens per second per device
	DeviceSendBurst         float64
	DeviceBackoffBase       time.Duration
	DeviceBackoffFactor     float64
	DeviceBackoffMax        time.Duration
	DeviceMaxSendAttempts   int
	DeviceQueuePollInterval time.Duration
	DeviceIdleWait          time.Duration
	SenderWorkerCount       int
	GoveeCommandSpacing     time.Duration
	ShutdownGrace           time.Duration

	// Poller configuration
	DevicePollEnabled          bool
	DevicePollInterval         time.Duration
	DevicePollTimeout          time.Duration
	DevicePollOfflineThreshold int
	DevicePollRatePerSecond    float64
	DevicePollRateBurst        float64
	DevicePollBatchSize        int

	// Health monitoring
	SubsystemFailureThreshold int
	SubsystemFailureCooldown  time.Duration

	// Capability catalog
	CatalogPath string

	// Dry-run mode: listeners run, no UDP sends occur
	DryRun bool

	// CORS configuration
	CORSOrigin string
}

// Load loads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		// Server
		Port: getEnv("PORT", "4100"),
		Env:  getEnv("ENV", "development"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", "file:./bridge.db"),

		// DMX ingress
		ArtNetPort:    getEnvInt("ARTNET_PORT", 6454),
		SACNPort:      getEnvInt("SACN_PORT", 5568),
		SACNMulticast: getEnvBool("SACN_MULTICAST", true),
		SACNUniverses: getEnvUniverses("SACN_UNIVERSES", []uint16{1}),

		// Discovery
		DiscoveryMulticastAddress: getEnv("DISCOVERY_MULTICAST_ADDRESS", "239.255.255.250"),
		DiscoveryMulticastPort:    getEnvInt("DISCOVERY_MULTICAST_PORT", 4001),
		DiscoveryInterval:         getEnvSeconds("DISCOVERY_INTERVAL_SECONDS", 60),
		DiscoveryResponseTimeout:  getEnvSeconds("DISCOVERY_RESPONSE_TIMEOUT", 3),
		DiscoveryStaleAfter:       getEnvSeconds("DISCOVERY_STALE_AFTER", 300),
		ManualUnicastProbes:       getEnvBool("MANUAL_UNICAST_PROBES", true),

		// Mapping engine
		Debounce:               getEnvMillis("DEBOUNCE_MS", 20),
		TraceContextIDs:        getEnvBool("TRACE_CONTEXT_IDS", false),
		TraceContextSampleRate: getEnvFloat("TRACE_CONTEXT_SAMPLE_RATE", 0.01),
		NoisyLogSampleRate:     getEnvFloat("NOISY_LOG_SAMPLE_RATE", 0.01),

		// Sender
		DeviceMaxSendRate:       getEnvFloat("DEVICE_MAX_SEND_RATE", 10),
		DeviceSendBurst:         getEnvFloat("DEVICE_SEND_BURST", 5),
		DeviceBackoffBase:       getEnvMillis("DEVICE_BACKOFF_BASE_MS", 100),
		DeviceBackoffFactor:     getEnvFloat("DEVICE_BACKOFF_FACTOR", 2.0),
		DeviceBackoffMax:        getEnvMillis("DEVICE_BACKOFF_MAX_MS", 5000),
		DeviceMaxSendAttempts:   getEnvInt("DEVICE_MAX_SEND_ATTEMPTS", 3),
		DeviceQueuePollInterval: getEnvMillis("DEVICE_QUEUE_POLL_INTERVAL_MS", 50),
		DeviceIdleWait:          getEnvMillis("DEVICE_IDLE_WAIT_MS", 250),
		SenderWorkerCount:       getEnvInt("SENDER_WORKER_COUNT", 4),
		GoveeCommandSpacing:     getEnvMillis("GOVEE_COMMAND_SPACING_MS", 10),
		ShutdownGrace:           getEnvSeconds("SHUTDOWN_GRACE_SECONDS", 5),

		// Poller
		DevicePollEnabled:          getEnvBool("DEVICE_POLL_ENABLED", false),
		DevicePollInterval:         getEnvSeconds("DEVICE_POLL_INTERVAL_SECONDS", 30),
		DevicePollTimeout:          getEnvMillis("DEVICE_POLL_TIMEOUT_MS", 1500),
		DevicePollOfflineThreshold: getEnvInt("DEVICE_POLL_OFFLINE_THRESHOLD", 3),
		DevicePollRatePerSecond:    getEnvFloat("DEVICE_POLL_RATE_PER_SECOND", 5),
		DevicePollRateBurst:        getEnvFloat("DEVICE_POLL_RATE_BURST", 5),
		DevicePollBatchSize:        getEnvInt("DEVICE_POLL_BATCH_SIZE", 10),

		// Health monitoring
		SubsystemFailureThreshold: getEnvInt("SUBSYSTEM_FAILURE_THRESHOLD", 5),
		SubsystemFailureCooldown:  getEnvSeconds("SUBSYSTEM_FAILURE_COOLDOWN_SECONDS", 30),

		// Capability catalog
		CatalogPath: getEnv("CAPABILITY_CATALOG_PATH", "./catalog.toml"),

		// Dry-run
		DryRun: getEnvBool("DRY_RUN", false),

		// CORS
		CORSOrigin: getEnv("CORS_ORIGIN", "http://localhost:3000"),
	}
}

// Validate rejects configurations the bridge refuses to start with.
func (c *Config) Validate() error {
	if c.ArtNetPort < 1 || c.ArtNetPort > 65535 {
		return fmt.Errorf("invalid ARTNET_PORT %d", c.ArtNetPort)
	}
	if c.SACNPort < 1 || c.SACNPort > 65535 {
		return fmt.Errorf("invalid SACN_PORT %d", c.SACNPort)
	}
	for _, u := range c.SACNUniverses {
		if u < 1 || u > 63999 {
			return fmt.Errorf("invalid sACN universe %d", u)
		}
	}
	if c.TraceContextSampleRate < 0 || c.TraceContextSampleRate > 1 {
		return fmt.Errorf("TRACE_CONTEXT_SAMPLE_RATE must be in [0,1], got %v", c.TraceContextSampleRate)
	}
	if c.DeviceMaxSendRate <= 0 {
		return fmt.Errorf("DEVICE_MAX_SEND_RATE must be positive, got %v", c.DeviceMaxSendRate)
	}
	if c.DeviceBackoffFactor < 1 {
		return fmt.Errorf("DEVICE_BACKOFF_FACTOR must be >= 1, got %v", c.DeviceBackoffFactor)
	}
	if c.DeviceMaxSendAttempts < 1 {
		return fmt.Errorf("DEVICE_MAX_SEND_ATTEMPTS must be >= 1, got %d", c.DeviceMaxSendAttempts)
	}
	if c.DevicePollOfflineThreshold < 1 {
		return fmt.Errorf("DEVICE_POLL_OFFLINE_THRESHOLD must be >= 1, got %d", c.DevicePollOfflineThreshold)
	}
	if c.DevicePollBatchSize < 1 {
		return fmt.Errorf("DEVICE_POLL_BATCH_SIZE must be >= 1, got %d", c.DevicePollBatchSize)
	}
	if c.SenderWorkerCount < 1 {
		return fmt.Errorf("SENDER_WORKER_COUNT must be >= 1, got %d", c.SenderWorkerCount)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default value.
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvFloat returns the float value of an environment variable or a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

// getEnvSeconds reads an integer number of seconds as a duration.
func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}

// getEnvMillis reads an integer number of milliseconds as a duration.
func getEnvMillis(key string, defaultMillis int) time.Duration {
	return time.Duration(getEnvInt(key, defaultMillis)) * time.Millisecond
}

// getEnvUniverses parses a comma-separated universe list, e.g. "1,2,10".
func getEnvUniverses(key string, defaultValue []uint16) []uint16 {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}

	var universes []uint16
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		u, err := strconv.Atoi(part)
		if err != nil || u < 1 || u > 63999 {
			continue
		}
		universes = append(universes, uint16(u))
	}
	if len(universes) == 0 {
		return defaultValue
	}
	return universes
}
