package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.ArtNetPort != 6454 {
		t.Errorf("ArtNetPort = %d, want 6454", cfg.ArtNetPort)
	}
	if cfg.SACNPort != 5568 {
		t.Errorf("SACNPort = %d, want 5568", cfg.SACNPort)
	}
	if !cfg.SACNMulticast {
		t.Error("SACNMulticast should default to true")
	}
	if len(cfg.SACNUniverses) != 1 || cfg.SACNUniverses[0] != 1 {
		t.Errorf("SACNUniverses = %v, want [1]", cfg.SACNUniverses)
	}
	if cfg.Debounce != 20*time.Millisecond {
		t.Errorf("Debounce = %v, want 20ms", cfg.Debounce)
	}
	if cfg.DevicePollEnabled {
		t.Error("DevicePollEnabled should default to false")
	}
	if cfg.DryRun {
		t.Error("DryRun should default to false")
	}
	if cfg.DiscoveryMulticastAddress != "239.255.255.250" {
		t.Errorf("DiscoveryMulticastAddress = %s", cfg.DiscoveryMulticastAddress)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ARTNET_PORT", "7000")
	t.Setenv("SACN_UNIVERSES", "1, 2, 10")
	t.Setenv("DEVICE_POLL_ENABLED", "true")
	t.Setenv("TRACE_CONTEXT_SAMPLE_RATE", "0.5")
	t.Setenv("DRY_RUN", "true")

	cfg := Load()

	if cfg.ArtNetPort != 7000 {
		t.Errorf("ArtNetPort = %d, want 7000", cfg.ArtNetPort)
	}
	if len(cfg.SACNUniverses) != 3 || cfg.SACNUniverses[2] != 10 {
		t.Errorf("SACNUniverses = %v, want [1 2 10]", cfg.SACNUniverses)
	}
	if !cfg.DevicePollEnabled {
		t.Error("DevicePollEnabled should be true")
	}
	if cfg.TraceContextSampleRate != 0.5 {
		t.Errorf("TraceContextSampleRate = %v, want 0.5", cfg.TraceContextSampleRate)
	}
	if !cfg.DryRun {
		t.Error("DryRun should be true")
	}
}

func TestLoadIgnoresInvalidUniverses(t *testing.T) {
	t.Setenv("SACN_UNIVERSES", "0,64000,bogus,7")

	cfg := Load()
	if len(cfg.SACNUniverses) != 1 || cfg.SACNUniverses[0] != 7 {
		t.Errorf("SACNUniverses = %v, want [7]", cfg.SACNUniverses)
	}
}

func TestValidate(t *testing.T) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}

	bad := *cfg
	bad.ArtNetPort = -1
	if err := bad.Validate(); err == nil {
		t.Error("negative port should fail validation")
	}

	bad = *cfg
	bad.TraceContextSampleRate = 1.5
	if err := bad.Validate(); err == nil {
		t.Error("sample rate > 1 should fail validation")
	}

	bad = *cfg
	bad.DeviceBackoffFactor = 0.5
	if err := bad.Validate(); err == nil {
		t.Error("backoff factor < 1 should fail validation")
	}

	bad = *cfg
	bad.DevicePollBatchSize = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero batch size should fail validation")
	}
}
