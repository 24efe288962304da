// Package discovery finds devices on the LAN: Govee multicast scans,
// LIFX broadcast probes, optional unicast probes for manual devices, and
// stale-device bookkeeping.
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bbernstein/lumenbridge-go/internal/metrics"
	"github.com/bbernstein/lumenbridge-go/internal/store"
	"github.com/bbernstein/lumenbridge-go/pkg/govee"
	"github.com/bbernstein/lumenbridge-go/pkg/lifx"
)

// Config holds discovery configuration.
type Config struct {
	MulticastAddress string
	MulticastPort    int
	Interval         time.Duration
	ResponseTimeout  time.Duration
	StaleAfter       time.Duration
	ManualProbes     bool
	DryRun           bool

	// Listener ports, overridable for tests. Zero picks the protocol
	// defaults (4002 for Govee responses, 56700 for LIFX).
	GoveeListenPort int
	LIFXListenPort  int
	// LIFXBroadcast is where GetService probes go.
	LIFXBroadcast string
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() Config {
	return Config{
		MulticastAddress: govee.DiscoveryMulticastAddress,
		MulticastPort:    govee.DiscoveryPort,
		Interval:         60 * time.Second,
		ResponseTimeout:  3 * time.Second,
		StaleAfter:       5 * time.Minute,
		ManualProbes:     true,
		GoveeListenPort:  govee.ResponsePort,
		LIFXListenPort:   lifx.DefaultPort,
		LIFXBroadcast:    "255.255.255.255",
	}
}

// Service runs the discovery cycle and listens for responses.
type Service struct {
	cfg     Config
	store   *store.Store
	metrics *metrics.Metrics

	goveeConn *net.UDPConn
	lifxConn  *net.UDPConn
	// lifxSeq is shared between the cycle and the LIFX read loop; it
	// wraps at 255 on the wire.
	lifxSeq atomic.Uint32

	// Per-cycle duplicate suppression and per-epoch follow-up tracking.
	epochMu sync.Mutex
	seen    map[string]bool
	probed  map[string]bool

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	runMu   sync.Mutex
	running bool
}

// New creates the discovery service.
func New(cfg Config, st *store.Store, m *metrics.Metrics) *Service {
	return &Service{
		cfg:     cfg,
		store:   st,
		metrics: m,
		seen:    make(map[string]bool),
		probed:  make(map[string]bool),
	}
}

// Start binds the response listeners and launches the cycle loop.
func (s *Service) Start() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return nil
	}

	goveeConn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: s.cfg.GoveeListenPort})
	if err != nil {
		return fmt.Errorf("failed to bind Govee response port %d: %w", s.cfg.GoveeListenPort, err)
	}
	lifxConn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: s.cfg.LIFXListenPort})
	if err != nil {
		goveeConn.Close()
		return fmt.Errorf("failed to bind LIFX port %d: %w", s.cfg.LIFXListenPort, err)
	}
	s.goveeConn = goveeConn
	s.lifxConn = lifxConn

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(3)
	go s.readGovee(ctx)
	go s.readLIFX(ctx)
	go s.loop(ctx)

	s.running = true
	log.Printf("✅ Discovery started (interval %v, govee %s, lifx %s)",
		s.cfg.Interval, goveeConn.LocalAddr(), lifxConn.LocalAddr())
	return nil
}

// Stop closes the sockets and waits for the loops.
func (s *Service) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.cancel()
	s.goveeConn.Close()
	s.lifxConn.Close()
	s.wg.Wait()
	log.Printf("✅ Discovery stopped")
}

// GoveeAddr returns the Govee response listener address, nil before Start.
func (s *Service) GoveeAddr() net.Addr {
	if s.goveeConn == nil {
		return nil
	}
	return s.goveeConn.LocalAddr()
}

// LIFXAddr returns the LIFX listener address, nil before Start.
func (s *Service) LIFXAddr() net.Addr {
	if s.lifxConn == nil {
		return nil
	}
	return s.lifxConn.LocalAddr()
}

func (s *Service) loop(ctx context.Context) {
	defer s.wg.Done()

	for {
		s.RunCycle(ctx)
		timer := time.NewTimer(s.cfg.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// RunCycle performs one discovery round: probe, collect, mark stale.
func (s *Service) RunCycle(ctx context.Context) {
	s.beginEpoch()

	if !s.cfg.DryRun {
		s.sendProbes(ctx)
	}

	timer := time.NewTimer(s.cfg.ResponseTimeout)
	select {
	case <-ctx.Done():
		timer.Stop()
		return
	case <-timer.C:
	}

	n, err := s.store.MarkStale(ctx, s.cfg.StaleAfter)
	if err != nil {
		log.Printf("⚠️ Failed to mark stale devices: %v", err)
	} else if n > 0 {
		log.Printf("🔄 Marked %d device(s) stale", n)
	}
}

func (s *Service) beginEpoch() {
	s.epochMu.Lock()
	s.seen = make(map[string]bool)
	s.probed = make(map[string]bool)
	s.epochMu.Unlock()
}

func (s *Service) sendProbes(ctx context.Context) {
	// Govee multicast scan, answered on our response listener.
	scan, err := govee.Scan().Encode()
	if err == nil {
		group := &net.UDPAddr{IP: net.ParseIP(s.cfg.MulticastAddress), Port: s.cfg.MulticastPort}
		if _, err := s.goveeConn.WriteToUDP(scan, group); err != nil {
			log.Printf("⚠️ Govee scan send failed: %v", err)
		}
	}

	// LIFX GetService broadcast.
	probe := lifx.BuildGetService(s.nextSeq())
	broadcast := &net.UDPAddr{IP: net.ParseIP(s.cfg.LIFXBroadcast), Port: lifx.DefaultPort}
	if _, err := s.lifxConn.WriteToUDP(probe, broadcast); err != nil {
		log.Printf("⚠️ LIFX broadcast failed: %v", err)
	}

	if s.cfg.ManualProbes {
		s.probeManualDevices(ctx, scan)
	}
}

// probeManualDevices unicasts a probe to every user-created device so
// fixed-IP devices off the multicast path still get refreshed.
func (s *Service) probeManualDevices(ctx context.Context, scan []byte) {
	targets, err := s.store.ManualProbeTargets(ctx)
	if err != nil {
		log.Printf("⚠️ Failed to load manual probe targets: %v", err)
		return
	}

	for _, device := range targets {
		ip := net.ParseIP(device.IP)
		if ip == nil {
			continue
		}
		switch device.Protocol {
		case "govee":
			s.goveeConn.WriteToUDP(scan, &net.UDPAddr{IP: ip, Port: s.cfg.MulticastPort})
		case "lifx":
			s.lifxConn.WriteToUDP(lifx.BuildGetService(s.nextSeq()), &net.UDPAddr{IP: ip, Port: lifx.DefaultPort})
		}
	}
}

func (s *Service) readGovee(ctx context.Context) {
	defer s.wg.Done()
	buf := make([]byte, 2048)

	for {
		n, src, err := s.goveeConn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("⚠️ Govee discovery read error: %v", err)
			continue
		}
		s.handleGoveeResponse(ctx, buf[:n], src)
	}
}

func (s *Service) handleGoveeResponse(ctx context.Context, raw []byte, src *net.UDPAddr) {
	result, err := govee.ParseScanResponse(raw)
	if err != nil {
		s.metrics.InvalidPayloads.WithLabelValues("govee").Inc()
		return
	}

	ip := result.IP
	if ip == "" {
		ip = src.IP.String()
	}
	if s.duplicate(result.Device, ip) {
		return
	}

	discovery := store.DiscoveryResult{
		DeviceID: result.Device,
		IP:       ip,
		Protocol: "govee",
		Port:     govee.ControlPort,
	}
	if result.SKU != "" {
		discovery.Model = &result.SKU
	}
	if result.WifiVersionSoft != "" {
		discovery.Firmware = &result.WifiVersionSoft
	}

	if err := s.store.RecordDiscovery(ctx, discovery); err != nil {
		log.Printf("⚠️ Failed to record Govee device %s: %v", result.Device, err)
		return
	}
	s.metrics.DiscoveryResponses.WithLabelValues("govee").Inc()
	log.Printf("📡 Discovered Govee device %s (%s) at %s", result.Device, result.SKU, ip)
}

func (s *Service) readLIFX(ctx context.Context) {
	defer s.wg.Done()
	buf := make([]byte, 2048)

	for {
		n, src, err := s.lifxConn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("⚠️ LIFX discovery read error: %v", err)
			continue
		}
		s.handleLIFXResponse(ctx, buf[:n], src)
	}
}

func (s *Service) handleLIFXResponse(ctx context.Context, raw []byte, src *net.UDPAddr) {
	header, err := lifx.DecodeHeader(raw)
	if err != nil {
		return
	}
	payload := raw[lifx.HeaderSize:]
	deviceID := header.TargetString()
	ip := src.IP.String()

	switch header.Type {
	case lifx.MsgStateService:
		service, err := lifx.ParseStateService(payload)
		if err != nil || service.Service != 1 { // service 1 = UDP
			return
		}
		if s.duplicate(deviceID, ip) {
			return
		}
		discovery := store.DiscoveryResult{
			DeviceID: deviceID,
			IP:       ip,
			Protocol: "lifx",
			Port:     int(service.Port),
		}
		if err := s.store.RecordDiscovery(ctx, discovery); err != nil {
			log.Printf("⚠️ Failed to record LIFX device %s: %v", deviceID, err)
			return
		}
		s.metrics.DiscoveryResponses.WithLabelValues("lifx").Inc()
		log.Printf("📡 Discovered LIFX device %s at %s", deviceID, ip)
		s.followUp(deviceID, header.Target, src)

	case lifx.MsgStateVersion:
		version, err := lifx.ParseStateVersion(payload)
		if err != nil {
			return
		}
		model := fmt.Sprintf("lifx-%d", version.Product)
		s.fold(ctx, store.DiscoveryResult{
			DeviceID: deviceID, IP: ip, Protocol: "lifx", Model: &model,
		})

	case lifx.MsgStateLabel:
		label, err := lifx.ParseStateLabel(payload)
		if err != nil || label == "" {
			return
		}
		s.fold(ctx, store.DiscoveryResult{
			DeviceID: deviceID, IP: ip, Protocol: "lifx", Label: &label,
		})

	case lifx.MsgStateHostFirmware:
		firmware, err := lifx.ParseStateHostFirmware(payload)
		if err != nil {
			return
		}
		fw := strconv.Itoa(int(firmware.VersionMajor)) + "." + strconv.Itoa(int(firmware.VersionMinor))
		s.fold(ctx, store.DiscoveryResult{
			DeviceID: deviceID, IP: ip, Protocol: "lifx", Firmware: &fw,
		})
	}
}

// followUp asks a freshly seen LIFX device for its version, firmware, and
// label — at most once per (device, ip) per epoch.
func (s *Service) followUp(deviceID string, target [6]byte, src *net.UDPAddr) {
	key := "probe|" + deviceID + "|" + src.IP.String()

	s.epochMu.Lock()
	if s.probed[key] {
		s.epochMu.Unlock()
		return
	}
	s.probed[key] = true
	s.epochMu.Unlock()

	s.lifxConn.WriteToUDP(lifx.BuildGetVersion(target, s.nextSeq()), src)
	s.lifxConn.WriteToUDP(lifx.BuildGetHostFirmware(target, s.nextSeq()), src)
	s.lifxConn.WriteToUDP(lifx.BuildGetLabel(target, s.nextSeq()), src)
}

func (s *Service) nextSeq() uint8 {
	return uint8(s.lifxSeq.Add(1))
}

func (s *Service) fold(ctx context.Context, result store.DiscoveryResult) {
	if err := s.store.RecordDiscovery(ctx, result); err != nil {
		log.Printf("⚠️ Failed to fold discovery metadata for %s: %v", result.DeviceID, err)
	}
}

// duplicate reports (and records) whether this (device, ip) pair already
// answered during the current cycle.
func (s *Service) duplicate(deviceID, ip string) bool {
	key := deviceID + "|" + ip
	s.epochMu.Lock()
	defer s.epochMu.Unlock()
	if s.seen[key] {
		return true
	}
	s.seen[key] = true
	return false
}
