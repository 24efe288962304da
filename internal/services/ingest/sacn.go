package ingest

import (
	"fmt"
	"log"
	"math/rand"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/bbernstein/lumenbridge-go/internal/metrics"
	"github.com/bbernstein/lumenbridge-go/pkg/sacn"
)

// SACNListener receives E1.31 data packets, optionally joining the
// per-universe multicast groups.
type SACNListener struct {
	mu sync.Mutex

	port       int
	multicast  bool
	universes  []uint16
	iface      *net.Interface
	handler    FrameHandler
	metrics    *metrics.Metrics
	sampleRate float64

	conn     *ipv4.PacketConn
	raw      net.PacketConn
	stopChan chan struct{}
	running  bool
}

// SACNConfig holds sACN listener configuration.
type SACNConfig struct {
	Port      int
	Multicast bool
	// Universes to join when multicast is enabled. Unicast packets for any
	// universe are accepted regardless.
	Universes []uint16
	// Interface for multicast joins; empty means the system default.
	InterfaceName string
	SampleRate    float64
}

// DefaultSACNConfig returns a configuration with default values.
func DefaultSACNConfig() SACNConfig {
	return SACNConfig{
		Port:       sacn.DefaultPort,
		Multicast:  true,
		Universes:  []uint16{1},
		SampleRate: 0.01,
	}
}

// NewSACNListener creates an sACN listener delivering frames to handler.
func NewSACNListener(cfg SACNConfig, handler FrameHandler, m *metrics.Metrics) (*SACNListener, error) {
	l := &SACNListener{
		port:       cfg.Port,
		multicast:  cfg.Multicast,
		universes:  cfg.Universes,
		handler:    handler,
		metrics:    m,
		sampleRate: cfg.SampleRate,
		stopChan:   make(chan struct{}),
	}

	if cfg.InterfaceName != "" {
		iface, err := net.InterfaceByName(cfg.InterfaceName)
		if err != nil {
			return nil, fmt.Errorf("sACN interface %q: %w", cfg.InterfaceName, err)
		}
		l.iface = iface
	}
	return l, nil
}

// Start binds the socket, joins multicast groups, and begins receiving.
func (l *SACNListener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return nil
	}

	raw, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", l.port))
	if err != nil {
		return fmt.Errorf("failed to bind sACN port %d: %w", l.port, err)
	}

	conn := ipv4.NewPacketConn(raw)
	if l.multicast {
		for _, u := range l.universes {
			addr := sacn.MulticastAddr(u)
			if err := conn.JoinGroup(l.iface, &net.UDPAddr{IP: addr.IP}); err != nil {
				raw.Close()
				return fmt.Errorf("failed to join sACN group for universe %d: %w", u, err)
			}
		}
	}

	l.raw = raw
	l.conn = conn
	l.running = true

	go l.receiveLoop()

	if l.multicast {
		log.Printf("📡 sACN listener started on %s, universes %v", raw.LocalAddr(), l.universes)
	} else {
		log.Printf("📡 sACN listener started on %s (unicast only)", raw.LocalAddr())
	}
	return nil
}

// Stop closes the socket and stops the receive loop.
func (l *SACNListener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running {
		return
	}
	l.running = false
	close(l.stopChan)
	l.raw.Close()

	log.Printf("📡 sACN listener stopped")
}

// LocalAddr returns the bound address, nil before Start.
func (l *SACNListener) LocalAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.raw == nil {
		return nil
	}
	return l.raw.LocalAddr()
}

func (l *SACNListener) receiveLoop() {
	buf := make([]byte, 1024)

	for {
		n, _, src, err := l.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-l.stopChan:
				return
			default:
				log.Printf("⚠️ sACN read error: %v", err)
				continue
			}
		}
		l.handlePacket(buf[:n], src)
	}
}

func (l *SACNListener) handlePacket(raw []byte, src net.Addr) {
	packet, err := sacn.ParseDataPacket(raw)
	if err != nil {
		l.metrics.IngestRejected.WithLabelValues(ProtocolSACN).Inc()
		if rand.Float64() < l.sampleRate {
			log.Printf("⚠️ Dropped sACN packet from %v: %v", src, err)
		}
		return
	}

	// Preview data is for visualizers, not live output.
	if packet.Preview {
		return
	}

	// A terminated stream ends through the merger's data-loss timeout;
	// its final payload is not live output.
	if packet.Terminated {
		return
	}

	frame := &Frame{
		SourceID:   sacnSourceID(packet.CID, packet.Universe),
		Protocol:   ProtocolSACN,
		Universe:   packet.Universe,
		Priority:   packet.Priority,
		Sequence:   packet.Sequence,
		Data:       packet.Data,
		ReceivedAt: time.Now(),
	}

	l.metrics.IngestFrames.WithLabelValues(ProtocolSACN).Inc()
	if rand.Float64() < l.sampleRate {
		log.Printf("🎭 sACN frame universe=%d prio=%d seq=%d source=%q",
			frame.Universe, frame.Priority, frame.Sequence, packet.SourceName)
	}
	l.handler(frame)
}
