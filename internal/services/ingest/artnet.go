package ingest

import (
	"fmt"
	"log"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/bbernstein/lumenbridge-go/internal/metrics"
	"github.com/bbernstein/lumenbridge-go/pkg/artnet"
)

// ArtNetListener receives ArtDMX packets on a UDP socket.
type ArtNetListener struct {
	mu sync.Mutex

	port       int
	handler    FrameHandler
	metrics    *metrics.Metrics
	sampleRate float64

	conn     *net.UDPConn
	stopChan chan struct{}
	running  bool
}

// ArtNetConfig holds Art-Net listener configuration.
type ArtNetConfig struct {
	Port int
	// SampleRate controls how often per-packet debug lines are logged.
	SampleRate float64
}

// DefaultArtNetConfig returns a configuration with default values.
func DefaultArtNetConfig() ArtNetConfig {
	return ArtNetConfig{
		Port:       artnet.DefaultPort,
		SampleRate: 0.01,
	}
}

// NewArtNetListener creates an Art-Net listener. Frames are delivered to
// handler; malformed packets are counted and dropped.
func NewArtNetListener(cfg ArtNetConfig, handler FrameHandler, m *metrics.Metrics) *ArtNetListener {
	return &ArtNetListener{
		port:       cfg.Port,
		handler:    handler,
		metrics:    m,
		sampleRate: cfg.SampleRate,
		stopChan:   make(chan struct{}),
	}
}

// Start binds the UDP socket and begins receiving.
func (l *ArtNetListener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return nil
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: l.port})
	if err != nil {
		return fmt.Errorf("failed to bind Art-Net port %d: %w", l.port, err)
	}
	l.conn = conn
	l.running = true

	go l.receiveLoop()

	log.Printf("📡 Art-Net listener started on %s", conn.LocalAddr())
	return nil
}

// Stop closes the socket and stops the receive loop.
func (l *ArtNetListener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running {
		return
	}
	l.running = false
	close(l.stopChan)
	l.conn.Close()

	log.Printf("📡 Art-Net listener stopped")
}

// LocalAddr returns the bound address, nil before Start.
func (l *ArtNetListener) LocalAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

func (l *ArtNetListener) receiveLoop() {
	buf := make([]byte, 1024)

	for {
		n, src, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-l.stopChan:
				return
			default:
				log.Printf("⚠️ Art-Net read error: %v", err)
				continue
			}
		}
		l.handlePacket(buf[:n], src)
	}
}

func (l *ArtNetListener) handlePacket(raw []byte, src *net.UDPAddr) {
	packet, err := artnet.ParseDMXPacket(raw)
	if err != nil {
		// Other Art-Net opcodes (ArtPoll etc.) land on the same port;
		// they're not errors worth counting.
		if err != artnet.ErrUnsupportedOpCode {
			l.metrics.IngestRejected.WithLabelValues(ProtocolArtNet).Inc()
			if rand.Float64() < l.sampleRate {
				log.Printf("⚠️ Dropped Art-Net packet from %s: %v", src, err)
			}
		}
		return
	}

	frame := &Frame{
		SourceID:   artnetSourceID(src.IP.String(), src.Port, packet.Universe),
		Protocol:   ProtocolArtNet,
		Universe:   packet.Universe,
		Priority:   ArtNetPriority,
		Sequence:   packet.Sequence,
		Data:       packet.Data,
		ReceivedAt: time.Now(),
	}

	l.metrics.IngestFrames.WithLabelValues(ProtocolArtNet).Inc()
	if rand.Float64() < l.sampleRate {
		log.Printf("🎭 Art-Net frame universe=%d seq=%d from %s", frame.Universe, frame.Sequence, src)
	}
	l.handler(frame)
}
