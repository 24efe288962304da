// Package ingest listens for Art-Net and sACN traffic and turns packets
// into normalized DMX frames for the priority merger.
package ingest

import (
	"fmt"
	"time"
)

const (
	// ProtocolArtNet labels frames received on the Art-Net listener.
	ProtocolArtNet = "artnet"
	// ProtocolSACN labels frames received on the sACN listener.
	ProtocolSACN = "sacn"

	// ArtNetPriority is the fixed merge priority assigned to Art-Net
	// sources, which carry no priority of their own on the wire.
	ArtNetPriority = 50
)

// Frame is a normalized DMX frame from either ingress protocol.
type Frame struct {
	SourceID   string
	Protocol   string
	Universe   uint16
	Priority   uint8
	Sequence   uint8
	Data       [512]byte
	ReceivedAt time.Time
}

// FrameHandler receives every accepted frame. Implementations must be fast;
// listeners call it on the receive goroutine.
type FrameHandler func(frame *Frame)

// artnetSourceID identifies an Art-Net sender by its socket address, so two
// consoles on the same host but different ports merge as distinct sources.
func artnetSourceID(ip string, port int, universe uint16) string {
	return fmt.Sprintf("artnet-%s:%d-u%d", ip, port, universe)
}

// sacnSourceID identifies an sACN sender by its CID, which survives the
// sender changing IP address mid-show.
func sacnSourceID(cid [16]byte, universe uint16) string {
	return fmt.Sprintf("sacn-%x-u%d", cid[:8], universe)
}
