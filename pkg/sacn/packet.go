// Package sacn provides E1.31 (streaming ACN) packet parsing and building.
package sacn

import (
	"bytes"
	"encoding/binary"
	"errors"
	"net"
	"strings"
)

const (
	// DefaultPort is the standard sACN UDP port.
	DefaultPort = 5568

	// VectorRootE131Data identifies an E1.31 data packet at the root layer.
	VectorRootE131Data = 0x00000004
	// VectorE131DataPacket identifies a DMX data packet at the framing layer.
	VectorE131DataPacket = 0x00000002
	// VectorDMPSetProperty identifies the DMP set-property vector.
	VectorDMPSetProperty = 0x02

	// DefaultPriority is used when a packet's priority is out of range.
	DefaultPriority = 100
	// MaxPriority is the highest valid E1.31 priority.
	MaxPriority = 200
	// MaxUniverse is the highest valid E1.31 universe number.
	MaxUniverse = 63999

	// minPacketSize is root (38) + framing (77) + DMP header (11) bytes.
	minPacketSize = 126

	optionPreview    = 1 << 7
	optionTerminated = 1 << 6
)

// packetIdentifier is the ACN packet identifier "ASC-E1.17" (12 bytes).
var packetIdentifier = [12]byte{
	0x41, 0x53, 0x43, 0x2d, 0x45, 0x31, 0x2e, 0x31, 0x37, 0x00, 0x00, 0x00,
}

var (
	ErrPacketTooShort   = errors.New("sacn: packet too short")
	ErrInvalidPreamble  = errors.New("sacn: invalid preamble")
	ErrInvalidIdentifer = errors.New("sacn: invalid ACN packet identifier")
	ErrWrongVector      = errors.New("sacn: unexpected vector")
	ErrInvalidDMP       = errors.New("sacn: invalid DMP layer")
	ErrInvalidStartCode = errors.New("sacn: non-zero START code")
	ErrInvalidUniverse  = errors.New("sacn: universe out of range")
)

// DataPacket is a decoded E1.31 DMX data packet.
type DataPacket struct {
	CID         [16]byte
	SourceName  string
	Priority    uint8
	SyncAddress uint16
	Sequence    uint8
	Preview     bool
	Terminated  bool
	Universe    uint16
	// Data is the DMX payload, zero-padded or truncated to 512 bytes.
	Data [512]byte
}

// ParseDataPacket decodes an E1.31 data packet from raw UDP bytes,
// validating the root, framing, and DMP layers.
func ParseDataPacket(raw []byte) (*DataPacket, error) {
	if len(raw) < minPacketSize {
		return nil, ErrPacketTooShort
	}

	// Root layer
	if binary.BigEndian.Uint16(raw[0:2]) != 0x0010 || binary.BigEndian.Uint16(raw[2:4]) != 0x0000 {
		return nil, ErrInvalidPreamble
	}
	if !bytes.Equal(raw[4:16], packetIdentifier[:]) {
		return nil, ErrInvalidIdentifer
	}
	if binary.BigEndian.Uint32(raw[18:22]) != VectorRootE131Data {
		return nil, ErrWrongVector
	}

	// Framing layer
	if binary.BigEndian.Uint32(raw[40:44]) != VectorE131DataPacket {
		return nil, ErrWrongVector
	}

	universe := binary.BigEndian.Uint16(raw[113:115])
	if universe < 1 || universe > MaxUniverse {
		return nil, ErrInvalidUniverse
	}

	// DMP layer
	if raw[117] != VectorDMPSetProperty {
		return nil, ErrInvalidDMP
	}
	if binary.BigEndian.Uint16(raw[119:121]) != 0x0000 || binary.BigEndian.Uint16(raw[121:123]) != 0x0001 {
		return nil, ErrInvalidDMP
	}
	propCount := int(binary.BigEndian.Uint16(raw[123:125]))
	if propCount < 1 {
		return nil, ErrInvalidDMP
	}
	if raw[125] != 0x00 {
		return nil, ErrInvalidStartCode
	}

	pkt := &DataPacket{
		SourceName:  strings.TrimRight(string(raw[44:108]), "\x00"),
		Priority:    raw[108],
		SyncAddress: binary.BigEndian.Uint16(raw[109:111]),
		Sequence:    raw[111],
		Preview:     raw[112]&optionPreview != 0,
		Terminated:  raw[112]&optionTerminated != 0,
		Universe:    universe,
	}
	copy(pkt.CID[:], raw[22:38])

	if pkt.Priority > MaxPriority {
		pkt.Priority = DefaultPriority
	}

	// Property values minus the START code, truncated to 512 channels.
	dataLen := propCount - 1
	if avail := len(raw) - minPacketSize; dataLen > avail {
		dataLen = avail
	}
	if dataLen > 512 {
		dataLen = 512
	}
	copy(pkt.Data[:], raw[minPacketSize:minPacketSize+dataLen])

	return pkt, nil
}

// BuildDataPacket creates an E1.31 data packet. Used by tests and by the
// loopback sender in dry-run diagnostics.
func BuildDataPacket(universe uint16, sequence uint8, priority uint8, sourceName string, cid [16]byte, data []byte) []byte {
	dataLen := len(data)
	if dataLen > 512 {
		dataLen = 512
	}

	pktLen := minPacketSize + dataLen
	buf := make([]byte, pktLen)

	// Root layer (38 bytes)
	binary.BigEndian.PutUint16(buf[0:2], 0x0010)
	binary.BigEndian.PutUint16(buf[2:4], 0x0000)
	copy(buf[4:16], packetIdentifier[:])
	binary.BigEndian.PutUint16(buf[16:18], 0x7000|uint16(pktLen-16))
	binary.BigEndian.PutUint32(buf[18:22], VectorRootE131Data)
	copy(buf[22:38], cid[:])

	// Framing layer (77 bytes)
	binary.BigEndian.PutUint16(buf[38:40], 0x7000|uint16(pktLen-38))
	binary.BigEndian.PutUint32(buf[40:44], VectorE131DataPacket)
	copy(buf[44:108], sourceName)
	buf[108] = priority
	binary.BigEndian.PutUint16(buf[109:111], 0)
	buf[111] = sequence
	buf[112] = 0
	binary.BigEndian.PutUint16(buf[113:115], universe)

	// DMP layer (11 + dataLen bytes)
	binary.BigEndian.PutUint16(buf[115:117], 0x7000|uint16(11+dataLen))
	buf[117] = VectorDMPSetProperty
	buf[118] = 0xa1
	binary.BigEndian.PutUint16(buf[119:121], 0)
	binary.BigEndian.PutUint16(buf[121:123], 1)
	binary.BigEndian.PutUint16(buf[123:125], uint16(dataLen+1))
	buf[125] = 0 // START code
	copy(buf[126:], data[:dataLen])

	return buf
}

// MulticastAddr returns the E1.31 multicast group for a universe:
// 239.255.{hi}.{lo} where hi/lo are the universe's high and low bytes.
func MulticastAddr(universe uint16) *net.UDPAddr {
	return &net.UDPAddr{
		IP:   net.IPv4(239, 255, byte(universe>>8), byte(universe&0xff)),
		Port: DefaultPort,
	}
}
