// Package artnet provides Art-Net protocol packet building and parsing.
package artnet

import (
	"bytes"
	"encoding/binary"
	"errors"
)

const (
	// OpCodeDMX is the Art-Net operation code for DMX data.
	OpCodeDMX uint16 = 0x5000
	// ProtocolVersion is the minimum Art-Net protocol version we accept.
	ProtocolVersion uint16 = 14
	// DMXDataLength is the number of DMX channels per universe.
	DMXDataLength uint16 = 512
	// HeaderSize is the size of the ArtDmx header preceding the channel data.
	HeaderSize = 18
	// DefaultPort is the standard Art-Net UDP port.
	DefaultPort = 6454
)

// ArtNetID is the Art-Net packet identifier.
var ArtNetID = []byte{'A', 'r', 't', '-', 'N', 'e', 't', 0x00}

var (
	ErrPacketTooShort    = errors.New("artnet: packet too short")
	ErrInvalidHeader     = errors.New("artnet: invalid packet identifier")
	ErrUnsupportedOpCode = errors.New("artnet: unsupported opcode")
	ErrOldProtocol       = errors.New("artnet: protocol version too old")
	ErrInvalidLength     = errors.New("artnet: invalid DMX data length")
)

// DMXPacket is a decoded ArtDmx packet (OpCode 0x5000).
type DMXPacket struct {
	Sequence uint8
	Physical uint8
	Universe uint16
	// Data is always padded to 512 bytes.
	Data [512]byte
}

// ParseDMXPacket decodes an ArtDmx packet from raw UDP bytes.
// Packets that are not ArtDmx, carry an old protocol version, or declare an
// out-of-range data length are rejected with a sentinel error.
func ParseDMXPacket(raw []byte) (*DMXPacket, error) {
	if len(raw) < HeaderSize {
		return nil, ErrPacketTooShort
	}
	if !bytes.Equal(raw[0:8], ArtNetID) {
		return nil, ErrInvalidHeader
	}
	if binary.LittleEndian.Uint16(raw[8:10]) != OpCodeDMX {
		return nil, ErrUnsupportedOpCode
	}
	if binary.BigEndian.Uint16(raw[10:12]) < ProtocolVersion {
		return nil, ErrOldProtocol
	}

	length := binary.BigEndian.Uint16(raw[16:18])
	if length < 2 || length > DMXDataLength {
		return nil, ErrInvalidLength
	}
	if len(raw) < HeaderSize+int(length) {
		return nil, ErrPacketTooShort
	}

	pkt := &DMXPacket{
		Sequence: raw[12],
		Physical: raw[13],
		Universe: binary.LittleEndian.Uint16(raw[14:16]),
	}
	copy(pkt.Data[:], raw[HeaderSize:HeaderSize+int(length)])
	return pkt, nil
}

// BuildDMXPacket creates an ArtDmx packet for the specified universe.
// Channels should be exactly 512 bytes; shorter slices are zero-padded.
// Sequence should increment for each packet (0-255, wraps around) so receivers
// can detect out-of-order UDP delivery.
func BuildDMXPacket(universe uint16, channels []byte, sequence byte) []byte {
	packet := make([]byte, HeaderSize+int(DMXDataLength))

	copy(packet[0:8], ArtNetID)                                // ID (8 bytes): "Art-Net\0"
	binary.LittleEndian.PutUint16(packet[8:10], OpCodeDMX)     // OpCode: 0x5000 for DMX
	binary.BigEndian.PutUint16(packet[10:12], ProtocolVersion) // Protocol version: 14
	packet[12] = sequence
	packet[13] = 0 // Physical input port
	binary.LittleEndian.PutUint16(packet[14:16], universe)
	binary.BigEndian.PutUint16(packet[16:18], DMXDataLength)

	if len(channels) >= int(DMXDataLength) {
		copy(packet[HeaderSize:], channels[:DMXDataLength])
	} else {
		copy(packet[HeaderSize:HeaderSize+len(channels)], channels)
	}

	return packet
}
