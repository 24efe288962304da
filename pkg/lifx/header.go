// Package lifx provides LIFX LAN protocol framing, message encoding,
// and HSBK colour conversion.
package lifx

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultPort is the UDP port for all LIFX LAN traffic.
	DefaultPort = 56700
	// HeaderSize is the size of the LIFX LAN protocol header.
	HeaderSize = 36
	// Protocol is the LIFX LAN protocol number carried in the low 12 bits
	// of the protocol field.
	Protocol = 1024
	// SourceID identifies this sender in every outgoing packet ("LIFX").
	SourceID uint32 = 0x4C494658
)

// Message type identifiers.
const (
	MsgGetService        uint16 = 2
	MsgStateService      uint16 = 3
	MsgGetHostFirmware   uint16 = 14
	MsgStateHostFirmware uint16 = 15
	MsgSetPower          uint16 = 21
	MsgGetLabel          uint16 = 23
	MsgStateLabel        uint16 = 25
	MsgGetVersion        uint16 = 32
	MsgStateVersion      uint16 = 33
	MsgLightGet          uint16 = 101
	MsgSetColor          uint16 = 102
	MsgLightState        uint16 = 107
	MsgSetLightPower     uint16 = 117
)

var (
	ErrPacketTooShort = errors.New("lifx: packet too short")
	ErrBadProtocol    = errors.New("lifx: unexpected protocol number")
	ErrBadSize        = errors.New("lifx: size field does not match packet length")
)

// Header is the 36-byte LIFX LAN protocol header.
type Header struct {
	Size        uint16
	Tagged      bool
	Source      uint32
	Target      [6]byte // MAC; all zeros for broadcast
	ResRequired bool
	AckRequired bool
	Sequence    uint8
	Type        uint16
}

// EncodeHeader serialises a header into its 36-byte wire form.
// The addressable bit is always set; origin bits are zero.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)

	binary.LittleEndian.PutUint16(buf[0:2], h.Size)

	proto := uint16(Protocol) | 1<<12 // addressable
	if h.Tagged {
		proto |= 1 << 13
	}
	binary.LittleEndian.PutUint16(buf[2:4], proto)
	binary.LittleEndian.PutUint32(buf[4:8], h.Source)
	copy(buf[8:14], h.Target[:]) // 6-byte MAC + 2 zero bytes

	var flags byte
	if h.ResRequired {
		flags |= 1 << 0
	}
	if h.AckRequired {
		flags |= 1 << 1
	}
	buf[22] = flags
	buf[23] = h.Sequence
	binary.LittleEndian.PutUint16(buf[32:34], h.Type)

	return buf
}

// DecodeHeader parses the 36-byte header from raw packet bytes and validates
// the protocol number and declared size.
func DecodeHeader(raw []byte) (*Header, error) {
	if len(raw) < HeaderSize {
		return nil, ErrPacketTooShort
	}

	proto := binary.LittleEndian.Uint16(raw[2:4])
	if proto&0x0FFF != Protocol {
		return nil, ErrBadProtocol
	}

	h := &Header{
		Size:        binary.LittleEndian.Uint16(raw[0:2]),
		Tagged:      proto&(1<<13) != 0,
		Source:      binary.LittleEndian.Uint32(raw[4:8]),
		ResRequired: raw[22]&(1<<0) != 0,
		AckRequired: raw[22]&(1<<1) != 0,
		Sequence:    raw[23],
		Type:        binary.LittleEndian.Uint16(raw[32:34]),
	}
	copy(h.Target[:], raw[8:14])

	if int(h.Size) != len(raw) {
		return nil, ErrBadSize
	}
	return h, nil
}

// TargetString formats the header target as a colon-separated MAC address.
func (h *Header) TargetString() string {
	parts := make([]string, 6)
	for i, b := range h.Target {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, ":")
}

// ParseTarget parses a colon-separated MAC address into a 6-byte target.
func ParseTarget(mac string) ([6]byte, error) {
	var target [6]byte
	parts := strings.Split(mac, ":")
	if len(parts) != 6 {
		return target, fmt.Errorf("lifx: invalid MAC address %q", mac)
	}
	for i, p := range parts {
		var b byte
		if _, err := fmt.Sscanf(p, "%02x", &b); err != nil {
			return target, fmt.Errorf("lifx: invalid MAC address %q: %w", mac, err)
		}
		target[i] = b
	}
	return target, nil
}
