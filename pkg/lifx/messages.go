package lifx

import (
	"encoding/binary"
	"strings"
)

// message assembles a full packet from header fields and a payload.
func message(target [6]byte, tagged bool, resRequired bool, sequence uint8, msgType uint16, payload []byte) []byte {
	h := Header{
		Size:        uint16(HeaderSize + len(payload)),
		Tagged:      tagged,
		Source:      SourceID,
		Target:      target,
		ResRequired: resRequired,
		Sequence:    sequence,
		Type:        msgType,
	}
	return append(EncodeHeader(h), payload...)
}

// BuildGetService creates a broadcast discovery probe (tagged, zero target).
func BuildGetService(sequence uint8) []byte {
	return message([6]byte{}, true, false, sequence, MsgGetService, nil)
}

// BuildGetVersion creates a unicast GetVersion request.
func BuildGetVersion(target [6]byte, sequence uint8) []byte {
	return message(target, false, true, sequence, MsgGetVersion, nil)
}

// BuildGetLabel creates a unicast GetLabel request.
func BuildGetLabel(target [6]byte, sequence uint8) []byte {
	return message(target, false, true, sequence, MsgGetLabel, nil)
}

// BuildGetHostFirmware creates a unicast GetHostFirmware request.
func BuildGetHostFirmware(target [6]byte, sequence uint8) []byte {
	return message(target, false, true, sequence, MsgGetHostFirmware, nil)
}

// BuildLightGet creates a unicast Light::Get poll request.
func BuildLightGet(target [6]byte, sequence uint8) []byte {
	return message(target, false, true, sequence, MsgLightGet, nil)
}

// BuildSetColor creates a Light::SetColor packet. The 13-byte payload is
// a reserved byte, the HSBK fields, and the transition duration in ms.
func BuildSetColor(target [6]byte, sequence uint8, color HSBK, durationMs uint32) []byte {
	payload := make([]byte, 13)
	binary.LittleEndian.PutUint16(payload[1:3], color.Hue)
	binary.LittleEndian.PutUint16(payload[3:5], color.Saturation)
	binary.LittleEndian.PutUint16(payload[5:7], color.Brightness)
	binary.LittleEndian.PutUint16(payload[7:9], color.Kelvin)
	binary.LittleEndian.PutUint32(payload[9:13], durationMs)
	return message(target, false, false, sequence, MsgSetColor, payload)
}

// BuildSetPower creates a Device::SetPower packet (level 0 or 65535).
func BuildSetPower(target [6]byte, sequence uint8, on bool) []byte {
	payload := make([]byte, 2)
	if on {
		binary.LittleEndian.PutUint16(payload, 65535)
	}
	return message(target, false, false, sequence, MsgSetPower, payload)
}

// BuildSetLightPower creates a Light::SetPower packet with a fade duration.
func BuildSetLightPower(target [6]byte, sequence uint8, on bool, durationMs uint32) []byte {
	payload := make([]byte, 6)
	if on {
		binary.LittleEndian.PutUint16(payload[0:2], 65535)
	}
	binary.LittleEndian.PutUint32(payload[2:6], durationMs)
	return message(target, false, false, sequence, MsgSetLightPower, payload)
}

// StateService is the payload of a StateService discovery response.
type StateService struct {
	Service uint8
	Port    uint32
}

// ParseStateService decodes the payload following the header.
func ParseStateService(payload []byte) (*StateService, error) {
	if len(payload) < 5 {
		return nil, ErrPacketTooShort
	}
	return &StateService{
		Service: payload[0],
		Port:    binary.LittleEndian.Uint32(payload[1:5]),
	}, nil
}

// StateVersion is the payload of a StateVersion response.
type StateVersion struct {
	Vendor  uint32
	Product uint32
}

// ParseStateVersion decodes the payload following the header.
func ParseStateVersion(payload []byte) (*StateVersion, error) {
	if len(payload) < 8 {
		return nil, ErrPacketTooShort
	}
	return &StateVersion{
		Vendor:  binary.LittleEndian.Uint32(payload[0:4]),
		Product: binary.LittleEndian.Uint32(payload[4:8]),
	}, nil
}

// ParseStateLabel decodes a StateLabel payload into a trimmed string.
func ParseStateLabel(payload []byte) (string, error) {
	if len(payload) < 32 {
		return "", ErrPacketTooShort
	}
	return strings.TrimRight(string(payload[0:32]), "\x00"), nil
}

// StateHostFirmware is the payload of a StateHostFirmware response.
type StateHostFirmware struct {
	Build        uint64
	VersionMinor uint16
	VersionMajor uint16
}

// ParseStateHostFirmware decodes the payload following the header.
func ParseStateHostFirmware(payload []byte) (*StateHostFirmware, error) {
	if len(payload) < 20 {
		return nil, ErrPacketTooShort
	}
	return &StateHostFirmware{
		Build:        binary.LittleEndian.Uint64(payload[0:8]),
		VersionMinor: binary.LittleEndian.Uint16(payload[16:18]),
		VersionMajor: binary.LittleEndian.Uint16(payload[18:20]),
	}, nil
}

// LightState is the payload of a Light::State poll response.
type LightState struct {
	Color HSBK
	Power uint16
	Label string
}

// PoweredOn reports whether the light's power level reads fully on.
func (s *LightState) PoweredOn() bool {
	return s.Power == 65535
}

// ParseLightState decodes the payload following the header.
func ParseLightState(payload []byte) (*LightState, error) {
	if len(payload) < 44 {
		return nil, ErrPacketTooShort
	}
	return &LightState{
		Color: HSBK{
			Hue:        binary.LittleEndian.Uint16(payload[0:2]),
			Saturation: binary.LittleEndian.Uint16(payload[2:4]),
			Brightness: binary.LittleEndian.Uint16(payload[4:6]),
			Kelvin:     binary.LittleEndian.Uint16(payload[6:8]),
		},
		Power: binary.LittleEndian.Uint16(payload[10:12]),
		Label: strings.TrimRight(string(payload[12:44]), "\x00"),
	}, nil
}
