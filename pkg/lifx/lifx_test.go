package lifx

import (
	"encoding/binary"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	headers := []Header{
		{Size: 36, Tagged: true, Source: SourceID, Sequence: 0, Type: MsgGetService},
		{Size: 36, Source: SourceID, Target: [6]byte{0xd0, 0x73, 0xd5, 0x01, 0x02, 0x03}, ResRequired: true, Sequence: 17, Type: MsgLightGet},
		{Size: 36, Source: SourceID, Target: [6]byte{1, 2, 3, 4, 5, 6}, AckRequired: true, Sequence: 255, Type: MsgSetColor},
		{Size: 36, Tagged: true, Source: 1, ResRequired: true, AckRequired: true, Sequence: 128, Type: MsgSetPower},
	}

	for _, want := range headers {
		raw := EncodeHeader(want)
		if len(raw) != HeaderSize {
			t.Fatalf("EncodeHeader() length = %d, want %d", len(raw), HeaderSize)
		}
		got, err := DecodeHeader(raw)
		if err != nil {
			t.Fatalf("DecodeHeader() error = %v", err)
		}
		if *got != want {
			t.Errorf("round trip = %+v, want %+v", *got, want)
		}
	}
}

func TestDecodeHeaderSizeMismatch(t *testing.T) {
	raw := EncodeHeader(Header{Size: 49, Type: MsgSetColor})
	// Header says 49 bytes but we only hand it 36.
	if _, err := DecodeHeader(raw); err != ErrBadSize {
		t.Errorf("DecodeHeader() error = %v, want %v", err, ErrBadSize)
	}
}

func TestDecodeHeaderBadProtocol(t *testing.T) {
	raw := EncodeHeader(Header{Size: 36})
	binary.LittleEndian.PutUint16(raw[2:4], 0x0001)
	if _, err := DecodeHeader(raw); err != ErrBadProtocol {
		t.Errorf("DecodeHeader() error = %v, want %v", err, ErrBadProtocol)
	}
}

func TestBuildGetServiceIsBroadcast(t *testing.T) {
	raw := BuildGetService(7)

	h, err := DecodeHeader(raw)
	if err != nil {
		t.Fatalf("DecodeHeader() error = %v", err)
	}
	if !h.Tagged {
		t.Error("discovery probe must be tagged")
	}
	if h.Target != [6]byte{} {
		t.Errorf("discovery probe target = %v, want all zeros", h.Target)
	}
	if h.Type != MsgGetService {
		t.Errorf("Type = %d, want %d", h.Type, MsgGetService)
	}
	if h.Source != SourceID {
		t.Errorf("Source = %#x, want %#x", h.Source, SourceID)
	}
}

func TestBuildSetColorRed(t *testing.T) {
	color := RGBToHSBK(255, 0, 0, int(DefaultKelvin))
	raw := BuildSetColor([6]byte{1, 2, 3, 4, 5, 6}, 1, color, 0)

	if len(raw) != 49 {
		t.Fatalf("SetColor packet length = %d, want 49", len(raw))
	}

	h, err := DecodeHeader(raw)
	if err != nil {
		t.Fatalf("DecodeHeader() error = %v", err)
	}
	if h.Type != MsgSetColor {
		t.Errorf("Type = %d, want %d", h.Type, MsgSetColor)
	}
	if h.Size != 49 {
		t.Errorf("Size = %d, want 49", h.Size)
	}

	payload := raw[HeaderSize:]
	if payload[0] != 0 {
		t.Errorf("reserved byte = %d, want 0", payload[0])
	}
	hue := binary.LittleEndian.Uint16(payload[1:3])
	sat := binary.LittleEndian.Uint16(payload[3:5])
	bri := binary.LittleEndian.Uint16(payload[5:7])
	kelvin := binary.LittleEndian.Uint16(payload[7:9])
	duration := binary.LittleEndian.Uint32(payload[9:13])

	if hue != 0 {
		t.Errorf("hue = %d, want 0 (red)", hue)
	}
	if sat != 0xFFFF {
		t.Errorf("saturation = %#x, want 0xFFFF", sat)
	}
	if bri != 0xFFFF {
		t.Errorf("brightness = %#x, want 0xFFFF", bri)
	}
	if kelvin != DefaultKelvin {
		t.Errorf("kelvin = %d, want %d", kelvin, DefaultKelvin)
	}
	if duration != 0 {
		t.Errorf("duration = %d, want 0", duration)
	}
}

func TestRGBToHSBK(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b uint8
		wantHue uint16
		wantSat uint16
		wantBri uint16
	}{
		{"red", 255, 0, 0, 0, 65535, 65535},
		{"green", 0, 255, 0, 21845, 65535, 65535},
		{"blue", 0, 0, 255, 43690, 65535, 65535},
		{"white", 255, 255, 255, 0, 0, 65535},
		{"black", 0, 0, 0, 0, 0, 0},
		{"half gray", 128, 128, 128, 0, 0, 32896},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RGBToHSBK(tt.r, tt.g, tt.b, 3500)
			if got.Hue != tt.wantHue {
				t.Errorf("Hue = %d, want %d", got.Hue, tt.wantHue)
			}
			if got.Saturation != tt.wantSat {
				t.Errorf("Saturation = %d, want %d", got.Saturation, tt.wantSat)
			}
			if got.Brightness != tt.wantBri {
				t.Errorf("Brightness = %d, want %d", got.Brightness, tt.wantBri)
			}
		})
	}
}

func TestHSBKRGBRoundTrip(t *testing.T) {
	colors := [][3]uint8{{255, 0, 0}, {0, 255, 0}, {0, 0, 255}, {100, 150, 200}, {255, 255, 0}}
	for _, c := range colors {
		hsbk := RGBToHSBK(c[0], c[1], c[2], 3500)
		r, g, b := HSBKToRGB(hsbk)
		// Allow off-by-one from the uint16 quantisation.
		for i, got := range []uint8{r, g, b} {
			diff := int(got) - int(c[i])
			if diff < -1 || diff > 1 {
				t.Errorf("round trip %v -> %v: channel %d off by %d", c, []uint8{r, g, b}, i, diff)
			}
		}
	}
}

func TestClampKelvin(t *testing.T) {
	if got := ClampKelvin(1000); got != MinKelvin {
		t.Errorf("ClampKelvin(1000) = %d, want %d", got, MinKelvin)
	}
	if got := ClampKelvin(10000); got != MaxKelvin {
		t.Errorf("ClampKelvin(10000) = %d, want %d", got, MaxKelvin)
	}
	if got := ClampKelvin(3500); got != 3500 {
		t.Errorf("ClampKelvin(3500) = %d, want 3500", got)
	}
}

func TestParseLightState(t *testing.T) {
	payload := make([]byte, 52)
	binary.LittleEndian.PutUint16(payload[0:2], 100)   // hue
	binary.LittleEndian.PutUint16(payload[2:4], 200)   // sat
	binary.LittleEndian.PutUint16(payload[4:6], 300)   // bri
	binary.LittleEndian.PutUint16(payload[6:8], 3500)  // kelvin
	binary.LittleEndian.PutUint16(payload[10:12], 65535)
	copy(payload[12:], "Kitchen")

	state, err := ParseLightState(payload)
	if err != nil {
		t.Fatalf("ParseLightState() error = %v", err)
	}
	if state.Color.Hue != 100 || state.Color.Kelvin != 3500 {
		t.Errorf("Color = %+v", state.Color)
	}
	if !state.PoweredOn() {
		t.Error("PoweredOn() = false, want true")
	}
	if state.Label != "Kitchen" {
		t.Errorf("Label = %q, want Kitchen", state.Label)
	}
}

func TestParseStateService(t *testing.T) {
	payload := []byte{1, 0x6c, 0xdd, 0x00, 0x00} // UDP service, port 56684... use 56700
	binary.LittleEndian.PutUint32(payload[1:5], 56700)

	svc, err := ParseStateService(payload)
	if err != nil {
		t.Fatalf("ParseStateService() error = %v", err)
	}
	if svc.Service != 1 {
		t.Errorf("Service = %d, want 1", svc.Service)
	}
	if svc.Port != 56700 {
		t.Errorf("Port = %d, want 56700", svc.Port)
	}
}

func TestParseTargetRoundTrip(t *testing.T) {
	h := Header{Target: [6]byte{0xd0, 0x73, 0xd5, 0x0a, 0x0b, 0x0c}}
	mac := h.TargetString()
	if mac != "d0:73:d5:0a:0b:0c" {
		t.Fatalf("TargetString() = %q", mac)
	}
	target, err := ParseTarget(mac)
	if err != nil {
		t.Fatalf("ParseTarget() error = %v", err)
	}
	if target != h.Target {
		t.Errorf("ParseTarget() = %v, want %v", target, h.Target)
	}

	if _, err := ParseTarget("not-a-mac"); err == nil {
		t.Error("ParseTarget(invalid) expected error")
	}
}
