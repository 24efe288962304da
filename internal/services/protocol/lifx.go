package protocol

import (
	"fmt"
	"sync/atomic"

	"github.com/bbernstein/lumenbridge-go/internal/database/models"
	"github.com/bbernstein/lumenbridge-go/internal/state"
	"github.com/bbernstein/lumenbridge-go/pkg/lifx"
)

// LIFXHandler speaks the LIFX LAN protocol: 36-byte binary headers and
// HSBK colour over UDP.
type LIFXHandler struct {
	// sequence wraps at 255; one counter for the whole handler matches
	// packets to responses well enough for a fire-and-forget bridge.
	sequence atomic.Uint32
}

// NewLIFXHandler creates the LIFX protocol handler.
func NewLIFXHandler() *LIFXHandler {
	return &LIFXHandler{}
}

func (h *LIFXHandler) ProtocolName() string  { return "lifx" }
func (h *LIFXHandler) DefaultPort() int      { return lifx.DefaultPort }
func (h *LIFXHandler) SupportsPolling() bool { return true }

func (h *LIFXHandler) nextSequence() uint8 {
	return uint8(h.sequence.Add(1))
}

// WrapCommand builds at most two packets: SetPower when the payload turns
// the device, and one SetColor carrying colour, brightness, and kelvin
// together (HSBK is a single wire field).
func (h *LIFXHandler) WrapCommand(device *models.Device, payload state.Payload) ([][]byte, error) {
	target, err := lifx.ParseTarget(device.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: bad device id %q: %v", ErrEncode, device.ID, err)
	}

	var datagrams [][]byte

	switch payload.Turn {
	case "on":
		datagrams = append(datagrams, lifx.BuildSetPower(target, h.nextSequence(), true))
	case "off":
		datagrams = append(datagrams, lifx.BuildSetPower(target, h.nextSequence(), false))
	}

	if payload.Color != nil || payload.Brightness != nil || payload.ColorTemp != nil {
		color := h.buildHSBK(payload)
		datagrams = append(datagrams, lifx.BuildSetColor(target, h.nextSequence(), color, 0))
	}

	if len(datagrams) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrEncode)
	}
	return datagrams, nil
}

func (h *LIFXHandler) buildHSBK(payload state.Payload) lifx.HSBK {
	kelvin := int(lifx.DefaultKelvin)
	if payload.ColorTemp != nil {
		kelvin = *payload.ColorTemp
	}

	var color lifx.HSBK
	if payload.Color != nil {
		color = lifx.RGBToHSBK(uint8(clamp255(payload.Color.R)), uint8(clamp255(payload.Color.G)), uint8(clamp255(payload.Color.B)), kelvin)
	} else {
		// Temperature or brightness only: full brightness white.
		color = lifx.HSBK{Brightness: 65535, Kelvin: lifx.ClampKelvin(kelvin)}
	}

	if payload.Brightness != nil {
		color.Brightness = lifx.ScaleBrightness(uint8(clamp255(*payload.Brightness)))
	}
	return color
}

// BuildPollRequest emits a Light::Get probe.
func (h *LIFXHandler) BuildPollRequest(device *models.Device) ([]byte, error) {
	target, err := lifx.ParseTarget(device.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: bad device id %q: %v", ErrEncode, device.ID, err)
	}
	return lifx.BuildLightGet(target, h.nextSequence()), nil
}

// ParsePollResponse decodes a Light::State packet into normalised state.
func (h *LIFXHandler) ParsePollResponse(raw []byte) map[string]interface{} {
	header, err := lifx.DecodeHeader(raw)
	if err != nil || header.Type != lifx.MsgLightState {
		return nil
	}
	lightState, err := lifx.ParseLightState(raw[lifx.HeaderSize:])
	if err != nil {
		return nil
	}

	r, g, b := lifx.HSBKToRGB(lightState.Color)
	return map[string]interface{}{
		"hue":        int(lightState.Color.Hue),
		"sat":        int(lightState.Color.Saturation),
		"brightness": int(lightState.Color.Brightness),
		"kelvin":     int(lightState.Color.Kelvin),
		"power":      lightState.PoweredOn(),
		"label":      lightState.Label,
		"color": map[string]interface{}{
			"r": int(r), "g": int(g), "b": int(b),
		},
		"brightness_normalized": int(lightState.Color.Brightness) * 255 / 65535,
	}
}

func clamp255(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
