package protocol

import (
	"fmt"

	"github.com/bbernstein/lumenbridge-go/internal/database/models"
	"github.com/bbernstein/lumenbridge-go/internal/state"
	"github.com/bbernstein/lumenbridge-go/pkg/govee"
)

// GoveeHandler speaks the Govee LAN protocol: JSON commands over UDP.
type GoveeHandler struct{}

// NewGoveeHandler creates the Govee protocol handler.
func NewGoveeHandler() *GoveeHandler {
	return &GoveeHandler{}
}

func (h *GoveeHandler) ProtocolName() string { return "govee" }
func (h *GoveeHandler) DefaultPort() int     { return govee.ControlPort }
func (h *GoveeHandler) SupportsPolling() bool { return true }

// WrapCommand projects the payload into framed JSON commands. Multi-field
// payloads become a batch in turn → colorwc → brightness order.
func (h *GoveeHandler) WrapCommand(_ *models.Device, payload state.Payload) ([][]byte, error) {
	cmds := Decompose(payload)
	if len(cmds) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrEncode)
	}

	datagrams := make([][]byte, 0, len(cmds))
	for _, cmd := range cmds {
		var framed govee.Command
		switch c := cmd.(type) {
		case Power:
			framed = govee.Turn(c.On)
		case ColorTemp:
			var color *govee.Color
			if c.Color != nil {
				color = &govee.Color{R: c.Color.R, G: c.Color.G, B: c.Color.B}
			}
			kelvin := 0
			if c.Kelvin != nil {
				kelvin = *c.Kelvin
			}
			framed = govee.ColorWC(color, kelvin)
		case Brightness:
			framed = govee.Brightness(c.Value)
		default:
			return nil, fmt.Errorf("%w: unhandled command %T", ErrEncode, cmd)
		}

		raw, err := framed.Encode()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncode, err)
		}
		datagrams = append(datagrams, raw)
	}
	return datagrams, nil
}

// BuildPollRequest emits a devStatus probe.
func (h *GoveeHandler) BuildPollRequest(_ *models.Device) ([]byte, error) {
	raw, err := govee.DevStatus().Encode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return raw, nil
}

// ParsePollResponse flattens a devStatus response into normalised state.
func (h *GoveeHandler) ParsePollResponse(raw []byte) map[string]interface{} {
	parsed, err := govee.ParseDeviceState(raw)
	if err != nil {
		return nil
	}
	return parsed
}
