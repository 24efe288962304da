package mapping

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/bbernstein/lumenbridge-go/internal/database/models"
	"github.com/bbernstein/lumenbridge-go/internal/services/capability"
	"github.com/bbernstein/lumenbridge-go/internal/state"
)

// Compiled is a validated, resolved mapping ready for the hot path.
type Compiled struct {
	MappingID string
	DeviceID  string
	Universe  uint16
	Channel   int // 1-based first channel
	Fields    []string
	Gamma     float64
	Dimmer    float64
	// WhitePassthrough exempts the white channel from shaping.
	WhitePassthrough bool
}

// Compile validates a mapping record and resolves its field list.
func Compile(record *models.Mapping) (*Compiled, error) {
	if record.Channel < 1 || record.Channel > 512 {
		return nil, fmt.Errorf("channel %d out of range", record.Channel)
	}
	if record.Length < 1 {
		return nil, fmt.Errorf("length %d must be >= 1", record.Length)
	}
	if record.Channel+record.Length-1 > 512 {
		return nil, fmt.Errorf("range %d..%d exceeds universe", record.Channel, record.Channel+record.Length-1)
	}

	c := &Compiled{
		MappingID: record.ID,
		DeviceID:  record.DeviceID,
		Universe:  uint16(record.Universe),
		Channel:   record.Channel,
		Gamma:     1.0,
		Dimmer:    1.0,
	}

	switch record.MappingType {
	case "discrete":
		if record.Field == nil {
			return nil, fmt.Errorf("discrete mapping requires a field")
		}
		if !validFields[*record.Field] {
			return nil, fmt.Errorf("unknown field %q", *record.Field)
		}
		if record.Length != 1 {
			return nil, fmt.Errorf("discrete mapping must have length 1")
		}
		c.Fields = []string{*record.Field}

	case "range":
		fields, err := resolveFields(record)
		if err != nil {
			return nil, err
		}
		if record.Length < len(fields) {
			return nil, fmt.Errorf("length %d insufficient for %d fields", record.Length, len(fields))
		}
		c.Fields = fields

	default:
		return nil, fmt.Errorf("unknown mapping type %q", record.MappingType)
	}

	if record.Gamma != nil {
		if *record.Gamma < 0.1 || *record.Gamma > 5.0 {
			return nil, fmt.Errorf("gamma %v out of range [0.1, 5.0]", *record.Gamma)
		}
		c.Gamma = *record.Gamma
	}
	if record.Dimmer != nil {
		if *record.Dimmer < 0 || *record.Dimmer > 1 {
			return nil, fmt.Errorf("dimmer %v out of range [0.0, 1.0]", *record.Dimmer)
		}
		c.Dimmer = *record.Dimmer
	}
	if record.WhitePolicy != nil && *record.WhitePolicy == WhitePolicyPassthrough {
		c.WhitePassthrough = true
	}

	return c, nil
}

// resolveFields picks the channel order: an explicit channel_order
// override wins, then the mode override, then the template.
func resolveFields(record *models.Mapping) ([]string, error) {
	if record.ChannelOrder != nil && *record.ChannelOrder != "" {
		var order []string
		if err := json.Unmarshal([]byte(*record.ChannelOrder), &order); err != nil {
			return nil, fmt.Errorf("bad channel_order: %w", err)
		}
		if len(order) == 0 {
			return nil, fmt.Errorf("empty channel_order")
		}
		for _, f := range order {
			if !validFields[f] {
				return nil, fmt.Errorf("unknown field %q in channel_order", f)
			}
		}
		return order, nil
	}

	name := ""
	if record.Mode != nil && *record.Mode != "" {
		name = *record.Mode
	} else if record.Template != nil && *record.Template != "" {
		name = *record.Template
	}
	if name == "" {
		return nil, fmt.Errorf("range mapping requires a template")
	}

	fields, ok := templates[name]
	if !ok {
		return nil, fmt.Errorf("unknown template %q", name)
	}
	return fields, nil
}

// shape applies the per-channel transform v' = round(dimmer*255*(v/255)^gamma).
func (c *Compiled) shape(v byte) int {
	if c.Gamma == 1.0 && c.Dimmer == 1.0 {
		return int(v)
	}
	return int(math.Round(c.Dimmer * 255 * math.Pow(float64(v)/255, c.Gamma)))
}

// Apply reads the mapping's channels out of a universe frame and builds
// the device payload. Returns false when the mapping produces nothing,
// e.g. a kelvin slider on a device with no declared temperature range.
func (c *Compiled) Apply(data *[512]byte, caps *capability.Set) (state.Payload, bool) {
	values := make(map[string]byte, len(c.Fields))
	for i, field := range c.Fields {
		values[field] = data[c.Channel-1+i]
	}

	var payload state.Payload
	produced := false

	hasColor := false
	var color state.Color
	for field, raw := range values {
		if !isColorField(field) {
			continue
		}
		v := c.shape(raw)
		if field == FieldWhite && c.WhitePassthrough {
			v = int(raw)
		}
		switch field {
		case FieldRed:
			color.R = v
		case FieldGreen:
			color.G = v
		case FieldBlue:
			color.B = v
		case FieldWhite:
			color.W = state.Int(v)
		case FieldAmber:
			// Amber has no slot in the abstract payload; fold it into
			// white so WA fixtures still track the fader.
			if color.W == nil || v > *color.W {
				color.W = state.Int(v)
			}
		}
		hasColor = true
	}

	if master, ok := values[FieldDimmer]; ok {
		if hasColor {
			// Master fader scales the colour fields.
			scale := float64(master) / 255
			color.R = int(math.Round(float64(color.R) * scale))
			color.G = int(math.Round(float64(color.G) * scale))
			color.B = int(math.Round(float64(color.B) * scale))
			if color.W != nil {
				color.W = state.Int(int(math.Round(float64(*color.W) * scale)))
			}
		} else {
			payload.Brightness = state.Int(int(master))
			produced = true
		}
	}

	if hasColor {
		payload.Color = &color
		produced = true
	}

	if v, ok := values[FieldBrightness]; ok {
		payload.Brightness = state.Int(int(v))
		produced = true
	}

	if v, ok := values[FieldKelvin]; ok {
		minK, maxK, ok := caps.TempRange()
		if ok {
			kelvin := minK + int(math.Round(float64(v)/255*float64(maxK-minK)))
			payload.ColorTemp = state.Int(kelvin)
			produced = true
		}
		// No declared range: skip rather than guess.
	}

	return payload, produced
}
