// Package mapping expands DMX channel ranges into abstract device state
// updates, applying templates, gamma/dimmer shaping, change detection,
// and debounce.
package mapping

// Field names a mapping can address.
const (
	FieldRed        = "r"
	FieldGreen      = "g"
	FieldBlue       = "b"
	FieldWhite      = "w"
	FieldAmber      = "a"
	FieldDimmer     = "dimmer"
	FieldBrightness = "brightness"
	FieldKelvin     = "kelvin"
)

// WhitePolicyPassthrough exempts the white channel from gamma/dimmer
// shaping, for fixtures that treat white as an independent engine.
const WhitePolicyPassthrough = "passthrough"

// templates maps a template name to its ordered field list. The slice
// order is the channel order within the mapped range.
var templates = map[string][]string{
	"rgb":            {FieldRed, FieldGreen, FieldBlue},
	"rgbw":           {FieldRed, FieldGreen, FieldBlue, FieldWhite},
	"brightness_rgb": {FieldDimmer, FieldRed, FieldGreen, FieldBlue},
	"master_only":    {FieldDimmer},
	"rgbwa":          {FieldRed, FieldGreen, FieldBlue, FieldWhite, FieldAmber},
	"rgbaw":          {FieldRed, FieldGreen, FieldBlue, FieldAmber, FieldWhite},
	"brightness":     {FieldBrightness},
	"temperature":    {FieldKelvin},
}

var validFields = map[string]bool{
	FieldRed: true, FieldGreen: true, FieldBlue: true,
	FieldWhite: true, FieldAmber: true,
	FieldDimmer: true, FieldBrightness: true, FieldKelvin: true,
}

// isColorField reports whether gamma/dimmer shaping applies to a field.
func isColorField(field string) bool {
	switch field {
	case FieldRed, FieldGreen, FieldBlue, FieldWhite, FieldAmber:
		return true
	}
	return false
}
