package lifx

import "math"

const (
	// MinKelvin and MaxKelvin bound the colour temperatures LIFX bulbs accept.
	MinKelvin uint16 = 2500
	MaxKelvin uint16 = 9000
	// DefaultKelvin is used when a payload carries colour without an
	// explicit temperature.
	DefaultKelvin uint16 = 3500
)

// HSBK is the LIFX colour model: hue, saturation, brightness, kelvin,
// each a full-range uint16.
type HSBK struct {
	Hue        uint16
	Saturation uint16
	Brightness uint16
	Kelvin     uint16
}

// ClampKelvin bounds a colour temperature to the supported LIFX range.
func ClampKelvin(k int) uint16 {
	if k < int(MinKelvin) {
		return MinKelvin
	}
	if k > int(MaxKelvin) {
		return MaxKelvin
	}
	return uint16(k)
}

// RGBToHSBK converts 8-bit RGB to HSBK using the standard HSV transform.
// kelvin is clamped to the supported range.
func RGBToHSBK(r, g, b uint8, kelvin int) HSBK {
	rf := float64(r) / 255.0
	gf := float64(g) / 255.0
	bf := float64(b) / 255.0

	max := math.Max(rf, math.Max(gf, bf))
	min := math.Min(rf, math.Min(gf, bf))
	delta := max - min

	var hue float64
	switch {
	case delta == 0:
		hue = 0
	case max == rf:
		hue = 60 * math.Mod((gf-bf)/delta, 6)
	case max == gf:
		hue = 60 * ((bf-rf)/delta + 2)
	default:
		hue = 60 * ((rf-gf)/delta + 4)
	}
	if hue < 0 {
		hue += 360
	}

	var sat float64
	if max > 0 {
		sat = delta / max
	}

	return HSBK{
		Hue:        uint16(math.Round(hue / 360.0 * 65535.0)),
		Saturation: uint16(math.Round(sat * 65535.0)),
		Brightness: uint16(math.Round(max * 65535.0)),
		Kelvin:     ClampKelvin(kelvin),
	}
}

// HSBKToRGB converts HSBK back to 8-bit RGB, ignoring kelvin.
func HSBKToRGB(c HSBK) (r, g, b uint8) {
	h := float64(c.Hue) / 65535.0 * 360.0
	s := float64(c.Saturation) / 65535.0
	v := float64(c.Brightness) / 65535.0

	cc := v * s
	x := cc * (1 - math.Abs(math.Mod(h/60.0, 2)-1))
	m := v - cc

	var rf, gf, bf float64
	switch {
	case h < 60:
		rf, gf, bf = cc, x, 0
	case h < 120:
		rf, gf, bf = x, cc, 0
	case h < 180:
		rf, gf, bf = 0, cc, x
	case h < 240:
		rf, gf, bf = 0, x, cc
	case h < 300:
		rf, gf, bf = x, 0, cc
	default:
		rf, gf, bf = cc, 0, x
	}

	r = uint8(math.Round((rf + m) * 255.0))
	g = uint8(math.Round((gf + m) * 255.0))
	b = uint8(math.Round((bf + m) * 255.0))
	return r, g, b
}

// ScaleBrightness maps an 8-bit brightness (0..255) to the uint16 range.
func ScaleBrightness(v uint8) uint16 {
	return uint16(math.Round(float64(v) / 255.0 * 65535.0))
}
