// Package state defines the abstract device state payload produced by the
// mapping engine and consumed by protocol handlers.
package state

// Color is an RGB colour with an optional white channel.
type Color struct {
	R int  `json:"r"`
	G int  `json:"g"`
	B int  `json:"b"`
	W *int `json:"w,omitempty"`
}

// Payload is the abstract device state update. Nil fields are "no change".
type Payload struct {
	Color      *Color `json:"color,omitempty"`
	Brightness *int   `json:"brightness,omitempty"`
	ColorTemp  *int   `json:"color_temp,omitempty"`
	Turn       string `json:"turn,omitempty"` // "on", "off", or empty
}

// Update couples a payload with its target device and optional trace context.
type Update struct {
	DeviceID  string  `json:"deviceId"`
	Payload   Payload `json:"payload"`
	ContextID string  `json:"contextId,omitempty"`
}

// Equal reports deep equality of two payloads. Used for change detection:
// equal payloads are dropped at the mapping engine boundary.
func (p Payload) Equal(o Payload) bool {
	if p.Turn != o.Turn {
		return false
	}
	if !intPtrEqual(p.Brightness, o.Brightness) {
		return false
	}
	if !intPtrEqual(p.ColorTemp, o.ColorTemp) {
		return false
	}
	if (p.Color == nil) != (o.Color == nil) {
		return false
	}
	if p.Color != nil {
		if p.Color.R != o.Color.R || p.Color.G != o.Color.G || p.Color.B != o.Color.B {
			return false
		}
		if !intPtrEqual(p.Color.W, o.Color.W) {
			return false
		}
	}
	return true
}

// IsZero reports whether the payload carries no fields at all.
func (p Payload) IsZero() bool {
	return p.Color == nil && p.Brightness == nil && p.ColorTemp == nil && p.Turn == ""
}

// Int returns a pointer to v, for building payloads inline.
func Int(v int) *int {
	return &v
}

func intPtrEqual(a, b *int) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}
