// Package govee implements the Govee LAN control protocol: JSON command
// framing, discovery scan packets, and device status parsing.
package govee

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// ControlPort is the UDP port for unicast control commands.
	ControlPort = 4003
	// DiscoveryPort is the multicast port scan requests are sent to.
	DiscoveryPort = 4001
	// ResponsePort is the local UDP port devices answer on.
	ResponsePort = 4002
	// DiscoveryMulticastAddress is the default scan multicast group.
	DiscoveryMulticastAddress = "239.255.255.250"
)

var ErrInvalidPayload = errors.New("govee: invalid payload shape")

// Command is a single framed Govee LAN command.
type Command struct {
	Msg Msg `json:"msg"`
}

// Msg is the inner command envelope.
type Msg struct {
	Cmd  string      `json:"cmd"`
	Data interface{} `json:"data"`
}

// Color is an RGB triple in Govee command form.
type Color struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

// Turn builds a power command (value 1 = on, 0 = off).
func Turn(on bool) Command {
	value := 0
	if on {
		value = 1
	}
	return Command{Msg{Cmd: "turn", Data: map[string]int{"value": value}}}
}

// Brightness builds a brightness command (0..255 device scale).
func Brightness(value int) Command {
	return Command{Msg{Cmd: "brightness", Data: map[string]int{"value": value}}}
}

// ColorWC builds a colorwc command carrying colour and/or colour temperature.
// A nil color or zero kelvin omits that field.
func ColorWC(color *Color, kelvin int) Command {
	data := map[string]interface{}{}
	if color != nil {
		data["color"] = *color
	}
	if kelvin > 0 {
		data["colorTemInKelvin"] = kelvin
	}
	return Command{Msg{Cmd: "colorwc", Data: data}}
}

// Scan builds the discovery probe sent to the multicast group.
func Scan() Command {
	return Command{Msg{Cmd: "scan", Data: map[string]string{"account_topic": "reserve"}}}
}

// DevStatus builds the liveness poll request.
func DevStatus() Command {
	return Command{Msg{Cmd: "devStatus", Data: map[string]interface{}{}}}
}

// Encode serialises a command to its wire JSON.
func (c Command) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// ScanResult is a parsed discovery response.
type ScanResult struct {
	IP              string `json:"ip"`
	Device          string `json:"device"`
	SKU             string `json:"sku"`
	BLEVersionHard  string `json:"bleVersionHard"`
	BLEVersionSoft  string `json:"bleVersionSoft"`
	WifiVersionHard string `json:"wifiVersionHard"`
	WifiVersionSoft string `json:"wifiVersionSoft"`
}

// envelope matches the standard {"msg":{"cmd":...,"data":{...}}} response.
type envelope struct {
	Msg struct {
		Cmd  string          `json:"cmd"`
		Data json.RawMessage `json:"data"`
	} `json:"msg"`
}

// extractData returns the data block of a response, accepting both the
// full msg envelope and a bare data dict (older firmware sends the latter).
func extractData(raw []byte) (json.RawMessage, string, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Msg.Data) > 0 {
		return env.Msg.Data, env.Msg.Cmd, nil
	}

	var bare map[string]json.RawMessage
	if err := json.Unmarshal(raw, &bare); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if data, ok := bare["data"]; ok {
		return data, "", nil
	}
	// Treat the whole object as the data dict.
	return raw, "", nil
}

// ParseScanResponse decodes a discovery response. Responses may use the
// scan envelope or a bare data dict; both are accepted.
func ParseScanResponse(raw []byte) (*ScanResult, error) {
	data, _, err := extractData(raw)
	if err != nil {
		return nil, err
	}
	var result ScanResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if result.Device == "" {
		return nil, ErrInvalidPayload
	}
	return &result, nil
}

// ParseDeviceState decodes a devStatus response into a flat normalised map.
// Nested state/property/properties blocks are flattened, booleans coerced
// ("on"/"off"/1/0), and numeric values converted to int.
func ParseDeviceState(raw []byte) (map[string]interface{}, error) {
	data, _, err := extractData(raw)
	if err != nil {
		return nil, err
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	state := make(map[string]interface{})
	flattenInto(state, fields)
	if len(state) == 0 {
		return nil, ErrInvalidPayload
	}
	return state, nil
}

// flattenInto merges fields into state, descending one level into nested
// state/property/properties blocks and normalising well-known keys.
func flattenInto(state map[string]interface{}, fields map[string]interface{}) {
	for key, value := range fields {
		switch key {
		case "state", "property", "properties":
			if nested, ok := value.(map[string]interface{}); ok {
				flattenInto(state, nested)
				continue
			}
		}

		switch key {
		case "onOff", "power", "turn":
			state["power"] = coerceBool(value)
		case "brightness":
			state["brightness"] = coerceInt(value)
		case "colorTemInKelvin", "colorTem", "color_temperature":
			state["color_temperature"] = coerceInt(value)
		case "color":
			if c, ok := value.(map[string]interface{}); ok {
				state["color"] = map[string]interface{}{
					"r": coerceInt(c["r"]),
					"g": coerceInt(c["g"]),
					"b": coerceInt(c["b"]),
				}
			}
		case "device":
			state["device"] = value
		case "sku", "model":
			state["model"] = value
		case "wifiVersionSoft", "firmware":
			state["firmware"] = value
		case "mode":
			state["mode"] = coerceInt(value)
		default:
			state[key] = value
		}
	}
}

func coerceBool(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "on" || t == "1" || t == "true"
	case float64:
		return t != 0
	case int:
		return t != 0
	}
	return false
}

func coerceInt(v interface{}) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case bool:
		if t {
			return 1
		}
	case string:
		var n int
		if _, err := fmt.Sscanf(t, "%d", &n); err == nil {
			return n
		}
	}
	return 0
}
