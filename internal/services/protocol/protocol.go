// Package protocol abstracts vendor device I/O behind a common handler
// interface: command wrapping, liveness polling, and discovery probes.
package protocol

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/bbernstein/lumenbridge-go/internal/database/models"
	"github.com/bbernstein/lumenbridge-go/internal/state"
)

var (
	// ErrUnsupportedProtocol is returned when no handler is registered
	// for a device's protocol.
	ErrUnsupportedProtocol = errors.New("protocol: unsupported protocol")
	// ErrEncode is returned when a payload cannot be projected onto the
	// wire. The sender dead-letters these immediately.
	ErrEncode = errors.New("protocol: encode error")
)

// Command is one step of a device update, in mandated send order.
type Command interface{ isCommand() }

// Power switches the device on or off.
type Power struct{ On bool }

// ColorTemp carries colour and/or colour temperature. At least one of the
// two fields is set.
type ColorTemp struct {
	Color  *state.Color
	Kelvin *int
}

// Brightness sets the device brightness on the 0..255 scale.
type Brightness struct{ Value int }

func (Power) isCommand()      {}
func (ColorTemp) isCommand()  {}
func (Brightness) isCommand() {}

// Decompose splits an abstract payload into ordered commands. The order is
// mandatory: power first, then colour, then brightness, so devices don't
// clamp values against a stale power or colour state.
func Decompose(payload state.Payload) []Command {
	var cmds []Command

	switch payload.Turn {
	case "on":
		cmds = append(cmds, Power{On: true})
	case "off":
		// Turning off is exclusive: a trailing colour or brightness
		// command would re-light the device.
		return []Command{Power{On: false}}
	}

	if payload.Color != nil || payload.ColorTemp != nil {
		cmds = append(cmds, ColorTemp{Color: payload.Color, Kelvin: payload.ColorTemp})
	}
	if payload.Brightness != nil {
		cmds = append(cmds, Brightness{Value: *payload.Brightness})
	}
	return cmds
}

// Handler is one vendor protocol. Wire encoding stays inside the handler;
// the rest of the core only sees abstract payloads and normalised state.
type Handler interface {
	ProtocolName() string
	DefaultPort() int

	// WrapCommand projects the payload into one or more datagrams sent in
	// order. A multi-datagram result is a batch: failure of any datagram
	// aborts the rest.
	WrapCommand(device *models.Device, payload state.Payload) ([][]byte, error)

	SupportsPolling() bool
	// BuildPollRequest builds the liveness probe for a device.
	BuildPollRequest(device *models.Device) ([]byte, error)
	// ParsePollResponse normalises a poll response, nil when the bytes
	// aren't a recognisable response.
	ParsePollResponse(raw []byte) map[string]interface{}
}

// Registry holds the known protocol handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler, keyed by its protocol name.
func (r *Registry) Register(h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[h.ProtocolName()] = h
}

// Get returns the handler for a protocol name.
func (r *Registry) Get(name string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProtocol, name)
	}
	return h, nil
}

// PollableProtocols lists registered protocols that support polling,
// sorted for stable store queries.
func (r *Registry) PollableProtocols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, h := range r.handlers {
		if h.SupportsPolling() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// DevicePort resolves the port for a device, falling back to the
// protocol default when unset.
func DevicePort(h Handler, device *models.Device) int {
	if device.Port > 0 {
		return device.Port
	}
	return h.DefaultPort()
}
