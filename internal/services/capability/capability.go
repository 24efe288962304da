// Package capability resolves what a device can do. Govee and WiZ models
// come from a catalog file; LIFX devices report their own capabilities
// during discovery.
package capability

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/bbernstein/lumenbridge-go/internal/database/models"
)

// Set describes the controllable features of a device model.
type Set struct {
	Color          bool  `toml:"color" json:"color"`
	Brightness     bool  `toml:"brightness" json:"brightness"`
	ColorTemp      bool  `toml:"color_temp" json:"color_temp"`
	ColorTempRange []int `toml:"color_temp_range" json:"color_temp_range,omitempty"`
}

// TempRange returns the supported kelvin range, if the device declares one.
func (s *Set) TempRange() (minK, maxK int, ok bool) {
	if s == nil || len(s.ColorTempRange) != 2 {
		return 0, 0, false
	}
	minK, maxK = s.ColorTempRange[0], s.ColorTempRange[1]
	if minK <= 0 || maxK <= minK {
		return 0, 0, false
	}
	return minK, maxK, true
}

// Provider looks up the capability set for a device. A nil result means
// unknown; callers must degrade rather than guess.
type Provider interface {
	Lookup(device *models.Device) *Set
}

// Catalog is a model-keyed capability table loaded from a TOML file.
type Catalog struct {
	mu     sync.RWMutex
	models map[string]Set
}

type catalogFile struct {
	Models map[string]Set `toml:"models"`
}

// LoadCatalog reads the capability catalog. A missing file is not an
// error; the bridge runs with an empty catalog and logs once.
func LoadCatalog(path string) (*Catalog, error) {
	c := &Catalog{models: make(map[string]Set)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("⚠️ Capability catalog %s not found, running without model capabilities", path)
			return c, nil
		}
		return nil, fmt.Errorf("failed to read capability catalog: %w", err)
	}

	var file catalogFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse capability catalog: %w", err)
	}
	if file.Models != nil {
		c.models = file.Models
	}
	log.Printf("✅ Capability catalog loaded: %d models", len(c.models))
	return c, nil
}

// Lookup returns the catalog entry for the device's model, or nil.
func (c *Catalog) Lookup(device *models.Device) *Set {
	if device == nil || device.Model == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if set, ok := c.models[*device.Model]; ok {
		return &set
	}
	return nil
}

// Reported reads the capability set a device reported about itself,
// stored as JSON on the device record.
type Reported struct{}

// Lookup parses the device's stored capabilities, or nil if absent or
// unparseable.
func (Reported) Lookup(device *models.Device) *Set {
	if device == nil || device.Capabilities == nil {
		return nil
	}
	var set Set
	if err := json.Unmarshal([]byte(*device.Capabilities), &set); err != nil {
		return nil
	}
	return &set
}

// Resolver picks the provider appropriate for a device's protocol.
type Resolver struct {
	catalog  Provider
	reported Provider
}

// NewResolver wires the catalog and reported providers.
func NewResolver(catalog, reported Provider) *Resolver {
	return &Resolver{catalog: catalog, reported: reported}
}

// For resolves capabilities for a device: catalog-backed for Govee and
// WiZ, device-reported for LIFX.
func (r *Resolver) For(device *models.Device) *Set {
	if device == nil {
		return nil
	}
	switch device.Protocol {
	case "lifx":
		return r.reported.Lookup(device)
	default:
		return r.catalog.Lookup(device)
	}
}
