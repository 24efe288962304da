// Package models contains the database model definitions.
// These models map directly to the SQLite database tables.
package models

import (
	"time"
)

// Device represents a LAN-attached smart light, either discovered or
// created manually by the user.
// Table: devices
type Device struct {
	ID       string  `gorm:"column:id;primaryKey"` // MAC or vendor identifier
	Name     *string `gorm:"column:name"`
	IP       string  `gorm:"column:ip"`
	Protocol string  `gorm:"column:protocol;index"` // govee, lifx, ...
	Port     int     `gorm:"column:port"`

	Enabled    bool `gorm:"column:enabled;default:true"`
	Manual     bool `gorm:"column:manual;default:false"`     // user-created
	Configured bool `gorm:"column:configured;default:false"` // user has ever edited
	Discovered bool `gorm:"column:discovered;default:false"`

	Model    *string `gorm:"column:model"` // vendor SKU, e.g. H6159
	Label    *string `gorm:"column:label"`
	Firmware *string `gorm:"column:firmware"`

	// Capabilities is a JSON object (catalog-resolved for Govee,
	// device-reported for LIFX).
	Capabilities *string `gorm:"column:capabilities"`

	FirstSeen *time.Time `gorm:"column:first_seen"`
	LastSeen  *time.Time `gorm:"column:last_seen"`

	Offline           bool       `gorm:"column:offline;default:false"`
	PollFailureCount  int        `gorm:"column:poll_failure_count;default:0"`
	PollLastSuccessAt *time.Time `gorm:"column:poll_last_success_at"`
	PollLastFailureAt *time.Time `gorm:"column:poll_last_failure_at"`
	PollState         *string    `gorm:"column:poll_state"` // JSON of last normalised poll state

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Device) TableName() string { return "devices" }

// Mapping represents a DMX channel range mapped onto a device.
// Table: mappings
type Mapping struct {
	ID       string `gorm:"column:id;primaryKey"`
	DeviceID string `gorm:"column:device_id;index"`
	Universe int    `gorm:"column:universe;index"`
	Channel  int    `gorm:"column:channel"` // 1..512
	Length   int    `gorm:"column:length"`

	MappingType  string  `gorm:"column:mapping_type"` // range or discrete
	Field        *string `gorm:"column:field"`        // r,g,b,w,dimmer,brightness,kelvin
	Template     *string `gorm:"column:template"`     // rgb, rgbw, ...
	AllowOverlap bool    `gorm:"column:allow_overlap;default:false"`

	// Per-mapping capability overrides
	Mode         *string  `gorm:"column:mode"`
	ChannelOrder *string  `gorm:"column:channel_order"` // JSON array, e.g. ["r","g","b"]
	Gamma        *float64 `gorm:"column:gamma"`         // [0.1, 5.0]
	Dimmer       *float64 `gorm:"column:dimmer"`        // [0.0, 1.0]
	WhitePolicy  *string  `gorm:"column:white_policy"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Mapping) TableName() string { return "mappings" }

// QueuedState is a pending device state update awaiting dispatch.
// Rows drain in insertion order per device.
// Table: queued_states
type QueuedState struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	DeviceID  string    `gorm:"column:device_id;index"`
	Payload   string    `gorm:"column:payload"` // JSON state.Payload
	ContextID *string   `gorm:"column:context_id"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (QueuedState) TableName() string { return "queued_states" }

// DeadLetter is an undeliverable payload parked for inspection.
// Table: dead_letters
type DeadLetter struct {
	ID        string    `gorm:"column:id;primaryKey"`
	DeviceID  string    `gorm:"column:device_id;index"`
	Payload   string    `gorm:"column:payload"`
	Reason    string    `gorm:"column:reason"` // missing_ip, device_unavailable, ...
	Attempts  int       `gorm:"column:attempts;default:0"`
	FirstSeen time.Time `gorm:"column:first_seen;autoCreateTime"`
}

func (DeadLetter) TableName() string { return "dead_letters" }
