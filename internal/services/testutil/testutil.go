// Package testutil provides shared test utilities for integration tests.
package testutil

import (
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bbernstein/lumenbridge-go/internal/database/models"
	"github.com/bbernstein/lumenbridge-go/internal/store"
)

// SetupTestStore creates an in-memory SQLite store for testing.
// It returns the store, the raw gorm handle, and a cleanup function.
func SetupTestStore(t *testing.T) (*store.Store, *gorm.DB, func()) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	if err := store.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}

	cleanup := func() {
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	}

	return store.New(db), db, cleanup
}

// AddDevice inserts a device row, failing the test on error.
func AddDevice(t *testing.T, db *gorm.DB, device models.Device) {
	t.Helper()
	// gorm overwrites a zero-value field with its `default` tag value at
	// insert, so Enabled:false would be stored as true; write the
	// intended value back after the create.
	enabled := device.Enabled
	if err := db.Create(&device).Error; err != nil {
		t.Fatalf("Failed to create device %s: %v", device.ID, err)
	}
	if err := db.Model(&models.Device{}).Where("id = ?", device.ID).
		Update("enabled", enabled).Error; err != nil {
		t.Fatalf("Failed to set enabled for device %s: %v", device.ID, err)
	}
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

// FloatPtr returns a pointer to f.
func FloatPtr(f float64) *float64 {
	return &f
}
