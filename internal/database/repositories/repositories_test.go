package repositories_test

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/bbernstein/lumenbridge-go/internal/database/models"
	"github.com/bbernstein/lumenbridge-go/internal/database/repositories"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Device{}, &models.Mapping{}, &models.QueuedState{}, &models.DeadLetter{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func strPtr(s string) *string { return &s }

func TestMappingCreateValidation(t *testing.T) {
	repo := repositories.NewMappingRepository(setupDB(t))
	ctx := context.Background()

	tests := []struct {
		name    string
		mapping models.Mapping
		wantErr bool
	}{
		{
			"valid range",
			models.Mapping{DeviceID: "d", Universe: 1, Channel: 1, Length: 3, MappingType: "range", Template: strPtr("rgb")},
			false,
		},
		{
			"valid discrete",
			models.Mapping{DeviceID: "d", Universe: 2, Channel: 10, Length: 1, MappingType: "discrete", Field: strPtr("dimmer")},
			false,
		},
		{
			"discrete without field",
			models.Mapping{DeviceID: "d", Universe: 3, Channel: 1, Length: 1, MappingType: "discrete"},
			true,
		},
		{
			"discrete with length 2",
			models.Mapping{DeviceID: "d", Universe: 3, Channel: 1, Length: 2, MappingType: "discrete", Field: strPtr("r")},
			true,
		},
		{
			"channel zero",
			models.Mapping{DeviceID: "d", Universe: 3, Channel: 0, Length: 1, MappingType: "range"},
			true,
		},
		{
			"range past end of universe",
			models.Mapping{DeviceID: "d", Universe: 3, Channel: 511, Length: 3, MappingType: "range"},
			true,
		},
		{
			"gamma out of range",
			models.Mapping{DeviceID: "d", Universe: 4, Channel: 1, Length: 3, MappingType: "range", Gamma: floatPtr(9.0)},
			true,
		},
		{
			"dimmer out of range",
			models.Mapping{DeviceID: "d", Universe: 4, Channel: 1, Length: 3, MappingType: "range", Dimmer: floatPtr(1.5)},
			true,
		},
		{
			"unknown type",
			models.Mapping{DeviceID: "d", Universe: 4, Channel: 1, Length: 1, MappingType: "banana"},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.mapping
			err := repo.Create(ctx, &m)
			if (err != nil) != tt.wantErr {
				t.Errorf("Create() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func floatPtr(f float64) *float64 { return &f }

func TestMappingOverlapRejection(t *testing.T) {
	repo := repositories.NewMappingRepository(setupDB(t))
	ctx := context.Background()

	first := models.Mapping{DeviceID: "a", Universe: 1, Channel: 1, Length: 3, MappingType: "range"}
	if err := repo.Create(ctx, &first); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Overlapping range without allow_overlap fails.
	overlap := models.Mapping{DeviceID: "b", Universe: 1, Channel: 3, Length: 3, MappingType: "range"}
	err := repo.Create(ctx, &overlap)
	if !errors.Is(err, repositories.ErrMappingOverlap) {
		t.Errorf("Create() error = %v, want ErrMappingOverlap", err)
	}

	// Adjacent (non-intersecting) range is fine.
	adjacent := models.Mapping{DeviceID: "b", Universe: 1, Channel: 4, Length: 3, MappingType: "range"}
	if err := repo.Create(ctx, &adjacent); err != nil {
		t.Errorf("Create() adjacent error = %v", err)
	}

	// Same range in a different universe is fine.
	otherUniverse := models.Mapping{DeviceID: "b", Universe: 2, Channel: 1, Length: 3, MappingType: "range"}
	if err := repo.Create(ctx, &otherUniverse); err != nil {
		t.Errorf("Create() other universe error = %v", err)
	}
}

func TestMappingOverlapAllowedWhenBothOptIn(t *testing.T) {
	repo := repositories.NewMappingRepository(setupDB(t))
	ctx := context.Background()

	first := models.Mapping{DeviceID: "a", Universe: 1, Channel: 1, Length: 4, MappingType: "range", AllowOverlap: true}
	if err := repo.Create(ctx, &first); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	second := models.Mapping{DeviceID: "b", Universe: 1, Channel: 2, Length: 4, MappingType: "range", AllowOverlap: true}
	if err := repo.Create(ctx, &second); err != nil {
		t.Errorf("Create() both opt-in error = %v", err)
	}

	// One-sided opt-in still fails.
	third := models.Mapping{DeviceID: "c", Universe: 1, Channel: 3, Length: 2, MappingType: "range", AllowOverlap: false}
	if err := repo.Create(ctx, &third); !errors.Is(err, repositories.ErrMappingOverlap) {
		t.Errorf("Create() one-sided error = %v, want ErrMappingOverlap", err)
	}
}

func TestQueuePopIsolatesDevices(t *testing.T) {
	repo := repositories.NewQueueRepository(setupDB(t))
	ctx := context.Background()

	if err := repo.Enqueue(ctx, "dev-A", `{"turn":"on"}`, nil); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := repo.Enqueue(ctx, "dev-B", `{"turn":"off"}`, nil); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	row, err := repo.PopNextFor(ctx, "dev-A")
	if err != nil {
		t.Fatalf("PopNextFor() error = %v", err)
	}
	if row == nil || row.DeviceID != "dev-A" {
		t.Fatalf("PopNextFor(dev-A) = %+v", row)
	}

	// dev-B's entry is untouched.
	ids, err := repo.PendingDeviceIDs(ctx)
	if err != nil {
		t.Fatalf("PendingDeviceIDs() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != "dev-B" {
		t.Errorf("PendingDeviceIDs() = %v, want [dev-B]", ids)
	}
}
