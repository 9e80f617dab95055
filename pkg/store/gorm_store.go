package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordModel is the GORM row backing one named JSON document.
type RecordModel struct {
	Name  string         `gorm:"primaryKey"`
	Value datatypes.JSON `gorm:"not null"`
}

// TableName keeps the table name stable across deployments.
func (RecordModel) TableName() string { return "records" }

// GormRecordStore implements RecordStore on Postgres with a single
// (name, jsonb value) table.
type GormRecordStore struct {
	db        *gorm.DB
	namespace string
}

// NewGormRecordStore opens the DB and runs auto-migration.
func NewGormRecordStore(dsn, namespace string) (*GormRecordStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&RecordModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if namespace = strings.TrimSpace(namespace); namespace == "" {
		namespace = "agrovision"
	}
	return &GormRecordStore{db: db, namespace: namespace}, nil
}

func (s *GormRecordStore) key(name string) string {
	return s.namespace + "_" + name
}

// Save upserts the record.
func (s *GormRecordStore) Save(name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", name, err)
	}
	model := RecordModel{Name: s.key(name), Value: datatypes.JSON(data)}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&model).Error
}

// Load reads the record into out; absent or malformed records report false.
func (s *GormRecordStore) Load(name string, out any) bool {
	var model RecordModel
	if err := s.db.First(&model, "name = ?", s.key(name)).Error; err != nil {
		if err != gorm.ErrRecordNotFound {
			slog.Warn("record unreadable", "record", name, "err", err)
		}
		return false
	}
	if err := json.Unmarshal(model.Value, out); err != nil {
		slog.Warn("discarding malformed record", "record", name, "err", err)
		return false
	}
	return true
}

// Delete removes the record.
func (s *GormRecordStore) Delete(name string) error {
	return s.db.Delete(&RecordModel{}, "name = ?", s.key(name)).Error
}
