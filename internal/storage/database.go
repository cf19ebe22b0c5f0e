package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrSettingNotFound is returned by GetSetting for unknown keys.
var ErrSettingNotFound = errors.New("setting not found")

// SettingCurrentCity stores the last city selected by the user.
const SettingCurrentCity = "city_name"

type Database struct {
	db *gorm.DB
}

func NewDatabase(path string) (*Database, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&Setting{}, &WeatherSnapshot{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Database{db: db}, nil
}

func (d *Database) GetSetting(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("%w: empty key", ErrSettingNotFound)
	}

	var setting Setting
	result := d.db.Where(&Setting{Key: key}).Limit(1).Find(&setting)
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected == 0 {
		return "", fmt.Errorf("%w: %s", ErrSettingNotFound, key)
	}
	return setting.Value, nil
}

func (d *Database) SetSetting(key, value string) error {
	setting := Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	return d.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
}

func (d *Database) SaveSnapshot(snapshot *WeatherSnapshot) error {
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = time.Now()
	}
	return d.db.Create(snapshot).Error
}

// GetSnapshots returns the latest snapshots of a city, newest first. An
// empty city returns snapshots of every city.
func (d *Database) GetSnapshots(city string, limit int) ([]WeatherSnapshot, error) {
	var snapshots []WeatherSnapshot
	query := d.db.Order("timestamp desc").Limit(limit)
	if city != "" {
		query = query.Where("city_name = ?", city)
	}
	if err := query.Find(&snapshots).Error; err != nil {
		return nil, err
	}
	return snapshots, nil
}

func (d *Database) GetLatestSnapshot(city string) (*WeatherSnapshot, error) {
	var snapshot WeatherSnapshot
	result := d.db.Where("city_name = ?", city).Order("timestamp desc").First(&snapshot)
	if result.Error != nil {
		return nil, result.Error
	}
	return &snapshot, nil
}

func (d *Database) CleanOldSnapshots(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result := d.db.Unscoped().Where("timestamp < ?", cutoff).Delete(&WeatherSnapshot{})
	return result.RowsAffected, result.Error
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
