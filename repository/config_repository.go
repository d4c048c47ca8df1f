package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/camden-git/photovault/models"
)

// ConfigRepository handles the flat key/value settings table
type ConfigRepository struct {
	DB *gorm.DB
}

// NewConfigRepository creates a new instance of ConfigRepository
func NewConfigRepository(db *gorm.DB) *ConfigRepository {
	return &ConfigRepository{DB: db}
}

// Get returns the value for key and false when the key is absent
func (r *ConfigRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var entry models.ConfigEntry
	err := r.DB.WithContext(ctx).Where(map[string]interface{}{"key": key}).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get config key %s: %w", key, err)
	}
	return entry.Value, true, nil
}

// Set inserts or replaces the value for key
func (r *ConfigRepository) Set(ctx context.Context, key, value string) error {
	entry := models.ConfigEntry{Key: key, Value: value, UpdatedAt: time.Now().Unix()}
	err := r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to set config key %s: %w", key, err)
	}
	return nil
}

func (r *ConfigRepository) All(ctx context.Context) ([]models.ConfigEntry, error) {
	var entries []models.ConfigEntry
	if err := r.DB.WithContext(ctx).Order("key ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list config entries: %w", err)
	}
	return entries, nil
}
