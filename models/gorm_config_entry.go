package models

// ConfigEntry represents one runtime setting using GORM.
// It corresponds to the 'config_entries' table.
type ConfigEntry struct {
	Key       string `gorm:"primaryKey" json:"key"`
	Value     string `gorm:"not null" json:"value"`
	UpdatedAt int64  `gorm:"not null" json:"updated_at"` // Unix timestamp
}

// TableName explicitly sets the table name for GORM.
func (ConfigEntry) TableName() string {
	return "config_entries"
}
