package models

import (
	"math"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// MediaBase holds the columns shared by every media kind. It is embedded in
// Image, Video and RawImage.
type MediaBase struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Filename string `gorm:"not null;uniqueIndex" json:"filename"` // de-duplication key within a kind

	FileSize    int64   `gorm:"not null;default:0" json:"file_size"`
	CaptureDate *int64  `gorm:"index" json:"capture_date,omitempty"` // Nullable, Unix timestamp
	CreatedAt   int64   `gorm:"not null;index" json:"created_at"`    // Stored as INTEGER in SQLite, Unix timestamp
	MimeType    *string `gorm:"" json:"mime_type,omitempty"`

	Latitude  *float64 `gorm:"" json:"latitude,omitempty"`
	Longitude *float64 `gorm:"" json:"longitude,omitempty"`
	City      *string  `gorm:"" json:"city,omitempty"`
	State     *string  `gorm:"" json:"state,omitempty"`
	Country   *string  `gorm:"" json:"country,omitempty"`

	Width      int     `gorm:"not null" json:"width"`
	Height     int     `gorm:"not null" json:"height"`
	Megapixels float64 `gorm:"not null;default:0" json:"megapixels"`

	CameraMake  *string `gorm:"" json:"camera_make,omitempty"`
	CameraModel *string `gorm:"" json:"camera_model,omitempty"`

	ThumbnailPath *string `gorm:"" json:"thumbnail_path,omitempty"` // relative to the hot storage root
	PreviewPath   *string `gorm:"" json:"preview_path,omitempty"`

	Embedding   *pgvector.Vector `gorm:"type:text" json:"-"`
	IsProcessed bool             `gorm:"not null;default:false" json:"is_processed"`

	IsFavorite bool                      `gorm:"not null;default:false;index" json:"is_favorite"`
	AlbumIDs   datatypes.JSONSlice[uint] `gorm:"column:album_ids;not null;default:'[]'" json:"album_ids"`
}

// Base lets the three kinds be handled through MediaRecord.
func (b *MediaBase) Base() *MediaBase {
	return b
}

// HasLocation reports whether both coordinates are present.
func (b *MediaBase) HasLocation() bool {
	return b.Latitude != nil && b.Longitude != nil
}

// SetDimensions stores width and height and derives megapixels rounded to one
// decimal.
func (b *MediaBase) SetDimensions(width, height int) {
	b.Width = width
	b.Height = height
	b.Megapixels = math.Round(float64(width)*float64(height)/1e6*10) / 10
}

// SetEmbedding stores vec and keeps IsProcessed in step with it.
func (b *MediaBase) SetEmbedding(vec []float32) {
	if len(vec) == 0 {
		b.Embedding = nil
		b.IsProcessed = false
		return
	}
	v := pgvector.NewVector(vec)
	b.Embedding = &v
	b.IsProcessed = true
}

// EmbeddingSlice returns the stored vector, or nil.
func (b *MediaBase) EmbeddingSlice() []float32 {
	if b.Embedding == nil {
		return nil
	}
	return b.Embedding.Slice()
}

func (b *MediaBase) HasAlbum(albumID uint) bool {
	for _, id := range b.AlbumIDs {
		if id == albumID {
			return true
		}
	}
	return false
}

// MediaRecord is implemented by *Image, *Video and *RawImage.
type MediaRecord interface {
	Base() *MediaBase
	Kind() Kind
	TableName() string
}

// Image represents a still photo in the database using GORM.
// It corresponds to the 'images' table.
type Image struct {
	MediaBase

	LensMake     *string  `gorm:"" json:"lens_make,omitempty"`
	LensModel    *string  `gorm:"" json:"lens_model,omitempty"`
	Flash        *bool    `gorm:"" json:"flash,omitempty"`         // Nullable, true when the flash fired
	FNumber      *float64 `gorm:"" json:"f_number,omitempty"`      // Nullable, aperture
	ISO          *int     `gorm:"" json:"iso,omitempty"`           // Nullable
	ExposureTime *string  `gorm:"" json:"exposure_time,omitempty"` // Nullable, e.g., "1/125s"
	FocalLength  *float64 `gorm:"" json:"focal_length,omitempty"`  // Nullable, mm
}

// TableName explicitly sets the table name for GORM.
func (Image) TableName() string {
	return "images"
}

func (*Image) Kind() Kind { return KindImage }

// Video represents a video clip in the database using GORM.
// It corresponds to the 'videos' table.
type Video struct {
	MediaBase

	Duration *float64 `gorm:"" json:"duration,omitempty"` // Nullable, seconds
	FPS      *float64 `gorm:"column:fps" json:"fps,omitempty"`
	Codec    *string  `gorm:"" json:"codec,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Video) TableName() string {
	return "videos"
}

func (*Video) Kind() Kind { return KindVideo }

// RawImage represents a camera RAW file in the database using GORM.
// It corresponds to the 'raw_images' table.
type RawImage struct {
	MediaBase

	Extension string `gorm:"not null" json:"extension"` // lower-case, without the dot

	LensMake     *string  `gorm:"" json:"lens_make,omitempty"`
	LensModel    *string  `gorm:"" json:"lens_model,omitempty"`
	Flash        *bool    `gorm:"" json:"flash,omitempty"`
	FNumber      *float64 `gorm:"" json:"f_number,omitempty"`
	ISO          *int     `gorm:"" json:"iso,omitempty"`
	ExposureTime *string  `gorm:"" json:"exposure_time,omitempty"`
	FocalLength  *float64 `gorm:"" json:"focal_length,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (RawImage) TableName() string {
	return "raw_images"
}

func (*RawImage) Kind() Kind { return KindRaw }

// NewRecord returns an empty record of the given kind.
func NewRecord(kind Kind) MediaRecord {
	switch kind {
	case KindImage:
		return &Image{}
	case KindVideo:
		return &Video{}
	case KindRaw:
		return &RawImage{}
	}
	return nil
}
