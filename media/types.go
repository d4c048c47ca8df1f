// media/types.go
package media

type AssetType string

const (
	AssetTypeThumbnail AssetType = "thumbnail"
	AssetTypePreview   AssetType = "preview"
	AssetTypeArchive   AssetType = "archive"
)

const (
	ThumbnailSuffix = "_thumb.jpg"
	PreviewSuffix   = "_preview.jpg"
)

// Metadata struct
// Technical fields read from a file. Every field is optional; extraction
// failures leave the field nil.
type Metadata struct {
	Width        *int     `json:"width,omitempty"`
	Height       *int     `json:"height,omitempty"`
	FNumber      *float64 `json:"f_number,omitempty"`
	ExposureTime *string  `json:"exposure_time,omitempty"`
	ISO          *int     `json:"iso,omitempty"`
	FocalLength  *float64 `json:"focal_length,omitempty"`
	Flash        *bool    `json:"flash,omitempty"`
	LensMake     *string  `json:"lens_make,omitempty"`
	LensModel    *string  `json:"lens_model,omitempty"`
	CameraMake   *string  `json:"camera_make,omitempty"`
	CameraModel  *string  `json:"camera_model,omitempty"`
	TakenAt      *int64   `json:"taken_at,omitempty"`
	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
}

// Merge fills nil fields of m from other.
func (m *Metadata) Merge(other *Metadata) {
	if other == nil {
		return
	}
	if m.Width == nil && m.Height == nil {
		m.Width, m.Height = other.Width, other.Height
	}
	if m.FNumber == nil {
		m.FNumber = other.FNumber
	}
	if m.ExposureTime == nil {
		m.ExposureTime = other.ExposureTime
	}
	if m.ISO == nil {
		m.ISO = other.ISO
	}
	if m.FocalLength == nil {
		m.FocalLength = other.FocalLength
	}
	if m.Flash == nil {
		m.Flash = other.Flash
	}
	if m.LensMake == nil {
		m.LensMake = other.LensMake
	}
	if m.LensModel == nil {
		m.LensModel = other.LensModel
	}
	if m.CameraMake == nil {
		m.CameraMake = other.CameraMake
	}
	if m.CameraModel == nil {
		m.CameraModel = other.CameraModel
	}
	if m.TakenAt == nil {
		m.TakenAt = other.TakenAt
	}
	if m.Latitude == nil && m.Longitude == nil {
		m.Latitude, m.Longitude = other.Latitude, other.Longitude
	}
}

// DerivedAssets are the hot-storage paths of generated assets, relative to
// the hot storage root.
type DerivedAssets struct {
	ThumbnailPath string
	PreviewPath   string
}
