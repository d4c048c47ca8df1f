package models

import "gorm.io/datatypes"

// Album represents a user-curated collection of media records using GORM.
// It corresponds to the 'albums' table.
type Album struct {
	ID          uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	AlbumName   string  `gorm:"not null;unique" json:"album_name"`
	Description *string `gorm:"" json:"description,omitempty"` // Nullable
	Location    *string `gorm:"" json:"location,omitempty"`    // Nullable

	ImageCount int `gorm:"not null;default:0" json:"image_count"`
	VideoCount int `gorm:"not null;default:0" json:"video_count"`
	RawCount   int `gorm:"not null;default:0" json:"raw_count"`
	TotalCount int `gorm:"not null;default:0" json:"total_count"`

	// member ids per kind, in insertion order
	ImageIDs datatypes.JSONSlice[uint] `gorm:"column:image_ids;not null;default:'[]'" json:"image_ids"`
	VideoIDs datatypes.JSONSlice[uint] `gorm:"column:video_ids;not null;default:'[]'" json:"video_ids"`
	RawIDs   datatypes.JSONSlice[uint] `gorm:"column:raw_ids;not null;default:'[]'" json:"raw_ids"`

	AlbumSize int64 `gorm:"not null;default:0" json:"album_size"` // sum of member file sizes, bytes

	AlbumCoverType *Kind `gorm:"type:text" json:"album_cover_type,omitempty"` // Nullable
	AlbumCoverID   *uint `gorm:"" json:"album_cover_id,omitempty"`            // Nullable

	CreatedAt int64 `gorm:"not null" json:"created_at"` // Stored as INTEGER in SQLite, Unix timestamp
	UpdatedAt int64 `gorm:"not null" json:"updated_at"` // Stored as INTEGER in SQLite, Unix timestamp
}

// TableName explicitly sets the table name for GORM.
func (Album) TableName() string {
	return "albums"
}

// MemberIDs returns a pointer to the id array for kind so callers can edit it
// in place.
func (a *Album) MemberIDs(kind Kind) *datatypes.JSONSlice[uint] {
	switch kind {
	case KindImage:
		return &a.ImageIDs
	case KindVideo:
		return &a.VideoIDs
	case KindRaw:
		return &a.RawIDs
	}
	return nil
}

// HasMember reports whether the record of kind with id belongs to the album.
func (a *Album) HasMember(kind Kind, id uint) bool {
	ids := a.MemberIDs(kind)
	if ids == nil {
		return false
	}
	for _, m := range *ids {
		if m == id {
			return true
		}
	}
	return false
}

// IsCover reports whether the album cover points at the given record.
func (a *Album) IsCover(kind Kind, id uint) bool {
	return a.AlbumCoverType != nil && a.AlbumCoverID != nil &&
		*a.AlbumCoverType == kind && *a.AlbumCoverID == id
}

func (a *Album) ClearCover() {
	a.AlbumCoverType = nil
	a.AlbumCoverID = nil
}

func (a *Album) SetCover(kind Kind, id uint) {
	k := kind
	i := id
	a.AlbumCoverType = &k
	a.AlbumCoverID = &i
}

// RecountMembers recomputes the per-kind counters and the total from the id
// arrays.
func (a *Album) RecountMembers() {
	a.ImageCount = len(a.ImageIDs)
	a.VideoCount = len(a.VideoIDs)
	a.RawCount = len(a.RawIDs)
	a.TotalCount = a.ImageCount + a.VideoCount + a.RawCount
}
