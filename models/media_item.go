package models

// MediaItem is a tagged union over the three media kinds. Exactly one of
// Image, Video or Raw is set, matching Kind.
type MediaItem struct {
	Kind  Kind
	Image *Image
	Video *Video
	Raw   *RawImage
}

// ItemFromRecord wraps a concrete record in a MediaItem.
func ItemFromRecord(rec MediaRecord) MediaItem {
	switch r := rec.(type) {
	case *Image:
		return MediaItem{Kind: KindImage, Image: r}
	case *Video:
		return MediaItem{Kind: KindVideo, Video: r}
	case *RawImage:
		return MediaItem{Kind: KindRaw, Raw: r}
	}
	return MediaItem{}
}

// Record returns the variant that is set, or nil.
func (m MediaItem) Record() MediaRecord {
	switch m.Kind {
	case KindImage:
		if m.Image != nil {
			return m.Image
		}
	case KindVideo:
		if m.Video != nil {
			return m.Video
		}
	case KindRaw:
		if m.Raw != nil {
			return m.Raw
		}
	}
	return nil
}

func (m MediaItem) base() *MediaBase {
	if rec := m.Record(); rec != nil {
		return rec.Base()
	}
	return nil
}

// TimelineRow is the card shown on the timeline.
type TimelineRow struct {
	Kind          Kind     `json:"kind"`
	ID            uint     `json:"id"`
	Filename      string   `json:"filename"`
	Date          int64    `json:"date"` // capture date, or creation time when unknown
	Width         int      `json:"width"`
	Height        int      `json:"height"`
	ThumbnailPath *string  `json:"thumbnail_path,omitempty"`
	PreviewPath   *string  `json:"preview_path,omitempty"`
	IsFavorite    bool     `json:"is_favorite"`
	Duration      *float64 `json:"duration,omitempty"`  // video only
	Extension     *string  `json:"extension,omitempty"` // raw only
}

// MapPin is a record with coordinates.
type MapPin struct {
	Kind          Kind    `json:"kind"`
	ID            uint    `json:"id"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	City          *string `json:"city,omitempty"`
	Country       *string `json:"country,omitempty"`
	ThumbnailPath *string `json:"thumbnail_path,omitempty"`
}

// SearchHit is a search result ranked by cosine distance to the query.
type SearchHit struct {
	Kind          Kind    `json:"kind"`
	ID            uint    `json:"id"`
	Filename      string  `json:"filename"`
	Distance      float64 `json:"distance"`
	ThumbnailPath *string `json:"thumbnail_path,omitempty"`
}

func (m MediaItem) TimelineRow() TimelineRow {
	b := m.base()
	if b == nil {
		return TimelineRow{Kind: m.Kind}
	}
	row := TimelineRow{
		Kind:          m.Kind,
		ID:            b.ID,
		Filename:      b.Filename,
		Date:          b.CreatedAt,
		Width:         b.Width,
		Height:        b.Height,
		ThumbnailPath: b.ThumbnailPath,
		PreviewPath:   b.PreviewPath,
		IsFavorite:    b.IsFavorite,
	}
	if b.CaptureDate != nil {
		row.Date = *b.CaptureDate
	}
	switch m.Kind {
	case KindVideo:
		row.Duration = m.Video.Duration
	case KindRaw:
		ext := m.Raw.Extension
		row.Extension = &ext
	}
	return row
}

// MapPin returns the pin for the item and false when it has no coordinates.
func (m MediaItem) MapPin() (MapPin, bool) {
	b := m.base()
	if b == nil || !b.HasLocation() {
		return MapPin{}, false
	}
	return MapPin{
		Kind:          m.Kind,
		ID:            b.ID,
		Latitude:      *b.Latitude,
		Longitude:     *b.Longitude,
		City:          b.City,
		Country:       b.Country,
		ThumbnailPath: b.ThumbnailPath,
	}, true
}

func (m MediaItem) SearchHit(distance float64) SearchHit {
	b := m.base()
	if b == nil {
		return SearchHit{Kind: m.Kind, Distance: distance}
	}
	return SearchHit{
		Kind:          m.Kind,
		ID:            b.ID,
		Filename:      b.Filename,
		Distance:      distance,
		ThumbnailPath: b.ThumbnailPath,
	}
}
