package models

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Kind is one of the three parallel media categories.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindRaw   Kind = "raw"
)

// AllKinds is the fixed scan order.
var AllKinds = []Kind{KindImage, KindVideo, KindRaw}

var kindExtensions = map[Kind]map[string]bool{
	KindImage: {
		".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true,
		".tif": true, ".tiff": true, ".webp": true,
	},
	KindVideo: {
		".mp4": true, ".mov": true, ".m4v": true, ".avi": true, ".mkv": true,
		".webm": true, ".3gp": true, ".mts": true, ".m2ts": true,
	},
	KindRaw: {
		".cr2": true, ".cr3": true, ".nef": true, ".nrw": true, ".arw": true,
		".srf": true, ".sr2": true, ".dng": true, ".raf": true, ".orf": true,
		".rw2": true, ".pef": true, ".srw": true, ".x3f": true, ".3fr": true,
		".iiq": true, ".rwl": true, ".erf": true, ".kdc": true, ".mrw": true,
	},
}

func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(s)) {
	case KindImage:
		return KindImage, nil
	case KindVideo:
		return KindVideo, nil
	case KindRaw:
		return KindRaw, nil
	}
	return "", fmt.Errorf("unknown media kind %q", s)
}

// Folder is the top-level asset store directory holding files of this kind.
func (k Kind) Folder() string {
	switch k {
	case KindImage:
		return "images"
	case KindVideo:
		return "videos"
	case KindRaw:
		return "raw"
	}
	return ""
}

func (k Kind) TableName() string {
	switch k {
	case KindImage:
		return Image{}.TableName()
	case KindVideo:
		return Video{}.TableName()
	case KindRaw:
		return RawImage{}.TableName()
	}
	return ""
}

// Accepts reports whether filename carries one of this kind's extensions,
// compared case-insensitively.
func (k Kind) Accepts(filename string) bool {
	exts, ok := kindExtensions[k]
	if !ok {
		return false
	}
	return exts[strings.ToLower(filepath.Ext(filename))]
}

// KindForFile returns the kind whose extension set contains filename.
func KindForFile(filename string) (Kind, bool) {
	for _, k := range AllKinds {
		if k.Accepts(filename) {
			return k, true
		}
	}
	return "", false
}
