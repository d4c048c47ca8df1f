package queue

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/camden-git/photovault/models"
)

const (
	TypeProcessImage = "process:image"
	TypeProcessVideo = "process:video"
	TypeProcessRaw   = "process:raw"

	TypeExportAlbum    = "export:album"
	TypeExportAssets   = "export:assets"
	TypeExportHotCache = "export:hot_cache"
	TypeExportCatalog  = "export:catalog"

	TypeScanTrigger = "scan:trigger"
)

// ExportScope names what a bulk export archives.
type ExportScope string

const (
	ScopeAlbum    ExportScope = "album"
	ScopeAssets   ExportScope = "assets"
	ScopeHotCache ExportScope = "hot_cache"
	ScopeCatalog  ExportScope = "catalog"
)

var AllScopes = []ExportScope{ScopeAlbum, ScopeAssets, ScopeHotCache, ScopeCatalog}

func ParseScope(s string) (ExportScope, bool) {
	for _, sc := range AllScopes {
		if string(sc) == s {
			return sc, true
		}
	}
	return "", false
}

func ProcessTaskType(kind models.Kind) string {
	switch kind {
	case models.KindImage:
		return TypeProcessImage
	case models.KindVideo:
		return TypeProcessVideo
	case models.KindRaw:
		return TypeProcessRaw
	}
	return ""
}

func ExportTaskType(scope ExportScope) string {
	switch scope {
	case ScopeAlbum:
		return TypeExportAlbum
	case ScopeAssets:
		return TypeExportAssets
	case ScopeHotCache:
		return TypeExportHotCache
	case ScopeCatalog:
		return TypeExportCatalog
	}
	return ""
}

// ProcessPayload is the body of a process:* task.
type ProcessPayload struct {
	FullPath string `json:"full_path"`
	Filename string `json:"filename"`
}

// ExportPayload is the body of an export:* task.
type ExportPayload struct {
	TaskID  string `json:"task_id"`
	AlbumID *uint  `json:"album_id,omitempty"`
}

func NewProcessTask(kind models.Kind, p ProcessPayload) (*asynq.Task, error) {
	typ := ProcessTaskType(kind)
	if typ == "" {
		return nil, fmt.Errorf("unknown media kind %q", kind)
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal process payload for %s: %w", p.Filename, err)
	}
	return asynq.NewTask(typ, b), nil
}

func NewExportTask(scope ExportScope, p ExportPayload) (*asynq.Task, error) {
	typ := ExportTaskType(scope)
	if typ == "" {
		return nil, fmt.Errorf("unknown export scope %q", scope)
	}
	if p.TaskID == "" {
		return nil, fmt.Errorf("export payload needs a task id")
	}
	if scope == ScopeAlbum && p.AlbumID == nil {
		return nil, fmt.Errorf("album export needs an album id")
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export payload %s: %w", p.TaskID, err)
	}
	return asynq.NewTask(typ, b), nil
}

func ParseProcessPayload(t *asynq.Task) (ProcessPayload, error) {
	var p ProcessPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return ProcessPayload{}, fmt.Errorf("bad %s payload: %w", t.Type(), err)
	}
	return p, nil
}

func ParseExportPayload(t *asynq.Task) (ExportPayload, error) {
	var p ExportPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return ExportPayload{}, fmt.Errorf("bad %s payload: %w", t.Type(), err)
	}
	return p, nil
}
