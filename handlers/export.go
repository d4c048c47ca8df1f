package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/photovault/services"
)

type ExportHandler struct {
	Service *services.ExportService
}

// StartExport queues an export of the scope in the path. Album exports take
// the album from ?album_id= or a {"album_id": n} body.
func (eh *ExportHandler) StartExport(w http.ResponseWriter, r *http.Request) {
	var albumID *uint
	if v := r.URL.Query().Get("album_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			WriteAPIError(w, http.StatusBadRequest, "invalid_id", "Invalid album ID format")
			return
		}
		u := uint(id)
		albumID = &u
	} else if r.ContentLength > 0 {
		var req struct {
			AlbumID *uint `json:"album_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
			return
		}
		albumID = req.AlbumID
	}

	st, err := eh.Service.Start(r.Context(), chi.URLParam(r, "scope"), albumID)
	if err != nil {
		writeError(w, err, "start export")
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

func (eh *ExportHandler) GetExport(w http.ResponseWriter, r *http.Request) {
	st, err := eh.Service.Status(r.Context(), chi.URLParam(r, "task_id"))
	if err != nil {
		writeError(w, err, "get export status")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (eh *ExportHandler) CancelExport(w http.ResponseWriter, r *http.Request) {
	st, err := eh.Service.Cancel(r.Context(), chi.URLParam(r, "task_id"))
	if err != nil {
		writeError(w, err, "cancel export")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (eh *ExportHandler) DownloadExport(w http.ResponseWriter, r *http.Request) {
	path, filename, err := eh.Service.Archive(r.Context(), chi.URLParam(r, "task_id"))
	if err != nil {
		writeError(w, err, "download export")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	http.ServeFile(w, r, path)
}
