package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/photovault/models"
	"github.com/camden-git/photovault/repository"
)

type AlbumHandler struct {
	Repo repository.AlbumRepositoryInterface
}

func parseUintParam(r *http.Request, name string) (uint, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(v), true
}

func (ah *AlbumHandler) albumID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, ok := parseUintParam(r, "album_id")
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, "invalid_id", "Invalid album ID format")
	}
	return id, ok
}

func (ah *AlbumHandler) CreateAlbum(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        string  `json:"name"`
		Description *string `json:"description"`
		Location    *string `json:"location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		WriteAPIError(w, http.StatusBadRequest, "missing_field", "Missing required field: name")
		return
	}

	album := &models.Album{AlbumName: strings.TrimSpace(req.Name), Description: req.Description, Location: req.Location}
	if err := ah.Repo.Create(r.Context(), album); err != nil {
		writeError(w, err, "create album")
		return
	}
	writeJSON(w, http.StatusCreated, album)
}

func (ah *AlbumHandler) ListAlbums(w http.ResponseWriter, r *http.Request) {
	albums, err := ah.Repo.List(r.Context())
	if err != nil {
		writeError(w, err, "list albums")
		return
	}
	if albums == nil {
		albums = []models.Album{}
	}
	writeJSON(w, http.StatusOK, albums)
}

func (ah *AlbumHandler) GetAlbum(w http.ResponseWriter, r *http.Request) {
	id, ok := ah.albumID(w, r)
	if !ok {
		return
	}
	album, err := ah.Repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err, "get album")
		return
	}
	writeJSON(w, http.StatusOK, album)
}

func (ah *AlbumHandler) UpdateAlbum(w http.ResponseWriter, r *http.Request) {
	id, ok := ah.albumID(w, r)
	if !ok {
		return
	}
	var req struct {
		Name        string  `json:"name"`
		Description *string `json:"description"`
		Location    *string `json:"location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	if err := ah.Repo.Update(r.Context(), id, strings.TrimSpace(req.Name), req.Description, req.Location); err != nil {
		writeError(w, err, "update album")
		return
	}
	ah.GetAlbum(w, r)
}

func (ah *AlbumHandler) DeleteAlbum(w http.ResponseWriter, r *http.Request) {
	id, ok := ah.albumID(w, r)
	if !ok {
		return
	}
	if err := ah.Repo.Delete(r.Context(), id); err != nil {
		writeError(w, err, "delete album")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type memberRequest struct {
	Kind string `json:"kind"`
	ID   uint   `json:"id"`
}

func decodeMember(w http.ResponseWriter, r *http.Request) (models.Kind, uint, bool) {
	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return "", 0, false
	}
	kind, err := models.ParseKind(req.Kind)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_kind", err.Error())
		return "", 0, false
	}
	if req.ID == 0 {
		WriteAPIError(w, http.StatusBadRequest, "missing_field", "Missing required field: id")
		return "", 0, false
	}
	return kind, req.ID, true
}

func (ah *AlbumHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	albumID, ok := ah.albumID(w, r)
	if !ok {
		return
	}
	kind, mediaID, ok := decodeMember(w, r)
	if !ok {
		return
	}
	if err := ah.Repo.AddMember(r.Context(), albumID, kind, mediaID); err != nil {
		writeError(w, err, "add album member")
		return
	}
	ah.GetAlbum(w, r)
}

func (ah *AlbumHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	albumID, ok := ah.albumID(w, r)
	if !ok {
		return
	}
	kind, err := models.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_kind", err.Error())
		return
	}
	mediaID, ok := parseUintParam(r, "media_id")
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, "invalid_id", "Invalid media ID format")
		return
	}
	if err := ah.Repo.RemoveMember(r.Context(), albumID, kind, mediaID); err != nil {
		writeError(w, err, "remove album member")
		return
	}
	ah.GetAlbum(w, r)
}

func (ah *AlbumHandler) SetCover(w http.ResponseWriter, r *http.Request) {
	albumID, ok := ah.albumID(w, r)
	if !ok {
		return
	}
	kind, mediaID, ok := decodeMember(w, r)
	if !ok {
		return
	}
	if err := ah.Repo.SetCover(r.Context(), albumID, kind, mediaID); err != nil {
		writeError(w, err, "set album cover")
		return
	}
	ah.GetAlbum(w, r)
}
