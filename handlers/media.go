package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/photovault/database"
	"github.com/camden-git/photovault/models"
	"github.com/camden-git/photovault/repository"
	"github.com/camden-git/photovault/services"
)

const (
	defaultPageSize    = 100
	maxPageSize        = 500
	defaultSearchLimit = 50
)

type MediaHandler struct {
	Repo    repository.MediaRepositoryInterface
	Service *services.MediaService
}

func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 0 {
		return def
	}
	return v
}

// GetTimeline serves one page of all kinds merged by date, newest first.
// Query: limit, offset, kinds=image,video, favorites=true.
func (mh *MediaHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultPageSize)
	if limit == 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	filter := database.TimelineFilter{
		Limit:         uint64(limit),
		Offset:        uint64(queryInt(r, "offset", 0)),
		FavoritesOnly: r.URL.Query().Get("favorites") == "true",
	}
	if raw := r.URL.Query().Get("kinds"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			kind, err := models.ParseKind(strings.TrimSpace(part))
			if err != nil {
				WriteAPIError(w, http.StatusBadRequest, "invalid_kind", err.Error())
				return
			}
			filter.Kinds = append(filter.Kinds, kind)
		}
	}

	items, err := mh.Repo.Timeline(r.Context(), filter)
	if err != nil {
		writeError(w, err, "load timeline")
		return
	}
	rows := make([]models.TimelineRow, 0, len(items))
	for _, item := range items {
		rows = append(rows, item.TimelineRow())
	}
	writeJSON(w, http.StatusOK, rows)
}

func (mh *MediaHandler) GetMap(w http.ResponseWriter, r *http.Request) {
	pins, err := mh.Repo.MapPins(r.Context())
	if err != nil {
		writeError(w, err, "load map")
		return
	}
	if pins == nil {
		pins = []models.MapPin{}
	}
	writeJSON(w, http.StatusOK, pins)
}

func (mh *MediaHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		WriteAPIError(w, http.StatusBadRequest, "missing_query", "Missing required query parameter: q")
		return
	}
	hits, err := mh.Service.Search(r.Context(), q, queryInt(r, "limit", defaultSearchLimit))
	if err != nil {
		writeError(w, err, "search")
		return
	}
	if hits == nil {
		hits = []models.SearchHit{}
	}
	writeJSON(w, http.StatusOK, hits)
}

func mediaTarget(w http.ResponseWriter, r *http.Request) (models.Kind, uint, bool) {
	kind, err := models.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_kind", err.Error())
		return "", 0, false
	}
	id, ok := parseUintParam(r, "media_id")
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, "invalid_id", "Invalid media ID format")
		return "", 0, false
	}
	return kind, id, true
}

func (mh *MediaHandler) writeRecord(w http.ResponseWriter, r *http.Request, kind models.Kind, id uint) {
	rec, err := mh.Repo.GetByID(r.Context(), kind, id)
	if err != nil {
		writeError(w, err, "get media")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (mh *MediaHandler) GetMedia(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := mediaTarget(w, r)
	if !ok {
		return
	}
	mh.writeRecord(w, r, kind, id)
}

func (mh *MediaHandler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := mediaTarget(w, r)
	if !ok {
		return
	}
	if err := mh.Service.Delete(r.Context(), kind, id); err != nil {
		writeError(w, err, "delete media")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (mh *MediaHandler) SetFavorite(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := mediaTarget(w, r)
	if !ok {
		return
	}
	var req struct {
		Favorite *bool `json:"favorite"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Favorite == nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Request body must be {\"favorite\": bool}")
		return
	}
	if err := mh.Repo.SetFavorite(r.Context(), kind, id, *req.Favorite); err != nil {
		writeError(w, err, "set favorite")
		return
	}
	mh.writeRecord(w, r, kind, id)
}

func (mh *MediaHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	kind, id, ok := mediaTarget(w, r)
	if !ok {
		return
	}
	var loc repository.Location
	if err := json.NewDecoder(r.Body).Decode(&loc); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	if (loc.Latitude == nil) != (loc.Longitude == nil) {
		WriteAPIError(w, http.StatusBadRequest, "invalid_location", "latitude and longitude must be set together")
		return
	}
	if err := mh.Repo.UpdateLocation(r.Context(), kind, id, loc); err != nil {
		writeError(w, err, "update location")
		return
	}
	mh.writeRecord(w, r, kind, id)
}
