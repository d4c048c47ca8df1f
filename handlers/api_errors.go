package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"gorm.io/gorm"

	"github.com/camden-git/photovault/repository"
	"github.com/camden-git/photovault/services"
)

// APIErrorDetail represents a single error in the standardized error response.
type APIErrorDetail struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// APIErrorResponse represents the standardized error response body.
type APIErrorResponse struct {
	Errors []APIErrorDetail `json:"errors"`
}

// WriteAPIError writes a standardized error response with the given HTTP status, code, and detail.
func WriteAPIError(w http.ResponseWriter, httpStatus int, code string, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	resp := APIErrorResponse{
		Errors: []APIErrorDetail{
			{
				Code:   code,
				Status: strconv.Itoa(httpStatus),
				Detail: detail,
			},
		},
	}

	_ = json.NewEncoder(w).Encode(resp)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("api: error encoding JSON response: %v", err)
		}
	}
}

// writeError maps known domain errors to a status and code; anything else is
// logged and reported as an internal error.
func writeError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, services.ErrExportNotFound):
		WriteAPIError(w, http.StatusNotFound, "not_found", "The requested resource was not found")
	case errors.Is(err, repository.ErrDuplicateAlbumName):
		WriteAPIError(w, http.StatusConflict, "duplicate_album_name", err.Error())
	case errors.Is(err, repository.ErrNotMember):
		WriteAPIError(w, http.StatusBadRequest, "not_a_member", err.Error())
	case errors.Is(err, services.ErrInvalidScope), errors.Is(err, services.ErrAlbumRequired):
		WriteAPIError(w, http.StatusBadRequest, "invalid_export", err.Error())
	case errors.Is(err, services.ErrExportNotReady):
		WriteAPIError(w, http.StatusConflict, "export_not_ready", err.Error())
	case errors.Is(err, services.ErrSearchUnavailable):
		WriteAPIError(w, http.StatusServiceUnavailable, "search_unavailable", err.Error())
	default:
		log.Printf("api: ERROR failed to %s: %v", action, err)
		WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Failed to "+action)
	}
}
