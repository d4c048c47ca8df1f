package handlers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/photovault/config"
	"github.com/camden-git/photovault/media"
)

// SettingsResolver yields the settings in effect for one request.
type SettingsResolver interface {
	Resolve(ctx context.Context) config.Settings
}

// AssetServer serves one derived asset directory of the hot storage. The hot
// storage root is resolved per request, so a relocation takes effect without
// a restart. Mount it on a wildcard route:
//
//	r.Get("/thumbnails/*", AssetServer(resolver, config.DefaultThumbnailsSubDir))
func AssetServer(settings SettingsResolver, subDir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "*")
		if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
			WriteAPIError(w, http.StatusBadRequest, "invalid_path", "Invalid asset path")
			return
		}

		hot, err := media.NewHotStorage(settings.Resolve(r.Context()).HotStoragePath)
		if err != nil {
			WriteAPIError(w, http.StatusServiceUnavailable, "storage_unavailable", "Hot storage is not available")
			return
		}
		assetPath, err := hot.GetFullPath(subDir + "/" + name)
		if err != nil {
			log.Printf("api: SECURITY rejected asset path %q: %v", r.URL.Path, err)
			WriteAPIError(w, http.StatusForbidden, "forbidden", "Forbidden")
			return
		}

		if _, err := os.Stat(assetPath); os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		} else if err != nil {
			log.Printf("api: error stating asset file %s: %v", assetPath, err)
			WriteAPIError(w, http.StatusInternalServerError, "internal_error", "Internal Server Error")
			return
		}

		// asset names are content addressed
		cacheDuration := 24 * time.Hour
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(cacheDuration.Seconds())))
		w.Header().Set("Expires", time.Now().Add(cacheDuration).Format(http.TimeFormat))

		http.ServeFile(w, r, assetPath)
	}
}
