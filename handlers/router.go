package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/camden-git/photovault/config"
)

// RouterDeps holds everything the HTTP API is built from.
type RouterDeps struct {
	Albums      *AlbumHandler
	Media       *MediaHandler
	Exports     *ExportHandler
	Scan        *ScanHandler
	Settings    SettingsResolver
	Events      http.HandlerFunc // websocket endpoint, optional
	CORSOrigins []string
}

func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(corsHandler.Handler)

	r.Handle("/metrics", promhttp.Handler())

	timeout := middleware.Timeout(60 * time.Second)

	r.Route("/api", func(r chi.Router) {
		// long-lived responses
		if d.Events != nil {
			r.Get("/ws", d.Events)
		}
		r.Get("/"+config.DefaultThumbnailsSubDir+"/*", AssetServer(d.Settings, config.DefaultThumbnailsSubDir))
		r.Get("/"+config.DefaultPreviewsSubDir+"/*", AssetServer(d.Settings, config.DefaultPreviewsSubDir))

		r.Route("/exports", func(r chi.Router) {
			r.Get("/{task_id}/download", d.Exports.DownloadExport)
			r.With(timeout).Post("/{scope}", d.Exports.StartExport)
			r.With(timeout).Get("/{task_id}", d.Exports.GetExport)
			r.With(timeout).Delete("/{task_id}", d.Exports.CancelExport)
		})

		r.Group(func(r chi.Router) {
			r.Use(timeout)

			r.Post("/scan", d.Scan.TriggerScan)
			r.Get("/scan/status", d.Scan.GetStatus)

			r.Get("/timeline", d.Media.GetTimeline)
			r.Get("/map", d.Media.GetMap)
			r.Get("/search", d.Media.Search)

			r.Route("/media/{kind}/{media_id}", func(r chi.Router) {
				r.Get("/", d.Media.GetMedia)
				r.Delete("/", d.Media.DeleteMedia)
				r.Put("/favorite", d.Media.SetFavorite)
				r.Put("/location", d.Media.UpdateLocation)
			})

			r.Route("/albums", func(r chi.Router) {
				r.Post("/", d.Albums.CreateAlbum)
				r.Get("/", d.Albums.ListAlbums)
				r.Route("/{album_id}", func(r chi.Router) {
					r.Get("/", d.Albums.GetAlbum)
					r.Put("/", d.Albums.UpdateAlbum)
					r.Delete("/", d.Albums.DeleteAlbum)
					r.Post("/members", d.Albums.AddMember)
					r.Delete("/members/{kind}/{media_id}", d.Albums.RemoveMember)
					r.Put("/cover", d.Albums.SetCover)
				})
			})
		})
	})

	return r
}
