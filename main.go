package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/camden-git/photovault/config"
	"github.com/camden-git/photovault/database"
	"github.com/camden-git/photovault/embedding"
	"github.com/camden-git/photovault/extract"
	"github.com/camden-git/photovault/geocode"
	"github.com/camden-git/photovault/handlers"
	"github.com/camden-git/photovault/ingest"
	"github.com/camden-git/photovault/media"
	"github.com/camden-git/photovault/models"
	"github.com/camden-git/photovault/progress"
	"github.com/camden-git/photovault/queue"
	"github.com/camden-git/photovault/realtime"
	"github.com/camden-git/photovault/repository"
	"github.com/camden-git/photovault/services"
	"github.com/camden-git/photovault/workers"
)

const (
	modeAll      = "all"
	modeAPI      = "api"
	modeWorker   = "worker"
	modeSentinel = "sentinel"
)

func main() {
	mode := flag.String("mode", modeAll, "process role: all, api, worker or sentinel")
	flag.Parse()
	switch *mode {
	case modeAll, modeAPI, modeWorker, modeSentinel:
	default:
		log.Fatalf("FATAL: unknown mode %q", *mode)
	}

	err := godotenv.Load()
	if err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		log.Fatalf("FATAL: Failed to create database directory: %v", err)
	}
	db, err := database.InitGormDB(cfg.DatabasePath, cfg.DBLogLevel)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database: %v", err)
	}
	if err := database.AutoMigrateModels(db); err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	mediaRepo := repository.NewMediaRepository(db)
	albumRepo := repository.NewAlbumRepository(db)
	configRepo := repository.NewConfigRepository(db)
	resolver := config.NewResolver(cfg, configRepo)

	if hot := resolver.Resolve(context.Background()).HotStoragePath; hot != "" {
		store, err := media.NewHotStorage(hot)
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize hot storage: %v", err)
		}
		for _, t := range []media.AssetType{media.AssetTypeThumbnail, media.AssetTypePreview, media.AssetTypeArchive} {
			if _, err := store.EnsureDir(t); err != nil {
				log.Fatalf("FATAL: %v", err)
			}
		}
		log.Printf("Storing derived assets in: %s", hot)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer rdb.Close()
	progressStore := progress.NewStore(rdb, cfg.ScanLockTTL, cfg.ExportTTL).WithBatchTTL(cfg.BatchTTL)
	if err := progressStore.Ping(context.Background()); err != nil {
		log.Fatalf("FATAL: Failed to reach Redis at %s: %v", cfg.RedisAddr, err)
	}

	redisOpt := queue.RedisOpt(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	queueClient := queue.NewClient(redisOpt, cfg.QueueName, cfg.ExportQueueName)
	defer queueClient.Close()

	publisher := realtime.NewRedisPublisher(rdb)

	var embedder embedding.Embedder
	if cfg.EmbeddingURL != "" {
		embedder = embedding.NewClient(cfg.EmbeddingURL, cfg.EmbeddingDim, 30*time.Second)
		log.Printf("Using embedding service at %s (dim %d)", cfg.EmbeddingURL, cfg.EmbeddingDim)
	} else {
		log.Printf("WARNING: EMBEDDING_URL not set, records will be catalogued without embeddings")
	}

	scanner := ingest.NewScanner(mediaRepo, queueClient, progressStore)
	sentinel := ingest.NewSentinel(resolver, configRepo, progressStore, scanner)
	sentinel.OnTick = func(res ingest.TickResult) {
		publisher.Publish(realtime.Event{
			Type:      realtime.EventSentinelTick,
			Status:    string(res.State),
			Completed: res.Batch.Completed,
			Total:     res.Batch.Pending,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	var wg sync.WaitGroup

	if *mode == modeAll || *mode == modeSentinel {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sentinel.Run(ctx, cfg.SentinelInterval)
		}()
	}

	if *mode == modeAll || *mode == modeWorker {
		var geocoder geocode.Geocoder
		if cfg.GeocoderURL != "" {
			geocoder = geocode.NewNominatim(cfg.GeocoderURL, cfg.GeocoderTimeout, cfg.GeocoderRPS)
		}
		deps := extract.Deps{Embedder: embedder, Geocoder: geocoder}
		extractors := extract.NewSet(deps, extract.NewVideoTools(cfg.FFProbePath), media.NewExifTool(cfg.ExifToolPath))

		assets := workers.HotStorageAssets(cfg.ThumbnailMaxSize, cfg.PreviewMaxSize)
		var mediaWorkers []*workers.MediaWorker
		for _, kind := range models.AllKinds {
			mediaWorkers = append(mediaWorkers, workers.NewMediaWorker(mediaRepo, extractors[kind], resolver, assets))
		}
		exportWorker := workers.NewExportWorker(progressStore, mediaRepo, albumRepo, configRepo, resolver, publisher)
		taskHandlers := workers.NewHandlers(mediaWorkers, exportWorker, progressStore, sentinel, publisher)

		srv := queue.NewServer(redisOpt, cfg.QueueName, cfg.ExportQueueName, cfg.WorkerConcurrency)
		if err := srv.Start(taskHandlers.Mux()); err != nil {
			log.Fatalf("FATAL: Failed to start worker pool: %v", err)
		}
		log.Printf("Worker pool started (concurrency %d, queues %s/%s)", cfg.WorkerConcurrency, cfg.QueueName, cfg.ExportQueueName)
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			srv.Shutdown()
		}()
	}

	if *mode == modeAll || *mode == modeAPI {
		hub := realtime.NewHub()
		go hub.Run(ctx)
		go hub.Relay(ctx, rdb)

		router := handlers.NewRouter(handlers.RouterDeps{
			Albums:      &handlers.AlbumHandler{Repo: albumRepo},
			Media:       &handlers.MediaHandler{Repo: mediaRepo, Service: services.NewMediaService(mediaRepo, resolver, embedder)},
			Exports:     &handlers.ExportHandler{Service: services.NewExportService(progressStore, queueClient, albumRepo, resolver)},
			Scan:        &handlers.ScanHandler{Service: services.NewScanService(queueClient, progressStore, configRepo)},
			Settings:    resolver,
			Events:      hub.ServeWS,
			CORSOrigins: cfg.CORSOrigins,
		})

		serverAddr := ":" + cfg.Port
		fmt.Printf("Server starting on http://localhost:%s\n", cfg.Port)
		server := &http.Server{
			Addr:        serverAddr,
			Handler:     router,
			ReadTimeout: 10 * time.Second,
			IdleTimeout: 120 * time.Second,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("Error shutting down server: %v", err)
			}
		}()
		log.Printf("Server listening on %s", serverAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("FATAL: %v", err)
		}
	}

	<-ctx.Done()
	log.Printf("Shutting down (%s mode)...", *mode)
	wg.Wait()
}
