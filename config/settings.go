package config

import (
	"context"
	"log"
	"path/filepath"
)

// keys in the catalog's config table
const (
	KeyStoragePath    = "storage_path"
	KeyHotStoragePath = "hot_storage_path"
	KeyStorageStatus  = "storage_status"
)

const (
	StorageConnected    = "connected"
	StorageDisconnected = "disconnected"
)

// KeyValueStore is the subset of the config table the resolver needs.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

// Settings is a snapshot of the runtime-changeable settings, resolved once per
// sentinel tick or worker invocation and passed down.
type Settings struct {
	StoragePath    string
	HotStoragePath string
}

func (s Settings) ThumbnailsPath() string {
	return filepath.Join(s.HotStoragePath, DefaultThumbnailsSubDir)
}

func (s Settings) PreviewsPath() string {
	return filepath.Join(s.HotStoragePath, DefaultPreviewsSubDir)
}

func (s Settings) ArchivesPath() string {
	return filepath.Join(s.HotStoragePath, DefaultArchivesSubDir)
}

// Resolver reads settings from the config table, falling back to the values
// loaded from the environment when a key is absent or the lookup fails.
type Resolver struct {
	Env   Config
	Store KeyValueStore
}

func NewResolver(env Config, store KeyValueStore) *Resolver {
	return &Resolver{Env: env, Store: store}
}

func (r *Resolver) Resolve(ctx context.Context) Settings {
	s := Settings{
		StoragePath:    r.Env.StoragePath,
		HotStoragePath: r.Env.HotStoragePath,
	}
	if r.Store == nil {
		return s
	}

	if v, ok, err := r.Store.Get(ctx, KeyStoragePath); err != nil {
		log.Printf("config: failed to read %s, using environment value: %v", KeyStoragePath, err)
	} else if ok && v != "" {
		s.StoragePath = filepath.Clean(v)
	}

	if v, ok, err := r.Store.Get(ctx, KeyHotStoragePath); err != nil {
		log.Printf("config: failed to read %s, using environment value: %v", KeyHotStoragePath, err)
	} else if ok && v != "" {
		s.HotStoragePath = filepath.Clean(v)
	}

	return s
}
