package media

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/camden-git/photovault/config"
)

// Store defines the interface for saving, retrieving, and deleting derived assets
type Store interface {
	// Save stores data from reader under the asset type's directory and
	// returns the path relative to the store root
	Save(assetType AssetType, filename string, data io.Reader) (string, error)
	// Exists reports whether a named asset is already on disk and returns
	// its relative path
	Exists(assetType AssetType, filename string) (string, bool)
	// Create opens a new file for an asset that is written incrementally
	Create(assetType AssetType, filename string) (*os.File, string, error)
	// Get retrieves a reader for an asset
	Get(relativePath string) (io.ReadCloser, os.FileInfo, error)
	// Delete removes an asset; a missing asset is not an error
	Delete(relativePath string) error
	// GetFullPath returns the absolute filesystem path for a relative asset path
	GetFullPath(relativePath string) (string, error)
	// EnsureDir makes sure a specific asset type directory exists
	EnsureDir(assetType AssetType) (string, error)
}

// DefaultSubDirs maps asset types to their directory under the hot storage root.
func DefaultSubDirs() map[AssetType]string {
	return map[AssetType]string{
		AssetTypeThumbnail: config.DefaultThumbnailsSubDir,
		AssetTypePreview:   config.DefaultPreviewsSubDir,
		AssetTypeArchive:   config.DefaultArchivesSubDir,
	}
}

// LocalStorage implements the Store interface using the local filesystem
type LocalStorage struct {
	basePath        string               // absolute hot storage root
	resolvedPathMap map[AssetType]string // maps AssetType to full absolute path
}

// NewLocalStorage creates a new local filesystem store
func NewLocalStorage(basePath string, subDirs map[AssetType]string) (*LocalStorage, error) {
	if basePath == "" {
		return nil, errors.New("hot storage path is not configured")
	}
	absBasePath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid base storage path '%s': %w", basePath, err)
	}

	if err := os.MkdirAll(absBasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory '%s': %w", absBasePath, err)
	}

	resolvedPaths := make(map[AssetType]string)
	for assetType, subDir := range subDirs {
		fullPath := filepath.Join(absBasePath, subDir)
		if !isWithin(absBasePath, fullPath) {
			return nil, fmt.Errorf("invalid subdirectory configuration: '%s' resolves outside base path '%s'", subDir, absBasePath)
		}
		resolvedPaths[assetType] = fullPath
	}

	return &LocalStorage{
		basePath:        absBasePath,
		resolvedPathMap: resolvedPaths,
	}, nil
}

// NewHotStorage opens the standard hot storage layout at basePath.
func NewHotStorage(basePath string) (*LocalStorage, error) {
	return NewLocalStorage(basePath, DefaultSubDirs())
}

func isWithin(base, path string) bool {
	rel, err := filepath.Rel(base, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func (ls *LocalStorage) BasePath() string {
	return ls.basePath
}

// getAssetTypeDir resolves the absolute path for a given asset type
func (ls *LocalStorage) getAssetTypeDir(assetType AssetType) (string, error) {
	dirPath, ok := ls.resolvedPathMap[assetType]
	if !ok {
		return "", fmt.Errorf("asset type '%s' is not configured", assetType)
	}
	return dirPath, nil
}

// EnsureDir creates the directory for the asset type if it doesn't exist
func (ls *LocalStorage) EnsureDir(assetType AssetType) (string, error) {
	dirPath, err := ls.getAssetTypeDir(assetType)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to ensure directory '%s': %w", dirPath, err)
	}
	return dirPath, nil
}

func (ls *LocalStorage) target(assetType AssetType, filename string) (string, string, error) {
	if filename == "" || filename != filepath.Base(filename) {
		return "", "", fmt.Errorf("invalid asset filename '%s'", filename)
	}
	dir, err := ls.getAssetTypeDir(assetType)
	if err != nil {
		return "", "", err
	}
	full := filepath.Join(dir, filename)
	rel, err := filepath.Rel(ls.basePath, full)
	if err != nil {
		return "", "", fmt.Errorf("internal error calculating relative path: %w", err)
	}
	return full, filepath.ToSlash(rel), nil
}

func (ls *LocalStorage) Exists(assetType AssetType, filename string) (string, bool) {
	full, rel, err := ls.target(assetType, filename)
	if err != nil {
		return "", false
	}
	info, err := os.Stat(full)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return "", false
	}
	return rel, true
}

// Save writes to a temporary file and renames it into place so a concurrent
// reader never sees a half-written asset.
func (ls *LocalStorage) Save(assetType AssetType, filename string, data io.Reader) (string, error) {
	dir, err := ls.EnsureDir(assetType)
	if err != nil {
		return "", err
	}
	fullSavePath, rel, err := ls.target(assetType, filename)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, "."+filename+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file for '%s': %w", fullSavePath, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write data to '%s': %w", fullSavePath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close '%s': %w", tmpName, err)
	}
	if err := os.Rename(tmpName, fullSavePath); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to move asset into place at '%s': %w", fullSavePath, err)
	}

	return rel, nil
}

func (ls *LocalStorage) Create(assetType AssetType, filename string) (*os.File, string, error) {
	if _, err := ls.EnsureDir(assetType); err != nil {
		return nil, "", err
	}
	full, rel, err := ls.target(assetType, filename)
	if err != nil {
		return nil, "", err
	}
	f, err := os.Create(full)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create destination file '%s': %w", full, err)
	}
	return f, rel, nil
}

func (ls *LocalStorage) Get(relativePath string) (io.ReadCloser, os.FileInfo, error) {
	fullPath, err := ls.GetFullPath(relativePath)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("asset not found at '%s': %w", relativePath, err)
		}
		return nil, nil, fmt.Errorf("failed to open asset '%s': %w", relativePath, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to stat asset '%s': %w", relativePath, err)
	}

	return file, info, nil
}

// Delete removes an asset file
func (ls *LocalStorage) Delete(relativePath string) error {
	if relativePath == "" {
		return nil
	}
	fullPath, err := ls.GetFullPath(relativePath)
	if err != nil {
		return err
	}

	err = os.Remove(fullPath)
	if err != nil && !os.IsNotExist(err) { // Ignore "not exist" errors
		return fmt.Errorf("failed to delete asset '%s': %w", relativePath, err)
	}
	if err == nil {
		log.Printf("media.store: Deleted asset %s", fullPath)
	}
	return nil
}

// GetFullPath calculates the absolute path and performs security check
func (ls *LocalStorage) GetFullPath(relativePath string) (string, error) {
	// clean the relative path first to prevent simple traversal tricks
	cleanRelativePath := filepath.Clean(filepath.FromSlash(relativePath))

	absFullPath, err := filepath.Abs(filepath.Join(ls.basePath, cleanRelativePath))
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for '%s': %w", relativePath, err)
	}

	if !isWithin(ls.basePath, absFullPath) {
		return "", fmt.Errorf("invalid path: access denied for '%s'", relativePath)
	}

	return absFullPath, nil
}
