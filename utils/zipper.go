package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

// already-compressed formats are stored rather than deflated
var storedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true, ".heic": true,
	".mp4": true, ".mov": true, ".m4v": true, ".mkv": true, ".webm": true, ".zip": true,
}

// Archive streams entries into a zip file one at a time.
type Archive struct {
	path  string
	file  *os.File
	zw    *zip.Writer
	names map[string]int
	count int
}

// CreateArchive creates (or truncates) the zip file at archivePath.
func CreateArchive(archivePath string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(archivePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create zip save directory %s: %w", filepath.Dir(archivePath), err)
	}
	f, err := os.Create(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create zip file %s: %w", archivePath, err)
	}
	return &Archive{path: archivePath, file: f, zw: zip.NewWriter(f), names: make(map[string]int)}, nil
}

func (a *Archive) Path() string { return a.path }

// Count is the number of entries written so far.
func (a *Archive) Count() int { return a.count }

// uniqueName keeps entry names distinct: a second "a.jpg" becomes "a_2.jpg".
func (a *Archive) uniqueName(name string) string {
	name = strings.TrimLeft(path.Clean(filepath.ToSlash(name)), "/")
	a.names[name]++
	n := a.names[name]
	if n == 1 {
		return name
	}
	ext := path.Ext(name)
	alt := fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n, ext)
	a.names[alt]++
	return alt
}

// AddFile copies srcPath into the archive under name.
func (a *Archive) AddFile(name, srcPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open file %s for zipping: %w", srcPath, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", srcPath, err)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to build zip header for %s: %w", srcPath, err)
	}
	header.Name = a.uniqueName(name)
	header.Method = zip.Deflate
	if storedExtensions[strings.ToLower(filepath.Ext(srcPath))] {
		header.Method = zip.Store
	}

	w, err := a.zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create entry in zip for %s: %w", name, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("failed to write file %s to zip: %w", srcPath, err)
	}
	a.count++
	return nil
}

// AddStream writes a generated entry, such as a JSON document.
func (a *Archive) AddStream(name string, write func(w io.Writer) error) error {
	header := &zip.FileHeader{Name: a.uniqueName(name), Method: zip.Deflate, Modified: time.Now()}
	w, err := a.zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create entry in zip for %s: %w", name, err)
	}
	if err := write(w); err != nil {
		return fmt.Errorf("failed to write %s to zip: %w", name, err)
	}
	a.count++
	return nil
}

// Close finalizes the archive and returns its size.
func (a *Archive) Close() (int64, error) {
	if err := a.zw.Close(); err != nil {
		a.file.Close()
		return 0, fmt.Errorf("failed to finalize zip writer for %s: %w", a.path, err)
	}
	if err := a.file.Close(); err != nil {
		return 0, fmt.Errorf("failed to close zip file %s: %w", a.path, err)
	}
	info, err := os.Stat(a.path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat created zip file %s: %w", a.path, err)
	}
	log.Printf("zipper: created archive %s (%d entries, %d bytes)", a.path, a.count, info.Size())
	return info.Size(), nil
}

// Abort discards a partial archive.
func (a *Archive) Abort() {
	a.zw.Close()
	a.file.Close()
	if err := os.Remove(a.path); err != nil && !os.IsNotExist(err) {
		log.Printf("zipper: failed to remove partial archive %s: %v", a.path, err)
	}
}

// SuggestedFilename builds the download name for an archive, e.g.
// "album_Summer_2024-06-01.zip".
func SuggestedFilename(prefix string, at time.Time) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		}
		return -1
	}, prefix)
	if clean == "" {
		clean = "archive"
	}
	return fmt.Sprintf("%s_%s.zip", clean, at.Format("2006-01-02"))
}
