// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vignette Contributors

// Package media manages the image directories Vignette works with: the
// reference library, uploaded references, and generated output.
package media

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	vgerr "github.com/vignette-dev/vignette/pkg/errors"
)

// Library exposes filesystem operations over Vignette's image directories.
// All relative paths coming from clients are confined to their directory;
// traversal outside is rejected.
type Library struct {
	root         string
	uploadsDir   string
	generatedDir string
	log          *slog.Logger
}

// GalleryItem describes one generated image.
type GalleryItem struct {
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// NewLibrary returns a Library over the three image directories.
func NewLibrary(root, uploadsDir, generatedDir string, log *slog.Logger) (*Library, error) {
	if root == "" {
		return nil, vgerr.New(vgerr.CodeMediaPathInvalid, "media library: root must not be empty")
	}
	if uploadsDir == "" {
		return nil, vgerr.New(vgerr.CodeMediaPathInvalid, "media library: uploads dir must not be empty")
	}
	if generatedDir == "" {
		return nil, vgerr.New(vgerr.CodeMediaPathInvalid, "media library: generated dir must not be empty")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Library{
		root:         root,
		uploadsDir:   uploadsDir,
		generatedDir: generatedDir,
		log:          log,
	}, nil
}

// Root returns the reference library root.
func (l *Library) Root() string { return l.root }

// GeneratedDir returns the generated output directory.
func (l *Library) GeneratedDir() string { return l.generatedDir }

// ResolveThumbnail maps a library-relative path like "Movies/a.jpg" to an
// absolute path, rejecting traversal and absent files.
func (l *Library) ResolveThumbnail(rel string) (string, error) {
	return l.resolve(l.root, rel)
}

// ResolveGenerated maps a generated file name to an absolute path.
func (l *Library) ResolveGenerated(name string) (string, error) {
	return l.resolve(l.generatedDir, name)
}

// ResolveUpload maps an uploaded file name to an absolute path.
func (l *Library) ResolveUpload(name string) (string, error) {
	return l.resolve(l.uploadsDir, name)
}

func (l *Library) resolve(base, rel string) (string, error) {
	if rel == "" {
		return "", vgerr.New(vgerr.CodeMediaPathInvalid, "media: path must not be empty")
	}
	if filepath.IsAbs(rel) {
		return "", vgerr.New(vgerr.CodeMediaPathInvalid, "media: path must be relative", vgerr.FieldPath(rel))
	}

	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", vgerr.New(vgerr.CodeMediaPathInvalid, "media: path escapes its directory", vgerr.FieldPath(rel))
	}

	abs := filepath.Join(base, cleaned)
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", vgerr.New(vgerr.CodeMediaFileNotFound, "media: file not found", vgerr.FieldPath(rel))
		}
		return "", vgerr.Wrap(err, vgerr.CodeMediaPathInvalid, "media: checking file", vgerr.FieldPath(rel))
	}
	if info.IsDir() {
		return "", vgerr.New(vgerr.CodeMediaPathInvalid, "media: path is a directory", vgerr.FieldPath(rel))
	}

	return abs, nil
}

// SaveReference stores an uploaded reference image under a fresh UUID name
// in the uploads directory and returns its absolute path. The original
// client file name contributes only its extension.
func (l *Library) SaveReference(filename string, r io.Reader) (string, error) {
	ext := imageExt(filename)
	if ext == "" {
		return "", vgerr.New(vgerr.CodeMediaUploadInvalid,
			"media: upload must be a jpg, png, or webp image", vgerr.FieldPath(filename))
	}

	if err := os.MkdirAll(l.uploadsDir, 0o755); err != nil {
		return "", vgerr.Wrap(err, vgerr.CodeMediaUploadFailure,
			"media: creating uploads directory", vgerr.FieldPath(l.uploadsDir))
	}

	name := uuid.NewString() + ext
	abs := filepath.Join(l.uploadsDir, name)

	if err := writeAll(abs, r); err != nil {
		return "", err
	}

	l.log.Info("stored uploaded reference", "file", name)
	return abs, nil
}

// SaveThumbnail stores an uploaded image into a library category, keeping
// the client's base file name. A name already present in the category gets
// a uniquifying suffix; existing library files are never overwritten.
// Returns the library-relative path.
func (l *Library) SaveThumbnail(category, filename string, r io.Reader) (string, error) {
	if !validCategory(category) {
		return "", vgerr.New(vgerr.CodeMediaUploadInvalid,
			"media: invalid category name", vgerr.FieldCategory(category))
	}

	base := filepath.Base(filepath.FromSlash(filename))
	if imageExt(base) == "" {
		return "", vgerr.New(vgerr.CodeMediaUploadInvalid,
			"media: upload must be a jpg, png, or webp image", vgerr.FieldPath(filename))
	}

	dir := filepath.Join(l.root, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", vgerr.Wrap(err, vgerr.CodeMediaUploadFailure,
			"media: creating category directory", vgerr.FieldCategory(category))
	}

	target := filepath.Join(dir, base)
	if _, err := os.Stat(target); err == nil {
		ext := filepath.Ext(base)
		base = strings.TrimSuffix(base, ext) + "_" + uuid.NewString()[:6] + ext
		target = filepath.Join(dir, base)
	}

	if err := writeAll(target, r); err != nil {
		return "", err
	}

	rel := category + "/" + base
	l.log.Info("stored library thumbnail", "path", rel)
	return rel, nil
}

// Gallery lists the generated images, newest first.
func (l *Library) Gallery() ([]GalleryItem, error) {
	entries, err := os.ReadDir(l.generatedDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, vgerr.Wrap(err, vgerr.CodeMediaGalleryFailure,
			"media: listing generated images", vgerr.FieldPath(l.generatedDir))
	}

	var items []GalleryItem
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".png") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		items = append(items, GalleryItem{
			Filename:  entry.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime().UTC(),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	return items, nil
}

func writeAll(abs string, r io.Reader) error {
	f, err := os.Create(abs)
	if err != nil {
		return vgerr.Wrap(err, vgerr.CodeMediaUploadFailure, "media: creating file", vgerr.FieldPath(abs))
	}

	_, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil {
		_ = os.Remove(abs)
		return vgerr.Wrap(copyErr, vgerr.CodeMediaUploadFailure, "media: writing file", vgerr.FieldPath(abs))
	}
	if closeErr != nil {
		_ = os.Remove(abs)
		return vgerr.Wrap(closeErr, vgerr.CodeMediaUploadFailure, "media: closing file", vgerr.FieldPath(abs))
	}

	return nil
}

func imageExt(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".jpg", ".jpeg", ".png", ".webp":
		return ext
	default:
		return ""
	}
}

// validCategory accepts single path segments without separators or dot
// prefixes, matching how the library derives categories from directories.
func validCategory(category string) bool {
	if category == "" || strings.HasPrefix(category, ".") {
		return false
	}
	return !strings.ContainsAny(category, `/\`)
}
