// Package library resolves client-supplied media identifiers against the
// configured media root and answers basic file questions (existence, size,
// content type) without exposing the rest of the filesystem.
package library

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

var (
	ErrNotFound    = errors.New("media file not found")
	ErrInvalidPath = errors.New("invalid media path")
	ErrNotVideo    = errors.New("not a video file")
)

var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".m4v":  {},
	".mkv":  {},
	".webm": {},
	".ts":   {},
	".m2ts": {},
	".mts":  {},
	".avi":  {},
	".mov":  {},
	".mpg":  {},
	".mpeg": {},
	".wmv":  {},
}

// Library is the file store over the media root directory.
type Library struct {
	root string
	fs   afero.Fs
}

// New creates a library rooted at the given directory on the OS filesystem.
func New(root string) (*Library, error) {
	abs, err := filepath.Abs(strings.TrimSpace(root))
	if err != nil {
		return nil, fmt.Errorf("resolve media root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("media root %q: %w", abs, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("media root %q is not a directory", abs)
	}
	return &Library{
		root: abs,
		fs:   afero.NewBasePathFs(afero.NewOsFs(), abs),
	}, nil
}

// NewWithFs creates a library over an arbitrary filesystem, used in tests.
func NewWithFs(fs afero.Fs, root string) *Library {
	return &Library{root: root, fs: fs}
}

// Root returns the absolute media root directory.
func (l *Library) Root() string { return l.root }

// Clean normalizes a client-supplied identifier into a root-relative path.
// Traversal outside the root is rejected rather than silently cleaned away.
func (l *Library) Clean(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	if p == "" {
		return "", ErrInvalidPath
	}
	p = strings.TrimPrefix(filepath.ToSlash(p), "/")
	cleaned := filepath.Clean(filepath.FromSlash(p))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return cleaned, nil
}

// Resolve validates a client-supplied identifier and returns the absolute
// on-disk path suitable for handing to the media tool.
func (l *Library) Resolve(raw string) (string, error) {
	rel, err := l.Clean(raw)
	if err != nil {
		return "", err
	}
	exists, err := afero.Exists(l.fs, rel)
	if err != nil {
		return "", fmt.Errorf("stat %q: %w", rel, err)
	}
	if !exists {
		return "", ErrNotFound
	}
	return filepath.Join(l.root, rel), nil
}

// Stat returns size and mtime for a root-relative path.
func (l *Library) Stat(raw string) (os.FileInfo, error) {
	rel, err := l.Clean(raw)
	if err != nil {
		return nil, err
	}
	info, err := l.fs.Stat(rel)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return info, nil
}

// VideoID returns the stable identifier used as the progress-store key.
func (l *Library) VideoID(raw string) (string, error) {
	rel, err := l.Clean(raw)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// IsVideo reports whether the path looks like a video file. Known container
// extensions are trusted without touching the file; unknown extensions fall
// back to content sniffing.
func (l *Library) IsVideo(absPath string) bool {
	ext := strings.ToLower(filepath.Ext(absPath))
	if _, ok := videoExtensions[ext]; ok {
		return true
	}
	mt, err := mimetype.DetectFile(absPath)
	if err != nil {
		log.Printf("[library] content sniff failed for %q: %v", absPath, err)
		return false
	}
	return strings.HasPrefix(mt.String(), "video/")
}
