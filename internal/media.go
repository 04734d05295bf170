package internal

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const uploadsPrefix = "/uploads/"

var mediaExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// MediaStore keeps uploaded images on disk under uuid file names.
type MediaStore struct {
	dir      string
	maxBytes int64
	logger   zerolog.Logger
}

// NewMediaStore creates dir if needed.
func NewMediaStore(dir string, maxBytes int64, logger zerolog.Logger) (*MediaStore, error) {
	if dir == "" {
		return nil, errors.New("upload directory is required")
	}
	if maxBytes <= 0 {
		return nil, errors.New("upload size limit must be positive")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &MediaStore{dir: dir, maxBytes: maxBytes, logger: logger}, nil
}

func (m *MediaStore) Dir() string { return m.dir }

func (m *MediaStore) MaxBytes() int64 { return m.maxBytes }

// Save stores an image whose declared content type must be one of the allowed
// image types and must agree with the sniffed content. It returns the public
// reference of the stored file.
func (m *MediaStore) Save(src io.Reader, declaredType string) (string, error) {
	declared, _, err := mime.ParseMediaType(declaredType)
	if err != nil {
		return "", ErrUnsupportedMedia
	}
	ext, ok := mediaExtensions[declared]
	if !ok {
		return "", ErrUnsupportedMedia
	}
	data, err := io.ReadAll(io.LimitReader(src, m.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > m.maxBytes {
		return "", ErrMediaTooLarge
	}
	if !mimetype.Detect(data).Is(declared) {
		return "", ErrUnsupportedMedia
	}
	name := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(m.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return uploadsPrefix + name, nil
}

// Remove deletes the file behind ref. Unknown references are ignored.
func (m *MediaStore) Remove(ref string) error {
	name := path.Base(strings.TrimPrefix(ref, uploadsPrefix))
	if name == "." || name == "/" || name == ".." {
		return nil
	}
	err := os.Remove(filepath.Join(m.dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Purge deletes every stored file. Failures are logged and counted, never
// returned.
func (m *MediaStore) Purge() (removed, failed int) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn().Err(err).Str("dir", m.dir).Msg("list uploads")
		}
		return 0, 0
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		target := filepath.Join(m.dir, entry.Name())
		if err := os.Remove(target); err != nil {
			failed++
			m.logger.Warn().Err(err).Str("file", target).Msg("delete upload")
			continue
		}
		removed++
	}
	return removed, failed
}

// Handler serves stored files under /uploads/. Directory listings are refused.
func (m *MediaStore) Handler() http.Handler {
	files := http.StripPrefix(uploadsPrefix, http.FileServer(http.Dir(m.dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		files.ServeHTTP(w, r)
	})
}
