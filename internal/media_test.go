package internal

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestMedia(t *testing.T, maxBytes int64) *MediaStore {
	t.Helper()
	media, err := NewMediaStore(t.TempDir(), maxBytes, zerolog.Nop())
	require.NoError(t, err)
	return media
}

func TestMediaSaveStoresImage(t *testing.T) {
	media := newTestMedia(t, 1<<20)
	data := pngBytes(t)

	ref, err := media.Save(bytes.NewReader(data), "image/png")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(ref, "/uploads/"))
	require.True(t, strings.HasSuffix(ref, ".png"))

	stored, err := os.ReadFile(filepath.Join(media.Dir(), filepath.Base(ref)))
	require.NoError(t, err)
	require.Equal(t, data, stored)
}

func TestMediaSaveRejectsDisallowedOrMismatchedTypes(t *testing.T) {
	media := newTestMedia(t, 1<<20)

	_, err := media.Save(strings.NewReader("plain text"), "text/plain")
	require.True(t, errors.Is(err, ErrUnsupportedMedia))

	_, err = media.Save(strings.NewReader("not really a png"), "image/png")
	require.True(t, errors.Is(err, ErrUnsupportedMedia))

	_, err = media.Save(bytes.NewReader(pngBytes(t)), "image/gif")
	require.True(t, errors.Is(err, ErrUnsupportedMedia))

	_, err = media.Save(bytes.NewReader(pngBytes(t)), "")
	require.True(t, errors.Is(err, ErrUnsupportedMedia))

	entries, err := os.ReadDir(media.Dir())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestMediaSaveEnforcesSizeLimit(t *testing.T) {
	data := pngBytes(t)
	media := newTestMedia(t, int64(len(data)-1))

	_, err := media.Save(bytes.NewReader(data), "image/png")
	require.True(t, errors.Is(err, ErrMediaTooLarge))
}

func TestMediaRemoveAndPurge(t *testing.T) {
	media := newTestMedia(t, 1<<20)
	refs := make([]string, 3)
	for i := range refs {
		ref, err := media.Save(bytes.NewReader(pngBytes(t)), "image/png; charset=binary")
		require.NoError(t, err)
		refs[i] = ref
	}

	require.NoError(t, media.Remove(refs[0]))
	require.NoError(t, media.Remove(refs[0]), "removing twice is fine")
	require.NoError(t, media.Remove("/uploads/../../etc/passwd"))

	removed, failed := media.Purge()
	require.Equal(t, 2, removed)
	require.Zero(t, failed)
	entries, err := os.ReadDir(media.Dir())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestMediaHandlerServesFilesButNotListings(t *testing.T) {
	media := newTestMedia(t, 1<<20)
	ref, err := media.Save(bytes.NewReader(pngBytes(t)), "image/png")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	media.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ref, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	media.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/uploads/", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
