package internal

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"chatroom/internal/auth"
	"chatroom/internal/storage"
)

const testAdminPassword = "correct horse"

type testEnv struct {
	server *Server
	store  *storage.Store
	media  *MediaStore
	tokens *auth.TokenIssuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.NewStore("sqlite://file:" + t.Name() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	t.Cleanup(func() { _ = store.Close() })

	media, err := NewMediaStore(t.TempDir(), 1<<20, zerolog.Nop())
	require.NoError(t, err)
	tokens, err := auth.NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	password, err := auth.NewPasswordCheck(testAdminPassword)
	require.NoError(t, err)

	server, err := NewServer(store, Options{
		HistoryLimit: storage.DefaultRecentLimit,
		Media:        media,
		Tokens:       tokens,
		Password:     password,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	t.Cleanup(server.Shutdown)
	return &testEnv{server: server, store: store, media: media, tokens: tokens}
}

// pngBytes encodes a tiny valid PNG.
func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// drain returns every payload currently queued for session.
func drain(session *Session) [][]byte {
	var out [][]byte
	for {
		select {
		case payload := <-session.send:
			out = append(out, payload)
		default:
			return out
		}
	}
}
