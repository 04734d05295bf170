package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"chatroom/internal/auth"
	"chatroom/internal/storage"
)

func serve(env *testEnv, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	env.server.Routes("/ws").ServeHTTP(rec, req)
	return rec
}

func imageUpload(t *testing.T, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="pic.png"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestHandleHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		_, err := env.store.Append(ctx, "alice", storage.KindText, strconv.Itoa(i))
		require.NoError(t, err)
	}

	rec := serve(env, httptest.NewRequest(http.MethodGet, "/history?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 2)
	require.Equal(t, "4", resp.Messages[0].Content)
	require.Equal(t, "5", resp.Messages[1].Content)

	rec = serve(env, httptest.NewRequest(http.MethodGet, "/history?limit=0", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1, "limit below 1 is raised to 1")

	rec = serve(env, httptest.NewRequest(http.MethodGet, "/history", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 5)

	rec = serve(env, httptest.NewRequest(http.MethodGet, "/history?limit=abc", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHistoryEmptyIsArray(t *testing.T) {
	env := newTestEnv(t)
	rec := serve(env, httptest.NewRequest(http.MethodGet, "/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"messages":[]}`, rec.Body.String())
}

func TestHandleUploadPublishesImageMessage(t *testing.T) {
	env := newTestEnv(t)
	session := newSession("watcher", "")
	env.server.registry.Register(session)

	body, contentType := imageUpload(t, "image/png", pngBytes(t))
	req := httptest.NewRequest(http.MethodPost, "/upload?username=++erin++", body)
	req.Header.Set("Content-Type", contentType)
	rec := serve(env, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.OK)
	require.True(t, strings.HasPrefix(resp.URL, "/uploads/"))
	require.Equal(t, storage.KindImage, resp.Message.Kind)
	require.Equal(t, "erin", resp.Message.Username)

	queued := drain(session)
	require.Len(t, queued, 1)
	require.Equal(t, resp.URL, decodeEnvelope(t, queued[0]).Message.Content)

	rec = serve(env, httptest.NewRequest(http.MethodGet, resp.URL, nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleUploadRejections(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := imageUpload(t, "application/pdf", []byte("%PDF-1.4"))
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	require.Equal(t, http.StatusBadRequest, serve(env, req).Code)

	big := append(pngBytes(t), bytes.Repeat([]byte{0}, int(env.media.MaxBytes()))...)
	body, contentType = imageUpload(t, "image/png", big)
	req = httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	require.Equal(t, http.StatusRequestEntityTooLarge, serve(env, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("nope"))
	req.Header.Set("Content-Type", "text/plain")
	require.Equal(t, http.StatusBadRequest, serve(env, req).Code)

	recent, err := env.store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, recent)
}

func TestAdminLoginAndClear(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.store.Append(context.Background(), "alice", storage.KindText, "hi")
	require.NoError(t, err)

	rec := serve(env, httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(`{"password":"wrong"}`)))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(env, httptest.NewRequest(http.MethodPost, "/admin/clear", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(env, httptest.NewRequest(http.MethodPost, "/admin/login",
		strings.NewReader(`{"password":"`+testAdminPassword+`"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var login loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)
	require.Equal(t, int64(3600), login.ExpiresIn)

	req := httptest.NewRequest(http.MethodPost, "/admin/clear", nil)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	rec = serve(env, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"ok":true}`, rec.Body.String())

	recent, err := env.store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, recent)
}

func TestAdminLoginIsRateLimited(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < loginAttempts; i++ {
		rec := serve(env, httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(`{"password":"x"}`)))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := serve(env, httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(`{"password":"x"}`)))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestAdminLoginRejectsBadBody(t *testing.T) {
	env := newTestEnv(t)
	for _, body := range []string{`{}`, `not json`, `{"password":"x","extra":1}`} {
		rec := serve(env, httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(body)))
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rec := serve(env, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	require.Equal(t, "ok", health.Status)
	require.Equal(t, Version, health.Version)

	rec = serve(env, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "chatroom_http_requests_total")

	require.NoError(t, env.store.Close())
	rec = serve(env, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	require.Empty(t, bearerToken(req))
	req.Header.Set("Authorization", "bearer abc ")
	require.Equal(t, "abc", bearerToken(req))
	req.Header.Set("Authorization", "Basic abc")
	require.Empty(t, bearerToken(req))
}

func TestNewServerDefaultsHistoryLimit(t *testing.T) {
	env := newTestEnv(t)
	password, err := auth.NewPasswordCheck(testAdminPassword)
	require.NoError(t, err)

	server, err := NewServer(env.store, Options{
		Media:    env.media,
		Tokens:   env.tokens,
		Password: password,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	require.Equal(t, storage.DefaultRecentLimit, server.historyLimit)

	server, err = NewServer(env.store, Options{
		HistoryLimit: 5000,
		Media:        env.media,
		Tokens:       env.tokens,
		Password:     password,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	require.Equal(t, storage.MaxRecentLimit, server.historyLimit)
}
