package internal

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"chatroom/internal/storage"
)

func TestBuildJoinURL(t *testing.T) {
	joinURL, err := buildJoinURL("ws://localhost:8080/ws", "al ice")
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:8080/ws?username=al+ice", joinURL)

	_, err = buildJoinURL("http://localhost:8080/ws", "alice")
	require.Error(t, err)
}

func TestHTTPBaseFromJoinURL(t *testing.T) {
	base, err := httpBaseFromJoinURL("wss://chat.example.com/ws?username=x")
	require.NoError(t, err)
	require.Equal(t, "https://chat.example.com", base)

	_, err = httpBaseFromJoinURL("ftp://example.com")
	require.Error(t, err)
}

func TestModelAppliesEnvelopes(t *testing.T) {
	model := NewTUIModel("ws://localhost:8080/ws", "alice")
	model.applyEnvelope(Envelope{Type: EnvelopeHistory, Messages: []storage.Message{{ID: 1, Content: "a"}, {ID: 2, Content: "b"}}})
	require.Len(t, model.lines, 2)

	model.applyEnvelope(Envelope{Type: EnvelopeMessage, Message: &storage.Message{ID: 3, Content: "c"}})
	require.Len(t, model.lines, 3)
	require.Equal(t, "c", model.lines[2].message.Content)

	model.applyEnvelope(Envelope{Type: EnvelopeHistory, Messages: []storage.Message{{ID: 3, Content: "c"}}})
	require.Len(t, model.lines, 1, "replay after reconnect replaces the transcript")

	model.applyEnvelope(Envelope{Type: EnvelopeCleared})
	require.Len(t, model.lines, 1)
	require.NotEmpty(t, model.lines[0].notice)
	require.Contains(t, model.View(), "cleared")
}

func TestModelNamePromptThenChat(t *testing.T) {
	model := NewTUIModel("ws://localhost:8080/ws", "")
	require.Equal(t, modeNamePrompt, model.mode)

	model.textInput.SetValue("   bob    smith ")
	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	require.Equal(t, modeChat, model.mode)
	require.Equal(t, "bob smith", model.username)
}

func TestModelCommandsWithoutServer(t *testing.T) {
	model := NewTUIModel("ws://localhost:8080/ws", "alice")

	model.textInput.SetValue("/clear")
	model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Contains(t, model.lines[len(model.lines)-1].notice, "/login")

	model.textInput.SetValue("/bogus")
	model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Contains(t, model.lines[len(model.lines)-1].notice, "Unknown command")

	model.textInput.SetValue("hello")
	model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Contains(t, model.lines[len(model.lines)-1].notice, "Not connected")
	require.Empty(t, model.textInput.Value())

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
}

func TestClientAPIAgainstServer(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server.Routes("/ws"))
	defer ts.Close()
	base := ts.URL

	_, err := apiAdminLogin(base, "wrong")
	require.ErrorIs(t, err, ErrUnauthorized)

	login, err := apiAdminLogin(base, testAdminPassword)
	require.NoError(t, err)
	require.NotEmpty(t, login.Token)

	imagePath := filepath.Join(t.TempDir(), "pic.png")
	require.NoError(t, os.WriteFile(imagePath, pngBytes(t), 0o600))
	resolved, size, err := resolveImagePath(imagePath)
	require.NoError(t, err)
	require.Positive(t, size)

	uploaded, err := apiUploadImage(base, "carol", resolved)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uploaded.URL, "/uploads/"))
	require.Equal(t, "carol", uploaded.Message.Username)

	require.NoError(t, apiAdminClear(base, login.Token))
	recent, err := env.store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, recent)

	require.ErrorIs(t, apiAdminClear(base, "stale"), ErrUnauthorized)
}

func TestResolveImagePathRejectsDirectories(t *testing.T) {
	_, _, err := resolveImagePath(t.TempDir())
	require.Error(t, err)
	_, _, err = resolveImagePath(filepath.Join(t.TempDir(), "missing.png"))
	require.Error(t, err)
}

func TestFormatFileSize(t *testing.T) {
	require.Equal(t, "512 B", formatFileSize(512))
	require.Equal(t, "1.5 KB", formatFileSize(1536))
	require.Equal(t, "2.0 MB", formatFileSize(2*1024*1024))
}
