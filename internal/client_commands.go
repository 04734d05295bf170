package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
)

const retryDelay = 2 * time.Second

func (model *TUIModel) scheduleReconnect() tea.Cmd {
	// a future poke that nudges Update to try the connection again.
	return tea.Tick(retryDelay, func(time.Time) tea.Msg {
		return reconnectMsg{}
	})
}

// websocket dial
func (model *TUIModel) connectCmd() tea.Cmd {
	serverURL, username := model.serverURL, model.username
	return func() tea.Msg {
		joinURL, err := buildJoinURL(serverURL, username)
		if err != nil {
			return connectFailedMsg{err: err}
		}
		conn, resp, err := websocket.DefaultDialer.Dial(joinURL, http.Header{})
		if err != nil {
			return connectFailedMsg{err: err}
		}
		resp.Body.Close()
		return connectedMsg{conn: conn}
	}
}

// reads one envelope; Update schedules the next read
func (model *TUIModel) readOnceCmd(conn *websocket.Conn) tea.Cmd {
	return func() tea.Msg {
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return connectionLostMsg{conn: conn, err: err}
			}
			if messageType != websocket.TextMessage {
				continue
			}
			var envelope Envelope
			if err := json.Unmarshal(payload, &envelope); err != nil {
				continue
			}
			return envelopeMsg{conn: conn, envelope: envelope}
		}
	}
}

func (model *TUIModel) sendCmd(conn *websocket.Conn, frame ChatFrame) tea.Cmd {
	writeMutex := model.writeMutex
	return func() tea.Msg {
		encoded, err := json.Marshal(frame)
		if err != nil {
			return noticeMsg(err.Error())
		}
		writeMutex.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		err = conn.WriteMessage(websocket.TextMessage, encoded)
		writeMutex.Unlock()
		if err != nil {
			// the read side notices the broken connection and reconnects
			return noticeMsg("Send failed: " + err.Error())
		}
		return nil
	}
}

func (model *TUIModel) adminLoginCmd(password string) tea.Cmd {
	serverURL := model.serverURL
	return func() tea.Msg {
		baseURL, err := httpBaseFromJoinURL(serverURL)
		if err != nil {
			return noticeMsg(err.Error())
		}
		resp, err := apiAdminLogin(baseURL, password)
		if err != nil {
			return noticeMsg("Login failed: " + err.Error())
		}
		return adminTokenMsg(resp.Token)
	}
}

func (model *TUIModel) adminClearCmd(token string) tea.Cmd {
	serverURL := model.serverURL
	return func() tea.Msg {
		baseURL, err := httpBaseFromJoinURL(serverURL)
		if err != nil {
			return noticeMsg(err.Error())
		}
		if err := apiAdminClear(baseURL, token); err != nil {
			return noticeMsg("Clear failed: " + err.Error())
		}
		return nil
	}
}

func (model *TUIModel) uploadImageCmd(path string) tea.Cmd {
	serverURL, username := model.serverURL, model.username
	return func() tea.Msg {
		baseURL, err := httpBaseFromJoinURL(serverURL)
		if err != nil {
			return noticeMsg(err.Error())
		}
		resolved, size, err := resolveImagePath(path)
		if err != nil {
			return noticeMsg(err.Error())
		}
		if _, err := apiUploadImage(baseURL, username, resolved); err != nil {
			return noticeMsg("Upload failed: " + err.Error())
		}
		return noticeMsg(fmt.Sprintf("Uploaded %s (%s)", filepath.Base(resolved), formatFileSize(size)))
	}
}

// entry for bubbletea
func RunClient(serverURL, username string) error {
	program := tea.NewProgram(NewTUIModel(serverURL, username))
	_, err := program.Run()
	return err
}

func buildJoinURL(base string, username string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "ws" && parsed.Scheme != "wss" {
		return "", fmt.Errorf("invalid scheme for websocket: %s", parsed.Scheme)
	}
	query := parsed.Query()
	query.Set("username", username)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
