package internal

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"chatroom/internal/storage"
)

type (
	connectedMsg      struct{ conn *websocket.Conn }
	connectFailedMsg  struct{ err error }
	connectionLostMsg struct {
		conn *websocket.Conn
		err  error
	}
	reconnectMsg struct{}
	envelopeMsg  struct {
		conn     *websocket.Conn
		envelope Envelope
	}
	noticeMsg     string
	adminTokenMsg string
)

func (model *TUIModel) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch typedMessage := message.(type) {
	case tea.KeyMsg:
		if typedMessage.Type == tea.KeyCtrlC || typedMessage.Type == tea.KeyEsc {
			model.disconnect("client quit")
			return model, tea.Quit
		}
		if typedMessage.Type == tea.KeyEnter {
			return model.submit()
		}
		var cmd tea.Cmd
		model.textInput, cmd = model.textInput.Update(typedMessage)
		return model, cmd

	case connectedMsg:
		model.websocketConn = typedMessage.conn
		model.isConnected = true
		model.connectionError = nil
		return model, model.readOnceCmd(typedMessage.conn)

	case connectFailedMsg:
		model.connectionError = typedMessage.err
		return model, model.scheduleReconnect()

	case connectionLostMsg:
		if typedMessage.conn != model.websocketConn {
			return model, nil
		}
		_ = typedMessage.conn.Close()
		model.websocketConn = nil
		model.isConnected = false
		model.connectionError = typedMessage.err
		return model, model.scheduleReconnect()

	case reconnectMsg:
		if model.mode == modeChat && !model.isConnected {
			return model, model.connectCmd()
		}
		return model, nil

	case envelopeMsg:
		if typedMessage.conn != model.websocketConn {
			return model, nil
		}
		model.applyEnvelope(typedMessage.envelope)
		return model, model.readOnceCmd(typedMessage.conn)

	case noticeMsg:
		model.notify(string(typedMessage))
		return model, nil

	case adminTokenMsg:
		model.adminToken = string(typedMessage)
		model.notify("Logged in as admin. /clear is now available.")
		return model, nil
	}
	return model, nil
}

// applyEnvelope folds one server payload into the transcript.
func (model *TUIModel) applyEnvelope(envelope Envelope) {
	switch envelope.Type {
	case EnvelopeHistory:
		// a replay after reconnect supersedes whatever was shown before
		model.lines = lo.Map(envelope.Messages, func(message storage.Message, _ int) chatLine {
			return chatLine{message: message}
		})
	case EnvelopeMessage:
		if envelope.Message != nil {
			model.lines = append(model.lines, chatLine{message: *envelope.Message})
		}
	case EnvelopeCleared:
		model.lines = model.lines[:0]
		model.notify("History was cleared by an admin.")
	}
}

func (model *TUIModel) submit() (tea.Model, tea.Cmd) {
	trimmed := strings.TrimSpace(model.textInput.Value())
	if model.mode == modeNamePrompt {
		if trimmed == "" {
			return model, nil
		}
		model.username = NormalizeUsername(trimmed)
		model.enterChat()
		return model, model.connectCmd()
	}

	model.textInput.SetValue("")
	if strings.HasPrefix(trimmed, "/") {
		return model.runCommand(trimmed)
	}
	if trimmed == "" {
		return model, nil
	}
	if !model.isConnected {
		model.notify("Not connected; message not sent.")
		return model, nil
	}
	return model, model.sendCmd(model.websocketConn, ChatFrame{
		Type:     EnvelopeMessage,
		Username: model.username,
		Text:     &trimmed,
	})
}

func (model *TUIModel) runCommand(input string) (tea.Model, tea.Cmd) {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(name) {
	case "/quit", "/exit":
		model.disconnect("client quit")
		return model, tea.Quit
	case "/help":
		model.notify("/login <password>  •  /clear  •  /image <path>  •  /quit")
		return model, nil
	case "/login":
		if arg == "" {
			model.notify("Usage: /login <password>")
			return model, nil
		}
		return model, model.adminLoginCmd(arg)
	case "/clear":
		if model.adminToken == "" {
			model.notify("Log in first with /login <password>.")
			return model, nil
		}
		return model, model.adminClearCmd(model.adminToken)
	case "/image":
		if arg == "" {
			model.notify("Usage: /image <path>")
			return model, nil
		}
		return model, model.uploadImageCmd(arg)
	default:
		model.notify(fmt.Sprintf("Unknown command %s. Try /help.", name))
		return model, nil
	}
}

func (model *TUIModel) disconnect(reason string) {
	if model.websocketConn == nil {
		return
	}
	model.writeMutex.Lock()
	_ = model.websocketConn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
	model.writeMutex.Unlock()
	_ = model.websocketConn.Close()
}
