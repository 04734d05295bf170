package internal

import (
	"os"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"chatroom/internal/storage"
)

// tui model for the name prompt and the chat screen
type TUIModel struct {
	textInput       textinput.Model
	lines           []chatLine
	serverURL       string
	username        string
	adminToken      string
	websocketConn   *websocket.Conn
	writeMutex      *sync.Mutex
	isConnected     bool
	connectionError error
	mode            appMode
}

// chatLine is either a room message or a local notice that never left this
// terminal.
type chatLine struct {
	message storage.Message
	notice  string
}

type appMode int

const (
	modeNamePrompt appMode = iota
	modeChat
)

func NewTUIModel(serverURL, username string) *TUIModel {
	input := textinput.New()
	input.CharLimit = maxTextRunes
	input.Focus()

	model := &TUIModel{
		textInput:  input,
		lines:      make([]chatLine, 0, 64),
		serverURL:  serverURL,
		username:   username,
		writeMutex: &sync.Mutex{},
	}
	if username == "" {
		model.mode = modeNamePrompt
		model.textInput.SetValue(defaultClientName())
		model.textInput.Placeholder = "Enter display name…"
		model.textInput.Prompt = "name> "
	} else {
		model.username = NormalizeUsername(username)
		model.enterChat()
	}
	return model
}

func defaultClientName() string {
	if user := os.Getenv("CHATROOM_USER"); user != "" {
		return user
	}
	return os.Getenv("USER")
}

func (model *TUIModel) enterChat() {
	model.mode = modeChat
	model.textInput.SetValue("")
	model.textInput.Placeholder = "Type a message…  (/help for commands)"
	model.textInput.Prompt = "> "
}

func (model *TUIModel) Init() tea.Cmd {
	if model.mode == modeChat {
		return tea.Batch(textinput.Blink, model.connectCmd())
	}
	return textinput.Blink
}

func (model *TUIModel) notify(text string) {
	model.lines = append(model.lines, chatLine{notice: text})
}
