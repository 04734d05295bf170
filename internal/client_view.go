package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"chatroom/internal/storage"
)

var (
	appTitleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Padding(0, 1)
	subtitleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("110")).MarginTop(1)
	menuHintStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).MarginTop(1)
	chatHeaderStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("109")).MarginTop(1)
	connectedStyle     = statusStyle.Copy().Foreground(lipgloss.Color("42")).Bold(true)
	connectingStyle    = statusStyle.Copy().Foreground(lipgloss.Color("178")).Italic(true)
	messageBodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("253"))
	imageRefStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("117")).Underline(true)
	messageBoxStyle    = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(1, 2).MarginTop(1)
	inputBoxStyle      = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	timestampStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	usernameStyle      = lipgloss.NewStyle().Bold(true)
	activeUserStyle    = usernameStyle.Copy().Foreground(lipgloss.Color("213"))
	systemMessageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	errorStyle         = statusStyle.Copy().Foreground(lipgloss.Color("196")).Bold(true)
	dividerStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("237")).Render(" ┃ ")
	userColorPalette   = []lipgloss.Color{
		lipgloss.Color("45"),
		lipgloss.Color("81"),
		lipgloss.Color("141"),
		lipgloss.Color("98"),
		lipgloss.Color("63"),
		lipgloss.Color("135"),
		lipgloss.Color("32"),
	}
)

// only the last lines fit on screen
const visibleLines = 200

func (model TUIModel) View() string {
	if model.mode == modeNamePrompt {
		return model.renderNamePromptView()
	}
	return model.renderChatView()
}

func (model TUIModel) renderNamePromptView() string {
	title := appTitleStyle.Render("Chatroom")
	subtitle := subtitleStyle.Render("Pick the name others will see")
	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		subtitle,
		inputBoxStyle.Render(model.textInput.View()),
		menuHintStyle.Render("Enter to join  •  Esc to quit"),
	)
}

func (model TUIModel) renderChatView() string {
	headerSegments := []string{"Chatroom " + Version, "User " + model.username, "Server " + model.serverURL}
	if model.adminToken != "" {
		headerSegments = append(headerSegments, "admin")
	}
	header := chatHeaderStyle.Render(strings.Join(headerSegments, dividerStyle))

	var statusLine string
	switch {
	case model.isConnected:
		statusLine = connectedStyle.Render("Connected")
	case model.connectionError != nil:
		statusLine = errorStyle.Render(fmt.Sprintf("Connection error: %v (retrying every %s)", model.connectionError, retryDelay))
	default:
		statusLine = connectingStyle.Render("Connecting…")
	}

	lines := model.lines
	if len(lines) > visibleLines {
		lines = lines[len(lines)-visibleLines:]
	}
	messageLines := make([]string, 0, len(lines))
	for _, line := range lines {
		messageLines = append(messageLines, model.renderLine(line))
	}
	if len(messageLines) == 0 {
		messageLines = append(messageLines, systemMessageStyle.Render("No messages yet. Say hi and start the conversation."))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		statusLine,
		messageBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, messageLines...)),
		inputBoxStyle.Render(model.textInput.View()),
		menuHintStyle.Render("/help for commands  •  Esc or /quit to leave"),
	)
}

// renderLine stamps the timestamp, picks a color for the sender, and indents
// multi-line messages so they stay legible.
func (model TUIModel) renderLine(line chatLine) string {
	if line.notice != "" {
		return systemMessageStyle.Render(line.notice)
	}
	chat := line.message
	timestamp := timestampStyle.Render(fmt.Sprintf("[%s]", time.Unix(chat.Timestamp, 0).Format("15:04:05")))

	var nameStyle lipgloss.Style
	if chat.Username == model.username {
		nameStyle = activeUserStyle
	} else {
		nameStyle = usernameStyle.Copy().Foreground(colorForUser(chat.Username))
	}
	name := nameStyle.Render(chat.Username)

	var body string
	if chat.Kind == storage.KindImage {
		body = imageRefStyle.Render("[image] " + model.mediaURL(chat.Content))
	} else {
		body = messageBodyStyle.Render(strings.ReplaceAll(chat.Content, "\n", "\n   "))
	}
	return lipgloss.JoinHorizontal(lipgloss.Left, timestamp, " ", name, ": ", body)
}

// mediaURL turns an /uploads/ reference into a link the user can open.
func (model TUIModel) mediaURL(ref string) string {
	base, err := httpBaseFromJoinURL(model.serverURL)
	if err != nil || !strings.HasPrefix(ref, "/") {
		return ref
	}
	return base + ref
}

// color for users
func colorForUser(name string) lipgloss.Color {
	if len(userColorPalette) == 0 {
		return lipgloss.Color("249")
	}
	if name == "" {
		return userColorPalette[0]
	}
	var sum int
	for _, r := range name {
		sum += int(r)
	}
	return userColorPalette[sum%len(userColorPalette)]
}
