package internal

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"chatroom/internal/storage"
)

const (
	maxTextRunes     = 2000
	maxUsernameRunes = 24
	defaultUsername  = "Anonymous"
)

// envelope types sent to clients
const (
	EnvelopeMessage = "message"
	EnvelopeHistory = "history"
	EnvelopeCleared = "cleared"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ChatFrame is the json frame a client sends over the websocket:
// {"type":"message","username":"…","text":"…"}.
type ChatFrame struct {
	Type     string  `json:"type" validate:"required,eq=message"`
	Username string  `json:"username"`
	Text     *string `json:"text" validate:"required"`
}

// Envelope is every payload the server pushes to a session.
type Envelope struct {
	Type     string            `json:"type"`
	Message  *storage.Message  `json:"message,omitempty"`
	Messages []storage.Message `json:"messages,omitempty"`
}

// historyEnvelope always carries the messages array, even when empty.
type historyEnvelope struct {
	Type     string            `json:"type"`
	Messages []storage.Message `json:"messages"`
}

func decodeFrame(payload []byte) (ChatFrame, error) {
	var frame ChatFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return ChatFrame{}, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if err := validate.Struct(frame); err != nil {
		return ChatFrame{}, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	return frame, nil
}

// NormalizeUsername collapses runs of whitespace, falls back to "Anonymous"
// and caps the name at 24 characters.
func NormalizeUsername(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return defaultUsername
	}
	return truncateRunes(name, maxUsernameRunes)
}

// NormalizeText trims text and caps it at 2000 characters.
// Whitespace-only text is rejected.
func NormalizeText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrValidationRejected
	}
	return truncateRunes(text, maxTextRunes), nil
}

func truncateRunes(s string, limit int) string {
	count := 0
	for idx := range s {
		if count == limit {
			return s[:idx]
		}
		count++
	}
	return s
}
