package app

import (
	"fmt"

	intrnl "chatroom/internal"
)

// RunClient launches the Bubble Tea TUI with the provided configuration.
func RunClient(cfg ClientConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid client configuration: %w", err)
	}
	return intrnl.RunClient(cfg.ServerURL, cfg.Username)
}
