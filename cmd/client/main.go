package main

import (
	"flag"
	"fmt"
	"os"

	"chatroom/internal/app"
)

func main() {
	cfg, err := app.LoadClientConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	flag.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "websocket URL (e.g., ws://localhost:8080/ws)")
	flag.StringVar(&cfg.Username, "user", cfg.Username, "display name; prompts when empty")
	flag.Parse()

	if err := app.RunClient(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
