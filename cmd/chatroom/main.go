package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"chatroom/internal/app"
)

const (
	modeServer = "server"
	modeClient = "client"
	modeLocal  = "local"
)

func main() {
	mode, args := parseMode(os.Args[1:])

	serverCfg, err := app.LoadServerConfig()
	if err != nil {
		fatal(err)
	}
	clientCfg, err := app.LoadClientConfig()
	if err != nil {
		fatal(err)
	}
	if mode == modeLocal && os.Getenv("CHATROOM_ADDR") == "" {
		serverCfg.Addr = "127.0.0.1:0"
	}

	flagSet := flag.NewFlagSet("chatroom", flag.ExitOnError)
	flagSet.StringVar(&serverCfg.Addr, "addr", serverCfg.Addr, "server listen address")
	flagSet.StringVar(&serverCfg.WSPath, "path", serverCfg.WSPath, "websocket path")
	flagSet.StringVar(&serverCfg.DBPath, "db", serverCfg.DBPath, "sqlite database path (defaults to a per-user path)")
	flagSet.StringVar(&serverCfg.DatabaseURL, "database-url", serverCfg.DatabaseURL, "PostgreSQL URL; overrides --db")
	flagSet.StringVar(&serverCfg.UploadDir, "uploads", serverCfg.UploadDir, "directory for uploaded images")
	flagSet.StringVar(&serverCfg.LogLevel, "log-level", serverCfg.LogLevel, "trace, debug, info, warn or error")
	flagSet.StringVar(&clientCfg.ServerURL, "server-url", clientCfg.ServerURL, "server websocket URL (client mode)")
	flagSet.StringVar(&clientCfg.Username, "user", clientCfg.Username, "display name; prompts when empty")
	_ = flagSet.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch mode {
	case modeServer:
		err = runServerMode(ctx, serverCfg)
	case modeLocal:
		err = runLocalMode(ctx, serverCfg, clientCfg)
	default:
		err = app.RunClient(clientCfg)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		fatal(err)
	}
}

func runServerMode(ctx context.Context, cfg app.ServerConfig) error {
	handle, err := app.RunServer(ctx, cfg, cfg.NewLogger())
	if err != nil {
		return err
	}
	return handle.Wait()
}

// runLocalMode starts a private server on a loopback port and attaches the
// terminal client to it. Server logs go to a file so they do not tear the UI.
func runLocalMode(ctx context.Context, serverCfg app.ServerConfig, clientCfg app.ClientConfig) error {
	if serverCfg.DBPath == "" {
		serverCfg.DBPath = app.DefaultDBPath()
	}
	if serverCfg.TokenSecret == "" {
		serverCfg.TokenSecret = randomHex(32)
	}
	generatedPassword := serverCfg.AdminPassword == ""
	if generatedPassword {
		serverCfg.AdminPassword = randomHex(8)
	}
	if err := os.MkdirAll(filepath.Dir(serverCfg.DBPath), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	logPath := filepath.Join(filepath.Dir(serverCfg.DBPath), "server.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	logger := zerolog.New(logFile).With().Timestamp().Logger()

	handle, err := app.RunServer(ctx, serverCfg, logger)
	if err != nil {
		return err
	}
	defer stopServer(handle)

	if err := waitForServer(handle.Addr(), 5*time.Second); err != nil {
		return err
	}
	if generatedPassword {
		fmt.Printf("Admin password for this session: %s\n", serverCfg.AdminPassword)
	}

	clientCfg.ServerURL = buildWebsocketURL(handle.Addr(), serverCfg.WSPath)
	if err := app.RunClient(clientCfg); err != nil {
		return err
	}
	stopServer(handle)
	return handle.Wait()
}

func waitForServer(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		conn, err := net.DialTimeout("tcp", addr, 500*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("server did not become ready: %w", err)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func buildWebsocketURL(addr, path string) string {
	path = app.NormalizeWSPath(path)
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Sprintf("ws://%s%s", addr, path)
	}
	return fmt.Sprintf("ws://%s%s", net.JoinHostPort(host, port), path)
}

func parseMode(args []string) (string, []string) {
	if len(args) == 0 {
		return modeClient, args
	}
	switch strings.ToLower(args[0]) {
	case modeServer, modeClient, modeLocal:
		return strings.ToLower(args[0]), args[1:]
	}
	return modeClient, args
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func stopServer(handle *app.ServerHandle) {
	if handle == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = handle.Stop(shutdownCtx)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "chatroom: %v\n", err)
	os.Exit(1)
}
