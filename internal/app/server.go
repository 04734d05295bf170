package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	intrnl "chatroom/internal"
	"chatroom/internal/auth"
	"chatroom/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// ServerHandle represents a running HTTP/WebSocket server instance.
type ServerHandle struct {
	addr     string
	server   *http.Server
	chat     *intrnl.Server
	store    storage.MessageStore
	logger   zerolog.Logger
	stopOnce sync.Once
	done     chan struct{}
	err      error
}

// Addr returns the actual listen address (after the OS allocated a port).
func (h *ServerHandle) Addr() string {
	return h.addr
}

// Stop closes live chat sessions and shuts the HTTP server down within the
// context deadline.
func (h *ServerHandle) Stop(ctx context.Context) error {
	if h == nil || h.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
	}
	var err error
	h.stopOnce.Do(func() {
		// hijacked websocket connections are invisible to http.Server.Shutdown
		h.chat.Shutdown()
		err = h.server.Shutdown(ctx)
	})
	return err
}

// Wait blocks until the server exits.
func (h *ServerHandle) Wait() error {
	if h == nil {
		return nil
	}
	<-h.done
	return h.err
}

// RunServer validates cfg, opens and migrates the message store, and starts
// serving in the background. Cancelling ctx stops the server. Call Stop/Wait
// to manage its lifecycle.
func RunServer(ctx context.Context, cfg ServerConfig, logger zerolog.Logger) (*ServerHandle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	chat, err := newChatServer(store, cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           chat.Routes(cfg.WSPath),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	handle := &ServerHandle{
		addr:   listener.Addr().String(),
		server: httpServer,
		chat:   chat,
		store:  store,
		logger: logger,
		done:   make(chan struct{}),
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-handle.done:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := handle.Stop(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	go handle.serve(listener)

	logger.Info().
		Str("addr", handle.addr).
		Str("ws_path", cfg.WSPath).
		Str("env", cfg.Env).
		Msg("chat server listening")
	return handle, nil
}

func (h *ServerHandle) serve(listener net.Listener) {
	defer close(h.done)
	err := h.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	if err := h.store.Close(); err != nil {
		h.logger.Error().Err(err).Msg("store close")
	}
	h.err = err
}

// openStore picks PostgreSQL when a database URL is configured and the
// bundled SQLite file otherwise.
func openStore(ctx context.Context, cfg ServerConfig, logger zerolog.Logger) (storage.MessageStore, error) {
	if cfg.DatabaseURL != "" {
		store, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Msg("connected to PostgreSQL")
		return store, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	store, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Info().Str("path", cfg.DBPath).Msg("opened SQLite store")
	return store, nil
}

func newChatServer(store storage.MessageStore, cfg ServerConfig, logger zerolog.Logger) (*intrnl.Server, error) {
	media, err := intrnl.NewMediaStore(cfg.UploadDir, cfg.MaxUploadMB<<20, logger)
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewTokenIssuer(cfg.TokenSecret, cfg.TokenMaxAge)
	if err != nil {
		return nil, err
	}
	password, err := auth.NewPasswordCheck(cfg.AdminPassword)
	if err != nil {
		return nil, err
	}
	return intrnl.NewServer(store, intrnl.Options{
		HistoryLimit:   cfg.HistoryLimit,
		Media:          media,
		Tokens:         tokens,
		Password:       password,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})
}
