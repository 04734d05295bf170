package internal

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"chatroom/internal/auth"
	"chatroom/internal/storage"
)

const (
	loginAttempts = 5
	loginWindow   = time.Minute
)

// Options wires the collaborators of a Server.
type Options struct {
	HistoryLimit   int
	Media          *MediaStore
	Tokens         *auth.TokenIssuer
	Password       *auth.PasswordCheck
	Metrics        *Metrics
	LoginLimiter   *RateLimiter
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// Server owns the single chat room: its sessions, the broadcast hub and the
// HTTP surface around them.
type Server struct {
	store          storage.MessageStore
	registry       *Registry
	hub            *Hub
	moderation     *ModerationGate
	media          *MediaStore
	tokens         *auth.TokenIssuer
	password       *auth.PasswordCheck
	metrics        *Metrics
	loginLimiter   *RateLimiter
	allowedOrigins []string
	historyLimit   int
	logger         zerolog.Logger
}

func NewServer(store storage.MessageStore, opts Options) (*Server, error) {
	if store == nil {
		return nil, errors.New("message store is required")
	}
	if opts.Media == nil {
		return nil, errors.New("media store is required")
	}
	if opts.Tokens == nil || opts.Password == nil {
		return nil, errors.New("admin credentials are required")
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.LoginLimiter == nil {
		opts.LoginLimiter = NewRateLimiter(loginAttempts, loginWindow)
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = storage.DefaultRecentLimit
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	registry := NewRegistry()
	hub := NewHub(registry, opts.Metrics, opts.Logger)
	return &Server{
		store:          store,
		registry:       registry,
		hub:            hub,
		moderation:     NewModerationGate(store, hub, opts.Tokens, opts.Media, opts.Metrics, opts.Logger),
		media:          opts.Media,
		tokens:         opts.Tokens,
		password:       opts.Password,
		metrics:        opts.Metrics,
		loginLimiter:   opts.LoginLimiter,
		allowedOrigins: opts.AllowedOrigins,
		historyLimit:   storage.ClampLimit(opts.HistoryLimit),
		logger:         opts.Logger,
	}, nil
}

func (s *Server) Moderation() *ModerationGate { return s.moderation }

func (s *Server) Sessions() int { return s.registry.Len() }

// Shutdown closes every live session. Their read loops exit once the write
// pumps have sent the close frame.
func (s *Server) Shutdown() {
	closed := s.registry.closeAll()
	s.logger.Info().Int("sessions", closed).Msg("sessions closed")
}
