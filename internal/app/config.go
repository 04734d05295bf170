package app

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
)

const envPrefix = "CHATROOM"

// ServerConfig defines how the HTTP/WebSocket backend should run. Fields are
// read from CHATROOM_* environment variables; flags may override them.
type ServerConfig struct {
	Addr           string        `envconfig:"ADDR" default:":8080" validate:"required"`
	WSPath         string        `envconfig:"WS_PATH" default:"/ws" validate:"required,startswith=/"`
	DBPath         string        `envconfig:"DB_PATH"`
	DatabaseURL    string        `envconfig:"DATABASE_URL" validate:"omitempty,url"`
	UploadDir      string        `envconfig:"UPLOAD_DIR"`
	MaxUploadMB    int64         `envconfig:"MAX_UPLOAD_MB" default:"8" validate:"min=1,max=512"`
	AdminPassword  string        `envconfig:"ADMIN_PASSWORD" validate:"required"`
	TokenSecret    string        `envconfig:"TOKEN_SECRET" validate:"required,min=16"`
	TokenMaxAge    time.Duration `envconfig:"TOKEN_MAX_AGE" default:"1h" validate:"min=1s"`
	HistoryLimit   int           `envconfig:"HISTORY_LIMIT" default:"100" validate:"min=1,max=300"`
	AllowedOrigins []string      `envconfig:"ALLOWED_ORIGINS" default:"*"`
	Env            string        `envconfig:"ENV" default:"development" validate:"oneof=development production test"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error"`
}

// ClientConfig defines the parameters the TUI client needs.
type ClientConfig struct {
	ServerURL string `envconfig:"SERVER" default:"ws://localhost:8080/ws" validate:"required,url"`
	Username  string `envconfig:"USER"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadServerConfig reads an optional .env file and then the environment.
// The result is not validated so flags can still fill in missing values.
func LoadServerConfig() (ServerConfig, error) {
	_ = godotenv.Load()
	var cfg ServerConfig
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("read environment: %w", err)
	}
	return cfg, nil
}

func LoadClientConfig() (ClientConfig, error) {
	_ = godotenv.Load()
	var cfg ClientConfig
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("read environment: %w", err)
	}
	return cfg, nil
}

// Validate fills derived defaults and checks every field.
func (cfg *ServerConfig) Validate() error {
	cfg.WSPath = NormalizeWSPath(cfg.WSPath)
	if cfg.DBPath == "" && cfg.DatabaseURL == "" {
		cfg.DBPath = DefaultDBPath()
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = DefaultUploadDir()
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (cfg ServerConfig) IsDevelopment() bool {
	return cfg.Env == "development"
}

// NewLogger builds the root logger: console output in development, JSON
// otherwise.
func (cfg ServerConfig) NewLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// dataDir is the per-user directory for the bundled SQLite file and uploads.
func dataDir() string {
	if env := os.Getenv("CHATROOM_DATA_DIR"); env != "" {
		return env
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "chatroom")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Chatroom")
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "Chatroom")
		}
		return filepath.Join(home, ".local", "share", "chatroom")
	}
	return filepath.Join(".", ".chatroom")
}

// DefaultDBPath returns a per-user data path for the bundled SQLite file.
func DefaultDBPath() string {
	return filepath.Join(dataDir(), "chatroom.db")
}

func DefaultUploadDir() string {
	return filepath.Join(dataDir(), "uploads")
}

// NormalizeWSPath guarantees the websocket path starts with '/' and falls
// back to /ws when empty.
func NormalizeWSPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return "/ws"
	}
	if path[0] != '/' {
		return "/" + path
	}
	return path
}
