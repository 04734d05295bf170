package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadServerConfigFromEnvironment(t *testing.T) {
	t.Setenv("CHATROOM_ADDR", "127.0.0.1:9999")
	t.Setenv("CHATROOM_ADMIN_PASSWORD", "pw")
	t.Setenv("CHATROOM_TOKEN_SECRET", "0123456789abcdef0123")
	t.Setenv("CHATROOM_TOKEN_MAX_AGE", "15m")
	t.Setenv("CHATROOM_HISTORY_LIMIT", "50")
	t.Setenv("CHATROOM_DATA_DIR", t.TempDir())

	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9999", cfg.Addr)
	require.Equal(t, "/ws", cfg.WSPath)
	require.Equal(t, 15*time.Minute, cfg.TokenMaxAge)
	require.Equal(t, 50, cfg.HistoryLimit)
	require.Equal(t, int64(8), cfg.MaxUploadMB)

	require.NoError(t, cfg.Validate())
	require.NotEmpty(t, cfg.DBPath)
	require.NotEmpty(t, cfg.UploadDir)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	base := ServerConfig{
		Addr:          ":0",
		WSPath:        "/ws",
		DBPath:        "chat.db",
		UploadDir:     "uploads",
		MaxUploadMB:   8,
		AdminPassword: "pw",
		TokenSecret:   "0123456789abcdef",
		TokenMaxAge:   time.Hour,
		HistoryLimit:  100,
		Env:           "test",
		LogLevel:      "info",
	}
	ok := base
	require.NoError(t, ok.Validate())

	mutations := map[string]func(*ServerConfig){
		"missing password": func(c *ServerConfig) { c.AdminPassword = "" },
		"short secret":     func(c *ServerConfig) { c.TokenSecret = "short" },
		"history too big":  func(c *ServerConfig) { c.HistoryLimit = 301 },
		"history zero":     func(c *ServerConfig) { c.HistoryLimit = 0 },
		"bad env":          func(c *ServerConfig) { c.Env = "staging" },
		"bad level":        func(c *ServerConfig) { c.LogLevel = "loud" },
		"zero upload":      func(c *ServerConfig) { c.MaxUploadMB = 0 },
	}
	for name, mutate := range mutations {
		cfg := base
		mutate(&cfg)
		require.Error(t, cfg.Validate(), name)
	}
}

func TestNormalizeWSPath(t *testing.T) {
	require.Equal(t, "/ws", NormalizeWSPath(""))
	require.Equal(t, "/chat", NormalizeWSPath("chat"))
	require.Equal(t, "/chat", NormalizeWSPath(" /chat "))
}
