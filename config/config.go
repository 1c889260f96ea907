package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server  ServerConfig
	Session SessionConfig
	Admin   AdminConfig
	Token   TokenConfig
	Media   MediaConfig
	Redis   RedisConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string
}

// SessionConfig holds the engine tuning knobs: retention windows, the
// reconnection grace period, and per-connection buffering.
type SessionConfig struct {
	// GracePeriod is the reconnection window for a disconnected participant
	// and the teardown delay after the admin drops.
	GracePeriod time.Duration
	// EventRetention is how many events stay replayable for reconnects.
	EventRetention int
	// ChatRetention is how many chat/system messages the log keeps.
	ChatRetention int
	// ChatTail is how many recent messages a snapshot carries.
	ChatTail int
	// SendBuffer is the bounded outbound queue per connection.
	SendBuffer int
}

// AdminConfig holds the admin credential gate. PasscodeHash (bcrypt) takes
// precedence over the plaintext Passcode, which is for local development.
type AdminConfig struct {
	Nickname     string
	Passcode     string
	PasscodeHash string
}

// TokenConfig holds participant/resume token settings.
type TokenConfig struct {
	Secret      string
	ExpireHours int
}

// MediaConfig holds the media catalog root.
type MediaConfig struct {
	Root string
}

// RedisConfig holds optional Redis settings; empty Addr disables Redis and
// falls back to the in-memory identity store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Session: SessionConfig{
			GracePeriod:    time.Duration(getEnvInt("SESSION_GRACE_PERIOD_SEC", 60)) * time.Second,
			EventRetention: getEnvInt("EVENT_RETENTION", 512),
			ChatRetention:  getEnvInt("CHAT_RETENTION", 256),
			ChatTail:       getEnvInt("SNAPSHOT_CHAT_TAIL", 50),
			SendBuffer:     getEnvInt("CLIENT_SEND_BUFFER", 64),
		},
		Admin: AdminConfig{
			Nickname:     getEnv("ADMIN_NICKNAME", "admin"),
			Passcode:     getEnv("ADMIN_PASSCODE", ""),
			PasscodeHash: getEnv("ADMIN_PASSCODE_HASH", ""),
		},
		Token: TokenConfig{
			Secret:      getEnv("TOKEN_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("TOKEN_EXPIRE_HOURS", 24),
		},
		Media: MediaConfig{
			Root: getEnv("MEDIA_ROOT", "./media"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
