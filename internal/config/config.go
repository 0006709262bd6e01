// Package config provides configuration loading, validation, and defaults
// for the instabridge application. Values are read from an optional
// config.yaml file and BRIDGE_* environment variables over built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config defines the application configuration for all components of the
// bridge: logging, the MongoDB store, the Instagram source account, the
// Telegram bot, the Redis queue, the HTTP/WebSocket surfaces, and the
// sync orchestrator.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Instagram InstagramConfig `mapstructure:"instagram"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Server    ServerConfig    `mapstructure:"server"`
	Realtime  RealtimeConfig  `mapstructure:"realtime"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Media     MediaConfig     `mapstructure:"media"`
	Security  SecurityConfig  `mapstructure:"security"`
}

// LoggerConfig controls the slog handler.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig holds MongoDB connection settings.
type DatabaseConfig struct {
	URI            string        `mapstructure:"uri"             validate:"required"`
	Name           string        `mapstructure:"name"            validate:"required"`
	MaxPoolSize    uint64        `mapstructure:"max_pool_size"   validate:"min=1"`
	MinPoolSize    uint64        `mapstructure:"min_pool_size"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" validate:"min=1s"`
	SocketTimeout  time.Duration `mapstructure:"socket_timeout"  validate:"min=1s"`
	MaxConnectTry  int           `mapstructure:"max_connect_attempts" validate:"min=1,max=10"`
}

// InstagramConfig holds source account credentials and fetch tuning.
type InstagramConfig struct {
	Username    string `mapstructure:"username" validate:"required"`
	Password    string `mapstructure:"password" validate:"required"`
	SessionFile string `mapstructure:"session_file"`
	BatchSize   int    `mapstructure:"batch_size" validate:"min=1,max=500"`
	ThreadLimit int    `mapstructure:"thread_limit" validate:"min=1,max=500"`
}

// TelegramConfig holds bot token and user-facing message templates.
type TelegramConfig struct {
	Token       string `mapstructure:"token" validate:"required"`
	AdminUserID int64  `mapstructure:"admin_user_id"`

	MsgWelcome      string `mapstructure:"msg_welcome"`
	MsgGeneralError string `mapstructure:"msg_general_error"`
	MsgNoThreads    string `mapstructure:"msg_no_threads"`
	MsgNoMessages   string `mapstructure:"msg_no_messages"`
	MsgNotLinked    string `mapstructure:"msg_not_linked"`
	MsgUnauthorized string `mapstructure:"msg_unauthorized"`
}

// RedisConfig holds queue backend settings.
type RedisConfig struct {
	Addr           string        `mapstructure:"addr" validate:"required"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	PoolSize       int           `mapstructure:"pool_size" validate:"min=1"`
	MetadataTTL    time.Duration `mapstructure:"metadata_ttl" validate:"min=1m"`
	DequeueTimeout time.Duration `mapstructure:"dequeue_timeout" validate:"min=100ms"`
	MaxRetries     int           `mapstructure:"max_retries" validate:"min=0,max=10"`
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	Addr          string        `mapstructure:"addr" validate:"required"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	WebhookSecret string        `mapstructure:"webhook_secret"`
}

// RealtimeConfig holds the WebSocket fan-out settings.
type RealtimeConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	SendBuffer int  `mapstructure:"send_buffer" validate:"min=1"`
}

// SyncConfig holds orchestrator timing and retry policy.
type SyncConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"    validate:"min=10s"`
	MaxRetries int           `mapstructure:"max_retries" validate:"min=0,max=10"`
	RetryDelay time.Duration `mapstructure:"retry_delay" validate:"min=1s"`
}

// MediaConfig holds the content-addressed media cache settings.
type MediaConfig struct {
	CacheDir    string        `mapstructure:"cache_dir" validate:"required"`
	MaxFileSize int64         `mapstructure:"max_file_size" validate:"min=1"`
	MaxAge      time.Duration `mapstructure:"max_age"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout" validate:"min=1s"`
}

// SecurityConfig holds security toggles.
type SecurityConfig struct {
	RequireSignedWebhooks bool `mapstructure:"require_signed_webhooks"`
}

// Load reads configuration from defaults, an optional config.yaml in the
// working directory, and BRIDGE_* environment variables, then validates the
// result. Returns an error if the file is malformed or validation fails.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Missing config file is fine, defaults plus env cover everything.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", false)

	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "instabridge")
	v.SetDefault("database.max_pool_size", 10)
	v.SetDefault("database.min_pool_size", 1)
	v.SetDefault("database.max_idle_time", 30*time.Second)
	v.SetDefault("database.connect_timeout", 10*time.Second)
	v.SetDefault("database.socket_timeout", 30*time.Second)
	v.SetDefault("database.max_connect_attempts", 3)

	// Credentials default to empty so viper binds their env keys; the
	// validator rejects them if they stay empty.
	v.SetDefault("instagram.username", "")
	v.SetDefault("instagram.password", "")
	v.SetDefault("telegram.token", "")
	v.SetDefault("telegram.admin_user_id", 0)
	v.SetDefault("server.webhook_secret", "")
	v.SetDefault("redis.password", "")

	v.SetDefault("instagram.session_file", "instagram_session.json")
	v.SetDefault("instagram.batch_size", 50)
	v.SetDefault("instagram.thread_limit", 100)

	v.SetDefault("telegram.msg_welcome", "Welcome! Use /threads to browse your Instagram conversations.")
	v.SetDefault("telegram.msg_general_error", "Sorry, something went wrong. Please try again later.")
	v.SetDefault("telegram.msg_no_threads", "No Instagram conversations found yet.")
	v.SetDefault("telegram.msg_no_messages", "No messages in this conversation yet.")
	v.SetDefault("telegram.msg_not_linked", "No Instagram conversation selected. Use /threads first.")
	v.SetDefault("telegram.msg_unauthorized", "You are not authorized to use this command.")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.metadata_ttl", time.Hour)
	v.SetDefault("redis.dequeue_timeout", time.Second)
	v.SetDefault("redis.max_retries", 3)

	v.SetDefault("server.addr", ":8443")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("realtime.enabled", true)
	v.SetDefault("realtime.send_buffer", 64)

	v.SetDefault("sync.enabled", true)
	v.SetDefault("sync.interval", 5*time.Minute)
	v.SetDefault("sync.max_retries", 3)
	v.SetDefault("sync.retry_delay", time.Minute)

	v.SetDefault("media.cache_dir", "data/media_cache")
	v.SetDefault("media.max_file_size", int64(100*1024*1024))
	v.SetDefault("media.max_age", 7*24*time.Hour)
	v.SetDefault("media.http_timeout", 30*time.Second)

	v.SetDefault("security.require_signed_webhooks", true)
}
