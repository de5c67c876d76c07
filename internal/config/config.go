package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	S3       S3Config
	Auth     AuthConfig
	Chat     ChatConfig
	Presence PresenceConfig
	Media    MediaConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port           string
	AllowedOrigins string
	BodyLimit      int
}

type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Enabled reports whether enough S3 settings are present to build a client.
func (c S3Config) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type AuthConfig struct {
	JWTSecret string
	CSRFMode  string
}

type ChatConfig struct {
	EncryptionKey    string
	KMSRootKey       string
	WrappedDataKey   string
	MaxMessageLength int
	DefaultPageSize  int
	MaxPageSize      int
}

type PresenceConfig struct {
	SweepCron  string
	StaleAfter time.Duration
}

type MediaConfig struct {
	MaxImageSize   int64
	MaxImageDim    int
	MaxImagePixels int64
}

type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var defaults = map[string]interface{}{
	"port":                      "8080",
	"server.allowed_origins":    "",
	"server.body_limit":         "8MB",
	"db.host":                   "localhost",
	"db.port":                   "5432",
	"db.user":                   "postgres",
	"db.password":               "",
	"db.name":                   "courtside",
	"db.sslmode":                "disable",
	"db.max_open_conns":         50,
	"db.max_idle_conns":         10,
	"db.conn_max_lifetime":      time.Hour,
	"redis.addr":                "localhost:6379",
	"redis.password":            "",
	"redis.db":                  0,
	"s3.endpoint":               "",
	"s3.region":                 "",
	"s3.bucket":                 "",
	"s3.access_key":             "",
	"s3.secret_key":             "",
	"s3.use_ssl":                false,
	"jwt.secret":                "",
	"csrf.mode":                 "token",
	"chat.encryption_key":       "",
	"chat.kms_root_key":         "",
	"chat.wrapped_data_key":     "",
	"chat.max_message_length":   4000,
	"chat.default_page_size":    30,
	"chat.max_page_size":        100,
	"presence.sweep_cron":       "*/1 * * * *",
	"presence.stale_after":      5 * time.Minute,
	"media.max_image_size":      "5MB",
	"media.max_image_dim":       2048,
	"media.max_image_pixels":    40_000_000,
	"log.level":                 "info",
	"log.format":                "json",
	"log.file":                  "",
	"log.max_size_mb":           100,
	"log.max_backups":           5,
	"log.max_age_days":          28,
	"log.compress":              false,
}

// Load reads configuration from an optional .env file, an optional config file and
// the process environment. Environment keys are the upper-cased viper keys with dots
// replaced by underscores (db.host -> DB_HOST).
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	bodyLimit, err := humanize.ParseBytes(v.GetString("server.body_limit"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_BODY_LIMIT: %w", err)
	}
	maxImage, err := humanize.ParseBytes(v.GetString("media.max_image_size"))
	if err != nil {
		return nil, fmt.Errorf("invalid MEDIA_MAX_IMAGE_SIZE: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("port"),
			AllowedOrigins: strings.TrimSpace(v.GetString("server.allowed_origins")),
			BodyLimit:      int(bodyLimit),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("db.host"),
			Port:            v.GetString("db.port"),
			User:            v.GetString("db.user"),
			Password:        v.GetString("db.password"),
			Name:            v.GetString("db.name"),
			SSLMode:         v.GetString("db.sslmode"),
			MaxOpenConns:    v.GetInt("db.max_open_conns"),
			MaxIdleConns:    v.GetInt("db.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("db.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		S3: S3Config{
			Endpoint:  strings.TrimSpace(v.GetString("s3.endpoint")),
			Region:    strings.TrimSpace(v.GetString("s3.region")),
			Bucket:    strings.TrimSpace(v.GetString("s3.bucket")),
			AccessKey: strings.TrimSpace(v.GetString("s3.access_key")),
			SecretKey: strings.TrimSpace(v.GetString("s3.secret_key")),
			UseSSL:    v.GetBool("s3.use_ssl"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("jwt.secret"),
			CSRFMode:  strings.ToLower(strings.TrimSpace(v.GetString("csrf.mode"))),
		},
		Chat: ChatConfig{
			EncryptionKey:    v.GetString("chat.encryption_key"),
			KMSRootKey:       v.GetString("chat.kms_root_key"),
			WrappedDataKey:   v.GetString("chat.wrapped_data_key"),
			MaxMessageLength: v.GetInt("chat.max_message_length"),
			DefaultPageSize:  v.GetInt("chat.default_page_size"),
			MaxPageSize:      v.GetInt("chat.max_page_size"),
		},
		Presence: PresenceConfig{
			SweepCron:  v.GetString("presence.sweep_cron"),
			StaleAfter: v.GetDuration("presence.stale_after"),
		},
		Media: MediaConfig{
			MaxImageSize:   int64(maxImage),
			MaxImageDim:    v.GetInt("media.max_image_dim"),
			MaxImagePixels: v.GetInt64("media.max_image_pixels"),
		},
		Log: LogConfig{
			Level:      v.GetString("log.level"),
			Format:     v.GetString("log.format"),
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
			Compress:   v.GetBool("log.compress"),
		},
	}

	if cfg.Chat.MaxMessageLength < 1 {
		cfg.Chat.MaxMessageLength = 4000
	}
	if cfg.Chat.MaxPageSize < 1 {
		cfg.Chat.MaxPageSize = 100
	}
	if cfg.Chat.DefaultPageSize < 1 || cfg.Chat.DefaultPageSize > cfg.Chat.MaxPageSize {
		cfg.Chat.DefaultPageSize = 30
	}
	return cfg, nil
}

// Validate checks settings that the server cannot start without.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Chat.EncryptionKey == "" && (c.Chat.KMSRootKey == "" || c.Chat.WrappedDataKey == "") {
		return errors.New("CHAT_ENCRYPTION_KEY or CHAT_KMS_ROOT_KEY + CHAT_WRAPPED_DATA_KEY is required")
	}
	switch c.Auth.CSRFMode {
	case "token", "origin", "off":
	default:
		return fmt.Errorf("invalid CSRF_MODE %q", c.Auth.CSRFMode)
	}
	return nil
}

// DSN builds the postgres connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		c.Host, c.User, c.Password, c.Name, c.Port, c.SSLMode,
	)
}
