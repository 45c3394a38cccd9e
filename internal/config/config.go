package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Configはアプリ全体の設定
type Config struct {
	Port   string `envconfig:"PORT" default:"8080"`           // サーバーポート
	AppEnv string `envconfig:"APP_ENV" default:"development"` // development/production

	DatabaseURL      string `envconfig:"DATABASE_URL"` // あればこちらを優先
	PostgresHost     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	PostgresPort     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresUser     string `envconfig:"POSTGRES_USER" default:"postgres"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" default:"postgres"`
	PostgresDB       string `envconfig:"POSTGRES_DB" default:"inventory"`
	PostgresSSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`

	JWTSecret string        `envconfig:"JWT_SECRET"` // JWT署名シークレット
	JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"24h"`

	RedisAddr string        `envconfig:"REDIS_ADDR"` // 空ならキャッシュ無し
	CacheTTL  time.Duration `envconfig:"CACHE_TTL" default:"5m"`

	UploadDir     string `envconfig:"UPLOAD_DIR" default:"uploads"`
	UploadBaseURL string `envconfig:"UPLOAD_BASE_URL" default:"/uploads"`
	MaxImageBytes int64  `envconfig:"MAX_IMAGE_BYTES" default:"5242880"`
	MaxCSVBytes   int64  `envconfig:"MAX_CSV_BYTES" default:"10485760"`

	ClientURL string `envconfig:"CLIENT_URL" default:"http://localhost:5173"` // CORS
	RateLimit int    `envconfig:"RATE_LIMIT" default:"300"`                   // 1分あたり/IP

	LogFormat string `envconfig:"LOG_FORMAT" default:"text"` // text/json
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
}

// Loadは環境変数
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}

	//必須チェック
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.MaxImageBytes <= 0 {
		return Config{}, fmt.Errorf("MAX_IMAGE_BYTES must be positive")
	}
	if cfg.MaxCSVBytes <= 0 {
		return Config{}, fmt.Errorf("MAX_CSV_BYTES must be positive")
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("LOG_FORMAT must be text or json")
	}

	return cfg, nil
}

// DSN はgorm(postgres)用の接続文字列
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c Config) Addr() string {
	if c.Port == "" {
		return ":8080"
	}
	if c.Port[0] == ':' {
		return c.Port
	}
	return ":" + c.Port
}
