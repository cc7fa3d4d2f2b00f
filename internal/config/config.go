// Package config はアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/hitoshi/sessiongate/internal/auth"
)

// 配置先（BACKEND_RUNNING_ON / FRONTEND_RUNNING_ON）。
const (
	RunningOnLocal = "local"
	RunningOnCloud = "cloud"
)

// ストアドライバー（STORE_DRIVER）。
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Store
	StoreDriver       string        `env:"STORE_DRIVER" envDefault:"postgres"`
	DatabaseURL       string        `env:"DATABASE_URL"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	// Firebase
	FirebaseProjectID          string        `env:"FIREBASE_PROJECT_ID,required,notEmpty"`
	FirebaseServiceAccountJSON string        `env:"FIREBASE_SERVICE_ACCOUNT_JSON"`
	IdPTimeout                 time.Duration `env:"IDP_TIMEOUT" envDefault:"5s"`

	// Session
	SessionValidity time.Duration `env:"SESSION_VALIDITY" envDefault:"336h"`
	CheckRevoked    bool          `env:"CHECK_REVOKED" envDefault:"true"`
	CookieDomain    string        `env:"COOKIE_DOMAIN"`

	// User
	InitialCoin int64 `env:"INITIAL_COIN" envDefault:"0"`

	// Deployment
	BackendRunningOn  string `env:"BACKEND_RUNNING_ON" envDefault:"local"`
	FrontendRunningOn string `env:"FRONTEND_RUNNING_ON" envDefault:"local"`
	FrontendURLLocal  string `env:"FRONTEND_URL_LOCAL" envDefault:"http://localhost:3000"`
	FrontendURLCloud  string `env:"FRONTEND_URL_CLOUD"`

	// Rate Limit (req/min)
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitInit    int `env:"RATE_LIMIT_INIT" envDefault:"20"`

	// Server
	ServerPort  string `env:"SERVER_PORT" envDefault:"8000"`
	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	// Observability
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load は.envファイル（ENV_FILE、既定は .env）と環境変数からConfigを読み込む。
// ファイルが存在しない場合は環境変数のみを使う。同じキーは環境変数が優先される。
func Load() (*Config, error) {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}

	vars, err := godotenv.Read(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read env file %s: %w", path, err)
	}
	if vars == nil {
		vars = make(map[string]string)
	}
	for k, v := range env.ToMap(os.Environ()) {
		vars[k] = v
	}

	return parse(vars)
}

// parse は変数マップからConfigを組み立てて検証する。
func parse(vars map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORE_DRIVER=postgres"))
		}
	case StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.StoreDriver))
	}

	if !validRunningOn(c.BackendRunningOn) {
		errs = append(errs, fmt.Errorf("BACKEND_RUNNING_ON must be local or cloud, got %q", c.BackendRunningOn))
	}
	if !validRunningOn(c.FrontendRunningOn) {
		errs = append(errs, fmt.Errorf("FRONTEND_RUNNING_ON must be local or cloud, got %q", c.FrontendRunningOn))
	}
	if c.FrontendRunningOn == RunningOnCloud && c.FrontendURLCloud == "" {
		errs = append(errs, errors.New("FRONTEND_URL_CLOUD is required when FRONTEND_RUNNING_ON=cloud"))
	}

	if err := auth.ValidateSessionValidity(c.SessionValidity); err != nil {
		errs = append(errs, fmt.Errorf("SESSION_VALIDITY: %w", err))
	}
	if c.IdPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("IDP_TIMEOUT must be positive, got %s", c.IdPTimeout))
	}
	if c.InitialCoin < 0 {
		errs = append(errs, fmt.Errorf("INITIAL_COIN must be >= 0, got %d", c.InitialCoin))
	}
	if c.RateLimitGeneral <= 0 || c.RateLimitInit <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_GENERAL and RATE_LIMIT_INIT must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func validRunningOn(v string) bool {
	return v == RunningOnLocal || v == RunningOnCloud
}

// BackendOnCloud はバックエンドがクラウド（HTTPS配下）で動作しているかどうかを返す。
func (c *Config) BackendOnCloud() bool {
	return c.BackendRunningOn == RunningOnCloud
}

// AllowedOrigins はCORSで許可するオリジンを返す。
// フロントエンドがローカルの場合は開発用のホスト・ポートの組み合わせも許可する。
func (c *Config) AllowedOrigins() []string {
	if c.FrontendRunningOn == RunningOnCloud {
		return []string{c.FrontendURLCloud}
	}

	origins := []string{c.FrontendURLLocal}
	for _, o := range []string{"http://localhost:3000", "http://127.0.0.1:3000", "http://localhost:3001", "http://127.0.0.1:3001"} {
		if o != c.FrontendURLLocal {
			origins = append(origins, o)
		}
	}
	return origins
}
