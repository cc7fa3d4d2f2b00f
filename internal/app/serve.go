package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/sessiongate/internal/auth"
	"github.com/hitoshi/sessiongate/internal/config"
	"github.com/hitoshi/sessiongate/internal/database"
	"github.com/hitoshi/sessiongate/internal/handler"
	"github.com/hitoshi/sessiongate/internal/idp"
	"github.com/hitoshi/sessiongate/internal/metrics"
	"github.com/hitoshi/sessiongate/internal/middleware"
	"github.com/hitoshi/sessiongate/internal/repository"
	"github.com/hitoshi/sessiongate/internal/telemetry"
	"github.com/hitoshi/sessiongate/internal/user"
)

const (
	serviceName     = "sessiongate"
	shutdownTimeout = 30 * time.Second
	dbConnectWait   = 30 * time.Second
)

// runServe はAPIサーバーモードで起動する。
// ストアとIdPクライアントを初期化し、APIサーバーとメトリクスサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. トレーシング（エンドポイント未設定時は何もしない）
	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("tracer shutdown failed", slog.String("error", err.Error()))
		}
	}()

	// 2. ストア
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// 3. IdPクライアントは起動時に1回だけ初期化する
	provider := idp.NewFirebaseProvider(idp.FirebaseConfig{
		ProjectID:       cfg.FirebaseProjectID,
		CredentialsJSON: cfg.FirebaseServiceAccountJSON,
	})
	if err := provider.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize identity provider: %w", err)
	}
	slog.Info("identity provider initialized", slog.String("project_id", cfg.FirebaseProjectID))

	// 4. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	// 5. ルーター
	api, cleanup := newAPIHandler(cfg, store, provider, collector)
	defer cleanup()

	apiServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.SetupMetricsRoute(reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("API server starting", slog.String("addr", apiServer.Addr))
		return listen(apiServer)
	})
	g.Go(func() error {
		slog.Info("metrics server starting", slog.String("addr", metricsServer.Addr))
		return listen(metricsServer)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down servers...")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(apiServer.Shutdown(sctx), metricsServer.Shutdown(sctx))
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}

	slog.Info("servers stopped gracefully")
	return nil
}

// listen はサーバーを起動し、Shutdownによる終了はエラーとして扱わない。
func listen(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", srv.Addr, err)
	}
	return nil
}

// openStore はSTORE_DRIVERに応じてユーザーストアを開く。
// postgresの場合は接続を待ってからマイグレーションを適用する。
func openStore(ctx context.Context, cfg *config.Config) (repository.UserStore, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		slog.Warn("using in-memory user store; records are lost on restart")
		return repository.NewMemoryUserRepo(), func() {}, nil
	}

	db, err := connectPostgres(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database connection established")
	return repository.NewPostgresUserRepo(db), func() { db.Close() }, nil
}

// connectPostgres はDBを開き、疎通が取れるまで指数バックオフで待つ。
func connectPostgres(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, db.PingContext(ctx)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(dbConnectWait),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("database not ready, retrying",
				slog.String("error", err.Error()),
				slog.Duration("retry_in", next),
			)
		}),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// newAPIHandler はストアとIdPから認証コンポーネントを組み立て、APIルーターを返す。
// 返す関数はレートリミッターのバックグラウンド処理を停止する。
func newAPIHandler(cfg *config.Config, store repository.UserStore, provider idp.Provider, m metrics.MetricsCollector) (http.Handler, func()) {
	directory := user.NewDirectory(store, user.Config{InitialCoin: cfg.InitialCoin}, m)

	verifier := auth.NewIdentityVerifier(provider, cfg.IdPTimeout, m)
	issuer := auth.NewSessionIssuer(provider, cfg.IdPTimeout, m)
	authService := auth.NewService(verifier, issuer, directory, auth.ServiceConfig{
		SessionValidity: cfg.SessionValidity,
	})

	gate := middleware.NewRequestGate(
		auth.NewSessionVerifier(provider, cfg.IdPTimeout, m),
		middleware.GateConfig{
			Public:       middleware.DefaultPublicPaths(),
			CheckRevoked: cfg.CheckRevoked,
		},
		m,
	)

	rlConfig := middleware.DefaultRateLimiterConfig()
	rlConfig.GeneralRate = middleware.PerMinute(cfg.RateLimitGeneral)
	rlConfig.GeneralBurst = cfg.RateLimitGeneral
	rlConfig.InitRate = middleware.PerMinute(cfg.RateLimitInit)
	rlConfig.InitBurst = cfg.RateLimitInit
	rl := middleware.NewRateLimiter(rlConfig)

	cookies := handler.NewCookiePolicy(cfg.BackendOnCloud(), cfg.CookieDomain)
	origins := cfg.AllowedOrigins()

	slog.Info("deployment configuration",
		slog.String("backend_running_on", cfg.BackendRunningOn),
		slog.String("frontend_running_on", cfg.FrontendRunningOn),
		slog.Bool("cookie_secure", cookies.Secure),
		slog.Any("allowed_origins", origins),
		slog.Bool("check_revoked", cfg.CheckRevoked),
		slog.Duration("session_validity", cfg.SessionValidity),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:         slog.Default(),
		Gate:           gate,
		RateLimiter:    rl,
		AllowedOrigins: origins,
		HSTS:           cfg.BackendOnCloud(),
		Metrics:        m,
		AuthService:    authService,
		Cookies:        cookies,
		UserService:    directory,
	})

	return router, rl.Stop
}
