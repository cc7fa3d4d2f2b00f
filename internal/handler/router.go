package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/hitoshi/sessiongate/internal/docs"
	"github.com/hitoshi/sessiongate/internal/metrics"
	"github.com/hitoshi/sessiongate/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger         *slog.Logger
	Gate           *middleware.RequestGate
	RateLimiter    *middleware.RateLimiter
	AllowedOrigins []string
	HSTS           bool
	Metrics        metrics.MetricsCollector

	// 認証
	AuthService AuthServiceInterface
	Cookies     CookiePolicy

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Logging → Recovery → SecurityHeaders → Metrics → CORS → RequestGate → RateLimit
//
// CORSがOPTIONSプリフライトに応答するため、プリフライトはゲートに到達しない。
// ゲートは公開パス以外のすべてのリクエストでセッションCookieを検証する。
func NewRouter(deps *RouterDeps) http.Handler {
	m := deps.Metrics
	if m == nil {
		m = metrics.NopCollector{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewMetricsMiddleware(m))
	r.Use(middleware.NewCORSMiddleware(deps.AllowedOrigins))
	r.Use(deps.Gate.Middleware)

	authHandler := NewAuthHandler(deps.AuthService, deps.Cookies)
	userHandler := NewUserHandler(deps.UserService)

	// --- 公開ルート ---
	r.Get("/", Health)
	r.Get("/health", Health)

	r.Get("/openapi.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(docs.SwaggerInfo.ReadDoc()))
	})
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs/index.html", http.StatusMovedPermanently)
	})
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.json")))

	// 初期化はクライアントIPごとの専用レート制限
	r.With(deps.RateLimiter.InitMiddleware()).Post("/api/auth/users/init", authHandler.InitUser)

	// --- レート制限付きルート ---
	// ゲート通過後はsubjectごと、未認証（ログアウト）はクライアントIPごとに制限
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/api/auth/logout", authHandler.Logout)
		r.Get("/api/auth/who-am-i", authHandler.WhoAmI)
		r.Get("/api/users/me", userHandler.GetMe)
	})

	return r
}
