package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/sessiongate/internal/metrics"
	"github.com/hitoshi/sessiongate/internal/model"
)

// SessionCookieName はセッション資格情報を運ぶクッキー名。
const SessionCookieName = "session"

// GateState はリクエストゲートの判定状態。
type GateState int

const (
	// Unchecked は判定前の状態。
	Unchecked GateState = iota
	// Admitted は通過を許可した状態。
	Admitted
	// Rejected は拒否した状態。
	Rejected
)

// String はメトリクスとログに使う状態名を返す。
func (s GateState) String() string {
	switch s {
	case Admitted:
		return "admitted"
	case Rejected:
		return "rejected"
	default:
		return "unchecked"
	}
}

// 判定理由。ログとメトリクスにのみ記録し、レスポンスには含めない。
const (
	ReasonPublicPath        = "public_path"
	ReasonAuthenticated     = "authenticated"
	ReasonMissingCredential = "missing_credential"
	ReasonInvalidSession    = "invalid_session"
	ReasonIdPUnavailable    = "idp_unavailable"
)

// Decision はリクエストゲートの判定結果。
type Decision struct {
	State  GateState
	Reason string
	Claim  *model.IdentityClaim // Admittedかつ非公開パスの場合のみ設定
	Err    error                // 検証エラー（ログ用）
}

// SessionVerifier はセッション資格情報の検証インターフェース。
// auth.SessionVerifierが満たす。
type SessionVerifier interface {
	Verify(ctx context.Context, credential string) (*model.IdentityClaim, error)
	VerifyRevocationAware(ctx context.Context, credential string) (*model.IdentityClaim, error)
}

// PublicPaths はセッション検証を行わないパスの集合。
type PublicPaths struct {
	Exact    []string // 完全一致
	Prefixes []string // パスセグメント単位の前方一致（"/docs" は "/docs" "/docs/..." "/docs.json" に一致）
}

// DefaultPublicPaths はヘルスチェック、初期化、ログアウト、ドキュメントを公開パスとして返す。
func DefaultPublicPaths() PublicPaths {
	return PublicPaths{
		Exact:    []string{"/", "/health", "/api/auth/users/init", "/api/auth/logout"},
		Prefixes: []string{"/docs", "/openapi"},
	}
}

// GateConfig はリクエストゲートの設定。
type GateConfig struct {
	Public       PublicPaths
	CheckRevoked bool // trueの場合はIdP側の失効も確認する
}

// RequestGate は非公開パスへのリクエストをセッション資格情報で検証する。
// 判定は Unchecked → Admitted / Rejected の一方向で、Rejected からは戻らない。
type RequestGate struct {
	verifier     SessionVerifier
	checkRevoked bool
	exact        map[string]struct{}
	prefixes     []string
	metrics      metrics.MetricsCollector
}

// NewRequestGate はRequestGateを生成する。公開パスは生成後に変更できない。
func NewRequestGate(verifier SessionVerifier, config GateConfig, m metrics.MetricsCollector) *RequestGate {
	exact := make(map[string]struct{}, len(config.Public.Exact))
	for _, p := range config.Public.Exact {
		exact[p] = struct{}{}
	}
	prefixes := make([]string, 0, len(config.Public.Prefixes))
	for _, p := range config.Public.Prefixes {
		prefixes = append(prefixes, strings.TrimSuffix(p, "/"))
	}
	if m == nil {
		m = metrics.NopCollector{}
	}
	return &RequestGate{
		verifier:     verifier,
		checkRevoked: config.CheckRevoked,
		exact:        exact,
		prefixes:     prefixes,
		metrics:      m,
	}
}

// IsPublic はパスが公開パスかどうかを判定する。
func (g *RequestGate) IsPublic(path string) bool {
	if _, ok := g.exact[path]; ok {
		return true
	}
	for _, p := range g.prefixes {
		if path == p || strings.HasPrefix(path, p+"/") || strings.HasPrefix(path, p+".") {
			return true
		}
	}
	return false
}

// Decide はパスと資格情報からゲートの判定を行う。HTTPには依存しない。
// credentialが空文字列の場合は資格情報なしとして扱う。
func (g *RequestGate) Decide(ctx context.Context, path, credential string) Decision {
	if g.IsPublic(path) {
		return Decision{State: Admitted, Reason: ReasonPublicPath}
	}
	if credential == "" {
		return Decision{State: Rejected, Reason: ReasonMissingCredential}
	}

	verify := g.verifier.Verify
	if g.checkRevoked {
		verify = g.verifier.VerifyRevocationAware
	}

	claim, err := verify(ctx, credential)
	if err != nil {
		reason := ReasonInvalidSession
		if errors.Is(err, model.ErrUpstreamUnavailable) {
			reason = ReasonIdPUnavailable
		}
		return Decision{State: Rejected, Reason: reason, Err: err}
	}

	return Decision{State: Admitted, Reason: ReasonAuthenticated, Claim: claim}
}

// Middleware はDecideをHTTPミドルウェアとして適用する。
// 拒否時は理由にかかわらず同一の401レスポンスを返す。
func (g *RequestGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var credential string
		if cookie, err := r.Cookie(SessionCookieName); err == nil {
			credential = cookie.Value
		}

		d := g.Decide(r.Context(), r.URL.Path, credential)
		g.metrics.RecordGateDecision(d.State.String(), d.Reason)

		if d.State != Admitted {
			attrs := []any{
				slog.String("reason", d.Reason),
				slog.String("path", r.URL.Path),
				slog.String("request_id", RequestIDFromContext(r.Context())),
			}
			if d.Err != nil {
				attrs = append(attrs, slog.String("error", d.Err.Error()))
			}
			if d.Reason == ReasonIdPUnavailable {
				slog.Error("session verification unavailable", attrs...)
			} else {
				slog.Info("request rejected by gate", attrs...)
			}
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewSessionRejectedError())
			return
		}

		if d.Claim != nil {
			recordSubject(r.Context(), d.Claim.SubjectID)
			r = r.WithContext(ContextWithClaim(r.Context(), *d.Claim))
		}
		next.ServeHTTP(w, r)
	})
}
