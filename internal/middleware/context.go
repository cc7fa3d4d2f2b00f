// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"

	"github.com/hitoshi/sessiongate/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// claimContextKey はリクエストゲートが検証済みの本人情報を格納するキー。
	claimContextKey = contextKey("identity_claim")
	// requestIDContextKey はリクエストIDを格納するキー。
	requestIDContextKey = contextKey("request_id")
)

// ClaimFromContext はリクエストゲートが付与した本人情報を取得する。
// 公開パスなどゲートを通過していないリクエストではokがfalseになる。
func ClaimFromContext(ctx context.Context) (model.IdentityClaim, bool) {
	claim, ok := ctx.Value(claimContextKey).(model.IdentityClaim)
	if !ok || claim.SubjectID == "" {
		return model.IdentityClaim{}, false
	}
	return claim, true
}

// ContextWithClaim はコンテキストに本人情報を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithClaim(ctx context.Context, claim model.IdentityClaim) context.Context {
	return context.WithValue(ctx, claimContextKey, claim)
}

// RequestIDFromContext はロギングミドルウェアが採番したリクエストIDを取得する。
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}
