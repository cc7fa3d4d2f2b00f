// Package idp は外部IdP（Firebase Authentication）への問い合わせを提供する。
// 資格情報の署名・有効期限・失効の判定はすべてIdPに委ね、ローカルではデコードしない。
package idp

import (
	"context"
	"time"

	"github.com/hitoshi/sessiongate/internal/model"
)

// Provider はIdPとの通信を抽象化するインターフェース。
// エラーは model.ErrUnauthenticated（IdPが拒否）または
// model.ErrUpstreamUnavailable（IdPに到達できない）をラップして返す。
type Provider interface {
	// VerifyIDToken は短命の本人証明（IDトークン）を検証する。
	VerifyIDToken(ctx context.Context, proof string) (*model.IdentityClaim, error)

	// CreateSessionCookie は検証済みの本人証明からセッションクッキーを発行する。
	CreateSessionCookie(ctx context.Context, proof string, validity time.Duration) (string, error)

	// VerifySessionCookie はセッションクッキーを検証する。
	// checkRevokedがtrueの場合はIdP側の失効状態も確認する。
	VerifySessionCookie(ctx context.Context, credential string, checkRevoked bool) (*model.IdentityClaim, error)
}
