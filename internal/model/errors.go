// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// 認証・永続化のエラー種別。
// 各層は fmt.Errorf("...: %w", ErrXxx) でラップし、呼び出し側は errors.Is で判定する。
var (
	// ErrMalformedCredential は構造的に不正な資格情報。IdPへの問い合わせ前に拒否する。
	ErrMalformedCredential = errors.New("malformed credential")

	// ErrUnauthenticated はIdPが資格情報を拒否したことを表す。
	// 無効・期限切れ・失効を区別せず1種類にまとめる。
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrUpstreamUnavailable はIdPまたはストアに到達できない、もしくはタイムアウトしたことを表す。
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrPersistenceConflict は初回作成時の一意制約違反。ユーザーディレクトリ内で回復する。
	ErrPersistenceConflict = errors.New("persistence conflict")

	// ErrPersistenceFailure は回復不能なストアエラー。
	ErrPersistenceFailure = errors.New("persistence failure")
)

// APIError は統一エラーフォーマットを表す。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated = "UNAUTHENTICATED"
	ErrCodeInvalidBearer   = "INVALID_CREDENTIALS"
	ErrCodeInternal        = "INTERNAL_ERROR"
	ErrCodeUserNotFound    = "USER_NOT_FOUND"
	ErrCodeRateLimited     = "RATE_LIMIT_EXCEEDED"
)

// NewSessionRejectedError はセッション検証失敗時のエラーを生成する。
// 資格情報の欠落・不正・期限切れ・失効のいずれでも同じ内容を返す。
func NewSessionRejectedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "Invalid or expired session",
		Category: "auth",
	}
}

// NewInvalidCredentialsError はBearerトークン検証失敗時のエラーを生成する。
// どの検査で失敗したかは返さない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidBearer,
		Message:  "Missing or invalid credentials",
		Category: "auth",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Internal server error",
		Category: "system",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: "auth",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
	}
}
