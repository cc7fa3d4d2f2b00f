// Package model はドメインモデルを定義する。
package model

import "time"

// IdentityClaim はIdPの検証結果を正規化した本人情報を表す。
// 永続化はしない。SubjectIDのみが呼び出し間で安定した識別子であり、
// Email、DisplayName、PictureURLはIdP側で変わり得るため識別には使わない。
type IdentityClaim struct {
	SubjectID   string
	Email       string
	DisplayName string
	PictureURL  string
}

// User はSubjectIDごとに1件だけ存在するローカルのユーザーレコードを表す。
type User struct {
	ID            string    `db:"id"` // 内部用。公開ビューには含めない
	SubjectID     string    `db:"subject_id"`
	Email         string    `db:"email"`
	DisplayName   string    `db:"display_name"`
	PictureURL    string    `db:"picture_url"`
	CoinBalance   int64     `db:"coin_balance"`
	CoinUpdatedAt time.Time `db:"coin_updated_at"`
	IsAdmin       bool      `db:"is_admin"`
	CreatedAt     time.Time `db:"created_at"` // 初回作成後は変更しない
	LastLogin     time.Time `db:"last_login"` // 単調非減少
}

// UserView はAPIレスポンスとして返すユーザーレコードの公開ビュー。
type UserView struct {
	SubjectID     string    `json:"subject_id"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"display_name"`
	PictureURL    string    `json:"picture_url"`
	CoinBalance   int64     `json:"coin_balance"`
	IsAdmin       bool      `json:"is_admin"`
	CreatedAt     time.Time `json:"created_at"`
	CoinUpdatedAt time.Time `json:"coin_updated_at"`
	LastLogin     time.Time `json:"last_login"`
}

// LoginProfile はログインのたびに更新するプロフィール項目。
type LoginProfile struct {
	Email       string
	DisplayName string
	PictureURL  string
}

// ProfileFromClaim はIdentityClaimから更新用プロフィールを取り出す。
func ProfileFromClaim(claim IdentityClaim) LoginProfile {
	return LoginProfile{
		Email:       claim.Email,
		DisplayName: claim.DisplayName,
		PictureURL:  claim.PictureURL,
	}
}

// SessionCredential はIdPが発行したセッション資格情報。
// アプリケーションは中身をデコードせず、検証は常にIdPに委譲する。
type SessionCredential struct {
	Value     string
	ExpiresAt time.Time
	MaxAge    time.Duration
}
