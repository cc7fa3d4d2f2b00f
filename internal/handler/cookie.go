package handler

import (
	"net/http"
	"time"

	"github.com/hitoshi/sessiongate/internal/middleware"
	"github.com/hitoshi/sessiongate/internal/model"
)

// CookiePolicy はセッションCookieの属性。発行時と削除時で同じ属性を使う。
type CookiePolicy struct {
	Domain   string
	Secure   bool
	SameSite http.SameSite
}

// NewCookiePolicy はバックエンドの配置先からCookie属性を決める。
// cloudの場合はクロスサイト送信のためSecure+SameSite=None、localの場合はSameSite=Laxとする。
func NewCookiePolicy(backendOnCloud bool, domain string) CookiePolicy {
	if backendOnCloud {
		return CookiePolicy{Domain: domain, Secure: true, SameSite: http.SameSiteNoneMode}
	}
	return CookiePolicy{Domain: domain, Secure: false, SameSite: http.SameSiteLaxMode}
}

// SessionCookie はセッション資格情報を運ぶCookieを生成する。
func (p CookiePolicy) SessionCookie(session *model.SessionCredential) *http.Cookie {
	return &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.Value,
		Path:     "/",
		Domain:   p.Domain,
		MaxAge:   int(session.MaxAge / time.Second),
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.SameSite,
	}
}

// ClearingCookie はセッションCookieを削除するためのCookieを生成する。
func (p CookiePolicy) ClearingCookie() *http.Cookie {
	return &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   p.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.SameSite,
	}
}
