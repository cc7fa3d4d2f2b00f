// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/sessiongate/internal/auth"
	"github.com/hitoshi/sessiongate/internal/middleware"
	"github.com/hitoshi/sessiongate/internal/model"
	"github.com/hitoshi/sessiongate/internal/user"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	InitUser(ctx context.Context, proof string) (*auth.InitResult, error)
}

// AuthHandler はユーザー初期化、本人確認、ログアウトのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	cookies CookiePolicy
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, cookies CookiePolicy) *AuthHandler {
	return &AuthHandler{
		service: service,
		cookies: cookies,
	}
}

type initResponse struct {
	Success bool           `json:"success"`
	User    model.UserView `json:"user"`
	Message string         `json:"message"`
}

type whoAmIResponse struct {
	Success     bool   `json:"success"`
	SubjectID   string `json:"subject_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	PictureURL  string `json:"picture_url"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// InitUser はBearerトークンの本人証明を検証し、セッションCookieを発行してユーザーレコードを作成・更新する。
//
//	@Summary	Initialize user session
//	@Tags		auth
//	@Produce	json
//	@Param		Authorization	header		string	true	"Bearer <id token>"
//	@Success	200				{object}	initResponse
//	@Failure	401				{object}	middleware.ErrorResponseBody
//	@Failure	500				{object}	middleware.ErrorResponseBody
//	@Router		/api/auth/users/init [post]
func (h *AuthHandler) InitUser(w http.ResponseWriter, r *http.Request) {
	proof, ok := bearerToken(r)
	if !ok {
		slog.Info("init rejected",
			slog.String("reason", "missing_bearer"),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
		return
	}

	result, err := h.service.InitUser(r.Context(), proof)
	if err != nil {
		h.writeInitError(w, r, err)
		return
	}

	http.SetCookie(w, h.cookies.SessionCookie(result.Session))
	writeJSON(w, http.StatusOK, initResponse{
		Success: true,
		User:    user.FormatPublicView(result.User),
		Message: "User initialized successfully",
	})
}

// writeInitError は初期化エラーをレスポンスに変換する。
// ストア障害のみ500とし、それ以外（不正な証明、IdPの拒否・タイムアウト）は区別せず401を返す。
func (h *AuthHandler) writeInitError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.RequestIDFromContext(r.Context())

	if errors.Is(err, model.ErrPersistenceFailure) {
		slog.Error("user initialization failed",
			slog.String("error", err.Error()),
			slog.String("request_id", requestID),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	level := slog.LevelInfo
	reason := "invalid_proof"
	switch {
	case errors.Is(err, model.ErrUpstreamUnavailable):
		level = slog.LevelError
		reason = "idp_unavailable"
	case errors.Is(err, model.ErrMalformedCredential):
		reason = "malformed_proof"
	}
	slog.Log(r.Context(), level, "init rejected",
		slog.String("reason", reason),
		slog.String("error", err.Error()),
		slog.String("request_id", requestID),
	)
	middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidCredentialsError())
}

// WhoAmI はゲートが検証した本人情報を返す。IdPやストアには問い合わせない。
//
//	@Summary	Current identity
//	@Tags		auth
//	@Produce	json
//	@Success	200	{object}	whoAmIResponse
//	@Failure	401	{object}	middleware.ErrorResponseBody
//	@Router		/api/auth/who-am-i [get]
func (h *AuthHandler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	claim, ok := middleware.ClaimFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewSessionRejectedError())
		return
	}

	writeJSON(w, http.StatusOK, whoAmIResponse{
		Success:     true,
		SubjectID:   claim.SubjectID,
		Email:       claim.Email,
		DisplayName: claim.DisplayName,
		PictureURL:  claim.PictureURL,
	})
}

// Logout はセッションCookieを削除する。Cookieがなくても成功を返す。
// IdP側のセッション失効は行わない。
//
//	@Summary	Logout
//	@Tags		auth
//	@Produce	json
//	@Success	200	{object}	messageResponse
//	@Router		/api/auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.cookies.ClearingCookie())
	writeJSON(w, http.StatusOK, messageResponse{
		Success: true,
		Message: "Logged out successfully",
	})
}

// bearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
// スキーム名は大文字小文字を区別しない。
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
