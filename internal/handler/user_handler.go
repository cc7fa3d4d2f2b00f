package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/sessiongate/internal/middleware"
	"github.com/hitoshi/sessiongate/internal/model"
	"github.com/hitoshi/sessiongate/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// FindBySubject はsubject_idでユーザーを取得する。見つからない場合はnilを返す。
	FindBySubject(ctx context.Context, subjectID string) (*model.User, error)
}

// UserHandler はユーザーレコード参照のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

type userResponse struct {
	Success bool           `json:"success"`
	User    model.UserView `json:"user"`
}

// GetMe はログイン中ユーザーの保存済みレコードを返す。
//
//	@Summary	Stored user record
//	@Tags		users
//	@Produce	json
//	@Success	200	{object}	userResponse
//	@Failure	401	{object}	middleware.ErrorResponseBody
//	@Failure	404	{object}	middleware.ErrorResponseBody
//	@Router		/api/users/me [get]
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	claim, ok := middleware.ClaimFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewSessionRejectedError())
		return
	}

	u, err := h.service.FindBySubject(r.Context(), claim.SubjectID)
	if err != nil {
		slog.Error("failed to load user",
			slog.String("subject_id", claim.SubjectID),
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.RequestIDFromContext(r.Context())),
		)
		middleware.WriteInternalServerError(w)
		return
	}
	if u == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
		return
	}

	writeJSON(w, http.StatusOK, userResponse{
		Success: true,
		User:    user.FormatPublicView(u),
	})
}
