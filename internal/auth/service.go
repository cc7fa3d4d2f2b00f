package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hitoshi/sessiongate/internal/model"
	"github.com/hitoshi/sessiongate/internal/telemetry"
)

// UserDirectory はローカルのユーザーレコードを作成・更新するインターフェース。
type UserDirectory interface {
	CreateOrUpdate(ctx context.Context, claim model.IdentityClaim) (*model.User, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionValidity time.Duration // セッション有効期間。0の場合はDefaultSessionValidity
}

// InitResult はユーザー初期化の結果。
type InitResult struct {
	User    *model.User
	Session *model.SessionCredential
}

// Service は初期化フロー（本人証明の検証、セッション発行、ユーザーレコード更新）を提供する。
type Service struct {
	verifier *IdentityVerifier
	issuer   *SessionIssuer
	users    UserDirectory
	config   ServiceConfig
}

// NewService はServiceを生成する。
func NewService(verifier *IdentityVerifier, issuer *SessionIssuer, users UserDirectory, config ServiceConfig) *Service {
	return &Service{
		verifier: verifier,
		issuer:   issuer,
		users:    users,
		config:   config,
	}
}

// InitUser は本人証明を検証し、セッションを発行し、ユーザーレコードを作成または更新する。
// いずれかの段階で失敗した場合はセッションを返さない。
func (s *Service) InitUser(ctx context.Context, proof string) (*InitResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "auth.InitUser")
	defer span.End()

	// 1. 本人証明をIdPで検証
	verified, err := s.verifier.Verify(ctx, proof)
	if err != nil {
		return nil, fmt.Errorf("failed to verify identity proof: %w", err)
	}
	claim := verified.Claim()
	span.SetAttributes(attribute.String("enduser.id", claim.SubjectID))

	// 2. セッション資格情報を発行
	session, err := s.issuer.Issue(ctx, verified, s.config.SessionValidity)
	if err != nil {
		return nil, err
	}

	// 3. ユーザーレコードを作成または更新
	user, err := s.users.CreateOrUpdate(ctx, claim)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize user: %w", err)
	}

	slog.Info("user initialized",
		slog.String("subject_id", claim.SubjectID),
		slog.Time("session_expires_at", session.ExpiresAt),
	)

	return &InitResult{User: user, Session: session}, nil
}
