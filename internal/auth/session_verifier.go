package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/sessiongate/internal/idp"
	"github.com/hitoshi/sessiongate/internal/metrics"
	"github.com/hitoshi/sessiongate/internal/model"
)

// SessionVerifier はクッキーで提示されたセッション資格情報をIdPで検証する。
// 欠落・不正・期限切れ・失効はすべて model.ErrUnauthenticated にまとめる。
type SessionVerifier struct {
	provider idp.Provider
	timeout  time.Duration
	metrics  metrics.MetricsCollector
}

// NewSessionVerifier はSessionVerifierを生成する。
func NewSessionVerifier(provider idp.Provider, timeout time.Duration, m metrics.MetricsCollector) *SessionVerifier {
	return &SessionVerifier{
		provider: provider,
		timeout:  normalizeTimeout(timeout),
		metrics:  nopIfNil(m),
	}
}

// Verify はセッション資格情報の署名と有効期限を検証する。
func (v *SessionVerifier) Verify(ctx context.Context, credential string) (*model.IdentityClaim, error) {
	return v.verify(ctx, credential, false)
}

// VerifyRevocationAware はVerifyに加えてIdP側の失効状態も確認する。
func (v *SessionVerifier) VerifyRevocationAware(ctx context.Context, credential string) (*model.IdentityClaim, error) {
	return v.verify(ctx, credential, true)
}

func (v *SessionVerifier) verify(ctx context.Context, credential string, checkRevoked bool) (*model.IdentityClaim, error) {
	if credential == "" {
		return nil, fmt.Errorf("missing session credential: %w", model.ErrUnauthenticated)
	}

	op := opVerifySession
	if checkRevoked {
		op = opVerifySessionRevoke
	}

	var claim *model.IdentityClaim
	err := callIdP(ctx, v.timeout, v.metrics, op, func(ctx context.Context) error {
		var err error
		claim, err = v.provider.VerifySessionCookie(ctx, credential, checkRevoked)
		return err
	})
	if err != nil {
		return nil, err
	}
	if claim == nil || claim.SubjectID == "" {
		return nil, fmt.Errorf("session without subject: %w", model.ErrUnauthenticated)
	}

	return claim, nil
}
