package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/sessiongate/internal/idp"
	"github.com/hitoshi/sessiongate/internal/metrics"
	"github.com/hitoshi/sessiongate/internal/model"
)

// IdPが受け付けるセッション有効期間の範囲。
const (
	MinSessionValidity     = 5 * time.Minute
	MaxSessionValidity     = 14 * 24 * time.Hour
	DefaultSessionValidity = MaxSessionValidity
)

var (
	// ErrUnverifiedProof は検証済みでない本人証明でセッションを発行しようとしたことを表す。
	ErrUnverifiedProof = errors.New("session issuance requires a verified proof")

	// ErrInvalidValidity はセッション有効期間がIdPの受け付ける範囲外であることを表す。
	ErrInvalidValidity = errors.New("session validity out of range")
)

// ValidateSessionValidity は有効期間が MinSessionValidity 以上 MaxSessionValidity 以下かを確認する。
func ValidateSessionValidity(validity time.Duration) error {
	if validity < MinSessionValidity || validity > MaxSessionValidity {
		return fmt.Errorf("%w: %s (allowed %s..%s)", ErrInvalidValidity, validity, MinSessionValidity, MaxSessionValidity)
	}
	return nil
}

// SessionIssuer は検証済みの本人証明をIdP発行のセッション資格情報に交換する。
type SessionIssuer struct {
	provider idp.Provider
	timeout  time.Duration
	metrics  metrics.MetricsCollector
	now      func() time.Time
}

// NewSessionIssuer はSessionIssuerを生成する。
func NewSessionIssuer(provider idp.Provider, timeout time.Duration, m metrics.MetricsCollector) *SessionIssuer {
	return &SessionIssuer{
		provider: provider,
		timeout:  normalizeTimeout(timeout),
		metrics:  nopIfNil(m),
		now:      time.Now,
	}
}

// Issue はセッション資格情報を発行する。validityが0の場合はDefaultSessionValidityを使う。
func (i *SessionIssuer) Issue(ctx context.Context, proof *VerifiedProof, validity time.Duration) (*model.SessionCredential, error) {
	if proof == nil || proof.raw == "" {
		return nil, ErrUnverifiedProof
	}
	if validity == 0 {
		validity = DefaultSessionValidity
	}
	if err := ValidateSessionValidity(validity); err != nil {
		return nil, err
	}

	issuedAt := i.now()
	var value string
	err := callIdP(ctx, i.timeout, i.metrics, opCreateSession, func(ctx context.Context) error {
		var err error
		value, err = i.provider.CreateSessionCookie(ctx, proof.raw, validity)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}

	return &model.SessionCredential{
		Value:     value,
		ExpiresAt: issuedAt.Add(validity),
		MaxAge:    validity,
	}, nil
}
