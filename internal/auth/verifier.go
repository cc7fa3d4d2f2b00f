// Package auth はIdPの本人証明の検証、セッション発行、セッション検証を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hitoshi/sessiongate/internal/idp"
	"github.com/hitoshi/sessiongate/internal/metrics"
	"github.com/hitoshi/sessiongate/internal/model"
	"github.com/hitoshi/sessiongate/internal/telemetry"
)

// DefaultIdPTimeout はIdP呼び出しのデフォルトのタイムアウト。
const DefaultIdPTimeout = 5 * time.Second

// IdP呼び出しの操作名（メトリクス・スパン名に使用）。
const (
	opVerifyIDToken       = "verify_id_token"
	opCreateSession       = "create_session_cookie"
	opVerifySession       = "verify_session_cookie"
	opVerifySessionRevoke = "verify_session_cookie_revocation"
)

// VerifiedProof はIdentityVerifierが検証に成功した本人証明。
// フィールドは非公開のため、このパッケージの外では生成できない。
type VerifiedProof struct {
	raw   string
	claim model.IdentityClaim
}

// Claim は検証で得られた本人情報を返す。
func (p *VerifiedProof) Claim() model.IdentityClaim {
	return p.claim
}

// IdentityVerifier はBearerで渡された短命の本人証明をIdPで検証する。
type IdentityVerifier struct {
	provider idp.Provider
	timeout  time.Duration
	metrics  metrics.MetricsCollector
}

// NewIdentityVerifier はIdentityVerifierを生成する。timeoutが0以下の場合はDefaultIdPTimeoutを使う。
func NewIdentityVerifier(provider idp.Provider, timeout time.Duration, m metrics.MetricsCollector) *IdentityVerifier {
	return &IdentityVerifier{
		provider: provider,
		timeout:  normalizeTimeout(timeout),
		metrics:  nopIfNil(m),
	}
}

// Verify は本人証明を検証する。
// 空文字列や3セグメントでない文字列はIdPに問い合わせずに model.ErrMalformedCredential を返す。
// IdPの拒否は model.ErrUnauthenticated、到達不能・タイムアウトは model.ErrUpstreamUnavailable を返す。
func (v *IdentityVerifier) Verify(ctx context.Context, proof string) (*VerifiedProof, error) {
	proof = strings.TrimSpace(proof)
	if err := checkStructure(proof); err != nil {
		return nil, err
	}

	var claim *model.IdentityClaim
	err := callIdP(ctx, v.timeout, v.metrics, opVerifyIDToken, func(ctx context.Context) error {
		var err error
		claim, err = v.provider.VerifyIDToken(ctx, proof)
		return err
	})
	if err != nil {
		return nil, err
	}
	if claim == nil || claim.SubjectID == "" {
		return nil, fmt.Errorf("verified token without subject: %w", model.ErrUnauthenticated)
	}

	return &VerifiedProof{raw: proof, claim: *claim}, nil
}

// checkStructure は本人証明が空でない3つのドット区切りセグメントからなるかを確認する。
// 署名や内容は検証しない。
func checkStructure(proof string) error {
	if proof == "" {
		return fmt.Errorf("empty proof: %w", model.ErrMalformedCredential)
	}
	segments := strings.Split(proof, ".")
	if len(segments) != 3 {
		return fmt.Errorf("proof has %d segments: %w", len(segments), model.ErrMalformedCredential)
	}
	for _, s := range segments {
		if s == "" {
			return fmt.Errorf("proof has an empty segment: %w", model.ErrMalformedCredential)
		}
	}
	return nil
}

// callIdP はIdP呼び出しをタイムアウト付きで実行し、スパンとメトリクスを記録する。
// タイムアウトは model.ErrUpstreamUnavailable として返す。
func callIdP(ctx context.Context, timeout time.Duration, m metrics.MetricsCollector, op string, fn func(context.Context) error) error {
	ctx, span := telemetry.Tracer().Start(ctx, "idp."+op)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	if err != nil && ctx.Err() != nil && !errors.Is(err, model.ErrUpstreamUnavailable) {
		err = fmt.Errorf("%s: %v: %w", op, ctx.Err(), model.ErrUpstreamUnavailable)
	}

	outcome := outcomeOf(err)
	m.RecordIdPCall(op, outcome, time.Since(start))
	span.SetAttributes(attribute.String("idp.outcome", outcome))
	if err != nil {
		span.SetStatus(codes.Error, outcome)
	}

	return err
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrUpstreamUnavailable):
		return "unavailable"
	default:
		return "rejected"
	}
}

func normalizeTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultIdPTimeout
	}
	return d
}

func nopIfNil(m metrics.MetricsCollector) metrics.MetricsCollector {
	if m == nil {
		return metrics.NopCollector{}
	}
	return m
}
