package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/sessiongate/internal/model"
)

func verifiedProof(t *testing.T, provider *mockProvider) *VerifiedProof {
	t.Helper()
	proof, err := NewIdentityVerifier(provider, time.Second, nil).Verify(context.Background(), "abc.def.ghi")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	return proof
}

func TestSessionIssuer_Issue_Success(t *testing.T) {
	provider := &mockProvider{
		createSessionCookieFn: func(_ context.Context, proof string, validity time.Duration) (string, error) {
			if proof != "abc.def.ghi" {
				t.Errorf("proof = %q, want %q", proof, "abc.def.ghi")
			}
			if validity != 14*24*time.Hour {
				t.Errorf("validity = %v, want 336h", validity)
			}
			return "opaque-session", nil
		},
	}
	issuer := NewSessionIssuer(provider, time.Second, nil)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return now }

	cred, err := issuer.Issue(context.Background(), verifiedProof(t, provider), 0)
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if cred.Value != "opaque-session" {
		t.Errorf("Value = %q, want %q", cred.Value, "opaque-session")
	}
	if cred.MaxAge != DefaultSessionValidity {
		t.Errorf("MaxAge = %v, want %v", cred.MaxAge, DefaultSessionValidity)
	}
	if int(cred.MaxAge.Seconds()) != 1209600 {
		t.Errorf("MaxAge seconds = %d, want 1209600", int(cred.MaxAge.Seconds()))
	}
	if !cred.ExpiresAt.Equal(now.Add(DefaultSessionValidity)) {
		t.Errorf("ExpiresAt = %v, want %v", cred.ExpiresAt, now.Add(DefaultSessionValidity))
	}
}

// 検証されていない証明ではIdPに問い合わせずにエラーを返す
func TestSessionIssuer_Issue_UnverifiedProof(t *testing.T) {
	provider := &mockProvider{}
	issuer := NewSessionIssuer(provider, time.Second, nil)

	for name, proof := range map[string]*VerifiedProof{
		"nil":        nil,
		"zero value": {},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := issuer.Issue(context.Background(), proof, time.Hour)
			if !errors.Is(err, ErrUnverifiedProof) {
				t.Errorf("error = %v, want ErrUnverifiedProof", err)
			}
		})
	}
	if provider.callCount() != 0 {
		t.Errorf("IdP called %d times, want 0", provider.callCount())
	}
}

func TestSessionIssuer_Issue_ValidityRange(t *testing.T) {
	provider := &mockProvider{}
	proof := verifiedProof(t, provider)
	issuer := NewSessionIssuer(provider, time.Second, nil)

	tests := []struct {
		name     string
		validity time.Duration
		wantErr  bool
	}{
		{"below minimum", 4 * time.Minute, true},
		{"minimum", 5 * time.Minute, false},
		{"one day", 24 * time.Hour, false},
		{"maximum", 14 * 24 * time.Hour, false},
		{"above maximum", 15 * 24 * time.Hour, true},
		{"negative", -time.Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.Issue(context.Background(), proof, tt.validity)
			if tt.wantErr && !errors.Is(err, ErrInvalidValidity) {
				t.Errorf("error = %v, want ErrInvalidValidity", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestSessionIssuer_Issue_IdPFailure(t *testing.T) {
	provider := &mockProvider{
		createSessionCookieFn: func(context.Context, string, time.Duration) (string, error) {
			return "", model.ErrUnauthenticated
		},
	}
	issuer := NewSessionIssuer(provider, time.Second, nil)

	_, err := issuer.Issue(context.Background(), verifiedProof(t, provider), time.Hour)
	if !errors.Is(err, model.ErrUnauthenticated) {
		t.Errorf("error = %v, want ErrUnauthenticated", err)
	}
}
