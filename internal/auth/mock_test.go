package auth

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/sessiongate/internal/idp"
	"github.com/hitoshi/sessiongate/internal/model"
)

// --- モック定義 ---

type mockProvider struct {
	mu    sync.Mutex
	calls int

	verifyIDTokenFn       func(ctx context.Context, proof string) (*model.IdentityClaim, error)
	createSessionCookieFn func(ctx context.Context, proof string, validity time.Duration) (string, error)
	verifySessionCookieFn func(ctx context.Context, credential string, checkRevoked bool) (*model.IdentityClaim, error)
}

func (m *mockProvider) called() {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
}

func (m *mockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockProvider) VerifyIDToken(ctx context.Context, proof string) (*model.IdentityClaim, error) {
	m.called()
	if m.verifyIDTokenFn != nil {
		return m.verifyIDTokenFn(ctx, proof)
	}
	return &model.IdentityClaim{SubjectID: "uid-1", Email: "a@x.com"}, nil
}

func (m *mockProvider) CreateSessionCookie(ctx context.Context, proof string, validity time.Duration) (string, error) {
	m.called()
	if m.createSessionCookieFn != nil {
		return m.createSessionCookieFn(ctx, proof, validity)
	}
	return "session-value", nil
}

func (m *mockProvider) VerifySessionCookie(ctx context.Context, credential string, checkRevoked bool) (*model.IdentityClaim, error) {
	m.called()
	if m.verifySessionCookieFn != nil {
		return m.verifySessionCookieFn(ctx, credential, checkRevoked)
	}
	return &model.IdentityClaim{SubjectID: "uid-1", Email: "a@x.com"}, nil
}

type mockDirectory struct {
	createOrUpdateFn func(ctx context.Context, claim model.IdentityClaim) (*model.User, error)
}

func (m *mockDirectory) CreateOrUpdate(ctx context.Context, claim model.IdentityClaim) (*model.User, error) {
	if m.createOrUpdateFn != nil {
		return m.createOrUpdateFn(ctx, claim)
	}
	return &model.User{SubjectID: claim.SubjectID, Email: claim.Email}, nil
}

// --- compile-time interface checks ---
var _ idp.Provider = (*mockProvider)(nil)
var _ UserDirectory = (*mockDirectory)(nil)

// blockUntilDone はコンテキストが終了するまでブロックし、そのエラーを返す。
func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
