package idp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/errorutils"
	"google.golang.org/api/option"

	"github.com/hitoshi/sessiongate/internal/model"
)

// FirebaseConfig はFirebase Admin SDKの初期化設定。
type FirebaseConfig struct {
	ProjectID string
	// CredentialsJSON はサービスアカウントのJSON。
	// 空の場合はApplication Default Credentials（またはFIREBASE_AUTH_EMULATOR_HOST）を使う。
	CredentialsJSON string
}

// authClient はFirebase Authクライアントのうち使用するメソッドのみを切り出したもの。
type authClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
	SessionCookie(ctx context.Context, idToken string, expiresIn time.Duration) (string, error)
	VerifySessionCookie(ctx context.Context, sessionCookie string) (*fbauth.Token, error)
	VerifySessionCookieAndCheckRevoked(ctx context.Context, sessionCookie string) (*fbauth.Token, error)
}

// ErrNotInitialized はInitが成功する前にIdPを呼び出したことを表す。
var ErrNotInitialized = errors.New("identity provider not initialized")

// FirebaseProvider はFirebase Admin SDKを使ったProvider実装。
// クライアントは起動時のInitで一度だけ生成し、以降は全リクエストで共有する。
// 初回アクセス時の暗黙的な初期化は行わない。
type FirebaseProvider struct {
	newClient func(ctx context.Context) (authClient, error)

	once    sync.Once
	ready   atomic.Bool
	client  authClient
	initErr error
}

// NewFirebaseProvider はFirebaseProviderを生成する。この時点ではIdPに接続しない。
func NewFirebaseProvider(cfg FirebaseConfig) *FirebaseProvider {
	return &FirebaseProvider{
		newClient: func(ctx context.Context) (authClient, error) {
			var opts []option.ClientOption
			if cfg.CredentialsJSON != "" {
				opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
			}

			app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
			if err != nil {
				return nil, fmt.Errorf("failed to create firebase app: %w", err)
			}
			client, err := app.Auth(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to create firebase auth client: %w", err)
			}
			return client, nil
		},
	}
}

// Init はFirebase Authクライアントを初期化する。
// 何度呼んでも初期化は1回だけ行われ、並行呼び出しは同じ結果を共有する。
func (p *FirebaseProvider) Init(ctx context.Context) error {
	p.once.Do(func() {
		p.client, p.initErr = p.newClient(ctx)
		if p.initErr == nil {
			p.ready.Store(true)
		}
	})
	return p.initErr
}

func (p *FirebaseProvider) readyClient() (authClient, error) {
	if !p.ready.Load() {
		return nil, fmt.Errorf("%w: %w", ErrNotInitialized, model.ErrUpstreamUnavailable)
	}
	return p.client, nil
}

// VerifyIDToken はIDトークンをFirebaseで検証する。
func (p *FirebaseProvider) VerifyIDToken(ctx context.Context, proof string) (*model.IdentityClaim, error) {
	client, err := p.readyClient()
	if err != nil {
		return nil, err
	}

	token, err := client.VerifyIDToken(ctx, proof)
	if err != nil {
		return nil, classify(ctx, "verify id token", err)
	}
	return claimFromToken(token)
}

// CreateSessionCookie はIDトークンをセッションクッキーに交換する。
func (p *FirebaseProvider) CreateSessionCookie(ctx context.Context, proof string, validity time.Duration) (string, error) {
	client, err := p.readyClient()
	if err != nil {
		return "", err
	}

	cookie, err := client.SessionCookie(ctx, proof, validity)
	if err != nil {
		return "", classify(ctx, "create session cookie", err)
	}
	return cookie, nil
}

// VerifySessionCookie はセッションクッキーをFirebaseで検証する。
func (p *FirebaseProvider) VerifySessionCookie(ctx context.Context, credential string, checkRevoked bool) (*model.IdentityClaim, error) {
	client, err := p.readyClient()
	if err != nil {
		return nil, err
	}

	var token *fbauth.Token
	if checkRevoked {
		token, err = client.VerifySessionCookieAndCheckRevoked(ctx, credential)
	} else {
		token, err = client.VerifySessionCookie(ctx, credential)
	}
	if err != nil {
		return nil, classify(ctx, "verify session cookie", err)
	}
	return claimFromToken(token)
}

// claimFromToken はFirebaseのトークンをIdentityClaimに正規化する。
func claimFromToken(token *fbauth.Token) (*model.IdentityClaim, error) {
	if token == nil || token.UID == "" {
		return nil, fmt.Errorf("token without subject: %w", model.ErrUnauthenticated)
	}
	return &model.IdentityClaim{
		SubjectID:   token.UID,
		Email:       stringClaim(token.Claims, "email"),
		DisplayName: stringClaim(token.Claims, "name"),
		PictureURL:  stringClaim(token.Claims, "picture"),
	}, nil
}

func stringClaim(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

// classify はSDKのエラーを「IdPが拒否した」か「IdPに到達できない」かに分類する。
// 判別できないエラーは拒否として扱う。
func classify(ctx context.Context, op string, err error) error {
	switch {
	case ctx.Err() != nil,
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errorutils.IsUnavailable(err),
		errorutils.IsDeadlineExceeded(err),
		errorutils.IsInternal(err),
		fbauth.IsCertificateFetchFailed(err),
		isNetworkError(err):
		return fmt.Errorf("%s: %v: %w", op, err, model.ErrUpstreamUnavailable)
	default:
		return fmt.Errorf("%s: %v: %w", op, err, model.ErrUnauthenticated)
	}
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}

// compile-time interface check
var _ Provider = (*FirebaseProvider)(nil)
