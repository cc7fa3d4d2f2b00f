// Package user はIdPの本人情報に対応するローカルのユーザーレコードを管理する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/sessiongate/internal/metrics"
	"github.com/hitoshi/sessiongate/internal/model"
	"github.com/hitoshi/sessiongate/internal/repository"
)

// 作成・更新結果（メトリクスのラベル）。
const (
	outcomeCreated = "created"
	outcomeUpdated = "updated"
	outcomeFailed  = "failed"
)

// Config はユーザーディレクトリの設定。
type Config struct {
	InitialCoin int64 // 新規ユーザーに付与するコイン数

	// RetryMaxTries は一時的なストアエラー時の最大試行回数（初回を含む）。0の場合は2。
	RetryMaxTries uint
	// RetryInitialInterval は再試行までの初期待ち時間。0の場合は100ms。
	RetryInitialInterval time.Duration
}

// Directory はsubject_idごとに1件のユーザーレコードを作成・更新する。
// 一意性はストアの制約で保証し、ディレクトリ自身はロックを持たない。
type Directory struct {
	store   repository.UserStore
	config  Config
	metrics metrics.MetricsCollector
	now     func() time.Time
}

// NewDirectory はDirectoryを生成する。
func NewDirectory(store repository.UserStore, config Config, m metrics.MetricsCollector) *Directory {
	if config.RetryMaxTries == 0 {
		config.RetryMaxTries = 2
	}
	if config.RetryInitialInterval == 0 {
		config.RetryInitialInterval = 100 * time.Millisecond
	}
	if m == nil {
		m = metrics.NopCollector{}
	}
	return &Directory{
		store:   store,
		config:  config,
		metrics: m,
		now:     time.Now,
	}
}

// CreateOrUpdate は本人情報に対応するユーザーレコードを作成または更新し、保存後のレコードを返す。
// 既存レコードはemail・display_name・picture_url・last_loginのみ更新し、
// created_at・coin_balance・is_adminは変更しない。
// 並行する初回ログインで一意制約違反が起きた場合は更新として扱い、呼び出し側には返さない。
func (d *Directory) CreateOrUpdate(ctx context.Context, claim model.IdentityClaim) (*model.User, error) {
	if claim.SubjectID == "" {
		return nil, fmt.Errorf("claim without subject: %w", model.ErrMalformedCredential)
	}

	// PostgreSQLのTIMESTAMPTZはマイクロ秒精度のため、保存値と返却値を一致させる
	at := d.now().UTC().Truncate(time.Microsecond)
	var outcome string

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = d.config.RetryInitialInterval
	expBackoff.Reset()

	operation := func() (*model.User, error) {
		user, result, err := d.upsert(ctx, claim, at)
		if err != nil {
			if repository.IsTransient(err) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		outcome = result
		return user, nil
	}

	user, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(d.config.RetryMaxTries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Warn("transient store error, retrying user upsert",
				slog.String("subject_id", claim.SubjectID),
				slog.Duration("wait", wait),
				slog.String("error", err.Error()),
			)
		}),
	)
	if err != nil {
		d.metrics.RecordUserUpsert(outcomeFailed)
		slog.Error("failed to create or update user",
			slog.String("subject_id", claim.SubjectID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", model.ErrPersistenceFailure, err)
	}

	d.metrics.RecordUserUpsert(outcome)
	if outcome == outcomeCreated {
		slog.Info("new user created",
			slog.String("subject_id", user.SubjectID),
			slog.Int64("coin_balance", user.CoinBalance),
		)
	}

	return user, nil
}

// upsert は find → update、または insert を1回試行する。
func (d *Directory) upsert(ctx context.Context, claim model.IdentityClaim, at time.Time) (*model.User, string, error) {
	profile := model.ProfileFromClaim(claim)

	existing, err := d.store.FindBySubject(ctx, claim.SubjectID)
	if err != nil {
		return nil, "", err
	}
	if existing != nil {
		updated, err := d.store.UpdateLogin(ctx, claim.SubjectID, profile, at)
		if err != nil {
			return nil, "", err
		}
		if updated != nil {
			return updated, outcomeUpdated, nil
		}
		// 検索と更新の間にレコードが削除された場合は作成に進む
	}

	record := d.newRecord(claim, at)
	err = d.store.Insert(ctx, record)
	if errors.Is(err, model.ErrPersistenceConflict) {
		// 並行する初回ログインが先に作成した
		updated, err := d.store.UpdateLogin(ctx, claim.SubjectID, profile, at)
		if err != nil {
			return nil, "", err
		}
		if updated == nil {
			return nil, "", fmt.Errorf("user disappeared after insert conflict")
		}
		return updated, outcomeUpdated, nil
	}
	if err != nil {
		return nil, "", err
	}

	return record, outcomeCreated, nil
}

func (d *Directory) newRecord(claim model.IdentityClaim, at time.Time) *model.User {
	return &model.User{
		ID:            uuid.New().String(),
		SubjectID:     claim.SubjectID,
		Email:         claim.Email,
		DisplayName:   claim.DisplayName,
		PictureURL:    claim.PictureURL,
		CoinBalance:   d.config.InitialCoin,
		CoinUpdatedAt: at,
		IsAdmin:       false,
		CreatedAt:     at,
		LastLogin:     at,
	}
}

// FindBySubject はsubject_idでユーザーレコードを取得する。見つからない場合はnilを返す。
func (d *Directory) FindBySubject(ctx context.Context, subjectID string) (*model.User, error) {
	user, err := d.store.FindBySubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrPersistenceFailure, err)
	}
	return user, nil
}

// FormatPublicView はユーザーレコードをAPIレスポンス用の公開ビューに変換する。内部IDは含めない。
func FormatPublicView(u *model.User) model.UserView {
	return model.UserView{
		SubjectID:     u.SubjectID,
		Email:         u.Email,
		DisplayName:   u.DisplayName,
		PictureURL:    u.PictureURL,
		CoinBalance:   u.CoinBalance,
		IsAdmin:       u.IsAdmin,
		CreatedAt:     u.CreatedAt,
		CoinUpdatedAt: u.CoinUpdatedAt,
		LastLogin:     u.LastLogin,
	}
}
