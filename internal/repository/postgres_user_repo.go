package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/sessiongate/internal/model"
	"github.com/jmoiron/sqlx"
)

const userColumns = `id, subject_id, email, display_name, picture_url,
	coin_balance, coin_updated_at, is_admin, created_at, last_login`

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
// subject_idの一意性はusersテーブルのUNIQUE制約で保証する。
type PostgresUserRepo struct {
	db *sqlx.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sqlx.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindBySubject はsubject_idでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindBySubject(ctx context.Context, subjectID string) (*model.User, error) {
	user := &model.User{}
	err := r.db.GetContext(ctx, user,
		`SELECT `+userColumns+` FROM users WHERE subject_id = $1`,
		subjectID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by subject: %w", err)
	}

	return user, nil
}

// UpdateLogin はプロフィール項目とlast_loginを1文で更新する。
// 並行ログインで古い時刻が後から書き込まれてもlast_loginが後退しないよう、GREATESTを使う。
func (r *PostgresUserRepo) UpdateLogin(ctx context.Context, subjectID string, profile model.LoginProfile, at time.Time) (*model.User, error) {
	user := &model.User{}
	err := r.db.GetContext(ctx, user,
		`UPDATE users
		 SET email = $2, display_name = $3, picture_url = $4,
		     last_login = GREATEST(last_login, $5)
		 WHERE subject_id = $1
		 RETURNING `+userColumns,
		subjectID, profile.Email, profile.DisplayName, profile.PictureURL, at,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user login: %w", err)
	}

	return user, nil
}

// Insert はユーザーを作成する。一意制約違反は model.ErrPersistenceConflict として返す。
func (r *PostgresUserRepo) Insert(ctx context.Context, user *model.User) error {
	_, err := r.db.NamedExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (:id, :subject_id, :email, :display_name, :picture_url,
		         :coin_balance, :coin_updated_at, :is_admin, :created_at, :last_login)`,
		user,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("user already exists for subject: %w", model.ErrPersistenceConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	return nil
}

// PingContext はDBへの疎通を確認する。
func (r *PostgresUserRepo) PingContext(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// compile-time interface check
var _ UserStore = (*PostgresUserRepo)(nil)
