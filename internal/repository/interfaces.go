// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/sessiongate/internal/model"
)

// UserStore はユーザーレコードの永続化インターフェース。
// ユーザーディレクトリからのみ利用する最小限の操作（find-one、update-one、insert-one）を提供する。
// 実装は並行利用に対して安全でなければならない。
type UserStore interface {
	// FindBySubject はsubject_idでユーザーを取得する。見つからない場合はnilを返す。
	FindBySubject(ctx context.Context, subjectID string) (*model.User, error)

	// UpdateLogin はプロフィール項目を上書きし、last_loginを max(既存値, at) に更新する。
	// 1回のアトミックな更新で行い、更新後のレコードを返す。該当行がない場合はnilを返す。
	UpdateLogin(ctx context.Context, subjectID string, profile model.LoginProfile, at time.Time) (*model.User, error)

	// Insert はユーザーを作成する。
	// subject_idの一意制約に違反した場合は model.ErrPersistenceConflict をラップしたエラーを返す。
	Insert(ctx context.Context, user *model.User) error

	// PingContext はストアへの疎通を確認する。
	PingContext(ctx context.Context) error
}
